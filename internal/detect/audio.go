package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"harp/internal/fileutil"
	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/services"
)

const (
	// SubtitleFileName is the subtitle overlay the audio pipeline writes beside
	// its predictions. The combiner burns it into the hand video.
	SubtitleFileName = "overlay.srt"

	audioVideoName = "video_labeled.mp4"
	audioTool      = "audio detector"
)

// AudioRequest describes one run of the audio onset pipeline.
type AudioRequest struct {
	Video     string
	Model     string
	Mode      jobs.Mode
	OutputDir string
}

// AudioDetector runs the configured audio detection command.
type AudioDetector struct {
	command []string
	logger  *slog.Logger
	runner  commandRunner
}

// NewAudioDetector builds an adapter around an argv prefix such as
// ["python", "audio_detect.py"].
func NewAudioDetector(command []string, logger *slog.Logger) *AudioDetector {
	return &AudioDetector{
		command: append([]string(nil), command...),
		logger:  logging.NewComponentLogger(logger, "audio-detector"),
		runner:  execRunner{},
	}
}

// Detect runs the pipeline and returns the produced predictions and video.
func (d *AudioDetector) Detect(ctx context.Context, req AudioRequest) (jobs.Result, error) {
	if len(d.command) == 0 {
		return jobs.Result{}, services.Wrap(services.ErrConfiguration, "audio", "detect", "audio command not configured", nil)
	}
	if req.Video == "" || req.Model == "" || req.OutputDir == "" {
		return jobs.Result{}, services.Wrap(services.ErrValidation, "audio", "detect", "video, model, and output dir are required", nil)
	}
	mode := req.Mode
	if mode == "" {
		mode = jobs.ModeHybrid
	}

	args := append(append([]string(nil), d.command[1:]...),
		"--video", req.Video,
		"--model", req.Model,
		"--mode", string(mode),
		"--output-dir", req.OutputDir,
	)

	logger := logging.WithContext(ctx, d.logger)
	logger.Debug("audio detector starting", logging.Args(
		logging.String("command", d.command[0]),
		logging.String("mode", string(mode)),
		logging.String("output_dir", req.OutputDir),
	)...)
	start := time.Now()
	result, err := d.runner.Run(ctx, d.command[0], args...)
	if err != nil {
		return jobs.Result{}, runFailure(ctx, audioTool, result, err)
	}

	csvPath := filepath.Join(req.OutputDir, fmt.Sprintf("predictions_%s.csv", mode))
	videoPath := filepath.Join(req.OutputDir, audioVideoName)
	if reported, ok := parseReported(result.Stdout); ok {
		if reported.CSVPath != "" {
			csvPath = resolveReported(req.OutputDir, reported.CSVPath)
		}
		if reported.VideoPath != "" {
			videoPath = resolveReported(req.OutputDir, reported.VideoPath)
		}
	} else if !fileutil.IsRegularFile(csvPath) {
		// Accept any CSV the pipeline left when the mode-specific name is absent.
		if alt := firstWithExt(req.OutputDir, ".csv"); alt != "" {
			csvPath = alt
		}
	}
	if err := requireOutputs(audioTool, csvPath, videoPath); err != nil {
		return jobs.Result{}, err
	}

	rows, err := countRows(csvPath)
	if err != nil {
		return jobs.Result{}, &ToolError{Tool: audioTool, Message: "unreadable predictions", Err: err}
	}
	logger.Info("audio detector finished", logging.Args(
		logging.Int("rows", rows),
		logging.Duration("elapsed", time.Since(start)),
	)...)
	return jobs.Result{Rows: rows, CSVPath: csvPath, VideoPath: videoPath}, nil
}

// SubtitlePath returns the overlay written by an audio run into dir, if any.
func SubtitlePath(dir string) (string, bool) {
	path := filepath.Join(dir, SubtitleFileName)
	if fileutil.IsRegularFile(path) {
		return path, true
	}
	return "", false
}

// IsTimeout reports whether err came from a detector or combiner hitting its deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, services.ErrTimeout)
}
