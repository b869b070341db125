package detect

import (
	"context"
	"log/slog"
	"time"

	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/services"
)

const handTool = "hand detector"

// HandRequest describes one run of the hand/string vision pipeline.
type HandRequest struct {
	Video     string
	Weights   string
	OutputDir string
}

// HandDetector runs the configured hand detection command.
type HandDetector struct {
	command []string
	logger  *slog.Logger
	runner  commandRunner
}

// NewHandDetector builds an adapter around an argv prefix.
func NewHandDetector(command []string, logger *slog.Logger) *HandDetector {
	return &HandDetector{
		command: append([]string(nil), command...),
		logger:  logging.NewComponentLogger(logger, "hand-detector"),
		runner:  execRunner{},
	}
}

// Detect runs the pipeline. Weights are optional; without them the pipeline
// picks its own.
func (d *HandDetector) Detect(ctx context.Context, req HandRequest) (jobs.Result, error) {
	if len(d.command) == 0 {
		return jobs.Result{}, services.Wrap(services.ErrConfiguration, "hand", "detect", "hand command not configured", nil)
	}
	if req.Video == "" || req.OutputDir == "" {
		return jobs.Result{}, services.Wrap(services.ErrValidation, "hand", "detect", "video and output dir are required", nil)
	}

	args := append(append([]string(nil), d.command[1:]...),
		"--video", req.Video,
		"--output-dir", req.OutputDir,
	)
	if req.Weights != "" {
		args = append(args, "--weights", req.Weights)
	}

	logger := logging.WithContext(ctx, d.logger)
	logger.Debug("hand detector starting", logging.Args(
		logging.String("command", d.command[0]),
		logging.Bool("weights", req.Weights != ""),
		logging.String("output_dir", req.OutputDir),
	)...)
	start := time.Now()
	result, err := d.runner.Run(ctx, d.command[0], args...)
	if err != nil {
		return jobs.Result{}, runFailure(ctx, handTool, result, err)
	}

	var csvPath, videoPath string
	if reported, ok := parseReported(result.Stdout); ok {
		csvPath = resolveReported(req.OutputDir, reported.CSVPath)
		videoPath = resolveReported(req.OutputDir, reported.VideoPath)
	}
	if csvPath == "" {
		csvPath = firstWithExt(req.OutputDir, ".csv")
	}
	if videoPath == "" {
		videoPath = firstWithExt(req.OutputDir, ".mp4")
	}
	if err := requireOutputs(handTool, csvPath, videoPath); err != nil {
		return jobs.Result{}, err
	}

	rows, err := countRows(csvPath)
	if err != nil {
		return jobs.Result{}, &ToolError{Tool: handTool, Message: "unreadable predictions", Err: err}
	}
	logger.Info("hand detector finished", logging.Args(
		logging.Int("rows", rows),
		logging.Duration("elapsed", time.Since(start)),
	)...)
	return jobs.Result{Rows: rows, CSVPath: csvPath, VideoPath: videoPath}, nil
}
