package detect

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"harp/internal/fileutil"
	"harp/internal/logging"
)

// DefaultSubtitleStyle matches the overlay used by the audio pipeline's own
// labeled video.
const DefaultSubtitleStyle = "Fontsize=36,BorderStyle=1,Outline=2,Shadow=1,MarginV=50"

const ffmpegTool = "FFmpeg error"

// CombineRequest names the inputs and destination of a combined render.
type CombineRequest struct {
	HandVideo     string
	AudioVideo    string
	OriginalVideo string
	Subtitles     string
	Output        string
}

// Combiner merges the two annotated videos of a both-method job.
type Combiner struct {
	binary string
	style  string
	logger *slog.Logger
	runner commandRunner
}

// NewCombiner builds a combiner that shells out to binary (default "ffmpeg").
func NewCombiner(binary, style string, logger *slog.Logger) *Combiner {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if strings.TrimSpace(style) == "" {
		style = DefaultSubtitleStyle
	}
	return &Combiner{
		binary: binary,
		style:  style,
		logger: logging.NewComponentLogger(logger, "combiner"),
		runner: execRunner{},
	}
}

// Combine renders req.Output. With a subtitle track the audio detections are
// burned onto the hand video and the original soundtrack is muxed back in;
// otherwise the two annotated videos are stacked side by side.
func (c *Combiner) Combine(ctx context.Context, req CombineRequest) (string, error) {
	if req.HandVideo == "" || !fileutil.IsRegularFile(req.HandVideo) {
		return "", &ToolError{Message: "hand video not found: " + req.HandVideo}
	}
	if req.Output == "" {
		return "", &ToolError{Message: "combined output path is required"}
	}

	args := c.buildArgs(req)
	if args == nil {
		return "", &ToolError{Message: "no subtitles or audio video to combine with"}
	}

	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("combining videos", logging.Args(
		logging.Bool("subtitles", req.Subtitles != ""),
		logging.String("output", req.Output),
	)...)

	result, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", runFailure(ctx, "ffmpeg", result, err)
		}
		message := headOf(result.Stderr, stderrLimit)
		if message == "" {
			message = err.Error()
		}
		return "", &ToolError{Tool: ffmpegTool, Message: message, ExitCode: result.ExitCode, Err: err}
	}

	if _, statErr := os.Stat(req.Output); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return "", &ToolError{Message: "combined video file was not created"}
		}
		return "", &ToolError{Message: "inspect combined video", Err: statErr}
	}
	return req.Output, nil
}

func (c *Combiner) buildArgs(req CombineRequest) []string {
	if req.Subtitles != "" && fileutil.IsRegularFile(req.Subtitles) {
		original := req.OriginalVideo
		if original == "" {
			original = req.HandVideo
		}
		filter := "subtitles='" + escapeFilterPath(req.Subtitles) + "':force_style='" + c.style + "'"
		return []string{
			"-y",
			"-i", req.HandVideo,
			"-i", original,
			"-vf", filter,
			"-c:v", "libx264",
			"-c:a", "aac",
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-shortest",
			req.Output,
		}
	}
	if req.AudioVideo == "" || !fileutil.IsRegularFile(req.AudioVideo) {
		return nil
	}
	args := []string{
		"-y",
		"-i", req.HandVideo,
		"-i", req.AudioVideo,
	}
	audioMap := "1:a:0?"
	if req.OriginalVideo != "" {
		args = append(args, "-i", req.OriginalVideo)
		audioMap = "2:a:0?"
	}
	return append(args,
		"-filter_complex", "[0:v][1:v]hstack=inputs=2[v]",
		"-map", "[v]",
		"-map", audioMap,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-shortest",
		req.Output,
	)
}

// escapeFilterPath quotes a path for use inside a single-quoted filtergraph
// argument.
func escapeFilterPath(path string) string {
	path = filepath.ToSlash(path)
	return strings.ReplaceAll(path, "'", `'\''`)
}

func headOf(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return trimmed
	}
	return string(runes[:limit])
}
