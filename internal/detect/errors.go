package detect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"harp/internal/services"
)

const stderrLimit = 200

// ToolError describes a failed external invocation in terms safe to show a
// user: the tool, what went wrong, and the tail of its stderr.
type ToolError struct {
	Tool     string
	Message  string
	ExitCode int
	Stderr   string
	Timeout  bool
	Err      error
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if e.Tool != "" {
		parts = append(parts, e.Tool)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if tail := truncateStderr(e.Stderr); tail != "" {
		parts = append(parts, tail)
	}
	if len(parts) == 0 {
		return "external tool failed"
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the classification marker and the underlying cause.
func (e *ToolError) Unwrap() []error {
	if e == nil {
		return nil
	}
	marker := services.ErrExternalTool
	if e.Timeout {
		marker = services.ErrTimeout
	}
	if e.Err == nil {
		return []error{marker}
	}
	return []error{marker, e.Err}
}

func runFailure(ctx context.Context, tool string, result commandResult, err error) *ToolError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		te := &ToolError{Tool: tool, Err: ctxErr}
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			te.Timeout = true
			te.Message = "timed out"
		} else {
			te.Message = "cancelled"
		}
		return te
	}
	te := &ToolError{Tool: tool, ExitCode: result.ExitCode, Stderr: result.Stderr, Err: err}
	if result.ExitCode > 0 {
		te.Message = fmt.Sprintf("exited with status %d", result.ExitCode)
	} else {
		te.Message = fmt.Sprintf("failed to run: %v", err)
	}
	return te
}

// truncateStderr keeps the last stderrLimit characters of non-blank stderr,
// where tools print the actual failure.
func truncateStderr(stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	runes := []rune(trimmed)
	if len(runes) <= stderrLimit {
		return trimmed
	}
	return "..." + string(runes[len(runes)-stderrLimit:])
}
