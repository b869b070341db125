package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"harp/internal/api"
	"harp/internal/deps"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 18
	statusIndent     = "  "
)

var titleCaser = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// jobStatusKind maps a job state to a display severity. A finished job with
// a failed side is a warning rather than a success.
func jobStatusKind(status api.StatusResponse) statusKind {
	switch status.Status {
	case "done":
		if status.AudioError != "" || status.HandError != "" || status.CombinedError != "" {
			return statusWarn
		}
		return statusOK
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func jobStatusLines(id string, status api.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 8)
	lines = append(lines, renderStatusLine("Job", statusInfo, id, colorize))

	state := titleCaser.String(status.Status)
	if msg := strings.TrimSpace(status.Message); msg != "" {
		state = fmt.Sprintf("%s (%s)", state, msg)
	}
	lines = append(lines, renderStatusLine("Status", jobStatusKind(status), state, colorize))

	if status.Rows != nil {
		lines = append(lines, renderStatusLine("Detections", statusInfo, rowsText(*status.Rows), colorize))
	}
	if status.Audio != nil {
		lines = append(lines, renderStatusLine("Audio detections", statusInfo, rowsText(status.Audio.Rows), colorize))
	}
	if status.Hand != nil {
		lines = append(lines, renderStatusLine("Hand detections", statusInfo, rowsText(status.Hand.Rows), colorize))
	}
	if status.Combined != nil {
		kind := statusOK
		if !*status.Combined {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine("Combined video", kind, yesNo(*status.Combined), colorize))
	}
	for _, side := range []struct {
		label string
		err   string
	}{
		{"Audio failed", status.AudioError},
		{"Hand failed", status.HandError},
		{"Combine failed", status.CombinedError},
	} {
		if side.err != "" {
			lines = append(lines, renderStatusLine(side.label, statusWarn, side.err, colorize))
		}
	}
	return lines
}

func rowsText(rows int) string {
	if rows == 1 {
		return "1 row"
	}
	return fmt.Sprintf("%d rows", rows)
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	missing := make([]string, 0)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		} else {
			missing = append(missing, dep.Name)
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}
