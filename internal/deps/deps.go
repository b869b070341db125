package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"harp/internal/config"
)

// Requirement is a binary the daemon shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Setting is the config key that selects Command, quoted in the detail
	// of an unavailable dependency.
	Setting string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries the daemon shells out to.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{
			Name:        "Audio detector",
			Command:     commandName(cfg.Detectors.AudioCommand),
			Setting:     "detectors.audio_command",
			Description: "Required for audio onset detection",
		},
		{
			Name:        "Hand detector",
			Command:     commandName(cfg.Detectors.HandCommand),
			Setting:     "detectors.hand_command",
			Description: "Required for hand/string detection",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpeg.Binary,
			Setting:     "ffmpeg.binary",
			Description: "Required for combined videos",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFmpeg.FFprobeBinary,
			Setting:     "ffmpeg.ffprobe_binary",
			Description: "Validates uploads before detection",
			Optional:    !cfg.FFmpeg.ProbeUploads,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = withSetting("command not configured", req.Setting)
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = withSetting(fmt.Sprintf("binary %q not found", cmd), req.Setting)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckAll evaluates Requirements for cfg.
func CheckAll(cfg *config.Config) []Status {
	return CheckBinaries(Requirements(cfg))
}

// MissingRequired returns the names of unavailable non-optional dependencies.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Name)
		}
	}
	return missing
}

// CheckSubtitleFilter reports whether ffmpeg was built with the subtitles
// filter the combiner relies on to burn audio detections into the hand video.
func CheckSubtitleFilter(ctx context.Context, ffmpeg string) Status {
	status := Status{
		Name:        "FFmpeg subtitles filter",
		Command:     strings.TrimSpace(ffmpeg),
		Description: "Burns audio detections into combined videos (libass)",
		Optional:    true,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	output, err := exec.CommandContext(checkCtx, status.Command, "-hide_banner", "-filters").Output() //nolint:gosec
	if err != nil {
		status.Detail = fmt.Sprintf("list filters: %v", err)
		return status
	}
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "subtitles" {
			status.Available = true
			return status
		}
	}
	status.Detail = "ffmpeg built without libass; combined videos fall back to side-by-side"
	return status
}

func withSetting(detail, setting string) string {
	if setting == "" {
		return detail
	}
	return detail + " (set " + setting + ")"
}

func commandName(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return strings.TrimSpace(argv[0])
}
