package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// CurrentLogName is the stable pointer to the running daemon's log.
	CurrentLogName = "harp.log"
	// RunLogPattern matches per-run daemon logs in log_dir and log_dir/debug.
	RunLogPattern = "harp-*.log"
	// DebugLogDir holds diagnostic-mode logs below log_dir.
	DebugLogDir = "debug"
)

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// RunLogPath names the log file for one daemon run.
func RunLogPath(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("harp-%s.log", runID))
}

// DaemonRetention returns the targets pruned at daemon start: per-run logs in
// log_dir and its debug directory, minus the logs of the current run.
func DaemonRetention(logDir, runLog, debugLog string) []RetentionTarget {
	targets := []RetentionTarget{{Dir: logDir, Pattern: RunLogPattern, Exclude: []string{runLog}}}
	if strings.TrimSpace(logDir) != "" {
		targets = append(targets, RetentionTarget{
			Dir:     filepath.Join(logDir, DebugLogDir),
			Pattern: RunLogPattern,
			Exclude: []string{debugLog},
		})
	}
	return targets
}

// PointCurrentLog makes log_dir/harp.log refer to target, preferring a
// symlink and falling back to a hard link where symlinks are unavailable.
func PointCurrentLog(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, CurrentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

// CleanupOldLogs removes files matching the provided targets that are older
// than retentionDays and returns how many were removed. A retentionDays value
// of 0 disables pruning. Symlinks are never removed, and whatever a target
// directory's harp.log points at is kept regardless of age.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	exclusions := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			addExclusion(exclusions, path)
		}
		if dir := strings.TrimSpace(target.Dir); dir != "" {
			if resolved, err := filepath.EvalSymlinks(filepath.Join(dir, CurrentLogName)); err == nil {
				addExclusion(exclusions, resolved)
			}
		}
	}

	removed := 0
	for _, target := range targets {
		removed += pruneTarget(logger, target, cutoff, exclusions)
	}
	if removed > 0 && logger != nil {
		logger.Info("log retention complete",
			Int("removed", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_retention_complete"),
		)
	}
	return removed
}

func addExclusion(exclusions map[string]struct{}, path string) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		exclusions[abs] = struct{}{}
	}
}

func pruneTarget(logger *slog.Logger, target RetentionTarget, cutoff time.Time, exclusions map[string]struct{}) int {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	pattern := strings.TrimSpace(target.Pattern)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if pattern != "" {
			if matched, err := filepath.Match(pattern, name); err != nil || !matched {
				continue
			}
		}
		fullPath := filepath.Join(dir, name)
		if absPath, err := filepath.Abs(fullPath); err == nil {
			fullPath = absPath
		}
		if _, skip := exclusions[fullPath]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(fullPath); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", fullPath),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("log pruned",
				String("path", fullPath),
				String(FieldEventType, "log_pruned"),
			)
		}
	}
	return removed
}
