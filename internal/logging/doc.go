// Package logging assembles structured slog loggers and formatting helpers used
// across the harp daemon and CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so workflow code can automatically
// tag log lines with job IDs, detection methods, pipeline sides, and
// correlation IDs. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
