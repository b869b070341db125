package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"harp/internal/config"
	"harp/internal/logging"
	"harp/internal/services"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon ready")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "harp.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Count(string(content), "daemon ready") != 1 {
		t.Fatalf("expected exactly one log line in file, got %q", content)
	}
}

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without source")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no source information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("message with source")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected source information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersJobSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-subject.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "1a2b3c4d-0000-4000-8000-000000000000")
	ctx = services.WithSide(ctx, "audio")
	worker := logging.WithContext(ctx, logging.NewComponentLogger(logger, "workflow"))
	worker.Info("detection finished", logging.Int("rows", 12))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"INFO [workflow] Job 1a2b3c4d (audio) - detection finished", "- rows: 12"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}

func TestJSONLoggerUsesCanonicalKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Warn("upload rejected", logging.String("reason", "bad extension"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry["level"] != "warn" || entry["msg"] != "upload rejected" || entry["reason"] != "bad extension" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

type captureHandler struct {
	records *[]slog.Record
}

func (h captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h captureHandler) Handle(_ context.Context, r slog.Record) error {
	*h.records = append(*h.records, r)
	return nil
}

func (h captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h captureHandler) WithGroup(string) slog.Handler { return h }

func recordAttrs(r slog.Record) map[string]string {
	out := map[string]string{}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.String()
		return true
	})
	return out
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var records []slog.Record
	logger := slog.New(captureHandler{records: &records})

	logging.WarnWithContext(logger, "combiner failed", "combine_failed", logging.String(logging.FieldImpact, "no combined video"))

	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	attrs := recordAttrs(records[0])
	if attrs[logging.FieldEventType] != "combine_failed" {
		t.Fatalf("expected event type, got %v", attrs)
	}
	if attrs[logging.FieldErrorHint] == "" {
		t.Fatalf("expected default error hint, got %v", attrs)
	}
	if attrs[logging.FieldImpact] != "no combined video" {
		t.Fatalf("expected caller impact preserved, got %v", attrs)
	}
}

func TestTeeHandlerDuplicatesRecords(t *testing.T) {
	var first, second []slog.Record
	logger := slog.New(logging.TeeHandler(captureHandler{records: &first}, nil, captureHandler{records: &second}))
	logger.Info("hello")
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected record in both handlers, got %d and %d", len(first), len(second))
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected nop logger to be disabled")
	}
}

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "harp-old.log")
	freshPath := filepath.Join(dir, "harp-fresh.log")
	keepPath := filepath.Join(dir, "harp-current.log")
	for _, path := range []string{oldPath, freshPath, keepPath} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{oldPath, keepPath} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Pattern: "harp-*.log", Exclude: []string{keepPath}})

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{freshPath, keepPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}

func TestPointCurrentLogReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := logging.RunLogPath(dir, "1")
	second := logging.RunLogPath(dir, "2")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := logging.PointCurrentLog(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := logging.PointCurrentLog(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, logging.CurrentLogName))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "harp-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestDaemonRetentionKeepsCurrentRunAndPointerTarget(t *testing.T) {
	dir := t.TempDir()
	debugDir := filepath.Join(dir, logging.DebugLogDir)
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	runLog := logging.RunLogPath(dir, "now")
	debugLog := logging.RunLogPath(debugDir, "now")
	staleRun := logging.RunLogPath(dir, "stale")
	staleDebug := logging.RunLogPath(debugDir, "stale")
	pointed := logging.RunLogPath(dir, "pointed")
	unrelated := filepath.Join(dir, "notes.log")

	past := time.Now().AddDate(0, 0, -30)
	for _, path := range []string{runLog, debugLog, staleRun, staleDebug, pointed, unrelated} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	// Another daemon instance still writes through harp.log.
	if err := logging.PointCurrentLog(dir, pointed); err != nil {
		t.Fatalf("PointCurrentLog: %v", err)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.DaemonRetention(dir, runLog, debugLog)...)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	for _, path := range []string{staleRun, staleDebug} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err=%v", path, err)
		}
	}
	for _, path := range []string{runLog, debugLog, pointed, unrelated, filepath.Join(dir, logging.CurrentLogName)} {
		if _, err := os.Lstat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	old := logging.RunLogPath(dir, "old")
	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().AddDate(0, 0, -100)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if removed := logging.CleanupOldLogs(logging.NewNop(), 0, logging.DaemonRetention(dir, "", "")...); removed != 0 {
		t.Fatalf("removed = %d with retention disabled", removed)
	}
	if _, err := os.Stat(old); err != nil {
		t.Fatalf("expected log kept: %v", err)
	}
}

func TestDurationsAreRounded(t *testing.T) {
	dir := t.TempDir()
	consolePath := filepath.Join(dir, "console.log")
	jsonPath := filepath.Join(dir, "json.log")
	console, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{consolePath}, ErrorOutputPaths: []string{consolePath}})
	if err != nil {
		t.Fatalf("New console: %v", err)
	}
	jsonLogger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{jsonPath}, ErrorOutputPaths: []string{jsonPath}})
	if err != nil {
		t.Fatalf("New json: %v", err)
	}

	console.Info("audio detection finished",
		logging.Duration("elapsed", 2*time.Second+345678*time.Microsecond),
		logging.Duration("startup", 12345678*time.Nanosecond),
	)
	jsonLogger.Info("hand detection finished", logging.Duration("elapsed", 1500*time.Millisecond+123*time.Microsecond))

	content, err := os.ReadFile(consolePath)
	if err != nil {
		t.Fatalf("read console log: %v", err)
	}
	for _, fragment := range []string{"- elapsed: 2.35s", "- startup: 12ms"} {
		if !strings.Contains(string(content), fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}

	content, err = os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if entry["elapsed"] != 1.5 {
		t.Fatalf("elapsed = %v (%T), want 1.5 seconds", entry["elapsed"], entry["elapsed"])
	}
}
