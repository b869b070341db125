package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"harp/internal/artifacts"
	"harp/internal/config"
	"harp/internal/daemon"
	"harp/internal/deps"
	"harp/internal/detect"
	"harp/internal/history"
	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/media/ffprobe"
	"harp/internal/preflight"
	"harp/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the harp daemon and blocks until the context is cancelled or
// the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := logging.RunLogPath(cfg.Paths.LogDir, runID)
	logger, debugLogPath, err := buildLogger(cfg, opts, runID, logPath)
	if err != nil {
		return err
	}

	if err := logging.PointCurrentLog(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.CurrentLogName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.DaemonRetention(cfg.Paths.LogDir, logPath, debugLogPath)...)
	pidPath := filepath.Join(cfg.Paths.LogDir, "harp.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logPreflight(signalCtx, logger, cfg)

	registry := jobs.NewRegistry()
	store, err := artifacts.NewStore(cfg.Paths.UploadsDir, cfg.Paths.OutputsDir)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	managerOpts := []workflow.ManagerOption{
		workflow.WithAudioDetector(detect.NewAudioDetector(cfg.Detectors.AudioCommand, logger)),
		workflow.WithHandDetector(detect.NewHandDetector(cfg.Detectors.HandCommand, logger)),
		workflow.WithCombiner(detect.NewCombiner(cfg.FFmpeg.Binary, cfg.FFmpeg.SubtitleStyle, logger)),
		workflow.WithDetectorTimeout(cfg.DetectorTimeout()),
		workflow.WithMaxConcurrentJobs(cfg.Workflow.MaxConcurrentJobs),
	}
	if cfg.FFmpeg.ProbeUploads {
		managerOpts = append(managerOpts, workflow.WithProber(ffprobe.Prober{Binary: cfg.FFmpeg.FFprobeBinary}))
	}
	var daemonOpts []daemon.Option
	if cfg.History.Enabled {
		ledger, err := history.Open(cfg.History.Path)
		if err != nil {
			logging.WarnWithContext(logger, "history ledger unavailable", "history_open_failed",
				logging.Error(err),
				logging.String("path", cfg.History.Path),
				logging.String(logging.FieldErrorHint, "check history.path permissions or set history.enabled = false"),
				logging.String(logging.FieldImpact, "finished jobs will not be recorded"),
			)
		} else {
			managerOpts = append(managerOpts, workflow.WithHistory(ledger))
			daemonOpts = append(daemonOpts, daemon.WithHistory(ledger))
		}
	}
	manager := workflow.NewManager(registry, store, logger, managerOpts...)

	d, err := daemon.New(cfg, logger, registry, store, manager, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running instance and that paths.api_bind is free"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("harp daemon shutting down")
	return nil
}

func buildLogger(cfg *config.Config, opts Options, runID, logPath string) (*slog.Logger, string, error) {
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return nil, "", fmt.Errorf("init logger: %w", err)
	}
	if !opts.Diagnostic {
		return logger, "", nil
	}

	debugDir := filepath.Join(cfg.Paths.LogDir, logging.DebugLogDir)
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create debug log directory: %w", err)
	}
	debugLogPath := logging.RunLogPath(debugDir, runID)
	debugHandler, err := logging.NewHandler(logging.Options{
		Level:            "debug",
		Format:           "json",
		OutputPaths:      []string{debugLogPath},
		ErrorOutputPaths: []string{debugLogPath},
		Development:      true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", err)
		return logger, "", nil
	}
	logger = slog.New(logging.TeeHandler(logger.Handler(), debugHandler))
	logger.Info("diagnostic mode enabled",
		logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
		logging.String("debug_log_path", debugLogPath),
	)
	return logger, debugLogPath, nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	statuses := preflight.CheckSystemDeps(ctx, cfg)
	attrs := make([]logging.Attr, 0, len(statuses)+1)
	attrs = append(attrs, logging.String(logging.FieldEventType, "dependency_snapshot"))
	for _, status := range statuses {
		key := strings.ToLower(strings.ReplaceAll(status.Name, " ", "_")) + "_available"
		attrs = append(attrs, logging.Bool(key, status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		logging.WarnWithContext(logger, "required dependencies missing", "dependency_missing",
			logging.Any("missing", missing),
			logging.String(logging.FieldErrorHint, "run harp deps for details"),
			logging.String(logging.FieldImpact, "jobs needing these tools will fail"),
		)
	}

	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix directory permissions or paths in config"),
			logging.String(logging.FieldImpact, "uploads or outputs may fail"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
