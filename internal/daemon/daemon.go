package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"harp/internal/api"
	"harp/internal/artifacts"
	"harp/internal/config"
	"harp/internal/deps"
	"harp/internal/history"
	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/preflight"
	"harp/internal/workflow"
)

// Daemon coordinates the background job runner, the HTTP API, and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *jobs.Registry
	store    *artifacts.Store
	workflow *workflow.Manager
	history  *history.Ledger
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	depsMu       sync.RWMutex
	dependencies []deps.Status
	checkDeps    func(context.Context) []deps.Status
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	HistoryPath  string
	Jobs         map[string]int
	Workflow     workflow.StatusSummary
	Dependencies []deps.Status
}

// Option configures optional daemon collaborators.
type Option func(*Daemon)

// WithHistory serves /api/history from the given ledger.
func WithHistory(ledger *history.Ledger) Option {
	return func(d *Daemon) { d.history = ledger }
}

// WithDependencyCheck replaces the external binary checks run at start.
func WithDependencyCheck(check func(context.Context) []deps.Status) Option {
	return func(d *Daemon) {
		if check != nil {
			d.checkDeps = check
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, registry *jobs.Registry, store *artifacts.Store, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || registry == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, registry, artifact store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "harp.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.checkDeps = func(ctx context.Context) []deps.Status {
		return preflight.CheckSystemDeps(ctx, cfg)
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager, the API
// listener, and the retention sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another harp daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.refreshDependencies(d.ctx)
	d.startSweeper(d.ctx)

	d.running.Store(true)
	d.logger.Info("harp daemon started", logging.Args(
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.cfg.Paths.APIBind),
	)...)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock. Jobs still
// running are moved to error by the workflow manager.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("harp daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Handler exposes the API routes with their middleware applied.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.depsMu.RLock()
	dependencies := append([]deps.Status(nil), d.dependencies...)
	d.depsMu.RUnlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Jobs:         api.CountByStatus(d.registry.List()),
		Workflow:     d.workflow.Status(),
		Dependencies: dependencies,
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	return status
}

func (d *Daemon) refreshDependencies(ctx context.Context) {
	statuses := d.checkDeps(ctx)
	d.depsMu.Lock()
	d.dependencies = statuses
	d.depsMu.Unlock()

	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		logging.WarnWithContext(d.logger, "required dependencies unavailable", "dependency_missing",
			logging.Any("missing", missing),
			logging.String(logging.FieldErrorHint, "install the missing tools or fix the detector commands in config"),
			logging.String(logging.FieldImpact, "jobs needing these tools will fail"),
		)
	}
}
