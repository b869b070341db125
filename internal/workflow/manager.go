package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"harp/internal/artifacts"
	"harp/internal/detect"
	"harp/internal/history"
	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/media/ffprobe"
)

// AudioDetector runs the audio onset pipeline.
type AudioDetector interface {
	Detect(ctx context.Context, req detect.AudioRequest) (jobs.Result, error)
}

// HandDetector runs the hand/string vision pipeline.
type HandDetector interface {
	Detect(ctx context.Context, req detect.HandRequest) (jobs.Result, error)
}

// Combiner merges the outputs of a both-method job into one video.
type Combiner interface {
	Combine(ctx context.Context, req detect.CombineRequest) (string, error)
}

// Prober inspects uploaded media before detectors run.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// HistoryRecorder persists finished jobs.
type HistoryRecorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Manager schedules jobs from the registry onto the detection pipelines.
type Manager struct {
	registry *jobs.Registry
	store    *artifacts.Store
	logger   *slog.Logger

	audio    AudioDetector
	hand     HandDetector
	combiner Combiner
	prober   Prober
	history  HistoryRecorder

	timeout       time.Duration
	maxConcurrent int64
	sem           *semaphore.Weighted

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  int
	lastErr string
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithAudioDetector sets the audio pipeline.
func WithAudioDetector(d AudioDetector) ManagerOption {
	return func(m *Manager) { m.audio = d }
}

// WithHandDetector sets the hand pipeline.
func WithHandDetector(d HandDetector) ManagerOption {
	return func(m *Manager) { m.hand = d }
}

// WithCombiner sets the video combiner used for both-method jobs.
func WithCombiner(c Combiner) ManagerOption {
	return func(m *Manager) { m.combiner = c }
}

// WithProber enables stream validation of uploads before dispatch.
func WithProber(p Prober) ManagerOption {
	return func(m *Manager) { m.prober = p }
}

// WithHistory records finished jobs in a ledger.
func WithHistory(h HistoryRecorder) ManagerOption {
	return func(m *Manager) { m.history = h }
}

// WithDetectorTimeout bounds each pipeline invocation. Zero disables the bound.
func WithDetectorTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// WithMaxConcurrentJobs limits how many jobs run at once.
func WithMaxConcurrentJobs(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrent = int64(n)
		}
	}
}

// NewManager constructs a workflow manager. Detectors that are not supplied
// cause jobs needing them to fail with a configuration error.
func NewManager(registry *jobs.Registry, store *artifacts.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry:      registry,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		maxConcurrent: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sem = semaphore.NewWeighted(m.maxConcurrent)
	return m
}
