package workflow

import (
	"context"
	"errors"

	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/services"
)

// ErrNotRunning is returned by Submit when the manager has not been started or
// is shutting down.
var ErrNotRunning = errors.New("job runner is not running")

// Start enables job submission. Jobs run under a context derived from ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.logger.Info("workflow started", logging.Args(
		logging.Int64("max_concurrent_jobs", m.maxConcurrent),
		logging.Duration("detector_timeout", m.timeout),
	)...)
	return nil
}

// Stop cancels running jobs and waits for their goroutines to record a
// terminal status.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Submit hands a queued job to the manager and returns immediately. If the
// manager is not running the job is moved to error so it never stays queued.
func (m *Manager) Submit(ctx context.Context, id string) error {
	job, err := m.registry.Get(id)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusQueued {
		return services.Wrap(services.ErrValidation, "workflow", "submit", "job "+id+" is "+string(job.Status), nil)
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.fail(ctx, id, "job runner is shutting down")
		return ErrNotRunning
	}
	runCtx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx, id)
	return nil
}

func (m *Manager) run(ctx context.Context, id string) {
	defer m.wg.Done()

	job, err := m.registry.Get(id)
	if err != nil {
		m.logger.Warn("submitted job disappeared", logging.String(logging.FieldJobID, id), logging.Error(err))
		return
	}
	ctx = services.WithJobID(ctx, id)
	ctx = services.WithMethod(ctx, string(job.Method))
	logger := logging.WithContext(ctx, m.logger)

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.fail(ctx, id, "job runner stopped before job started")
		return
	}
	defer m.sem.Release(1)
	m.trackActive(1)
	defer m.trackActive(-1)

	job, err = m.registry.Update(id, func(j *jobs.Job) error {
		j.Status = jobs.StatusRunning
		j.Message = runningMessage(j.Method)
		return nil
	})
	if err != nil {
		logger.Warn("could not start job", logging.Error(err))
		return
	}
	logger.Info("job started", logging.String("mode", string(job.Params.Mode)))

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "job runner panicked", "job_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "inspect the detector adapter for the failing method"),
			)
			m.fail(ctx, id, "internal error while processing job")
		}
	}()

	problems := m.probeInput(ctx, job)
	switch job.Method {
	case jobs.MethodAudio:
		m.runSingle(ctx, job, sideAudio, problems.audio)
	case jobs.MethodHand:
		m.runSingle(ctx, job, sideHand, problems.hand)
	case jobs.MethodBoth:
		m.runBoth(ctx, job, problems)
	default:
		m.fail(ctx, id, "unsupported method "+string(job.Method))
	}
}

func runningMessage(method jobs.Method) string {
	switch method {
	case jobs.MethodAudio:
		return "Processing (audio)..."
	case jobs.MethodHand:
		return "Processing (hand detection)..."
	default:
		return "Processing (audio + hand)..."
	}
}

// inputProblems holds per-side reasons a pipeline cannot run on the upload.
type inputProblems struct {
	audio error
	hand  error
}

var (
	errNoVideoStream = errors.New("uploaded file has no video stream")
	errNoAudioStream = errors.New("uploaded file has no audio stream")
)

// probeInput checks the uploaded streams before any detector is launched. A
// probe that cannot run is logged and detection proceeds.
func (m *Manager) probeInput(ctx context.Context, job jobs.Job) inputProblems {
	var problems inputProblems
	if m.prober == nil {
		return problems
	}
	logger := logging.WithContext(ctx, m.logger)
	result, err := m.prober.Inspect(ctx, job.Params.Video)
	if err != nil {
		logging.WarnWithContext(logger, "upload probe failed", "probe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg.ffprobe_binary"),
			logging.String(logging.FieldImpact, "detectors run without stream validation"),
		)
		return problems
	}
	if result.VideoStreamCount() == 0 {
		problems.hand = errNoVideoStream
		if job.Method != jobs.MethodBoth {
			problems.audio = errNoVideoStream
		}
	}
	if problems.audio == nil && job.Method.NeedsAudio() && result.AudioStreamCount() == 0 {
		problems.audio = errNoAudioStream
	}
	logger.Debug("upload probed", logging.Args(
		logging.Int("video_streams", result.VideoStreamCount()),
		logging.Int("audio_streams", result.AudioStreamCount()),
		logging.Float64("duration_seconds", result.DurationSeconds()),
	)...)
	return problems
}

func (m *Manager) trackActive(delta int) {
	m.mu.Lock()
	m.active += delta
	m.mu.Unlock()
}
