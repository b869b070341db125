package workflow

import (
	"context"
	"time"

	"harp/internal/history"
	"harp/internal/jobs"
	"harp/internal/logging"
)

const historyWriteTimeout = 5 * time.Second

// complete moves a job to done after applying mutate.
func (m *Manager) complete(ctx context.Context, id string, mutate func(*jobs.Job)) {
	job, err := m.registry.Update(id, func(j *jobs.Job) error {
		mutate(j)
		j.Status = jobs.StatusDone
		j.Message = ""
		return nil
	})
	if err != nil {
		logging.WithContext(ctx, m.logger).Warn("could not complete job", logging.Error(err))
		return
	}
	m.finish(ctx, job)
}

// fail moves a job to error with message.
func (m *Manager) fail(ctx context.Context, id, message string) {
	m.failWith(ctx, id, func(j *jobs.Job) { j.Message = message })
}

func (m *Manager) failWith(ctx context.Context, id string, mutate func(*jobs.Job)) {
	job, err := m.registry.Update(id, func(j *jobs.Job) error {
		mutate(j)
		j.Status = jobs.StatusError
		return nil
	})
	if err != nil {
		logging.WithContext(ctx, m.logger).Debug("could not mark job failed", logging.Error(err))
		return
	}
	m.setLastError(job.Message)
	m.finish(ctx, job)
}

// finish logs the terminal job and records it in the ledger.
func (m *Manager) finish(ctx context.Context, job jobs.Job) {
	logger := logging.WithContext(ctx, m.logger)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_finished"),
		logging.String("status", string(job.Status)),
		logging.Duration("duration", job.Duration()),
	}
	if job.Audio != nil {
		attrs = append(attrs, logging.Int("audio_rows", job.Audio.Rows))
	}
	if job.Hand != nil {
		attrs = append(attrs, logging.Int("hand_rows", job.Hand.Rows))
	}
	if job.Method == jobs.MethodBoth && job.Status == jobs.StatusDone {
		attrs = append(attrs, logging.Bool("combined", job.CombinedVideoPath != ""))
	}
	for _, field := range [...]struct{ key, value string }{
		{"message", job.Message},
		{"audio_error", job.AudioError},
		{"hand_error", job.HandError},
		{"combined_error", job.CombinedError},
	} {
		if field.value != "" {
			attrs = append(attrs, logging.String(field.key, field.value))
		}
	}
	if job.Status == jobs.StatusError {
		logger.Error("job finished", logging.Args(attrs...)...)
	} else {
		logger.Info("job finished", logging.Args(attrs...)...)
	}

	if m.history == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	if err := m.history.Record(writeCtx, history.EntryFromJob(job)); err != nil {
		logging.WarnWithContext(logger, "history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history.path permissions"),
			logging.String(logging.FieldImpact, "job is missing from harp history"),
		)
	}
}
