package daemon

import (
	"context"
	"time"

	"harp/internal/logging"
)

const fallbackSweepInterval = time.Hour

func (d *Daemon) startSweeper(ctx context.Context) {
	retention := d.cfg.ArtifactRetention()
	if retention <= 0 {
		return
	}
	interval := d.cfg.SweepInterval()
	if interval <= 0 {
		interval = fallbackSweepInterval
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		d.sweep(time.Now(), retention)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				d.sweep(now, retention)
			}
		}
	}()
}

// sweep removes artifacts of jobs that finished before now-retention and
// forgets them from the registry. Queued and running jobs are never touched,
// nor are finished jobs still inside the retention window.
func (d *Daemon) sweep(now time.Time, retention time.Duration) []string {
	cutoff := now.Add(-retention)
	keep := make(map[string]struct{})
	var expired []string
	for _, job := range d.registry.List() {
		if job.Status.IsTerminal() && !job.FinishedAt.IsZero() && job.FinishedAt.Before(cutoff) {
			expired = append(expired, job.ID)
			continue
		}
		keep[job.ID] = struct{}{}
	}

	removed, err := d.store.Sweep(cutoff, keep)
	if err != nil {
		logging.WarnWithContext(d.logger, "artifact sweep incomplete", "artifact_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the uploads and outputs directories"),
			logging.String(logging.FieldImpact, "old job files remain on disk"),
		)
	}
	for _, id := range expired {
		d.registry.Forget(id)
	}
	if len(removed) > 0 || len(expired) > 0 {
		d.logger.Info("artifact sweep complete", logging.Args(
			logging.String(logging.FieldEventType, "artifact_sweep"),
			logging.Int("removed_dirs", len(removed)),
			logging.Int("forgotten_jobs", len(expired)),
			logging.Duration("retention", retention),
		)...)
	}
	return removed
}
