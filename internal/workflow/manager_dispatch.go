package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"harp/internal/artifacts"
	"harp/internal/detect"
	"harp/internal/jobs"
	"harp/internal/logging"
	"harp/internal/services"
)

type side string

const (
	sideAudio side = "audio"
	sideHand  side = "hand"
)

// branch holds one side's outcome in a fork-join.
type branch struct {
	result jobs.Result
	err    error
}

func (m *Manager) runSingle(ctx context.Context, job jobs.Job, s side, inputErr error) {
	if inputErr != nil {
		m.fail(ctx, job.ID, inputErr.Error())
		return
	}
	result, err := m.detectSide(ctx, job, s)
	if err != nil {
		m.fail(ctx, job.ID, errorText(err))
		return
	}
	m.complete(ctx, job.ID, func(j *jobs.Job) {
		if s == sideAudio {
			j.Audio = &result
		} else {
			j.Hand = &result
		}
	})
}

func (m *Manager) runBoth(ctx context.Context, job jobs.Job, problems inputProblems) {
	audio := branch{err: problems.audio}
	hand := branch{err: problems.hand}
	// Each branch records its own error; one side failing never cancels the other.
	var wg sync.WaitGroup
	if audio.err == nil {
		wg.Go(func() {
			audio.result, audio.err = m.detectSide(ctx, job, sideAudio)
		})
	}
	if hand.err == nil {
		wg.Go(func() {
			hand.result, hand.err = m.detectSide(ctx, job, sideHand)
		})
	}
	wg.Wait()

	switch {
	case audio.err != nil && hand.err != nil:
		audioText, handText := errorText(audio.err), errorText(hand.err)
		m.failWith(ctx, job.ID, func(j *jobs.Job) {
			j.Message = fmt.Sprintf("audio: %s; hand: %s", audioText, handText)
			j.AudioError = audioText
			j.HandError = handText
		})
		return
	case audio.err != nil:
		m.complete(ctx, job.ID, func(j *jobs.Job) {
			j.Hand = &hand.result
			j.AudioError = errorText(audio.err)
		})
		return
	case hand.err != nil:
		m.complete(ctx, job.ID, func(j *jobs.Job) {
			j.Audio = &audio.result
			j.HandError = errorText(hand.err)
		})
		return
	}

	if _, err := m.registry.Update(job.ID, func(j *jobs.Job) error {
		j.Message = "Combining results..."
		return nil
	}); err != nil {
		logging.WithContext(ctx, m.logger).Debug("could not update combine progress", logging.Error(err))
	}

	combined, combineErr := m.combine(ctx, job, audio.result, hand.result)
	m.complete(ctx, job.ID, func(j *jobs.Job) {
		j.Audio = &audio.result
		j.Hand = &hand.result
		if combineErr != nil {
			j.CombinedError = errorText(combineErr)
			return
		}
		j.CombinedVideoPath = combined
	})
}

// detectSide runs one pipeline with panic recovery and the configured
// timeout, then registers its outputs with the artifact store.
func (m *Manager) detectSide(ctx context.Context, job jobs.Job, s side) (result jobs.Result, err error) {
	ctx = services.WithSide(ctx, string(s))
	logger := logging.WithContext(ctx, m.logger)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "detector panicked", "detector_panic", logging.Any("panic", r))
			result = jobs.Result{}
			err = fmt.Errorf("%s detector crashed: %v", s, r)
		}
	}()

	dir, err := m.store.OutputDir(job.ID, artifacts.Subtype(s))
	if err != nil {
		return jobs.Result{}, err
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	switch s {
	case sideAudio:
		if m.audio == nil {
			return jobs.Result{}, services.Wrap(services.ErrConfiguration, "audio", "detect", "audio detector not configured", nil)
		}
		result, err = m.audio.Detect(ctx, detect.AudioRequest{
			Video:     job.Params.Video,
			Model:     job.Params.Model,
			Mode:      job.Params.Mode,
			OutputDir: dir,
		})
	case sideHand:
		if m.hand == nil {
			return jobs.Result{}, services.Wrap(services.ErrConfiguration, "hand", "detect", "hand detector not configured", nil)
		}
		result, err = m.hand.Detect(ctx, detect.HandRequest{
			Video:     job.Params.Video,
			Weights:   job.Params.Weights,
			OutputDir: dir,
		})
	}
	if err != nil {
		logger.Warn("detector failed", logging.Args(
			logging.Error(err),
			logging.String(logging.FieldEventType, "detector_failed"),
			logging.Bool("timeout", errors.Is(err, services.ErrTimeout)),
		)...)
		return jobs.Result{}, err
	}

	m.recordArtifact(ctx, job.ID, artifacts.Artifact{Type: artifacts.TypeCSV, Subtype: artifacts.Subtype(s), Path: result.CSVPath})
	m.recordArtifact(ctx, job.ID, artifacts.Artifact{Type: artifacts.TypeVideo, Subtype: artifacts.Subtype(s), Path: result.VideoPath})
	return result, nil
}

func (m *Manager) combine(ctx context.Context, job jobs.Job, audio, hand jobs.Result) (output string, err error) {
	logger := logging.WithContext(ctx, m.logger)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "combiner panicked", "combiner_panic", logging.Any("panic", r))
			output = ""
			err = fmt.Errorf("combiner crashed: %v", r)
		}
	}()
	if m.combiner == nil {
		return "", errors.New("combiner not configured")
	}

	output, err = m.store.CombinedVideoPath(job.ID)
	if err != nil {
		return "", err
	}
	req := detect.CombineRequest{
		HandVideo:     hand.VideoPath,
		AudioVideo:    audio.VideoPath,
		OriginalVideo: job.Params.Video,
		Output:        output,
	}
	if audioDir, dirErr := m.store.OutputDir(job.ID, artifacts.SubtypeAudio); dirErr == nil {
		if srt, ok := detect.SubtitlePath(audioDir); ok {
			req.Subtitles = srt
		}
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	path, err := m.combiner.Combine(ctx, req)
	if err != nil {
		logging.WarnWithContext(logger, "combined video failed", "combine_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg installation and subtitle support"),
			logging.String(logging.FieldImpact, "per-side results remain downloadable"),
		)
		return "", err
	}
	m.recordArtifact(ctx, job.ID, artifacts.Artifact{Type: artifacts.TypeVideo, Subtype: artifacts.SubtypeCombined, Path: path})
	return path, nil
}

func (m *Manager) recordArtifact(ctx context.Context, jobID string, artifact artifacts.Artifact) {
	if err := m.store.Record(jobID, artifact); err != nil {
		logging.WithContext(ctx, m.logger).Warn("could not record artifact", logging.Args(
			logging.String("type", string(artifact.Type)),
			logging.String("subtype", string(artifact.Subtype)),
			logging.Error(err),
		)...)
	}
}

// errorText renders err for the job record without classification prefixes.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	return services.Describe(err)
}
