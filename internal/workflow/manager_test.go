package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"harp/internal/artifacts"
	"harp/internal/jobs"
	"harp/internal/media/ffprobe"
	"harp/internal/services"
	"harp/internal/workflow"
)

func startManager(t *testing.T, h *harness, opts ...workflow.ManagerOption) *workflow.Manager {
	t.Helper()
	mgr := workflow.NewManager(h.registry, h.store, nil, opts...)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	return mgr
}

func TestAudioJobCompletes(t *testing.T) {
	h := newHarness(t)
	audio := &fakeAudio{rows: 4}
	mgr := startManager(t, h, workflow.WithAudioDetector(audio))

	job := h.createJob(t, jobs.MethodAudio)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusDone {
		t.Fatalf("expected done, got %s (%s)", done.Status, done.Message)
	}
	if rows, ok := done.Rows(); !ok || rows != 4 {
		t.Fatalf("expected 4 rows, got %d %v", rows, ok)
	}
	if done.Hand != nil || done.StartedAt.IsZero() || done.FinishedAt.IsZero() {
		t.Fatalf("unexpected job state %+v", done)
	}
	if req := audio.lastReq.Load(); req == nil || req.Mode != jobs.ModeHybrid {
		t.Fatalf("expected hybrid mode request, got %+v", req)
	}

	if _, err := h.store.Resolve(job.ID, artifacts.TypeCSV, artifacts.SubtypeAudio); err != nil {
		t.Fatalf("audio csv should resolve: %v", err)
	}
	if _, err := h.store.Resolve(job.ID, artifacts.TypeVideo, ""); err != nil {
		t.Fatalf("single video should resolve without subtype: %v", err)
	}
	if _, err := h.store.Resolve(job.ID, artifacts.TypeCSV, artifacts.SubtypeHand); !errors.Is(err, artifacts.ErrNotFound) {
		t.Fatalf("hand csv should be not found, got %v", err)
	}
}

func TestHandJobPassesWeights(t *testing.T) {
	h := newHarness(t)
	hand := &fakeHand{rows: 0}
	mgr := startManager(t, h, workflow.WithHandDetector(hand))

	job, err := h.registry.Create(jobs.MethodHand, jobs.Params{Video: "/tmp/v.mp4", Weights: "/srv/best.pt"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusDone || done.Hand == nil || done.Hand.Rows != 0 {
		t.Fatalf("unexpected job %+v", done)
	}
	if req := hand.lastReq.Load(); req == nil || req.Weights != "/srv/best.pt" {
		t.Fatalf("weights not forwarded: %+v", req)
	}
}

func TestSingleMethodFailureMovesToError(t *testing.T) {
	h := newHarness(t)
	mgr := startManager(t, h, workflow.WithAudioDetector(&fakeAudio{err: errMalformedModel}))

	job := h.createJob(t, jobs.MethodAudio)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusError || done.Message != errMalformedModel.Error() {
		t.Fatalf("unexpected job %+v", done)
	}
	if done.Audio != nil {
		t.Fatal("failed job must not carry a result")
	}
}

func TestBothSucceedCombinesOnce(t *testing.T) {
	h := newHarness(t)
	combiner := &fakeCombiner{}
	mgr := startManager(t, h,
		workflow.WithAudioDetector(&fakeAudio{rows: 3, subtitle: true}),
		workflow.WithHandDetector(&fakeHand{rows: 5}),
		workflow.WithCombiner(combiner),
	)

	job := h.createJob(t, jobs.MethodBoth)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusDone {
		t.Fatalf("expected done, got %+v", done)
	}
	if done.Audio == nil || done.Hand == nil || done.Audio.Rows != 3 || done.Hand.Rows != 5 {
		t.Fatalf("expected both results, got %+v", done)
	}
	if got := combiner.calls.Load(); got != 1 {
		t.Fatalf("combiner should run exactly once, ran %d", got)
	}
	if done.CombinedVideoPath == "" || done.CombinedError != "" {
		t.Fatalf("expected combined video, got %+v", done)
	}
	req := combiner.request()
	if !strings.HasSuffix(req.Subtitles, "overlay.srt") || req.OriginalVideo != job.Params.Video {
		t.Fatalf("unexpected combine request %+v", req)
	}
	if _, err := h.store.Resolve(job.ID, artifacts.TypeVideo, artifacts.SubtypeCombined); err != nil {
		t.Fatalf("combined video should resolve: %v", err)
	}
	if _, err := h.store.Resolve(job.ID, artifacts.TypeCSV, ""); !errors.Is(err, artifacts.ErrAmbiguous) {
		t.Fatalf("csv without subtype should be ambiguous, got %v", err)
	}
}

func TestBothOneSideFailsSkipsCombiner(t *testing.T) {
	h := newHarness(t)
	combiner := &fakeCombiner{}
	mgr := startManager(t, h,
		workflow.WithAudioDetector(&fakeAudio{err: errMalformedModel}),
		workflow.WithHandDetector(&fakeHand{rows: 2}),
		workflow.WithCombiner(combiner),
	)

	job := h.createJob(t, jobs.MethodBoth)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusDone {
		t.Fatalf("expected done, got %+v", done)
	}
	if done.AudioError == "" || done.Audio != nil {
		t.Fatalf("audio side should carry only an error: %+v", done)
	}
	if done.Hand == nil || done.Hand.Rows != 2 {
		t.Fatalf("hand result missing: %+v", done)
	}
	if done.CombinedVideoPath != "" || combiner.calls.Load() != 0 {
		t.Fatal("combiner must not be attempted when a side fails")
	}
}

func TestBothWaitsForSlowSideAfterFailure(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	audio := &fakeAudio{rows: 1, block: release}
	mgr := startManager(t, h,
		workflow.WithAudioDetector(audio),
		workflow.WithHandDetector(&fakeHand{err: errors.New("no hands found")}),
		workflow.WithCombiner(&fakeCombiner{}),
	)

	job := h.createJob(t, jobs.MethodBoth)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if current, _ := h.registry.Get(job.ID); current.Status.IsTerminal() {
		t.Fatal("job finished before the audio side returned")
	}
	close(release)

	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusDone || done.Audio == nil || done.HandError != "no hands found" {
		t.Fatalf("unexpected job %+v", done)
	}
}

func TestBothSidesFailMovesToError(t *testing.T) {
	h := newHarness(t)
	hist := &memoryHistory{}
	mgr := startManager(t, h,
		workflow.WithAudioDetector(&fakeAudio{err: errMalformedModel}),
		workflow.WithHandDetector(&fakeHand{err: errors.New("weights missing")}),
		workflow.WithHistory(hist),
	)

	job := h.createJob(t, jobs.MethodBoth)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusError {
		t.Fatalf("expected error, got %+v", done)
	}
	if !strings.HasPrefix(done.Message, "audio: ") || !strings.Contains(done.Message, "; hand: weights missing") {
		t.Fatalf("unexpected message %q", done.Message)
	}

	entries := hist.snapshot()
	if len(entries) != 1 || entries[0].Status != "error" || entries[0].ID != job.ID {
		t.Fatalf("expected one history entry, got %+v", entries)
	}
	if mgr.Status().LastError == "" {
		t.Fatal("expected last error to be tracked")
	}
}

func TestCombinerFailureStillDone(t *testing.T) {
	h := newHarness(t)
	mgr := startManager(t, h,
		workflow.WithAudioDetector(&fakeAudio{rows: 1}),
		workflow.WithHandDetector(&fakeHand{rows: 1}),
		workflow.WithCombiner(&fakeCombiner{err: errors.New("FFmpeg error: No such filter: 'subtitles'")}),
	)

	job := h.createJob(t, jobs.MethodBoth)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusDone || done.CombinedVideoPath != "" {
		t.Fatalf("unexpected job %+v", done)
	}
	if done.CombinedError != "FFmpeg error: No such filter: 'subtitles'" {
		t.Fatalf("unexpected combined error %q", done.CombinedError)
	}
}

func TestDetectorPanicIsRecovered(t *testing.T) {
	h := newHarness(t)
	mgr := startManager(t, h, workflow.WithAudioDetector(&fakeAudio{panicMsg: "index out of range"}))

	job := h.createJob(t, jobs.MethodAudio)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusError || !strings.Contains(done.Message, "index out of range") {
		t.Fatalf("unexpected job %+v", done)
	}
}

func TestMissingDetectorIsConfigurationError(t *testing.T) {
	h := newHarness(t)
	mgr := startManager(t, h)

	job := h.createJob(t, jobs.MethodHand)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusError || !strings.Contains(done.Message, "hand detector not configured") {
		t.Fatalf("unexpected job %+v", done)
	}
}

func TestProbeRejectsFileWithoutVideo(t *testing.T) {
	h := newHarness(t)
	audio := &fakeAudio{rows: 1}
	probe := fakeProber{result: ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "audio"}}}}
	mgr := startManager(t, h, workflow.WithAudioDetector(audio), workflow.WithProber(probe))

	job := h.createJob(t, jobs.MethodAudio)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusError || done.Message != "uploaded file has no video stream" {
		t.Fatalf("unexpected job %+v", done)
	}
	if audio.calls.Load() != 0 {
		t.Fatal("detector should not run for an unusable upload")
	}
}

func TestConcurrencyLimitKeepsJobsQueued(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	audio := &fakeAudio{rows: 1, block: release}
	mgr := startManager(t, h, workflow.WithAudioDetector(audio), workflow.WithMaxConcurrentJobs(1))

	first := h.createJob(t, jobs.MethodAudio)
	second := h.createJob(t, jobs.MethodAudio)
	for _, id := range []string{first.ID, second.ID} {
		if err := mgr.Submit(context.Background(), id); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for audio.calls.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond)
	if got := audio.calls.Load(); got != 1 {
		t.Fatalf("expected one running detector, got %d", got)
	}
	queued := 0
	for _, id := range []string{first.ID, second.ID} {
		job, _ := h.registry.Get(id)
		if job.Status == jobs.StatusQueued {
			queued++
		}
	}
	if queued != 1 {
		t.Fatalf("expected one queued job, got %d", queued)
	}
	if mgr.Status().ActiveJobs != 1 {
		t.Fatalf("expected one active job, got %+v", mgr.Status())
	}

	close(release)
	for _, id := range []string{first.ID, second.ID} {
		if job := waitTerminal(t, h.registry, id); job.Status != jobs.StatusDone {
			t.Fatalf("job %s ended %s", id, job.Status)
		}
	}
}

func TestConcurrentJobsUseDistinctPaths(t *testing.T) {
	h := newHarness(t)
	mgr := startManager(t, h, workflow.WithAudioDetector(&fakeAudio{rows: 1}), workflow.WithMaxConcurrentJobs(4))

	ids := make([]string, 4)
	for i := range ids {
		ids[i] = h.createJob(t, jobs.MethodAudio).ID
		if err := mgr.Submit(context.Background(), ids[i]); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	seen := make(map[string]string)
	for _, id := range ids {
		job := waitTerminal(t, h.registry, id)
		if job.Audio == nil {
			t.Fatalf("job %s missing result", id)
		}
		if other, dup := seen[job.Audio.CSVPath]; dup {
			t.Fatalf("jobs %s and %s share %s", id, other, job.Audio.CSVPath)
		}
		seen[job.Audio.CSVPath] = id
	}
}

func TestDetectorTimeoutFailsJob(t *testing.T) {
	h := newHarness(t)
	audio := &fakeAudio{block: make(chan struct{})}
	mgr := startManager(t, h, workflow.WithAudioDetector(audio), workflow.WithDetectorTimeout(30*time.Millisecond))

	job := h.createJob(t, jobs.MethodAudio)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusError || !strings.Contains(done.Message, "deadline exceeded") {
		t.Fatalf("unexpected job %+v", done)
	}
}

func TestSubmitWhenStoppedFailsJob(t *testing.T) {
	h := newHarness(t)
	mgr := workflow.NewManager(h.registry, h.store, nil)

	job := h.createJob(t, jobs.MethodAudio)
	if err := mgr.Submit(context.Background(), job.ID); !errors.Is(err, workflow.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	current, _ := h.registry.Get(job.ID)
	if current.Status != jobs.StatusError {
		t.Fatalf("expected queued job to move to error, got %s", current.Status)
	}
}

func TestSubmitUnknownJob(t *testing.T) {
	h := newHarness(t)
	mgr := startManager(t, h)
	if err := mgr.Submit(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStopFailsQueuedJobs(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	audio := &fakeAudio{rows: 1, block: release}
	mgr := workflow.NewManager(h.registry, h.store, nil, workflow.WithAudioDetector(audio), workflow.WithMaxConcurrentJobs(1))
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := h.createJob(t, jobs.MethodAudio)
	second := h.createJob(t, jobs.MethodAudio)
	_ = mgr.Submit(context.Background(), first.ID)
	_ = mgr.Submit(context.Background(), second.ID)

	deadline := time.Now().Add(2 * time.Second)
	for audio.calls.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	mgr.Stop()

	for _, id := range []string{first.ID, second.ID} {
		job, _ := h.registry.Get(id)
		if job.Status != jobs.StatusError {
			t.Fatalf("job %s should be error after stop, got %s", id, job.Status)
		}
	}
}

func TestProbeWithoutAudioFailsOnlyAudioSide(t *testing.T) {
	h := newHarness(t)
	audio := &fakeAudio{rows: 1}
	probe := fakeProber{result: ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video"}}}}
	mgr := startManager(t, h,
		workflow.WithAudioDetector(audio),
		workflow.WithHandDetector(&fakeHand{rows: 6}),
		workflow.WithCombiner(&fakeCombiner{}),
		workflow.WithProber(probe),
	)

	job := h.createJob(t, jobs.MethodBoth)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitTerminal(t, h.registry, job.ID)
	if done.Status != jobs.StatusDone || done.AudioError != "uploaded file has no audio stream" {
		t.Fatalf("unexpected job %+v", done)
	}
	if done.Hand == nil || done.Hand.Rows != 6 || audio.calls.Load() != 0 {
		t.Fatalf("hand side should run alone: %+v calls=%d", done, audio.calls.Load())
	}
}

func TestProbeFailureDoesNotBlockDetection(t *testing.T) {
	h := newHarness(t)
	mgr := startManager(t, h,
		workflow.WithHandDetector(&fakeHand{rows: 2}),
		workflow.WithProber(fakeProber{err: errors.New("ffprobe: executable file not found")}),
	)

	job := h.createJob(t, jobs.MethodHand)
	if err := mgr.Submit(context.Background(), job.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if done := waitTerminal(t, h.registry, job.ID); done.Status != jobs.StatusDone {
		t.Fatalf("unexpected job %+v", done)
	}
}
