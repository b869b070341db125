package jobs

import (
	"strings"
	"time"
)

// Method selects which detection pipelines a job runs.
type Method string

const (
	MethodAudio Method = "audio"
	MethodHand  Method = "hand"
	MethodBoth  Method = "both"
)

// ParseMethod converts a user-supplied string into a known Method.
func ParseMethod(value string) (Method, bool) {
	switch m := Method(strings.ToLower(strings.TrimSpace(value))); m {
	case MethodAudio, MethodHand, MethodBoth:
		return m, true
	default:
		return "", false
	}
}

// NeedsAudio reports whether the method runs the audio pipeline.
func (m Method) NeedsAudio() bool { return m == MethodAudio || m == MethodBoth }

// NeedsHand reports whether the method runs the hand pipeline.
func (m Method) NeedsHand() bool { return m == MethodHand || m == MethodBoth }

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool { return s == StatusDone || s == StatusError }

var transitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusError},
	StatusRunning: {StatusDone, StatusError},
}

// CanTransition reports whether a job may move from one status to another.
// Staying in the same non-terminal status is allowed so progress messages can
// be updated.
func CanTransition(from, to Status) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Mode selects the audio thresholding strategy.
type Mode string

const (
	// ModeDefault uses the model alone with a single fixed threshold.
	ModeDefault Mode = "default"
	// ModeHybrid uses per-string thresholds plus a pitch-tracking fallback.
	ModeHybrid Mode = "hybrid"
)

// ParseMode converts a user-supplied string into a Mode, defaulting to hybrid.
func ParseMode(value string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return ModeHybrid, true
	case ModeDefault, ModeHybrid:
		return m, true
	default:
		return "", false
	}
}

// Result is the output of one successful detection pipeline.
type Result struct {
	Rows      int
	CSVPath   string
	VideoPath string
}

// Params are the stored inputs for a job. They never leave the daemon.
type Params struct {
	Video   string
	Model   string
	Weights string
	Mode    Mode
}

// Job is the full state of one detection request.
type Job struct {
	ID                string
	Method            Method
	Status            Status
	Message           string
	Params            Params
	Audio             *Result
	Hand              *Result
	CombinedVideoPath string
	AudioError        string
	HandError         string
	CombinedError     string
	CreatedAt         time.Time
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	cp := j
	if j.Audio != nil {
		audio := *j.Audio
		cp.Audio = &audio
	}
	if j.Hand != nil {
		hand := *j.Hand
		cp.Hand = &hand
	}
	return cp
}

// Rows returns the detection count for single-method jobs.
func (j Job) Rows() (int, bool) {
	switch j.Method {
	case MethodAudio:
		if j.Audio != nil {
			return j.Audio.Rows, true
		}
	case MethodHand:
		if j.Hand != nil {
			return j.Hand.Rows, true
		}
	}
	return 0, false
}

// Duration reports how long the job ran, or zero while it has not finished.
func (j Job) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
