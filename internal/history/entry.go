package history

import (
	"time"

	"harp/internal/jobs"
)

// Entry is one finished job as stored in the ledger.
type Entry struct {
	ID            string     `json:"id"`
	Method        string     `json:"method"`
	Mode          string     `json:"mode,omitempty"`
	Status        string     `json:"status"`
	Message       string     `json:"message,omitempty"`
	AudioRows     *int       `json:"audio_rows,omitempty"`
	HandRows      *int       `json:"hand_rows,omitempty"`
	Combined      bool       `json:"combined"`
	AudioError    string     `json:"audio_error,omitempty"`
	HandError     string     `json:"hand_error,omitempty"`
	CombinedError string     `json:"combined_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    time.Time  `json:"finished_at"`
}

// Duration reports how long the job ran.
func (e Entry) Duration() time.Duration {
	if e.StartedAt == nil || e.StartedAt.IsZero() {
		return e.FinishedAt.Sub(e.CreatedAt)
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// EntryFromJob projects a job snapshot onto a ledger row.
func EntryFromJob(job jobs.Job) Entry {
	entry := Entry{
		ID:            job.ID,
		Method:        string(job.Method),
		Status:        string(job.Status),
		Message:       job.Message,
		Combined:      job.CombinedVideoPath != "",
		AudioError:    job.AudioError,
		HandError:     job.HandError,
		CombinedError: job.CombinedError,
		CreatedAt:     job.CreatedAt,
		FinishedAt:    job.FinishedAt,
	}
	if job.Method.NeedsAudio() {
		entry.Mode = string(job.Params.Mode)
	}
	if job.Audio != nil {
		rows := job.Audio.Rows
		entry.AudioRows = &rows
	}
	if job.Hand != nil {
		rows := job.Hand.Rows
		entry.HandRows = &rows
	}
	if !job.StartedAt.IsZero() {
		started := job.StartedAt
		entry.StartedAt = &started
	}
	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = time.Now()
	}
	return entry
}
