package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the concurrency-safe store of job state.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	now   func() time.Time
	newID func() string
}

// RegistryOption customizes registry construction.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides job id allocation.
func WithIDGenerator(gen func() string) RegistryOption {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		jobs:  make(map[string]*Job),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a new job in the queued state.
func (r *Registry) Create(method Method, params Params) (Job, error) {
	if _, ok := ParseMethod(string(method)); !ok {
		return Job{}, ErrInvalidMethod
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for {
		if _, exists := r.jobs[id]; !exists {
			break
		}
		id = r.newID()
	}
	return r.insertLocked(id, method, params), nil
}

// CreateWithID registers a queued job under a caller-chosen id, used when
// inputs were stored under that id before the job was accepted.
func (r *Registry) CreateWithID(id string, method Method, params Params) (Job, error) {
	if _, ok := ParseMethod(string(method)); !ok {
		return Job{}, ErrInvalidMethod
	}
	if id == "" {
		return Job{}, fmt.Errorf("%w: empty id", ErrDuplicateID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[id]; exists {
		return Job{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return r.insertLocked(id, method, params), nil
}

func (r *Registry) insertLocked(id string, method Method, params Params) Job {
	job := &Job{
		ID:        id,
		Method:    method,
		Status:    StatusQueued,
		Params:    params,
		CreatedAt: r.now(),
	}
	r.jobs[id] = job
	return job.Clone()
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

// Update applies mutate to a private copy of the job and commits it only when
// mutate succeeds and the resulting status transition is legal. Identity fields
// (ID, Method, CreatedAt) cannot be changed. Entering running or a terminal
// status stamps StartedAt/FinishedAt when the mutator left them unset.
func (r *Registry) Update(id string, mutate func(*Job) error) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	next := current.Clone()
	if mutate != nil {
		if err := mutate(&next); err != nil {
			return current.Clone(), err
		}
	}
	if !CanTransition(current.Status, next.Status) {
		return current.Clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next.Status)
	}
	next.ID = current.ID
	next.Method = current.Method
	next.CreatedAt = current.CreatedAt
	if next.Status == StatusRunning && next.StartedAt.IsZero() {
		next.StartedAt = r.now()
	}
	if next.Status.IsTerminal() && next.FinishedAt.IsZero() {
		next.FinishedAt = r.now()
	}
	*current = next
	return next.Clone(), nil
}

// List returns snapshots of all jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Forget drops a terminal job from the registry. Non-terminal jobs are kept.
func (r *Registry) Forget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || !job.Status.IsTerminal() {
		return false
	}
	delete(r.jobs, id)
	return true
}
