package jobs

import (
	"errors"
	"fmt"

	"harp/internal/services"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = fmt.Errorf("job %w", services.ErrNotFound)
	// ErrInvalidTransition is returned when an update would move a job backwards
	// or out of a terminal status.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrInvalidMethod is returned by Create for unknown methods.
	ErrInvalidMethod = fmt.Errorf("method must be 'audio', 'hand', or 'both': %w", services.ErrValidation)
	// ErrDuplicateID is returned by CreateWithID when the id is unusable.
	ErrDuplicateID = fmt.Errorf("job id unavailable: %w", services.ErrValidation)
)
