package engine

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the store, orchestrator and transport layers.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPersistence       = errors.New("persistence error")
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// TransitionError reports a rejected job state change together with the state the job is in.
type TransitionError struct {
	JobID string
	From  JobStatus
	To    JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot move from %s to %s", e.JobID, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) true for any *TransitionError.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
