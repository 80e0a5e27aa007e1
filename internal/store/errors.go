package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the job store backends. Backend-specific errors
// wrap one of these so callers can branch with errors.Is regardless of which
// backend is configured.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrDuplicate     = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUnavailable means the backend could not be reached. Retrying later may succeed.
	ErrUnavailable = errors.New("store unavailable")

	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)
	ErrJobExists   = fmt.Errorf("%w: job", ErrDuplicate)
)

// IsNotFoundError reports whether err means the job is absent.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError reports whether err means the job id is already taken.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsUnavailableError reports whether err is a transient backend outage.
func IsUnavailableError(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// OpError records which backend operation failed for which job.
type OpError struct {
	Backend string // "postgres", "redis"
	Op      string // "insert", "update", "delete", ...
	JobID   string
	Err     error
}

func (e *OpError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s job %s: %v", e.Backend, e.Op, e.JobID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err with the failing backend operation. A nil err yields nil.
func NewOpError(backend, op, jobID string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Backend: backend, Op: op, JobID: jobID, Err: err}
}
