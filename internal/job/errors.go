package job

import (
	"errors"
	"fmt"
)

// Common errors returned by the job package
var (
	// ErrPersistence marks a failed critical status write. It is returned from
	// QueuedExecutor.Run; nothing weaker is acceptable for terminal states.
	ErrPersistence = errors.New("job persistence failed")

	// ErrInvalidTransition is returned when an update would move a job's status backwards
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrNilExecute is returned when a controller is configured without an execute function
	ErrNilExecute = errors.New("execute function cannot be nil")

	// ErrNilStore is returned when a controller is created without a store
	ErrNilStore = errors.New("job store cannot be nil")

	// ErrNilLogger is returned when a component is created without a logger
	ErrNilLogger = errors.New("logger cannot be nil")

	// ErrInterrupted is recorded on jobs whose run ended with the process
	ErrInterrupted = errors.New("job interrupted before completion")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: %s -> %s: %v", e.JobID, e.From, e.To, ErrInvalidTransition)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// errorMessage converts a task error into the message recorded on the job.
// A failed job always carries a non-empty message.
func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}

// panicError wraps a value recovered from a panicking task.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("task panicked: %w", err)
	}
	return fmt.Errorf("task panicked: %v", v)
}
