package job

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a job
type Status string

// Possible job status values
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress checkpoints written by the executor
const (
	ProgressStarted  = 10
	ProgressComplete = 100
)

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	return s.rank() >= 0
}

// IsTerminal reports whether no further transitions are permitted from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether a job in status s is still pending work.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusProcessing
}

// CanTransitionTo reports whether moving from s to next keeps the status
// monotonic. Re-writing the same non-terminal status is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.IsValid() || !next.IsValid() || s.IsTerminal() {
		return false
	}
	if s == next {
		return true
	}
	if next == StatusProcessing {
		return s == StatusQueued
	}
	if next.IsTerminal() {
		return s == StatusProcessing
	}
	return false
}

// Job is the unit of work record. Input and Result are opaque to this package.
type Job[In, Out any] struct {
	ID          string     `json:"id"`
	Namespace   string     `json:"namespace"`
	Type        string     `json:"type"`
	Input       In         `json:"input"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Result      *Out       `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Update is a partial update of a job record. Nil fields are left untouched.
type Update[Out any] struct {
	Status      *Status
	Progress    *int
	Result      *Out
	Error       *string
	CompletedAt *time.Time
}

// ProgressUpdate returns an update that only touches progress.
func ProgressUpdate[Out any](progress int) Update[Out] {
	return Update[Out]{Progress: &progress}
}

// ProcessingUpdate moves a job to processing with the given progress.
func ProcessingUpdate[Out any](progress int) Update[Out] {
	status := StatusProcessing
	return Update[Out]{Status: &status, Progress: &progress}
}

// CompletedUpdate records a successful result.
func CompletedUpdate[Out any](result Out, at time.Time) Update[Out] {
	status := StatusCompleted
	progress := ProgressComplete
	return Update[Out]{Status: &status, Progress: &progress, Result: &result, CompletedAt: &at}
}

// FailedUpdate records a failure message and resets progress.
func FailedUpdate[Out any](message string) Update[Out] {
	status := StatusFailed
	progress := 0
	return Update[Out]{Status: &status, Progress: &progress, Error: &message}
}

// IsProgressOnly reports whether u carries nothing but a progress value.
func (u Update[Out]) IsProgressOnly() bool {
	return u.Progress != nil && u.Status == nil && u.Result == nil && u.Error == nil && u.CompletedAt == nil
}

// Apply returns a copy of j with u applied at time now. Status changes must
// be monotonic. Progress-only updates against a terminal job are dropped so a
// late progress write cannot disturb the recorded outcome.
func (j Job[In, Out]) Apply(u Update[Out], now time.Time) (Job[In, Out], error) {
	if u.Status != nil && !j.Status.CanTransitionTo(*u.Status) {
		return j, &TransitionError{JobID: j.ID, From: j.Status, To: *u.Status}
	}
	if j.Status.IsTerminal() && u.IsProgressOnly() {
		return j, nil
	}

	next := j
	if u.Status != nil {
		next.Status = *u.Status
	}
	if u.Progress != nil {
		next.Progress = clampProgress(*u.Progress)
	}
	if u.Result != nil {
		result := *u.Result
		next.Result = &result
	}
	if u.Error != nil {
		next.Error = *u.Error
	}
	if u.CompletedAt != nil {
		at := *u.CompletedAt
		next.CompletedAt = &at
	}
	next.UpdatedAt = now
	return next, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > ProgressComplete {
		return ProgressComplete
	}
	return p
}

// ProgressFunc receives progress reports from a running task.
type ProgressFunc func(progress int)

// ExecuteFunc performs the work of a job. The context carries request-scoped
// values but is not cancelled when a job is cancelled.
type ExecuteFunc[In, Out any] func(ctx context.Context, input In, onProgress ProgressFunc) (Out, error)

// ExecutorConfig is the caller-supplied behavior of a job type. OnComplete
// and OnError run after the terminal state has been committed.
type ExecutorConfig[In, Out any] struct {
	Execute    ExecuteFunc[In, Out]
	OnComplete func(job Job[In, Out])
	OnError    func(job Job[In, Out], err error)
}

// Callbacks are caller-level hooks invoked by the controller and its runs.
type Callbacks[In, Out any] struct {
	// OnJobComplete runs after ExecutorConfig.OnComplete
	OnJobComplete func(job Job[In, Out])

	// OnJobError runs after ExecutorConfig.OnError
	OnJobError func(job Job[In, Out], err error)

	// OnAllComplete runs once each time the set of active jobs drains
	OnAllComplete func()

	// OnProgress receives progress of direct executions
	OnProgress ProgressFunc
}
