package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// QueuedExecutor drives one persisted job through processing to a terminal
// state. Each run exclusively owns the record for its job id.
type QueuedExecutor[In, Out any] struct {
	store     Store[In, Out]
	tracker   *Tracker
	config    ExecutorConfig[In, Out]
	callbacks Callbacks[In, Out]
	logger    *slog.Logger
	now       func() time.Time
}

// NewQueuedExecutor creates a QueuedExecutor sharing store and tracker with
// its controller.
func NewQueuedExecutor[In, Out any](
	store Store[In, Out],
	tracker *Tracker,
	config ExecutorConfig[In, Out],
	callbacks Callbacks[In, Out],
	logger *slog.Logger,
) *QueuedExecutor[In, Out] {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueuedExecutor[In, Out]{
		store:     store,
		tracker:   tracker,
		config:    config,
		callbacks: callbacks,
		logger:    logger.With("component", "queued_executor"),
		now:       time.Now,
	}
}

// Run executes the job identified by id. Task errors are recorded on the job
// and never returned. A returned error wraps ErrPersistence and means a
// status transition could not be committed. The job is always released from
// the tracker before Run returns.
func (e *QueuedExecutor[In, Out]) Run(ctx context.Context, id string, input In) (err error) {
	logger := e.logger.With("job_id", id)
	defer e.release(ctx, id, logger)

	if _, err := e.store.CommitJob(ctx, id, ProcessingUpdate[Out](ProgressStarted)); err != nil {
		// The task never started. The record stays queued for Controller.Recover.
		logger.ErrorContext(ctx, "failed to mark job processing, left queued", "error", err)
		return fmt.Errorf("%w: mark processing: %w", ErrPersistence, err)
	}

	logger.InfoContext(ctx, "processing job")

	if err := e.execute(ctx, id, input); err != nil {
		return e.fail(ctx, id, err, logger)
	}

	e.complete(ctx, id, logger)
	return nil
}

// execute runs the task and commits the completed state.
func (e *QueuedExecutor[In, Out]) execute(ctx context.Context, id string, input In) error {
	result, err := runTask(ctx, e.config.Execute, input, func(p int) {
		e.store.UpdateJob(id, ProgressUpdate[Out](p))
	})
	if err != nil {
		return err
	}

	if _, err := e.store.CommitJob(ctx, id, CompletedUpdate(result, e.now())); err != nil {
		return fmt.Errorf("%w: mark completed: %w", ErrPersistence, err)
	}
	return nil
}

// complete runs after the completed state is durable. Removal failures are
// logged only.
func (e *QueuedExecutor[In, Out]) complete(ctx context.Context, id string, logger *slog.Logger) {
	logger.InfoContext(ctx, "job completed")

	if job, ok := e.store.GetJob(id); ok {
		if e.config.OnComplete != nil {
			e.invokeHook(ctx, logger, "on_complete", func() { e.config.OnComplete(job) })
		}
		if e.callbacks.OnJobComplete != nil {
			e.invokeHook(ctx, logger, "on_job_complete", func() { e.callbacks.OnJobComplete(job) })
		}
	} else {
		logger.DebugContext(ctx, "completed job no longer in store, skipping hooks")
	}

	if _, err := e.store.DeleteJob(ctx, id); err != nil {
		logger.ErrorContext(ctx, "failed to remove completed job", "error", err)
	}
}

// fail records the failed state. Only a failure to commit that state, or a
// persistence cause, is returned.
func (e *QueuedExecutor[In, Out]) fail(ctx context.Context, id string, cause error, logger *slog.Logger) error {
	logger.ErrorContext(ctx, "job failed", "error", cause)

	if _, err := e.store.CommitJob(ctx, id, FailedUpdate[Out](errorMessage(cause))); err != nil {
		return fmt.Errorf("%w: mark failed after %q: %w", ErrPersistence, errorMessage(cause), err)
	}

	if job, ok := e.store.GetJob(id); ok {
		if e.config.OnError != nil {
			e.invokeHook(ctx, logger, "on_error", func() { e.config.OnError(job, cause) })
		}
		if e.callbacks.OnJobError != nil {
			e.invokeHook(ctx, logger, "on_job_error", func() { e.callbacks.OnJobError(job, cause) })
		}
	} else {
		logger.DebugContext(ctx, "failed job no longer in store, skipping hooks")
	}

	if _, err := e.store.DeleteJob(ctx, id); err != nil {
		logger.WarnContext(ctx, "failed to remove failed job", "error", err)
	}

	if errors.Is(cause, ErrPersistence) {
		return cause
	}
	return nil
}

// release removes id from the tracker and signals a drain.
func (e *QueuedExecutor[In, Out]) release(ctx context.Context, id string, logger *slog.Logger) {
	remaining, drained := e.tracker.Remove(id)
	logger.DebugContext(ctx, "job released", "active_jobs", remaining)

	if drained && e.callbacks.OnAllComplete != nil {
		e.invokeHook(ctx, logger, "on_all_complete", e.callbacks.OnAllComplete)
	}
}

func (e *QueuedExecutor[In, Out]) invokeHook(ctx context.Context, logger *slog.Logger, name string, fn func()) {
	invokeHook(ctx, logger, name, fn)
}

// invokeHook runs a caller-supplied hook, logging instead of propagating a panic.
func invokeHook(ctx context.Context, logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "job hook panicked", "hook", name, "panic", r)
		}
	}()
	fn()
}
