package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultNamespace is the store namespace used when none is configured.
const DefaultNamespace = "generation_jobs"

// Config holds the behavior of a Controller.
type Config[In, Out any] struct {
	// Namespace groups this controller's records in the store
	Namespace string

	// Executor is the job behavior; Execute is required
	Executor ExecutorConfig[In, Out]

	// Callbacks are caller-level hooks
	Callbacks Callbacks[In, Out]
}

// DefaultConfig returns a Config for execute using the default namespace.
func DefaultConfig[In, Out any](execute ExecuteFunc[In, Out]) Config[In, Out] {
	return Config[In, Out]{
		Namespace: DefaultNamespace,
		Executor:  ExecutorConfig[In, Out]{Execute: execute},
	}
}

// Controller is the public façade over the job queue. It persists queued
// records, tracks in-flight jobs and dispatches a QueuedExecutor run per job
// without waiting for it.
type Controller[In, Out any] struct {
	store    Store[In, Out]
	tracker  *Tracker
	executor *QueuedExecutor[In, Out]
	direct   *DirectExecutor[In, Out]
	config   Config[In, Out]
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
	inputsMu sync.Mutex
	inputs   map[string]In
	runs     sync.WaitGroup
}

// NewController creates a Controller over store. A fresh Tracker is created
// for every controller.
func NewController[In, Out any](store Store[In, Out], config Config[In, Out], logger *slog.Logger) (*Controller[In, Out], error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if config.Executor.Execute == nil {
		return nil, ErrNilExecute
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if config.Namespace == "" {
		config.Namespace = DefaultNamespace
	}

	logger = logger.With("namespace", config.Namespace)
	tracker := NewTracker()

	return &Controller[In, Out]{
		store:    store,
		tracker:  tracker,
		executor: NewQueuedExecutor(store, tracker, config.Executor, config.Callbacks, logger),
		direct:   NewDirectExecutor[In, Out](config.Callbacks.OnProgress, logger),
		config:   config,
		logger:   logger.With("component", "job_controller"),
		newID:    NewID,
		now:      time.Now,
		inputs:   make(map[string]In),
	}, nil
}

// StartJob persists a queued job for input and starts it in the background.
// It returns as soon as the queued record is durable.
func (c *Controller[In, Out]) StartJob(ctx context.Context, input In, jobType string) (string, error) {
	id := c.newID()
	now := c.now()

	c.setInput(id, input)

	job := Job[In, Out]{
		ID:        id,
		Namespace: c.config.Namespace,
		Type:      jobType,
		Input:     input,
		Status:    StatusQueued,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := c.store.AddJob(ctx, job); err != nil {
		c.forgetInput(id)
		c.logger.ErrorContext(ctx, "failed to save queued job", "job_id", id, "job_type", jobType, "error", err)
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	c.tracker.Add(id)
	c.logger.DebugContext(ctx, "job queued", "job_id", id, "job_type", jobType)

	c.runs.Add(1)
	go c.run(context.WithoutCancel(ctx), id, jobType, input)

	return id, nil
}

func (c *Controller[In, Out]) run(ctx context.Context, id, jobType string, input In) {
	defer c.runs.Done()
	defer c.forgetInput(id)
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "job run panicked", "job_id", id, "job_type", jobType, "panic", r)
		}
	}()

	if err := c.executor.Run(ctx, id, input); err != nil {
		c.logger.ErrorContext(ctx, "job run ended with persistence error",
			"job_id", id,
			"job_type", jobType,
			"error", err)
	}
}

// RecoveryStats summarizes a Recover pass.
type RecoveryStats struct {
	Resumed     int
	Interrupted int
	Purged      int
}

// Recover reconciles records left in the store by an earlier process.
// Queued jobs are dispatched again under their original ids. Processing jobs
// lost their run and are marked failed, then removed. Terminal records whose
// removal never happened are removed. Jobs this controller already tracks are
// left alone.
func (c *Controller[In, Out]) Recover(ctx context.Context) (RecoveryStats, error) {
	var stats RecoveryStats
	var errs []error

	for _, job := range c.store.Jobs(c.config.Namespace) {
		if c.tracker.Contains(job.ID) {
			continue
		}

		switch job.Status {
		case StatusQueued:
			c.setInput(job.ID, job.Input)
			c.tracker.Add(job.ID)
			c.runs.Add(1)
			go c.run(context.WithoutCancel(ctx), job.ID, job.Type, job.Input)
			stats.Resumed++

		case StatusProcessing:
			if _, err := c.store.CommitJob(ctx, job.ID, FailedUpdate[Out](ErrInterrupted.Error())); err != nil {
				errs = append(errs, fmt.Errorf("mark %s failed: %w", job.ID, err))
				continue
			}
			if _, err := c.store.DeleteJob(ctx, job.ID); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", job.ID, err))
				continue
			}
			stats.Interrupted++

		default:
			if _, err := c.store.DeleteJob(ctx, job.ID); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", job.ID, err))
				continue
			}
			stats.Purged++
		}
	}

	c.logger.InfoContext(ctx, "recovered unfinished jobs",
		"resumed", stats.Resumed,
		"interrupted", stats.Interrupted,
		"purged", stats.Purged,
		"errors", len(errs))

	if len(errs) > 0 {
		return stats, fmt.Errorf("%w: %w", ErrPersistence, errors.Join(errs...))
	}
	return stats, nil
}

// ExecuteDirectly runs input to completion without the tracker or the store.
func (c *Controller[In, Out]) ExecuteDirectly(ctx context.Context, input In) DirectResult[Out] {
	return c.direct.Execute(ctx, input, c.config.Executor.Execute)
}

// CancelJob drops all bookkeeping for id. It does not interrupt a task that
// is already executing; that run finds the record gone and skips its hooks.
func (c *Controller[In, Out]) CancelJob(id string) {
	_, drained := c.tracker.Remove(id)
	c.forgetInput(id)
	c.store.RemoveJob(id)

	c.logger.Info("job cancelled", "job_id", id)

	if drained && c.config.Callbacks.OnAllComplete != nil {
		invokeHook(context.Background(), c.logger.With("job_id", id), "on_all_complete", c.config.Callbacks.OnAllComplete)
	}
}

// Job returns the stored record for id.
func (c *Controller[In, Out]) Job(id string) (Job[In, Out], bool) {
	job, ok := c.store.GetJob(id)
	if !ok || job.Namespace != c.config.Namespace {
		return Job[In, Out]{}, false
	}
	return job, true
}

// Input returns the input recorded for an unfinished job.
func (c *Controller[In, Out]) Input(id string) (In, bool) {
	c.inputsMu.Lock()
	defer c.inputsMu.Unlock()
	input, ok := c.inputs[id]
	return input, ok
}

// PendingJobs returns the records in this controller's namespace.
func (c *Controller[In, Out]) PendingJobs() []Job[In, Out] {
	return c.store.Jobs(c.config.Namespace)
}

// ActiveJobCount counts stored jobs that are queued or processing.
func (c *Controller[In, Out]) ActiveJobCount() int {
	return CountActive(c.PendingJobs())
}

// HasActiveJobs reports whether any stored job is queued or processing.
func (c *Controller[In, Out]) HasActiveJobs() bool {
	return c.ActiveJobCount() > 0
}

// Watch streams the namespace view; see Store.Watch.
func (c *Controller[In, Out]) Watch() (<-chan []Job[In, Out], func()) {
	return c.store.Watch(c.config.Namespace)
}

// IsProcessing reports whether a direct execution is running.
func (c *Controller[In, Out]) IsProcessing() bool {
	return c.direct.IsProcessing()
}

// Progress returns the progress of the current direct execution.
func (c *Controller[In, Out]) Progress() int {
	return c.direct.Progress()
}

// Namespace returns the store namespace of this controller.
func (c *Controller[In, Out]) Namespace() string {
	return c.config.Namespace
}

// Wait blocks until every dispatched run has returned or ctx is done.
func (c *Controller[In, Out]) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller[In, Out]) setInput(id string, input In) {
	c.inputsMu.Lock()
	defer c.inputsMu.Unlock()
	c.inputs[id] = input
}

func (c *Controller[In, Out]) forgetInput(id string) {
	c.inputsMu.Lock()
	defer c.inputsMu.Unlock()
	delete(c.inputs, id)
}

// CountActive counts jobs that are queued or processing.
func CountActive[In, Out any](jobs []Job[In, Out]) int {
	n := 0
	for _, j := range jobs {
		if j.Status.IsActive() {
			n++
		}
	}
	return n
}
