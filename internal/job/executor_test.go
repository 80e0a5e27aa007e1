package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookRecorder struct {
	mu     sync.Mutex
	calls  []string
	jobs   []Job[testInput, testResult]
	errs   []error
	drains atomic.Int32
}

func (r *hookRecorder) record(name string, job Job[testInput, testResult], err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	r.jobs = append(r.jobs, job)
	r.errs = append(r.errs, err)
}

func (r *hookRecorder) snapshot() ([]string, []Job[testInput, testResult], []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...),
		append([]Job[testInput, testResult](nil), r.jobs...),
		append([]error(nil), r.errs...)
}

func (r *hookRecorder) executorConfig(execute ExecuteFunc[testInput, testResult]) ExecutorConfig[testInput, testResult] {
	return ExecutorConfig[testInput, testResult]{
		Execute:    execute,
		OnComplete: func(job Job[testInput, testResult]) { r.record("on_complete", job, nil) },
		OnError:    func(job Job[testInput, testResult], err error) { r.record("on_error", job, err) },
	}
}

func (r *hookRecorder) callbacks() Callbacks[testInput, testResult] {
	return Callbacks[testInput, testResult]{
		OnJobComplete: func(job Job[testInput, testResult]) { r.record("on_job_complete", job, nil) },
		OnJobError:    func(job Job[testInput, testResult], err error) { r.record("on_job_error", job, err) },
		OnAllComplete: func() { r.drains.Add(1) },
	}
}

func TestQueuedExecutor_Success(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	tracker := NewTracker()
	hooks := &hookRecorder{}
	seedJob(t, store, tracker, "job-1")

	var progressSeen []int
	execute := func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
		job, _ := store.GetJob("job-1")
		progressSeen = append(progressSeen, job.Progress)
		onProgress(50)
		job, _ = store.GetJob("job-1")
		progressSeen = append(progressSeen, job.Progress)
		return testResult{URL: "result"}, nil
	}

	executor := NewQueuedExecutor(store, tracker, hooks.executorConfig(execute), hooks.callbacks(), newTestLogger())
	err := executor.Run(context.Background(), "job-1", testInput{Prompt: "x"})
	require.NoError(t, err)

	assert.Equal(t, []int{10, 50}, progressSeen)
	assert.Equal(t, []Status{StatusQueued, StatusProcessing, StatusCompleted}, store.StatusHistory("job-1"))

	calls, jobs, _ := hooks.snapshot()
	assert.Equal(t, []string{"on_complete", "on_job_complete"}, calls)
	for _, job := range jobs {
		assert.Equal(t, StatusCompleted, job.Status)
		assert.Equal(t, 100, job.Progress)
		require.NotNil(t, job.Result)
		assert.Equal(t, "result", job.Result.URL)
		assert.NotNil(t, job.CompletedAt)
	}

	_, exists := store.GetJob("job-1")
	assert.False(t, exists, "completed job should be removed")
	assert.Equal(t, 0, tracker.Size())
	assert.Equal(t, int32(1), hooks.drains.Load())
}

func TestQueuedExecutor_TaskFailure(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	tracker := NewTracker()
	hooks := &hookRecorder{}
	seedJob(t, store, tracker, "job-1")

	execute := func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
		onProgress(40)
		return testResult{}, errors.New("upstream failure")
	}

	executor := NewQueuedExecutor(store, tracker, hooks.executorConfig(execute), hooks.callbacks(), newTestLogger())
	err := executor.Run(context.Background(), "job-1", testInput{})
	require.NoError(t, err, "task errors must not escape the run")

	assert.Equal(t, []Status{StatusQueued, StatusProcessing, StatusFailed}, store.StatusHistory("job-1"))

	calls, jobs, errs := hooks.snapshot()
	assert.Equal(t, []string{"on_error", "on_job_error"}, calls)
	for i, job := range jobs {
		assert.Equal(t, StatusFailed, job.Status)
		assert.Equal(t, 0, job.Progress)
		assert.Equal(t, "upstream failure", job.Error)
		assert.EqualError(t, errs[i], "upstream failure")
	}

	_, exists := store.GetJob("job-1")
	assert.False(t, exists)
	assert.Equal(t, int32(1), hooks.drains.Load())
}

func TestQueuedExecutor_TaskPanic(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	tracker := NewTracker()
	hooks := &hookRecorder{}
	seedJob(t, store, tracker, "job-1")

	execute := func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
		panic("bad state")
	}

	executor := NewQueuedExecutor(store, tracker, hooks.executorConfig(execute), hooks.callbacks(), newTestLogger())
	require.NoError(t, executor.Run(context.Background(), "job-1", testInput{}))

	_, jobs, _ := hooks.snapshot()
	require.NotEmpty(t, jobs)
	assert.Contains(t, jobs[0].Error, "bad state")
	assert.Equal(t, int32(1), hooks.drains.Load())
}

func TestQueuedExecutor_RemovalFailureAfterFailedIsSwallowed(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	store.DeleteFn = func(ctx context.Context, id string) (string, error) {
		return "", errors.New("store offline")
	}
	tracker := NewTracker()
	hooks := &hookRecorder{}
	seedJob(t, store, tracker, "job-1")

	execute := func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
		return testResult{}, errors.New("upstream failure")
	}

	executor := NewQueuedExecutor(store, tracker, hooks.executorConfig(execute), hooks.callbacks(), newTestLogger())
	err := executor.Run(context.Background(), "job-1", testInput{})
	require.NoError(t, err)

	job, exists := store.GetJob("job-1")
	require.True(t, exists, "record stays when removal fails")
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, 0, tracker.Size())
	assert.Equal(t, int32(1), hooks.drains.Load())
}

func TestQueuedExecutor_RemovalFailureAfterCompletedKeepsStatus(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	store.DeleteFn = func(ctx context.Context, id string) (string, error) {
		return "", errors.New("store offline")
	}
	tracker := NewTracker()
	hooks := &hookRecorder{}
	seedJob(t, store, tracker, "job-1")

	execute := func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
		return testResult{URL: "ok"}, nil
	}

	executor := NewQueuedExecutor(store, tracker, hooks.executorConfig(execute), hooks.callbacks(), newTestLogger())
	require.NoError(t, executor.Run(context.Background(), "job-1", testInput{}))

	assert.Equal(t, []Status{StatusQueued, StatusProcessing, StatusCompleted}, store.StatusHistory("job-1"))
	calls, _, _ := hooks.snapshot()
	assert.Equal(t, []string{"on_complete", "on_job_complete"}, calls)
}

func TestQueuedExecutor_CriticalWriteFailurePropagates(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	defaultCommit := store.CommitFn
	store.CommitFn = func(ctx context.Context, id string, update Update[testResult]) (bool, error) {
		if update.Status != nil && *update.Status == StatusFailed {
			return false, errors.New("disk full")
		}
		return defaultCommit(ctx, id, update)
	}
	tracker := NewTracker()
	hooks := &hookRecorder{}
	seedJob(t, store, tracker, "job-1")

	execute := func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
		return testResult{}, errors.New("upstream failure")
	}

	executor := NewQueuedExecutor(store, tracker, hooks.executorConfig(execute), hooks.callbacks(), newTestLogger())
	err := executor.Run(context.Background(), "job-1", testInput{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Contains(t, err.Error(), "disk full")

	calls, _, _ := hooks.snapshot()
	assert.Empty(t, calls, "hooks run only after the terminal state is recorded")
	assert.Equal(t, 0, tracker.Size(), "tracker cleanup must still run")
	assert.Equal(t, int32(1), hooks.drains.Load())
}

func TestQueuedExecutor_CompletedWriteFailureRecordsFailed(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	defaultCommit := store.CommitFn
	store.CommitFn = func(ctx context.Context, id string, update Update[testResult]) (bool, error) {
		if update.Status != nil && *update.Status == StatusCompleted {
			return false, errors.New("write timeout")
		}
		return defaultCommit(ctx, id, update)
	}
	tracker := NewTracker()
	hooks := &hookRecorder{}
	seedJob(t, store, tracker, "job-1")

	execute := func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
		return testResult{URL: "lost"}, nil
	}

	executor := NewQueuedExecutor(store, tracker, hooks.executorConfig(execute), hooks.callbacks(), newTestLogger())
	err := executor.Run(context.Background(), "job-1", testInput{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, []Status{StatusQueued, StatusProcessing, StatusFailed}, store.StatusHistory("job-1"))

	calls, jobs, _ := hooks.snapshot()
	assert.Equal(t, []string{"on_error", "on_job_error"}, calls)
	assert.Contains(t, jobs[0].Error, "write timeout")
}

func TestQueuedExecutor_ProcessingWriteFailure(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	store.CommitFn = func(ctx context.Context, id string, update Update[testResult]) (bool, error) {
		return false, errors.New("connection refused")
	}
	tracker := NewTracker()
	hooks := &hookRecorder{}
	seedJob(t, store, tracker, "job-1")

	var executed atomic.Bool
	execute := func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
		executed.Store(true)
		return testResult{}, nil
	}

	executor := NewQueuedExecutor(store, tracker, hooks.executorConfig(execute), hooks.callbacks(), newTestLogger())
	err := executor.Run(context.Background(), "job-1", testInput{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.False(t, executed.Load())
	job, exists := store.GetJob("job-1")
	require.True(t, exists, "record stays queued for recovery")
	assert.Equal(t, StatusQueued, job.Status)
	calls, _, _ := hooks.snapshot()
	assert.Empty(t, calls)
	assert.Equal(t, 0, tracker.Size())
	assert.Equal(t, int32(1), hooks.drains.Load())
}

func TestQueuedExecutor_MissingRecordSkipsHooks(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	tracker := NewTracker()
	hooks := &hookRecorder{}
	seedJob(t, store, tracker, "job-1")

	execute := func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
		store.RemoveJob("job-1")
		onProgress(80)
		return testResult{URL: "late"}, nil
	}

	executor := NewQueuedExecutor(store, tracker, hooks.executorConfig(execute), hooks.callbacks(), newTestLogger())
	require.NoError(t, executor.Run(context.Background(), "job-1", testInput{}))

	calls, _, _ := hooks.snapshot()
	assert.Empty(t, calls)
	_, exists := store.GetJob("job-1")
	assert.False(t, exists, "late completion must not re-insert the job")
}

func TestQueuedExecutor_HookPanicDoesNotBreakCleanup(t *testing.T) {
	t.Parallel()

	store := NewMockStore[testInput, testResult]()
	tracker := NewTracker()
	seedJob(t, store, tracker, "job-1")

	var drains atomic.Int32
	config := ExecutorConfig[testInput, testResult]{
		Execute: func(ctx context.Context, in testInput, onProgress ProgressFunc) (testResult, error) {
			return testResult{}, nil
		},
		OnComplete: func(job Job[testInput, testResult]) { panic("hook bug") },
	}
	callbacks := Callbacks[testInput, testResult]{OnAllComplete: func() { drains.Add(1) }}

	executor := NewQueuedExecutor(store, tracker, config, callbacks, newTestLogger())
	require.NoError(t, executor.Run(context.Background(), "job-1", testInput{}))

	assert.Equal(t, []Status{StatusQueued, StatusProcessing, StatusCompleted}, store.StatusHistory("job-1"))
	_, exists := store.GetJob("job-1")
	assert.False(t, exists)
	assert.Equal(t, int32(1), drains.Load())
}
