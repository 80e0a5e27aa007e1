package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecute(t *testing.T, gen Generator, cfg TaskConfig) func(context.Context, Request, func(int)) (Result, error) {
	t.Helper()
	prompts, err := NewPromptBuilder("")
	require.NoError(t, err)
	execute := NewExecuteFunc(gen, prompts, cfg, discardLogger())
	return func(ctx context.Context, req Request, onProgress func(int)) (Result, error) {
		return execute(ctx, req, onProgress)
	}
}

func TestExecuteFuncSuccess(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{GenerateFn: func(ctx context.Context, prompt string) (Result, error) {
		return Result{Text: "a red fox", Model: "test-model"}, nil
	}}
	execute := newTestExecute(t, gen, TaskConfig{ProgressInterval: time.Hour})

	var progress progressLog
	result, err := execute(context.Background(), Request{Prompt: "draw a fox", Style: "watercolor"}, progress.report)

	require.NoError(t, err)
	assert.Equal(t, "a red fox", result.Text)
	assert.Equal(t, "test-model", result.Model)
	assert.Equal(t, []int{ProgressSubmitted, ProgressReceived}, progress.Values())
	require.Len(t, gen.Prompts(), 1)
	assert.Contains(t, gen.Prompts()[0], "watercolor")
	assert.Contains(t, gen.Prompts()[0], "draw a fox")
}

func TestExecuteFuncTicksWhileWaiting(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	gen := &fakeGenerator{GenerateFn: func(ctx context.Context, prompt string) (Result, error) {
		<-release
		return Result{Text: "done"}, nil
	}}
	execute := newTestExecute(t, gen, TaskConfig{ProgressInterval: time.Millisecond})

	var progress progressLog
	errCh := make(chan error, 1)
	go func() {
		_, err := execute(context.Background(), Request{Prompt: "slow prompt"}, progress.report)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		values := progress.Values()
		return len(values) > 0 && values[len(values)-1] == ProgressCeiling
	}, 2*time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-errCh)

	values := progress.Values()
	assert.Equal(t, ProgressSubmitted, values[0])
	assert.Equal(t, ProgressReceived, values[len(values)-1])
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress must not go backwards")
	}
	for _, v := range values[:len(values)-1] {
		assert.LessOrEqual(t, v, ProgressCeiling)
	}
}

func TestExecuteFuncProviderError(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{GenerateFn: func(ctx context.Context, prompt string) (Result, error) {
		return Result{}, ErrContentBlocked
	}}
	execute := newTestExecute(t, gen, TaskConfig{ProgressInterval: time.Hour})

	var progress progressLog
	_, err := execute(context.Background(), Request{Prompt: "blocked prompt"}, progress.report)

	require.ErrorIs(t, err, ErrContentBlocked)
	assert.Equal(t, []int{ProgressSubmitted}, progress.Values())
}

func TestExecuteFuncInvalidRequest(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{GenerateFn: func(ctx context.Context, prompt string) (Result, error) {
		t.Fatal("generator must not be called for an invalid request")
		return Result{}, nil
	}}
	execute := newTestExecute(t, gen, DefaultTaskConfig())

	var progress progressLog
	_, err := execute(context.Background(), Request{Prompt: ""}, progress.report)

	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, progress.Values())
}

func TestExecuteFuncTimeout(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{GenerateFn: func(ctx context.Context, prompt string) (Result, error) {
		<-ctx.Done()
		return Result{}, errors.Join(ErrTransientFailure, ctx.Err())
	}}
	execute := newTestExecute(t, gen, TaskConfig{Timeout: 10 * time.Millisecond, ProgressInterval: time.Hour})

	_, err := execute(context.Background(), Request{Prompt: "never answers"}, func(int) {})

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTickProgressStops(t *testing.T) {
	t.Parallel()

	var progress progressLog
	stop := tickProgress(time.Millisecond, progress.report)
	require.Eventually(t, func() bool { return len(progress.Values()) >= 2 }, time.Second, time.Millisecond)
	stop()
	stop()

	seen := len(progress.Values())
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, progress.Values(), seen)
}
