package job

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// DirectResult is the outcome of a direct execution. Errors are always
// reported as messages, never returned.
type DirectResult[Out any] struct {
	Success bool   `json:"success"`
	Result  *Out   `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DirectExecutor runs one job to completion without persistence, exposing a
// busy flag and a progress value for observers.
type DirectExecutor[In, Out any] struct {
	inFlight   atomic.Int32
	progress   atomic.Int32
	onProgress ProgressFunc
	logger     *slog.Logger
}

// NewDirectExecutor creates a DirectExecutor. onProgress may be nil.
func NewDirectExecutor[In, Out any](onProgress ProgressFunc, logger *slog.Logger) *DirectExecutor[In, Out] {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectExecutor[In, Out]{
		onProgress: onProgress,
		logger:     logger.With("component", "direct_executor"),
	}
}

// Execute runs execute with input and waits for it. The busy flag is set for
// the duration of the call and released as the very last step on every path.
func (d *DirectExecutor[In, Out]) Execute(
	ctx context.Context,
	input In,
	execute ExecuteFunc[In, Out],
) DirectResult[Out] {
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	d.progress.Store(0)

	result, err := runTask(ctx, execute, input, func(p int) {
		d.progress.Store(int32(clampProgress(p)))
		if d.onProgress != nil {
			d.onProgress(p)
		}
	})
	if err != nil {
		d.logger.WarnContext(ctx, "direct execution failed", "error", err)
		return DirectResult[Out]{Success: false, Error: errorMessage(err)}
	}

	d.progress.Store(ProgressComplete)
	return DirectResult[Out]{Success: true, Result: &result}
}

// IsProcessing reports whether a direct execution is in flight.
func (d *DirectExecutor[In, Out]) IsProcessing() bool {
	return d.inFlight.Load() > 0
}

// Progress returns the last progress reported by a direct execution.
func (d *DirectExecutor[In, Out]) Progress() int {
	return int(d.progress.Load())
}

// runTask invokes execute, converting a panic into an error.
func runTask[In, Out any](
	ctx context.Context,
	execute ExecuteFunc[In, Out],
	input In,
	onProgress ProgressFunc,
) (result Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	if execute == nil {
		return result, ErrNilExecute
	}
	return execute(ctx, input, onProgress)
}
