package generation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/genqueue/internal/job"
)

// Progress checkpoints reported by the generation task.
const (
	ProgressSubmitted = 25
	ProgressCeiling   = 90
	ProgressReceived  = 95
	progressStep      = 5
)

// TaskConfig tunes the generation task.
type TaskConfig struct {
	// Timeout bounds a single Generate call including retries. Zero disables it.
	Timeout time.Duration
	// ProgressInterval is how often progress advances while the provider call
	// is outstanding.
	ProgressInterval time.Duration
}

// DefaultTaskConfig returns the settings used by the server.
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{
		Timeout:          2 * time.Minute,
		ProgressInterval: 2 * time.Second,
	}
}

// NewExecuteFunc adapts gen into the function run by the job queue. The
// returned function validates the request, renders the prompt and reports
// ProgressSubmitted, then advances progress every ProgressInterval up to
// ProgressCeiling while waiting, and reports ProgressReceived once the provider
// answers successfully.
func NewExecuteFunc(
	gen Generator,
	prompts *PromptBuilder,
	cfg TaskConfig,
	logger *slog.Logger,
) job.ExecuteFunc[Request, Result] {
	logger = logger.With(slog.String("component", "generation_task"))
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultTaskConfig().ProgressInterval
	}

	return func(ctx context.Context, req Request, onProgress job.ProgressFunc) (Result, error) {
		if err := req.Validate(); err != nil {
			return Result{}, err
		}
		prompt, err := prompts.Build(req)
		if err != nil {
			return Result{}, err
		}

		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		onProgress(ProgressSubmitted)
		stop := tickProgress(cfg.ProgressInterval, onProgress)
		result, err := gen.Generate(ctx, prompt)
		stop()
		if err != nil {
			logger.ErrorContext(ctx, "generation failed", "error", err)
			return Result{}, err
		}

		onProgress(ProgressReceived)
		logger.DebugContext(ctx, "generation finished",
			"model", result.Model,
			"text_length", len(result.Text),
			"images", len(result.Images))
		return result, nil
	}
}

// tickProgress advances progress from ProgressSubmitted towards
// ProgressCeiling until the returned stop function is called. No report is
// made after stop returns.
func tickProgress(interval time.Duration, onProgress job.ProgressFunc) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		progress := ProgressSubmitted
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if progress >= ProgressCeiling {
					continue
				}
				progress = min(progress+progressStep, ProgressCeiling)
				onProgress(progress)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
