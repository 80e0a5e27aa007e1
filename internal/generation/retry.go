package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls how provider calls are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 2 * time.Second
)

// Retry calls attempt until it succeeds, fails permanently or the retry budget
// is spent. Only errors wrapping ErrTransientFailure are retried. Between
// attempts it waits baseDelay * 2^attempt scaled by a random factor in
// [0.5, 1.0).
func Retry(
	ctx context.Context,
	logger *slog.Logger,
	policy RetryPolicy,
	attempt func(ctx context.Context) (Result, error),
) (Result, error) {
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		logger.WarnContext(ctx, "Invalid max retries value, using default", "max_retries", defaultMaxRetries)
		maxRetries = defaultMaxRetries
	}
	baseDelay := policy.BaseDelay
	if baseDelay <= 0 {
		logger.WarnContext(ctx, "Invalid retry delay value, using default", "base_delay", defaultBaseDelay)
		baseDelay = defaultBaseDelay
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for n := 0; ; n++ {
		result, err := attempt(ctx)
		if err == nil {
			logger.InfoContext(ctx, "Provider call successful", "attempt", n+1)
			return result, nil
		}

		if !errors.Is(err, ErrTransientFailure) {
			logger.WarnContext(ctx, "Permanent error occurred, not retrying",
				"attempt", n+1,
				"error", err)
			return Result{}, err
		}

		if n >= maxRetries {
			logger.WarnContext(ctx, "Maximum retry attempts reached",
				"max_retries", maxRetries,
				"error", err)
			return Result{}, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				ErrTransientFailure, maxRetries, err)
		}

		backoff := float64(baseDelay) * math.Pow(2, float64(n))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))
		logger.InfoContext(ctx, "Retrying after delay",
			"attempt", n+1,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.WarnContext(ctx, "Provider call cancelled during retry delay",
				"attempt", n+1,
				"ctx_err", ctx.Err())
			return Result{}, fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		}
	}
}
