// Package retry provides a generic exponential-backoff retry loop: a
// failed operation is retried up to a configured attempt budget before
// the failure is reported. The scheduler does not use it; it runs its own
// per-item attempt loop.
package retry

import (
	"context"
	"time"
)

// Config controls backoff behavior for a retried operation.
type Config struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiply float64
}

// Default provides sensible defaults for retrying an attempt.
var Default = Config{
	MaxAttempts:     3,
	InitialBackoff:  1 * time.Second,
	MaxBackoff:      30 * time.Second,
	BackoffMultiply: 2.0,
}

// Result reports the outcome of a retried operation.
type Result struct {
	Success  bool
	Attempts int
	LastErr  error
}

// WithBackoff retries operation with exponential backoff up to
// cfg.MaxAttempts, stopping early on ctx cancellation. It retries on any
// error — callers that only want some errors retried (e.g. not a "stuck"
// classification, not a validation failure) should filter those out
// before calling WithBackoff, or not invoke it for non-retryable outcomes.
func WithBackoff(ctx context.Context, cfg Config, operation func(ctx context.Context, attempt int) error) Result {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := operation(ctx, attempt)
		if err == nil {
			return Result{Success: true, Attempts: attempt}
		}

		lastErr = err

		if attempt < cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return Result{Success: false, Attempts: attempt, LastErr: ctx.Err()}
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffMultiply)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	return Result{Success: false, Attempts: cfg.MaxAttempts, LastErr: lastErr}
}
