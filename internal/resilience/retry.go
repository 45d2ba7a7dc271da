package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts int // Retries after the first call (0 = no retries)
	Backoff     Backoff
	// Retryable decides whether err is worth another attempt. Nil retries nothing.
	Retryable func(err error) bool
}

// RetryableError carries a server-mandated wait.
type RetryableError interface {
	error
	RetryDelay() time.Duration
}

// ErrRetriesExhausted wraps the last error once every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Retry executes fn until it succeeds, returns a non-retryable error, or the
// attempts run out.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if cfg.Retryable == nil || !cfg.Retryable(err) {
			return zero, err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		wait := cfg.Backoff.Delay(attempt + 1)
		var re RetryableError
		if errors.As(err, &re) && re.RetryDelay() > 0 {
			wait = re.RetryDelay()
		}

		if !Sleep(ctx, nil, wait) {
			return zero, ctx.Err()
		}
	}

	return zero, errors.Join(ErrRetriesExhausted, lastErr)
}
