package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prilive-com/tgwire/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTemporary = errors.New("temporary")

type delayedErr struct{ d time.Duration }

func (e delayedErr) Error() string             { return "slow down" }
func (e delayedErr) RetryDelay() time.Duration { return e.d }

func retryCfg(max int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: max,
		Backoff:     resilience.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2},
		Retryable:   func(err error) bool { return !errors.Is(err, context.Canceled) },
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := resilience.Retry(context.Background(), retryCfg(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTemporary
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetry_Exhausted(t *testing.T) {
	calls := 0
	_, err := resilience.Retry(context.Background(), retryCfg(2), func(context.Context) (int, error) {
		calls++
		return 0, errTemporary
	})

	assert.ErrorIs(t, err, resilience.ErrRetriesExhausted)
	assert.ErrorIs(t, err, errTemporary)
	assert.Equal(t, 3, calls)
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	cfg := retryCfg(5)
	cfg.Retryable = func(error) bool { return false }

	calls := 0
	_, err := resilience.Retry(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, errTemporary
	})

	assert.Equal(t, errTemporary, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_HonoursRetryDelay(t *testing.T) {
	start := time.Now()
	calls := 0
	_, err := resilience.Retry(context.Background(), retryCfg(1), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, delayedErr{d: 30 * time.Millisecond}
		}
		return 1, nil
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, err := resilience.Retry(ctx, retryCfg(5), func(context.Context) (int, error) {
		cancel()
		return 0, errTemporary
	})

	assert.ErrorIs(t, err, context.Canceled)
}
