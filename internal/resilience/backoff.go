package resilience

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Backoff computes capped exponential delays with positive jitter.
type Backoff struct {
	Initial time.Duration // Delay for the first attempt
	Max     time.Duration // Upper bound before jitter
	Factor  float64       // Multiplier per attempt (values <= 1 are treated as 2)
	Jitter  float64       // Fraction of the delay added at random (0.0-1.0)
}

// DefaultBackoff returns the delays used between failed poll cycles:
// 1s, 2s, 4s ... capped at 60s, plus up to 25% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial: time.Second,
		Max:     60 * time.Second,
		Factor:  2.0,
		Jitter:  0.25,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2
	}

	delay := float64(b.Initial) * math.Pow(factor, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		jitterRange := int64(delay * b.Jitter)
		if jitterRange > 0 {
			n, err := rand.Int(rand.Reader, big.NewInt(jitterRange))
			if err == nil {
				delay += float64(n.Int64())
			}
		}
	}

	return time.Duration(delay)
}

// Sleep waits for d or until ctx or stop is done. It reports whether the
// full duration elapsed.
func Sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-stop:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
