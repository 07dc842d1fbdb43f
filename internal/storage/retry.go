package storage

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy retries an operation with exponential backoff and jitter
type RetryPolicy struct {
	// MaxAttempts counts the first try; values below 1 mean a single attempt
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter float64

	// OnRetry is called before each attempt after the first
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy makes three attempts
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// Do calls fn until it succeeds, the attempts run out or ctx is done.
// ErrNotFound is not retried. An attempt that ends with a context error is
// retried as long as ctx itself is still live, so a per-attempt timeout set
// inside fn counts as one failed attempt.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr)
			}
			timer := time.NewTimer(p.backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrNotFound) {
			return lastErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return lastErr
}

func (p RetryPolicy) backoff(retry int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	backoff := float64(p.InitialBackoff) * math.Pow(mult, float64(retry-1))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		backoff += backoff * p.Jitter * (rand.Float64()*2 - 1)
	}
	if backoff < 0 {
		return 0
	}
	return time.Duration(backoff)
}
