package engine

import (
	"context"
	"time"
)

// RetryPolicy bounds the retry behavior for storage reads that can fail on
// transient connectivity problems. It applies only to the bulk filtered
// listing; all other reads and every write fail immediately. That asymmetry
// keeps the write paths simple and is deliberate.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the fixed pause between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy returns the stock policy: 5 attempts with a fixed
// 5-second delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Delay:       5 * time.Second,
	}
}

// Do runs op until it succeeds or the attempt ceiling is reached. onRetry,
// if non-nil, is called after every failed attempt. After the final failure
// the last error is wrapped in a retry-exhausted error. The delay honors
// context cancellation.
func (p RetryPolicy) Do(ctx context.Context, op func() error, onRetry func(attempt int, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if onRetry != nil {
			onRetry(attempt, lastErr)
		}
		if attempt >= attempts {
			return NewRetryExhaustedError("too many retries for database connections", lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
}
