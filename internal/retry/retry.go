// internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy is the explicit retry contract for one call site.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first. Values < 1 mean 1.
	MaxAttempts int

	// Delay is the fixed sleep between attempts when Backoff is nil.
	Delay time.Duration

	// Backoff returns the sleep before attempt n (n >= 1). Overrides Delay.
	Backoff func(attempt int) time.Duration

	// Retryable reports whether err is transient. nil means nothing is retried.
	Retryable func(err error) bool

	// OnRetry is called before each sleep. Optional.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Exponential returns base^attempt seconds, matching the device reconnect schedule (2, 4, 8, ...).
// Do never asks for attempt 0, so the 1s base^0 wait is skipped.
func Exponential(base float64) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(base, float64(attempt)) * float64(time.Second))
	}
}

// IsAny builds a Retryable predicate from sentinel errors.
func IsAny(kinds ...error) func(error) bool {
	return func(err error) bool {
		for _, k := range kinds {
			if errors.Is(err, k) {
				return true
			}
		}
		return false
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts are used up. Sleeps are cut short by ctx.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var last error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := p.wait(attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt, last, wait)
			}
			if err := Sleep(ctx, wait); err != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, last)
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		last = err

		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func (p Policy) wait(attempt int) time.Duration {
	if p.Backoff != nil {
		return p.Backoff(attempt)
	}
	return p.Delay
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
