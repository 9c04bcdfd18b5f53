package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func TestDo_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	var waits []time.Duration

	p := Policy{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		Retryable:   IsAny(errTransient),
		OnRetry:     func(_ int, _ error, w time.Duration) { waits = append(waits, w) },
	}

	v, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, waits)
}

func TestDo_NonTransientPropagatesImmediately(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 5, Delay: time.Millisecond, Retryable: IsAny(errTransient)}

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errFatal
	})
	assert.ErrorIs(t, err, errFatal)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedKeepsLastError(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, Retryable: IsAny(errTransient)}

	err := Run(context.Background(), p, func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelStopsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		MaxAttempts: 3,
		Delay:       time.Hour,
		Retryable:   IsAny(errTransient),
		OnRetry:     func(int, error, time.Duration) { cancel() },
	}

	start := time.Now()
	err := Run(ctx, p, func(context.Context) error { return errTransient })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExponential(t *testing.T) {
	b := Exponential(2.0)
	assert.Equal(t, time.Second, b(0))
	assert.Equal(t, 2*time.Second, b(1))
	assert.Equal(t, 8*time.Second, b(3))
}
