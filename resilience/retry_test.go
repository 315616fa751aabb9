package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetguard/governor/core"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryEventualSuccess(t *testing.T) {
	attempts := 0
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2, JitterEnabled: false}
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2, JitterEnabled: false}
	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Equal(t, 2, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}
	err := Retry(ctx, cfg, func() error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithCircuitBreakerShortCircuits(t *testing.T) {
	cb := newTestBreaker()
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return boom })
	}
	require.Equal(t, "open", cb.GetState())

	calls := 0
	cfg := &RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
	err := RetryWithCircuitBreaker(context.Background(), cfg, cb, func() error {
		calls++
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, 0, calls)
}
