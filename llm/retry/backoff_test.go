package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weftflow/weft/types"
)

func transientErr() error {
	return types.NewError(types.ErrUpstreamError, "backend 502").WithRetryable(true)
}

func TestBackoffRetryer_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	r := NewBackoffRetryer(nil, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()
	policy := &Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
	r := NewBackoffRetryer(policy, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return transientErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()
	policy := &Policy{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2.0}
	r := NewBackoffRetryer(policy, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return types.NewError(types.ErrUnauthorized, "bad key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestBackoffRetryer_ExhaustsBudget(t *testing.T) {
	t.Parallel()
	policy := &Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2.0}
	r := NewBackoffRetryer(policy, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return transientErr()
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
	assert.Contains(t, err.Error(), "failed after 2 retries")

	var te *types.Error
	assert.True(t, errors.As(err, &te))
}

func TestBackoffRetryer_ContextCanceledDuringDelay(t *testing.T) {
	t.Parallel()
	policy := &Policy{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2.0}
	r := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error { return transientErr() })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_BackoffSchedule(t *testing.T) {
	t.Parallel()
	p := &Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(10)) // capped
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	t.Parallel()
	var attempts []int
	policy := &Policy{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2.0,
		OnRetry:      func(attempt int, err error, delay time.Duration) { attempts = append(attempts, attempt) },
	}
	r := NewBackoffRetryer(policy, zap.NewNop())

	_ = r.Do(context.Background(), func() error { return transientErr() })
	assert.Equal(t, []int{1, 2}, attempts)
}
