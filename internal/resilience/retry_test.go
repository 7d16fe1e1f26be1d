package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxRetries:              3,
		RetryDelay:              time.Millisecond,
		ExponentialBackoff:      true,
		CircuitBreakerThreshold: 3,
	}
}

func TestExecuteWithRetry_SucceedsOnFirstAttempt(t *testing.T) {
	s := NewState(fastConfig(), nil)
	calls := 0

	result, err := ExecuteWithRetry(context.Background(), s, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint32(0), s.FailureCount())
}

func TestExecuteWithRetry_RetriesAtMostMaxRetries(t *testing.T) {
	s := NewState(fastConfig(), nil)
	calls := 0
	sentinel := errors.New("boom")

	_, err := ExecuteWithRetry(context.Background(), s, func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, fastConfig().MaxRetries, calls)
}

func TestExecuteWithRetry_ResetsFailureCountOnSuccess(t *testing.T) {
	s := NewState(fastConfig(), nil)
	attempt := 0

	_, err := ExecuteWithRetry(context.Background(), s, func(context.Context) (int, error) {
		attempt++
		if attempt < 2 {
			return 0, errors.New("transient")
		}
		return 1, nil
	})

	require.NoError(t, err)
	assert.Equal(t, uint32(0), s.FailureCount())
}

func TestIsCircuitOpen(t *testing.T) {
	s := NewState(fastConfig(), nil)

	_, _ = ExecuteWithRetry(context.Background(), s, func(context.Context) (int, error) {
		return 0, errors.New("fail")
	})
	assert.True(t, s.IsCircuitOpen(), "failure count should have reached threshold")

	_, err := ExecuteWithRetry(context.Background(), s, func(context.Context) (int, error) {
		return 0, nil
	})
	require.NoError(t, err)
	assert.False(t, s.IsCircuitOpen(), "a single success inside ExecuteWithRetry resets the circuit")
}

func TestExecuteWithRetry_RespectsContextCancellation(t *testing.T) {
	s := NewState(Config{MaxRetries: 5, RetryDelay: time.Second, ExponentialBackoff: false, CircuitBreakerThreshold: 10}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := ExecuteWithRetry(ctx, s, func(context.Context) (int, error) {
		return 0, errors.New("always fails")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation should interrupt the retry sleep")
}

func TestResetCircuit(t *testing.T) {
	s := NewState(fastConfig(), nil)
	_, _ = ExecuteWithRetry(context.Background(), s, func(context.Context) (int, error) {
		return 0, errors.New("fail")
	})
	require.True(t, s.IsCircuitOpen())

	s.ResetCircuit()
	assert.False(t, s.IsCircuitOpen())
}
