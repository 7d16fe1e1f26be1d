// Package resilience implements the agent's retry and circuit-breaker
// discipline: bounded retries with exponential backoff, and a cumulative
// failure-count threshold that advises callers to skip latency-sensitive
// work rather than itself rejecting calls.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"
)

// Config tunes retry and circuit-breaker behavior. Defaults mirror the
// values named throughout the component design: three retries, a one
// second base delay doubling on each attempt, and a breaker that trips
// after five cumulative failures.
type Config struct {
	MaxRetries              int
	RetryDelay              time.Duration
	ExponentialBackoff      bool
	CircuitBreakerThreshold uint32
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:              3,
		RetryDelay:              time.Second,
		ExponentialBackoff:      true,
		CircuitBreakerThreshold: 5,
	}
}

// State is the shared, reference-counted retry/circuit-breaker container a
// supervisor constructs once and hands to every component that needs it.
// failureCount is the only mutable field and is atomic so State requires no
// mutex for its hot path.
type State struct {
	cfg          Config
	logger       *slog.Logger
	failureCount atomic.Uint32
}

// NewState constructs a retry/circuit-breaker state with the given config.
// A zero-value Config is replaced with DefaultConfig.
func NewState(cfg Config, logger *slog.Logger) *State {
	if cfg.MaxRetries == 0 && cfg.RetryDelay == 0 && cfg.CircuitBreakerThreshold == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &State{cfg: cfg, logger: logger}
}

// IsCircuitOpen reports whether the cumulative failure count has reached
// the configured threshold. Callers consult this before starting
// latency-sensitive work; the breaker never rejects calls on its own.
func (s *State) IsCircuitOpen() bool {
	return s.failureCount.Load() >= s.cfg.CircuitBreakerThreshold
}

// ResetCircuit clears the failure count explicitly, independent of any
// retry outcome.
func (s *State) ResetCircuit() {
	s.failureCount.Store(0)
}

// FailureCount returns the current cumulative failure count, chiefly for
// tests and metrics.
func (s *State) FailureCount() uint32 {
	return s.failureCount.Load()
}

// ExecuteWithRetry runs op, retrying on failure per the configured policy.
// On success the failure count resets to zero. On exhaustion the last
// error is returned. op is invoked at most cfg.MaxRetries times. The
// delay between attempts is interruptible by ctx cancellation.
func ExecuteWithRetry[T any](ctx context.Context, s *State, op func(context.Context) (T, error)) (T, error) {
	var zero T
	delay := s.cfg.RetryDelay

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			s.failureCount.Store(0)
			return result, nil
		}

		lastErr = err
		s.failureCount.Add(1)

		if attempt >= s.cfg.MaxRetries-1 {
			s.logger.Error("operation failed after all retries",
				"attempts", attempt+1,
				"failure_count", s.failureCount.Load(),
				"error", err,
			)
			break
		}

		s.logger.Warn("operation failed, retrying",
			"attempt", attempt+1,
			"max_retries", s.cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}

		if s.cfg.ExponentialBackoff {
			delay *= 2
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w", s.cfg.MaxRetries, lastErr)
}

// ExecuteWithRetryErr is ExecuteWithRetry for operations with no
// result value.
func ExecuteWithRetryErr(ctx context.Context, s *State, op func(context.Context) error) error {
	_, err := ExecuteWithRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// jitter returns d plus up to 10% random jitter, for sleeps outside the
// retry loop itself, such as the control-plane loop's 30s circuit
// cool-off.
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Float64()*0.1*float64(d))
}

// Jitter is jitter exported for the control-plane cool-off window.
func Jitter(d time.Duration) time.Duration {
	return jitter(d)
}
