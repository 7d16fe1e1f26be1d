package controlplane

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/agenterr"
	"github.com/vitaliisemenov/hostagent/internal/resilience"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

// coolOff is the base sleep the loop takes when the circuit is open;
// tick adds up to 10% random jitter to it.
const coolOff = 30 * time.Second

// Config tunes the steady-state loop.
type Config struct {
	PollInterval          time.Duration
	MaxConcurrentCommands int
}

// Loop is the control-plane steady-state worker: on start it
// registers through the retry state; every tick it polls for
// commands, dispatches them (optionally concurrently, bounded by
// MaxConcurrentCommands), and reports results, then heartbeats.
type Loop struct {
	client     *Client
	dispatcher *Dispatcher
	retry      *resilience.State
	cfg        Config
	logger     *slog.Logger

	pollInterval atomic.Int64 // nanoseconds; hot-reloadable independent of cfg

	mu   sync.Mutex
	info types.AgentInfo
}

func NewLoop(client *Client, dispatcher *Dispatcher, retry *resilience.State, cfg Config, info types.AgentInfo, logger *slog.Logger) *Loop {
	if cfg.MaxConcurrentCommands <= 0 {
		cfg.MaxConcurrentCommands = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{client: client, dispatcher: dispatcher, retry: retry, cfg: cfg, info: info, logger: logger}
	l.pollInterval.Store(int64(cfg.PollInterval))
	return l
}

// SetPollInterval changes the poll/dispatch/heartbeat cadence, taking
// effect from the next tick onward. Used by the supervisor's SIGHUP
// reload, which treats pollIntervalSeconds as safe to hot-swap.
func (l *Loop) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	l.pollInterval.Store(int64(d))
}

// AgentInfo returns a snapshot of the current identity record,
// including the last successful heartbeat timestamp.
func (l *Loop) AgentInfo() types.AgentInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

// Run registers and then runs the steady-state poll/dispatch/heartbeat
// loop until ctx is cancelled. A registration failure that exhausts
// the retry budget is returned to the caller (the supervisor), which
// waits and restarts the loop.
func (l *Loop) Run(ctx context.Context) error {
	if err := resilience.ExecuteWithRetryErr(ctx, l.retry, func(ctx context.Context) error {
		return l.client.Register(ctx, l.AgentInfo())
	}); err != nil {
		return agenterr.Wrap(agenterr.KindControlPlane, "registration failed after all retries", err)
	}

	timer := time.NewTimer(time.Duration(l.pollInterval.Load()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			l.tick(ctx)
			timer.Reset(time.Duration(l.pollInterval.Load()))
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	if l.retry.IsCircuitOpen() {
		wait := resilience.Jitter(coolOff)
		l.logger.Warn("circuit open, skipping tick and cooling off", "cool_off", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
		return
	}

	l.poll(ctx)
	l.heartbeat(ctx)
}

func (l *Loop) poll(ctx context.Context) {
	agentID := l.AgentInfo().ID

	commands, err := resilience.ExecuteWithRetry(ctx, l.retry, func(ctx context.Context) ([]types.Command, error) {
		return l.client.PollCommands(ctx, agentID)
	})
	if err != nil {
		l.logger.Error("poll failed", "error", err)
		return
	}
	if len(commands) == 0 {
		return
	}

	results := l.dispatchAll(ctx, commands)
	for _, result := range results {
		if err := resilience.ExecuteWithRetryErr(ctx, l.retry, func(ctx context.Context) error {
			return l.client.PostResult(ctx, result)
		}); err != nil {
			l.logger.Error("failed to report command result", "command_id", result.CommandID, "error", err)
		}
	}
}

// dispatchAll runs every command through the dispatcher with at most
// MaxConcurrentCommands in flight concurrently, then returns results
// indexed by each command's position in the input slice. poll posts
// every result in that same order once the whole batch completes, so
// concurrent dispatch never reorders distinct commands' reports.
func (l *Loop) dispatchAll(ctx context.Context, commands []types.Command) []types.CommandResult {
	results := make([]types.CommandResult, len(commands))
	sem := make(chan struct{}, l.cfg.MaxConcurrentCommands)
	var wg sync.WaitGroup

	for i, cmd := range commands {
		i, cmd := i, cmd
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = l.dispatcher.Dispatch(ctx, cmd)
		}()
	}
	wg.Wait()

	return results
}

func (l *Loop) heartbeat(ctx context.Context) {
	info := l.AgentInfo()
	err := resilience.ExecuteWithRetryErr(ctx, l.retry, func(ctx context.Context) error {
		return l.client.Heartbeat(ctx, info)
	})
	if err != nil {
		l.logger.Error("heartbeat failed", "error", err)
		return
	}

	l.mu.Lock()
	l.info.LastHeartbeatAt = time.Now()
	l.mu.Unlock()
}
