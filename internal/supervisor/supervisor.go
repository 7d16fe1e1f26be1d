// Package supervisor composes every other package into the running
// agent process: construction order, background tickers, and
// graceful shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/hostagent/internal/audit"
	"github.com/vitaliisemenov/hostagent/internal/config"
	"github.com/vitaliisemenov/hostagent/internal/controlplane"
	"github.com/vitaliisemenov/hostagent/internal/dataplane"
	"github.com/vitaliisemenov/hostagent/internal/healthchecker"
	"github.com/vitaliisemenov/hostagent/internal/introspection"
	"github.com/vitaliisemenov/hostagent/internal/metricsregistry"
	"github.com/vitaliisemenov/hostagent/internal/platform"
	"github.com/vitaliisemenov/hostagent/internal/resilience"
	"github.com/vitaliisemenov/hostagent/internal/security"
	"github.com/vitaliisemenov/hostagent/internal/transport"
	"github.com/vitaliisemenov/hostagent/internal/types"
	"github.com/vitaliisemenov/hostagent/pkg/logger"
)

const (
	systemMetricsInterval  = 30 * time.Second
	selfMetricsInterval    = 60 * time.Second
	healthSweepInterval    = 60 * time.Second
	metricEvictionInterval = time.Hour
	metricMaxAge           = time.Hour
	shutdownDrainGrace     = 15 * time.Second

	diskUsageThreshold   = 85.0
	memoryUsageThreshold = 90.0
)

// Supervisor owns every long-lived subsystem and the order in which
// they start and stop. Built once per process from a loaded Config.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger
	level  *slog.LevelVar

	auditLogger *audit.Logger
	validator   *security.Validator
	registry    *metricsregistry.Registry
	checker     *healthchecker.Checker
	retry       *resilience.State

	pipeline      *dataplane.Pipeline
	loop          *controlplane.Loop
	introspection *introspection.Server

	mu   sync.Mutex
	info types.AgentInfo

	wg sync.WaitGroup
}

// New constructs a Supervisor from cfg: it builds C1-C7 and wires
// them together but starts nothing. level, if non-nil, is the
// slog.LevelVar backing logger's handler, letting SIGHUP change
// verbosity in place; it may be nil for a logger whose level is
// fixed.
func New(cfg *config.Config, log *slog.Logger, level *slog.LevelVar) *Supervisor {
	if log == nil {
		log = slog.Default()
	}

	auditLogger := audit.New(cfg.Logging)

	validator := security.New(security.Config{
		AllowedCommands:        toSet(cfg.Security.AllowedCommands),
		AllowedPaths:           cfg.Security.AllowedPaths,
		MaxFileSize:            cfg.Security.MaxFileSizeBytes,
		EnableCommandAllowlist: cfg.Security.EnableCommandAllowlist,
		EnablePathRestriction:  cfg.Security.EnablePathRestriction,
	}, log, auditLogger)

	registry := metricsregistry.New()
	checker := healthchecker.New(cfg.Agent.Version, 5*time.Second)

	retry := resilience.NewState(resilience.Config{
		MaxRetries:              cfg.ControlPlane.MaxRetries,
		RetryDelay:              time.Duration(cfg.ControlPlane.RetryDelayMs) * time.Millisecond,
		ExponentialBackoff:      cfg.ControlPlane.ExponentialBackoff,
		CircuitBreakerThreshold: cfg.ControlPlane.CircuitBreakerThresh,
	}, log)

	s := &Supervisor{
		cfg:         cfg,
		logger:      log,
		level:       level,
		auditLogger: auditLogger,
		validator:   validator,
		registry:    registry,
		checker:     checker,
		retry:       retry,
		info:        buildAgentInfo(cfg),
	}

	s.registerBuiltinChecks()

	if cfg.DataPlane.Enabled {
		s.pipeline = dataplane.New(cfg.DataPlane, registry, log)
	}

	if cfg.ControlPlane.Enabled {
		httpClient := transport.NewClient(30 * time.Second)
		client := controlplane.NewClient(cfg.ControlPlane.ServerURL, cfg.ControlPlane.APIKey, httpClient)
		dispatcher := controlplane.NewDispatcher(validator, log)
		loopCfg := controlplane.Config{
			PollInterval:          time.Duration(cfg.ControlPlane.PollIntervalSeconds) * time.Second,
			MaxConcurrentCommands: cfg.ControlPlane.MaxConcurrentCommands,
		}
		s.loop = controlplane.NewLoop(client, dispatcher, retry, loopCfg, s.info, log)
	}

	if cfg.Agent.HTTPEnabled {
		introCfg := introspection.DefaultConfig()
		introCfg.Addr = fmt.Sprintf("0.0.0.0:%d", cfg.Agent.HTTPPort)
		s.introspection = introspection.New(introCfg, checker, registry, s.AgentInfo, log)
	}

	return s
}

func (s *Supervisor) registerBuiltinChecks() {
	s.checker.Register(&healthchecker.DiskUsage{
		Path:      platform.DiskPath,
		Threshold: diskUsageThreshold,
		Probe: func(ctx context.Context) (float64, error) {
			usage, err := platform.Probe(ctx)
			if err != nil {
				return 0, err
			}
			return usage.DiskPercent, nil
		},
	})

	s.checker.Register(&healthchecker.MemoryUsage{
		Threshold: memoryUsageThreshold,
		Probe: func(ctx context.Context) (float64, error) {
			usage, err := platform.Probe(ctx)
			if err != nil {
				return 0, err
			}
			return usage.MemPercent, nil
		},
	})

	if s.cfg.ControlPlane.Enabled {
		httpClient := transport.NewClient(5 * time.Second)
		s.checker.Register(healthchecker.NewControlPlaneReachability(s.cfg.ControlPlane.ServerURL, httpClient))
	}
}

// AgentInfo returns the current identity snapshot, delegating to the
// control-plane loop (which tracks LastHeartbeatAt) when one runs.
func (s *Supervisor) AgentInfo() types.AgentInfo {
	if s.loop != nil {
		return s.loop.AgentInfo()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Run starts every configured subsystem, blocks until ctx is
// cancelled, then drains work within a bounded grace window before
// returning. A nil error means a clean, intentional shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.introspection != nil {
		s.introspection.Start()
	}

	s.startTickers(ctx)

	if s.pipeline != nil {
		s.pipeline.Start(ctx)
	}

	if s.loop != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runLoopWithRestart(ctx)
		}()
	}

	<-ctx.Done()
	s.logger.Info("shutdown signal received, draining")
	return s.shutdown()
}

// runLoopWithRestart keeps the control-plane loop alive across
// registration failures: Run only returns an error when its retry
// budget for registration is exhausted, so the supervisor waits and
// tries again rather than treating one bad registration as fatal.
func (s *Supervisor) runLoopWithRestart(ctx context.Context) {
	for {
		if err := s.loop.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("control-plane loop exited, restarting after backoff", "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		return
	}
}

func (s *Supervisor) startTickers(ctx context.Context) {
	start := time.Now()

	s.spawn(ctx, systemMetricsInterval, func(ctx context.Context) {
		usage, err := platform.Probe(ctx)
		if err != nil {
			s.logger.Warn("system metrics probe failed", "error", err)
			return
		}
		s.registry.Record("system_cpu_percent", usage.CPUPercent, nil)
		s.registry.Record("system_memory_percent", usage.MemPercent, nil)
		s.registry.Record("system_disk_percent", usage.DiskPercent, nil)
	})

	s.spawn(ctx, selfMetricsInterval, func(ctx context.Context) {
		s.registry.Record("agent_uptime_seconds", time.Since(start).Seconds(), nil)
		s.registry.Record("agent_goroutines", float64(runtime.NumGoroutine()), nil)
		s.registry.Record("agent_metric_count", float64(s.registry.Count()), nil)
	})

	s.spawn(ctx, healthSweepInterval, func(ctx context.Context) {
		status := s.checker.Status(ctx)
		if status.Overall != types.HealthHealthy {
			s.logger.Warn("health sweep detected non-healthy state", "overall", status.Overall.String())
		}
		s.registry.Record("agent_health_overall", float64(status.Overall), nil)
	})

	s.spawn(ctx, metricEvictionInterval, func(context.Context) {
		s.registry.EvictOlderThan(metricMaxAge)
	})
}

// spawn runs fn on every tick of interval until ctx is cancelled,
// tracked by the supervisor's shutdown WaitGroup so Run can wait for
// every ticker to stop before returning.
func (s *Supervisor) spawn(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (s *Supervisor) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDrainGrace)
	defer cancel()

	if s.introspection != nil {
		if err := s.introspection.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("introspection server shutdown error", "error", err)
		}
	}

	if s.pipeline != nil && !s.pipeline.WaitWithTimeout(shutdownDrainGrace) {
		s.logger.Warn("data-plane pipeline did not drain within grace window")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownDrainGrace):
		s.logger.Warn("background workers did not exit within grace window")
	}

	status := s.checker.Status(context.Background())
	s.logger.Info("shutdown complete", "final_health", status.Overall.String(), "metric_count", s.registry.Count())
	return nil
}

// ApplyReload applies the safe subset of a freshly reloaded Config:
// the security allowlist/path set, the control-plane poll interval,
// and the log level. It returns the names of any changed fields that
// require a full restart to take effect, which it does not apply.
func (s *Supervisor) ApplyReload(newCfg *config.Config) []string {
	var deferred []string

	s.validator.UpdateConfig(security.Config{
		AllowedCommands:        toSet(newCfg.Security.AllowedCommands),
		AllowedPaths:           newCfg.Security.AllowedPaths,
		MaxFileSize:            newCfg.Security.MaxFileSizeBytes,
		EnableCommandAllowlist: newCfg.Security.EnableCommandAllowlist,
		EnablePathRestriction:  newCfg.Security.EnablePathRestriction,
	})

	if s.loop != nil {
		s.loop.SetPollInterval(time.Duration(newCfg.ControlPlane.PollIntervalSeconds) * time.Second)
	}

	if s.level != nil {
		s.level.Set(logger.ParseLevel(newCfg.Logging.Level))
	}

	if newCfg.DataPlane.Enabled != s.cfg.DataPlane.Enabled ||
		len(newCfg.DataPlane.Collectors) != len(s.cfg.DataPlane.Collectors) ||
		len(newCfg.DataPlane.Exporters) != len(s.cfg.DataPlane.Exporters) {
		deferred = append(deferred, "data_plane topology")
	}
	if newCfg.Agent.HTTPPort != s.cfg.Agent.HTTPPort || newCfg.Agent.HTTPEnabled != s.cfg.Agent.HTTPEnabled {
		deferred = append(deferred, "agent.http_port/http_enabled")
	}
	if newCfg.ControlPlane.ServerURL != s.cfg.ControlPlane.ServerURL || newCfg.ControlPlane.Enabled != s.cfg.ControlPlane.Enabled {
		deferred = append(deferred, "control_plane.server_url/enabled")
	}

	s.mu.Lock()
	s.cfg = newCfg
	s.mu.Unlock()

	return deferred
}

func buildAgentInfo(cfg *config.Config) types.AgentInfo {
	id := cfg.Agent.ID
	if id == "" {
		id = uuid.New().String()
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return types.AgentInfo{
		ID:       id,
		Hostname: hostname,
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		Version:  cfg.Agent.Version,
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
