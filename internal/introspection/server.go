// Package introspection serves the agent's read-only HTTP surface:
// health, metrics, identity, and a combined status, plus a Prometheus
// exposition of both the domain metric registry and the server's own
// request metrics.
package introspection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitaliisemenov/hostagent/internal/types"
)

// Config tunes the HTTP server and its rate limiter.
type Config struct {
	Addr                   string
	RateLimitPerSecond     float64
	RateLimitBurst         int
	ReadHeaderTimeout      time.Duration
	ShutdownGraceOnTimeout time.Duration
}

// DefaultConfig returns the documented defaults: bind every interface
// on 8080, 5 req/s burst 10 on the Prometheus routes.
func DefaultConfig() Config {
	return Config{
		Addr:                   "0.0.0.0:8080",
		RateLimitPerSecond:     5,
		RateLimitBurst:         10,
		ReadHeaderTimeout:      5 * time.Second,
		ShutdownGraceOnTimeout: 10 * time.Second,
	}
}

// Server is the introspection HTTP surface. It is entirely read-only:
// it never mutates the registry, checker, or agent identity it is
// given, only renders them.
type Server struct {
	cfg    Config
	http   *http.Server
	logger *slog.Logger
}

// New builds a Server wired to the given health checker, metric
// registry, and agent-identity accessor. agentInfo is a function
// rather than a snapshot because AgentInfo.LastHeartbeatAt changes
// over the process lifetime.
func New(cfg Config, checker HealthSource, registry MetricsSnapshot, agentInfo func() types.AgentInfo, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg = DefaultConfig()
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(logger))
	router.Use(corsMiddleware(DefaultCORSConfig()))

	router.Handle("/health", metricsMiddleware("/health")(healthHandler(checker, logger))).Methods(http.MethodGet)
	router.Handle("/metrics", metricsMiddleware("/metrics")(metricsHandler(registry, logger))).Methods(http.MethodGet)
	router.Handle("/info", metricsMiddleware("/info")(infoHandler(agentInfo, logger))).Methods(http.MethodGet)
	router.Handle("/status", metricsMiddleware("/status")(statusHandler(checker, registry, logger))).Methods(http.MethodGet)

	limited := rateLimitMiddleware(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	router.Handle("/metrics/prometheus",
		metricsMiddleware("/metrics/prometheus")(limited(prometheusTextHandler(registry)))).Methods(http.MethodGet)
	router.Handle("/metrics/http",
		metricsMiddleware("/metrics/http")(limited(promhttp.Handler()))).Methods(http.MethodGet)

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		logger: logger,
	}
}

// Start runs ListenAndServe in a goroutine and returns immediately.
// Errors other than http.ErrServerClosed are logged; the supervisor
// treats a dead introspection server as non-fatal to the rest of the
// agent.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("introspection server exited", "error", err)
		}
	}()
	s.logger.Info("introspection server started", "addr", s.cfg.Addr)
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("introspection server shutdown: %w", err)
	}
	return nil
}
