package introspection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/types"
)

// HealthSource reports the aggregate health status, as produced by
// internal/healthchecker.Checker.
type HealthSource interface {
	Status(ctx context.Context) types.HealthStatus
}

// MetricsSnapshot is the minimal slice of metricsregistry.Registry the
// introspection server reads.
type MetricsSnapshot interface {
	Snapshot() []types.MetricSample
	Count() int
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// statusCodeFor maps a HealthState to the HTTP status the routes
// that expose it should return: 200 for Healthy and Degraded, 503
// only for Unhealthy.
func statusCodeFor(state types.HealthState) int {
	if state == types.HealthUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func healthHandler(checker HealthSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Status(r.Context())
		writeJSON(w, logger, statusCodeFor(status.Overall), status)
	}
}

func metricsHandler(registry MetricsSnapshot, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		samples := registry.Snapshot()
		writeJSON(w, logger, http.StatusOK, map[string]any{
			"metrics": samples,
			"count":   len(samples),
		})
	}
}

func infoHandler(agentInfo func() types.AgentInfo, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, agentInfo())
	}
}

func statusHandler(checker HealthSource, registry MetricsSnapshot, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Status(r.Context())
		writeJSON(w, logger, statusCodeFor(status.Overall), map[string]any{
			"health":        status,
			"metrics_count": registry.Count(),
			"timestamp":     time.Now().UTC(),
		})
	}
}

// prometheusTextHandler renders the registry's snapshot in the line
// oriented Prometheus exposition format directly from the domain
// registry, independent of the client_golang registry served at
// /metrics/http.
func prometheusTextHandler(registry MetricsSnapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		samples := registry.Snapshot()
		sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		for _, s := range samples {
			fmt.Fprintf(w, "%s%s %g %d\n", s.Name, formatLabels(s.Labels), s.Value, s.Timestamp.UnixMilli())
		}
	}
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	out := "{"
	for i, name := range names {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%s=%q", name, labels[name])
	}
	return out + "}"
}
