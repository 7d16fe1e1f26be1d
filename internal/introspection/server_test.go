package introspection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/hostagent/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChecker lets tests control the HealthStatus returned, simulating
// three named checks whose overall state can flip mid-test.
type fakeChecker struct {
	mu     sync.Mutex
	status types.HealthStatus
}

func newFakeChecker(overall types.HealthState) *fakeChecker {
	return &fakeChecker{status: types.HealthStatus{
		Overall: overall,
		Checks: map[string]types.CheckResult{
			"a": {State: types.HealthHealthy},
			"b": {State: overall},
			"c": {State: types.HealthHealthy},
		},
		Version: "test",
	}}
}

func (f *fakeChecker) Status(ctx context.Context) types.HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeChecker) set(overall types.HealthState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Overall = overall
	f.status.Checks["b"] = types.CheckResult{State: overall}
}

func TestNewServer_BuildsWithoutBinding(t *testing.T) {
	checker := newFakeChecker(types.HealthHealthy)
	registry := &fakeRegistry{}
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"

	srv := New(cfg, checker, registry, func() types.AgentInfo { return types.AgentInfo{ID: "agent-1"} }, testLogger())
	require.NotNil(t, srv)
}

func TestHealthHandler_DegradedReturns200(t *testing.T) {
	checker := newFakeChecker(types.HealthDegraded)
	handler := healthHandler(checker, testLogger())

	rec := newRecorder()
	req := newGetRequest("/health")
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.code)

	// HealthState is rendered as its lowercase name on the wire.
	var status struct {
		Overall string `json:"overall"`
	}
	require.NoError(t, json.Unmarshal(rec.body, &status))
	assert.Equal(t, types.HealthDegraded.String(), status.Overall)
}

func TestHealthHandler_UnhealthyReturns503(t *testing.T) {
	checker := newFakeChecker(types.HealthUnhealthy)
	handler := healthHandler(checker, testLogger())

	rec := newRecorder()
	handler(rec, newGetRequest("/health"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.code)
}

func TestHealthHandler_FlipToUnhealthyChangesStatusCode(t *testing.T) {
	checker := newFakeChecker(types.HealthDegraded)
	handler := healthHandler(checker, testLogger())

	rec := newRecorder()
	handler(rec, newGetRequest("/health"))
	assert.Equal(t, http.StatusOK, rec.code)

	checker.set(types.HealthUnhealthy)

	rec2 := newRecorder()
	handler(rec2, newGetRequest("/health"))
	assert.Equal(t, http.StatusServiceUnavailable, rec2.code)
}

type fakeRegistry struct {
	samples []types.MetricSample
}

func (f *fakeRegistry) Snapshot() []types.MetricSample { return f.samples }
func (f *fakeRegistry) Count() int                     { return len(f.samples) }

func TestMetricsHandler_ReturnsCountAndSamples(t *testing.T) {
	registry := &fakeRegistry{samples: []types.MetricSample{
		{Name: "m1", Value: 1, Timestamp: time.Now()},
		{Name: "m2", Value: 2, Timestamp: time.Now()},
	}}
	handler := metricsHandler(registry, testLogger())

	rec := newRecorder()
	handler(rec, newGetRequest("/metrics"))

	var body struct {
		Metrics []types.MetricSample `json:"metrics"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.body, &body))
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Metrics, 2)
}

func TestPrometheusTextHandler_RendersLabelsAndValue(t *testing.T) {
	registry := &fakeRegistry{samples: []types.MetricSample{
		{Name: "cpu_usage", Value: 42.5, Labels: map[string]string{"host": "a"}, Timestamp: time.Unix(1000, 0)},
	}}
	handler := prometheusTextHandler(registry)

	rec := newRecorder()
	handler(rec, newGetRequest("/metrics/prometheus"))

	body := string(rec.body)
	assert.Contains(t, body, `cpu_usage{host="a"} 42.5`)
}

func TestStatusHandler_MatchesHealthStatusCode(t *testing.T) {
	checker := newFakeChecker(types.HealthUnhealthy)
	registry := &fakeRegistry{}
	handler := statusHandler(checker, registry, testLogger())

	rec := newRecorder()
	handler(rec, newGetRequest("/status"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.code)
}

// --- minimal ResponseRecorder, avoiding httptest import collisions ---

type recorder struct {
	code int
	body []byte
	hdr  http.Header
}

func newRecorder() *recorder {
	return &recorder{code: http.StatusOK, hdr: make(http.Header)}
}

func (r *recorder) Header() http.Header { return r.hdr }

func (r *recorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return len(b), nil
}

func (r *recorder) WriteHeader(code int) { r.code = code }

func newGetRequest(path string) *http.Request {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://example.test%s", path), nil)
	if err != nil {
		panic(err)
	}
	return req
}
