package dataplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/config"
	"github.com/vitaliisemenov/hostagent/internal/resilience"
	"github.com/vitaliisemenov/hostagent/internal/transport"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

// Exporter drains its own metric/log channel pair and forwards
// samples to a sink. Run blocks until ctx is cancelled.
type Exporter interface {
	Name() string
	Run(ctx context.Context, metrics <-chan types.MetricSample, logs <-chan types.LogSample)
}

// NewExporter builds an Exporter from an ExporterSpec. An unknown Kind
// is a construction error the caller logs and skips.
func NewExporter(spec config.ExporterSpec, registry MetricMirror, logger *slog.Logger) (Exporter, error) {
	batchSize := spec.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := time.Duration(spec.FlushIntervalSecs) * time.Second
	if flushInterval <= 0 {
		flushInterval = 60 * time.Second
	}

	switch spec.Kind {
	case "http":
		return &httpExporter{
			name:          spec.Name,
			endpoint:      spec.Endpoint,
			headers:       spec.Headers,
			batchSize:     batchSize,
			flushInterval: flushInterval,
			client:        transport.NewClient(30 * time.Second),
			retry:         resilience.NewState(resilience.DefaultConfig(), logger),
			registry:      registry,
			logger:        logger,
		}, nil
	case "file":
		return &fileExporter{name: spec.Name, endpoint: spec.Endpoint, registry: registry, logger: logger}, nil
	default:
		return nil, &unknownKindError{kind: spec.Kind}
	}
}

// MetricMirror is the subset of metricsregistry.Registry exporters use
// to mirror exported values back into the local registry in addition
// to draining them to their remote sink.
type MetricMirror interface {
	Record(name string, value float64, labels map[string]string)
}

// httpExporter batches samples and POSTs them as JSON, discarding a
// batch when the POST ultimately fails rather than requeuing it — an
// explicit, not accidental, design choice.
type httpExporter struct {
	name          string
	endpoint      string
	headers       map[string]string
	batchSize     int
	flushInterval time.Duration
	client        *http.Client
	retry         *resilience.State
	registry      MetricMirror
	logger        *slog.Logger
}

func (e *httpExporter) Name() string { return e.name }

func (e *httpExporter) Run(ctx context.Context, metrics <-chan types.MetricSample, logs <-chan types.LogSample) {
	var metricBuf []types.MetricSample
	var logBuf []types.LogSample

	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case m, ok := <-metrics:
			if !ok {
				metrics = nil
				continue
			}
			metricBuf = append(metricBuf, m)
			if e.registry != nil {
				e.registry.Record(m.Name, m.Value, m.Labels)
			}
			if len(metricBuf) >= e.batchSize {
				e.flushMetrics(ctx, metricBuf)
				metricBuf = nil
			}

		case l, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			logBuf = append(logBuf, l)
			if len(logBuf) >= e.batchSize {
				e.flushLogs(ctx, logBuf)
				logBuf = nil
			}

		case <-ticker.C:
			if len(metricBuf) > 0 {
				e.flushMetrics(ctx, metricBuf)
				metricBuf = nil
			}
			if len(logBuf) > 0 {
				e.flushLogs(ctx, logBuf)
				logBuf = nil
			}
		}
	}
}

func (e *httpExporter) flushMetrics(ctx context.Context, batch []types.MetricSample) {
	if err := e.post(ctx, e.endpoint, batch); err != nil {
		e.logger.Warn("http exporter discarding metric batch", "exporter", e.name, "size", len(batch), "error", err)
	}
}

func (e *httpExporter) flushLogs(ctx context.Context, batch []types.LogSample) {
	if err := e.post(ctx, e.endpoint+"/logs", batch); err != nil {
		e.logger.Warn("http exporter discarding log batch", "exporter", e.name, "size", len(batch), "error", err)
	}
}

func (e *httpExporter) post(ctx context.Context, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return resilience.ExecuteWithRetryErr(ctx, e.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range e.headers {
			req.Header.Set(k, v)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("exporter %q: unexpected status %d", e.name, resp.StatusCode)
		}
		return nil
	})
}

// fileExporter writes one JSON object per line: metrics to endpoint,
// logs to endpoint + ".log".
type fileExporter struct {
	name     string
	endpoint string
	registry MetricMirror
	logger   *slog.Logger

	mu sync.Mutex
}

func (e *fileExporter) Name() string { return e.name }

func (e *fileExporter) Run(ctx context.Context, metrics <-chan types.MetricSample, logs <-chan types.LogSample) {
	for {
		select {
		case <-ctx.Done():
			return

		case m, ok := <-metrics:
			if !ok {
				metrics = nil
				continue
			}
			if e.registry != nil {
				e.registry.Record(m.Name, m.Value, m.Labels)
			}
			e.appendLine(e.endpoint, m)

		case l, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			e.appendLine(e.endpoint+".log", l)
		}
	}
}

func (e *fileExporter) appendLine(path string, v any) {
	line, err := json.Marshal(v)
	if err != nil {
		e.logger.Warn("file exporter failed to marshal sample", "exporter", e.name, "error", err)
		return
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		e.logger.Warn("file exporter failed to open destination", "exporter", e.name, "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		e.logger.Warn("file exporter failed to write sample", "exporter", e.name, "path", path, "error", err)
	}
}
