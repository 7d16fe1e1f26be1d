package dataplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/hostagent/internal/config"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

type recordingMirror struct {
	count atomic.Int64
}

func (r *recordingMirror) Record(name string, value float64, labels map[string]string) {
	r.count.Add(1)
}

func TestFileExporter_WritesOneJSONPerLine(t *testing.T) {
	dir := t.TempDir()
	endpoint := filepath.Join(dir, "metrics.jsonl")

	exp := &fileExporter{name: "file", endpoint: endpoint, logger: testLogger()}

	metrics := make(chan types.MetricSample, 4)
	logs := make(chan types.LogSample, 4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		exp.Run(ctx, metrics, logs)
		close(done)
	}()

	metrics <- types.MetricSample{Name: "m1", Value: 1, Timestamp: time.Now()}
	metrics <- types.MetricSample{Name: "m2", Value: 2, Timestamp: time.Now()}

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(endpoint)
		return err == nil && len(data) > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	data, err := os.ReadFile(endpoint)
	require.NoError(t, err)

	lines := splitNonEmptyLines(string(data))
	require.Len(t, lines, 2)

	var sample types.MetricSample
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &sample))
	assert.Equal(t, "m1", sample.Name)
}

func TestHTTPExporter_BatchesAtBatchSize(t *testing.T) {
	var received atomic.Int64
	var lastBatchLen atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []types.MetricSample
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		lastBatchLen.Store(int64(len(batch)))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exp, err := NewExporter(testExporterSpec(srv.URL, 3, 60), nil, testLogger())
	require.NoError(t, err)

	metrics := make(chan types.MetricSample, 10)
	logs := make(chan types.LogSample, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go exp.Run(ctx, metrics, logs)

	for i := 0; i < 4; i++ {
		metrics <- types.MetricSample{Name: "m", Value: float64(i), Timestamp: time.Now()}
	}

	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(3), lastBatchLen.Load())
}

func TestPipeline_BackpressureBlocksCollectorUntilDrained(t *testing.T) {
	dir := t.TempDir()
	endpoint := filepath.Join(dir, "metrics.jsonl")

	// Buffer of size 1 so the second tick's samples must wait for the
	// exporter to drain the first.
	edges := []*edge{{
		exporter: &fileExporter{name: "file", endpoint: endpoint, logger: testLogger()},
		metrics:  make(chan types.MetricSample, 1),
		logs:     make(chan types.LogSample, 1),
	}}

	p := &Pipeline{logger: testLogger(), edges: edges}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The pipeline is not started, so no exporter drains the channel:
	// fill it directly to simulate a paused exporter, then verify fanOut
	// blocks until the test drains it.
	edges[0].metrics <- types.MetricSample{Name: "blocker", Timestamp: time.Now()}

	sent := make(chan struct{})
	go func() {
		p.fanOut(ctx, []types.MetricSample{{Name: "m2", Timestamp: time.Now()}}, nil)
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("fanOut should have blocked on the full channel")
	case <-time.After(50 * time.Millisecond):
	}

	<-edges[0].metrics // drain, unblocking fanOut
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("fanOut did not unblock after drain")
	}
}

func testExporterSpec(endpoint string, batchSize, flushSecs int) config.ExporterSpec {
	return config.ExporterSpec{
		Name:              "http",
		Kind:              "http",
		Enabled:           true,
		Endpoint:          endpoint,
		BatchSize:         batchSize,
		FlushIntervalSecs: flushSecs,
	}
}

func splitNonEmptyLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}
