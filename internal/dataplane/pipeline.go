// Package dataplane implements the collectors->buffers->exporters
// graph: bounded per-exporter channel pairs, batching, time-based
// flushing, and collector backpressure.
package dataplane

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/config"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

// edge is one exporter's channel pair. Constructed exactly once per
// (collectors, exporter) fan-out at pipeline build time: no receiver
// is ever shared between two exporters.
type edge struct {
	exporter Exporter
	metrics  chan types.MetricSample
	logs     chan types.LogSample
}

// Pipeline owns every collector and exporter worker and the channel
// edges between them.
type Pipeline struct {
	collectors []Collector
	edges      []*edge
	logger     *slog.Logger

	wg sync.WaitGroup
}

// New constructs a Pipeline from the data-plane configuration. A
// collector or exporter that fails to construct (e.g. an unknown
// Kind) is logged and skipped; startup never aborts on one bad entry.
func New(cfg config.DataPlaneConfig, registry MetricMirror, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	p := &Pipeline{logger: logger}

	for _, spec := range cfg.Exporters {
		if !spec.Enabled {
			continue
		}
		exp, err := NewExporter(spec, registry, logger)
		if err != nil {
			logger.Error("failed to construct exporter, skipping", "exporter", spec.Name, "kind", spec.Kind, "error", err)
			continue
		}
		p.edges = append(p.edges, &edge{
			exporter: exp,
			metrics:  make(chan types.MetricSample, bufferSize),
			logs:     make(chan types.LogSample, bufferSize),
		})
	}

	for _, spec := range cfg.Collectors {
		if !spec.Enabled {
			continue
		}
		col, err := NewCollector(spec, logger)
		if err != nil {
			logger.Error("failed to construct collector, skipping", "collector", spec.Name, "kind", spec.Kind, "error", err)
			continue
		}
		p.collectors = append(p.collectors, col)
	}

	return p
}

// Start launches every exporter and collector worker as an
// independent goroutine. Start returns immediately; workers run until
// ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	for _, e := range p.edges {
		e := e
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			e.exporter.Run(ctx, e.metrics, e.logs)
		}()
	}

	for _, c := range p.collectors {
		c := c
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runCollector(ctx, c)
		}()
	}
}

func (p *Pipeline) runCollector(ctx context.Context, c Collector) {
	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics, logs, err := c.Collect(ctx)
			if err != nil {
				p.logger.Warn("collector tick failed", "collector", c.Name(), "error", err)
				continue
			}
			p.fanOut(ctx, metrics, logs)
		}
	}
}

// fanOut sends every sample to every exporter's channel pair in
// collector-production order, blocking (not dropping) when an
// exporter's channel is full: this is the pipeline's intended
// backpressure mechanism.
func (p *Pipeline) fanOut(ctx context.Context, metrics []types.MetricSample, logs []types.LogSample) {
	for _, e := range p.edges {
		for _, m := range metrics {
			select {
			case e.metrics <- m:
			case <-ctx.Done():
				return
			}
		}
		for _, l := range logs {
			select {
			case e.logs <- l:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Wait blocks until every collector and exporter worker has returned,
// used by the supervisor's bounded-grace-window shutdown drain.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// WaitWithTimeout waits up to timeout for every worker to exit,
// reporting whether they all did.
func (p *Pipeline) WaitWithTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
