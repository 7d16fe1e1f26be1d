package dataplane

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/config"
	"github.com/vitaliisemenov/hostagent/internal/platform"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

// Collector is a periodic source of MetricSamples and LogSamples.
// Collect is invoked once per tick by the pipeline's scheduler; the
// collector itself holds no goroutine or ticker of its own.
type Collector interface {
	Name() string
	Interval() time.Duration
	Collect(ctx context.Context) ([]types.MetricSample, []types.LogSample, error)
}

// NewCollector builds a Collector from a CollectorSpec. An unknown
// Kind is a construction error the caller logs and skips rather than
// treating as fatal.
func NewCollector(spec config.CollectorSpec, logger *slog.Logger) (Collector, error) {
	interval := time.Duration(spec.IntervalSecs) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	switch spec.Kind {
	case "system":
		return &systemCollector{name: spec.Name, interval: interval}, nil
	case "log":
		return &logCollector{name: spec.Name, interval: 10 * time.Second}, nil
	case "custom":
		return &customCollector{name: spec.Name, interval: interval, command: spec.Command, args: spec.Args, logger: logger}, nil
	default:
		return nil, &unknownKindError{kind: spec.Kind}
	}
}

type unknownKindError struct{ kind string }

func (e *unknownKindError) Error() string { return "unknown collector kind: " + e.kind }

// systemCollector emits system_cpu_usage, system_memory_usage, and
// system_disk_usage every tick, all sharing one timestamp.
type systemCollector struct {
	name     string
	interval time.Duration
}

func (c *systemCollector) Name() string           { return c.name }
func (c *systemCollector) Interval() time.Duration { return c.interval }

func (c *systemCollector) Collect(ctx context.Context) ([]types.MetricSample, []types.LogSample, error) {
	usage, err := platform.Probe(ctx)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	labels := map[string]string{"collector": c.name}
	samples := []types.MetricSample{
		{Name: "system_cpu_usage", Value: usage.CPUPercent, Labels: labels, Timestamp: now},
		{Name: "system_memory_usage", Value: usage.MemPercent, Labels: labels, Timestamp: now},
		{Name: "system_disk_usage", Value: usage.DiskPercent, Labels: labels, Timestamp: now},
	}
	return samples, nil, nil
}

// logCollector emits one synthetic log record per tick, a placeholder
// for a future real file-tail implementation.
type logCollector struct {
	name     string
	interval time.Duration
}

func (c *logCollector) Name() string           { return c.name }
func (c *logCollector) Interval() time.Duration { return c.interval }

func (c *logCollector) Collect(ctx context.Context) ([]types.MetricSample, []types.LogSample, error) {
	sample := types.LogSample{
		Level:     "info",
		Message:   "synthetic log collector tick",
		Source:    c.name,
		Timestamp: time.Now(),
		Labels:    map[string]string{"collector": c.name},
	}
	return nil, []types.LogSample{sample}, nil
}

// customCollector runs a configured shell-like command each tick; if
// stdout trims to a parseable float64, it emits one metric sample
// named custom_{name}.
type customCollector struct {
	name     string
	interval time.Duration
	command  string
	args     []string
	logger   *slog.Logger
}

func (c *customCollector) Name() string           { return c.name }
func (c *customCollector) Interval() time.Duration { return c.interval }

func (c *customCollector) Collect(ctx context.Context) ([]types.MetricSample, []types.LogSample, error) {
	res, err := platform.Run(ctx, c.interval, c.command, c.args)
	if err != nil {
		return nil, nil, err
	}

	trimmed := strings.TrimSpace(res.Stdout)
	value, parseErr := strconv.ParseFloat(trimmed, 64)
	if parseErr != nil {
		if c.logger != nil {
			c.logger.Warn("custom collector output not numeric, skipping", "collector", c.name, "output", trimmed)
		}
		return nil, nil, nil
	}

	sample := types.MetricSample{
		Name:      "custom_" + c.name,
		Value:     value,
		Labels:    map[string]string{"collector": c.name},
		Timestamp: time.Now(),
	}
	return []types.MetricSample{sample}, nil, nil
}
