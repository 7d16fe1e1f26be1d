package healthchecker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/types"
)

// ControlPlaneReachability issues a short-timeout GET to
// {serverURL}/health: 2xx is Healthy, any other status is Degraded, a
// transport-level error is Unhealthy.
type ControlPlaneReachability struct {
	ServerURL string
	Client    *http.Client
}

func NewControlPlaneReachability(serverURL string, client *http.Client) *ControlPlaneReachability {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ControlPlaneReachability{ServerURL: serverURL, Client: client}
}

func (c *ControlPlaneReachability) Name() string { return "control_plane_reachability" }

func (c *ControlPlaneReachability) Run(ctx context.Context) (types.CheckResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ServerURL+"/health", nil)
	if err != nil {
		return types.CheckResult{}, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return types.CheckResult{
			State:       types.HealthUnhealthy,
			Message:     fmt.Sprintf("control server unreachable: %v", err),
			LastCheckAt: time.Now(),
			Duration:    time.Since(start),
		}, nil
	}
	defer resp.Body.Close()

	state := types.HealthDegraded
	message := fmt.Sprintf("control server responded %d", resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		state = types.HealthHealthy
		message = "control server reachable"
	}

	return types.CheckResult{
		State:       state,
		Message:     message,
		LastCheckAt: time.Now(),
		Duration:    time.Since(start),
	}, nil
}

// usageBand maps a usage percentage to a HealthState: Healthy below
// threshold, Degraded from threshold up to 95% inclusive, Unhealthy
// above 95%.
func usageBand(usage, threshold float64) (types.HealthState, string) {
	switch {
	case usage > 95:
		return types.HealthUnhealthy, fmt.Sprintf("usage %.1f%% exceeds critical band (>95%%)", usage)
	case usage >= threshold:
		return types.HealthDegraded, fmt.Sprintf("usage %.1f%% at or above threshold %.1f%%", usage, threshold)
	default:
		return types.HealthHealthy, fmt.Sprintf("usage %.1f%% below threshold %.1f%%", usage, threshold)
	}
}

// ProbeFunc samples a single usage percentage, e.g. disk or memory.
// DiskUsage and MemoryUsage are parameterized on this so tests can
// substitute a deterministic value instead of the real platform probe.
type ProbeFunc func(ctx context.Context) (float64, error)

// DiskUsage reports the health band of disk usage at Path against
// Threshold percent.
type DiskUsage struct {
	Path      string
	Threshold float64
	Probe     ProbeFunc
}

func (d *DiskUsage) Name() string { return "disk_usage" }

func (d *DiskUsage) Run(ctx context.Context) (types.CheckResult, error) {
	start := time.Now()
	usage, err := d.Probe(ctx)
	if err != nil {
		return types.CheckResult{}, err
	}
	state, message := usageBand(usage, d.Threshold)
	return types.CheckResult{State: state, Message: message, LastCheckAt: time.Now(), Duration: time.Since(start)}, nil
}

// MemoryUsage reports the health band of memory usage against
// Threshold percent.
type MemoryUsage struct {
	Threshold float64
	Probe     ProbeFunc
}

func (m *MemoryUsage) Name() string { return "memory_usage" }

func (m *MemoryUsage) Run(ctx context.Context) (types.CheckResult, error) {
	start := time.Now()
	usage, err := m.Probe(ctx)
	if err != nil {
		return types.CheckResult{}, err
	}
	state, message := usageBand(usage, m.Threshold)
	return types.CheckResult{State: state, Message: message, LastCheckAt: time.Now(), Duration: time.Since(start)}, nil
}
