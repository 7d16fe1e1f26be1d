// Package types holds the wire and in-memory data model shared by every
// agent subsystem: identity, commands, telemetry samples, and health state.
package types

import (
	"encoding/json"
	"time"
)

// CommandKind enumerates the actions the control plane may dispatch.
type CommandKind string

const (
	CommandExecute   CommandKind = "execute"
	CommandDeploy    CommandKind = "deploy"
	CommandConfigure CommandKind = "configure"
	CommandMonitor   CommandKind = "monitor"
	CommandStop      CommandKind = "stop"
)

// AgentInfo identifies this process to the control server and is also
// served verbatim at /info.
type AgentInfo struct {
	ID              string    `json:"id"`
	Hostname        string    `json:"hostname"`
	Platform        string    `json:"platform"`
	Arch            string    `json:"arch"`
	Version         string    `json:"version"`
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt"`
}

// Command is a unit of work received from the control server.
type Command struct {
	ID        string         `json:"id"`
	Kind      CommandKind    `json:"kind"`
	Payload   CommandPayload `json:"payload"`
	TimeoutMs *int64         `json:"timeout,omitempty"`
}

// CommandPayload carries the kind-specific fields for every CommandKind.
// All fields are optional; which ones are meaningful depends on Kind.
type CommandPayload struct {
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Source      string            `json:"source,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Path        string            `json:"path,omitempty"`
	Config      map[string]string `json:"config,omitempty"`
	MonitorName string            `json:"monitorName,omitempty"`
}

// CommandResult reports the outcome of dispatching a Command.
type CommandResult struct {
	CommandID       string `json:"commandId"`
	Success         bool   `json:"success"`
	Output          string `json:"output"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
}

// MetricSample is one observation of a named numeric gauge.
type MetricSample struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// LogSample is one structured log record produced by a data-plane collector.
type LogSample struct {
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// HealthState is the totally ordered severity of a health check result.
// Larger values are worse; aggregation takes the max over all checks.
type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthDegraded
	HealthUnhealthy
)

func (s HealthState) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its lowercase name rather than an int.
func (s HealthState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// CheckResult is the outcome of running a single named health check.
type CheckResult struct {
	State       HealthState   `json:"state"`
	Message     string        `json:"message"`
	LastCheckAt time.Time     `json:"lastCheckAt"`
	Duration    time.Duration `json:"durationMs"`
}

// checkResultWire is the wire shape for CheckResult, with Duration
// flattened to integer milliseconds.
type checkResultWire struct {
	State       HealthState `json:"state"`
	Message     string      `json:"message"`
	LastCheckAt time.Time   `json:"lastCheckAt"`
	DurationMs  int64       `json:"durationMs"`
}

// MarshalJSON renders Duration as whole milliseconds on the wire.
func (c CheckResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(checkResultWire{
		State:       c.State,
		Message:     c.Message,
		LastCheckAt: c.LastCheckAt,
		DurationMs:  c.Duration.Milliseconds(),
	})
}

// HealthStatus is the aggregate view returned by the health checker.
type HealthStatus struct {
	Overall  HealthState            `json:"overall"`
	Checks   map[string]CheckResult `json:"checks"`
	Uptime   time.Duration          `json:"uptimeSeconds"`
	Version  string                 `json:"version"`
	Observed time.Time              `json:"timestamp"`
}

type healthStatusWire struct {
	Overall       HealthState            `json:"overall"`
	Timestamp     time.Time              `json:"timestamp"`
	Checks        map[string]CheckResult `json:"checks"`
	UptimeSeconds int64                  `json:"uptimeSeconds"`
	Version       string                 `json:"version"`
}

// MarshalJSON renders Uptime as whole seconds on the wire.
func (h HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(healthStatusWire{
		Overall:       h.Overall,
		Timestamp:     h.Observed,
		Checks:        h.Checks,
		UptimeSeconds: int64(h.Uptime.Seconds()),
		Version:       h.Version,
	})
}

// AuditEvent records a single security-relevant accept/reject decision, or a
// configuration reload attempt, for the dedicated audit log.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
}
