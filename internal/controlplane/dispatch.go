package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/platform"
	"github.com/vitaliisemenov/hostagent/internal/security"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

// Dispatcher runs the command dispatch table for one received Command,
// validating through the security package before touching the host.
type Dispatcher struct {
	validator *security.Validator
	logger    *slog.Logger
}

func NewDispatcher(validator *security.Validator, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{validator: validator, logger: logger}
}

// Dispatch runs cmd's action and returns a CommandResult.
// ExecutionTimeMs is measured from just before validation to just
// after the action returns.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd types.Command) types.CommandResult {
	start := time.Now()

	var timeout time.Duration
	if cmd.TimeoutMs != nil {
		timeout = time.Duration(*cmd.TimeoutMs) * time.Millisecond
	}

	var result types.CommandResult
	switch cmd.Kind {
	case types.CommandExecute:
		result = d.dispatchExecute(ctx, cmd, timeout)
	case types.CommandDeploy:
		result = d.dispatchDeploy(cmd)
	case types.CommandConfigure:
		result = d.dispatchConfigure(cmd)
	case types.CommandMonitor:
		result = d.dispatchMonitor(cmd)
	case types.CommandStop:
		result = d.dispatchStop(ctx, cmd, timeout)
	default:
		result = types.CommandResult{Success: false, Error: fmt.Sprintf("unknown command kind %q", cmd.Kind)}
	}

	result.CommandID = cmd.ID
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result
}

func (d *Dispatcher) dispatchExecute(ctx context.Context, cmd types.Command, timeout time.Duration) types.CommandResult {
	if err := d.validator.ValidateCommand(cmd.Payload.Command); err != nil {
		return types.CommandResult{Success: false, Error: err.Error()}
	}

	res, err := platform.Run(ctx, timeout, cmd.Payload.Command, cmd.Payload.Args)
	if err != nil {
		return types.CommandResult{Success: false, Error: err.Error()}
	}
	return types.CommandResult{
		Success: res.ExitCode == 0,
		Output:  res.Stdout,
		Error:   errorOrEmpty(res.ExitCode == 0, res.Stderr),
	}
}

func (d *Dispatcher) dispatchDeploy(cmd types.Command) types.CommandResult {
	if err := d.validator.ValidatePath(cmd.Payload.Source); err != nil {
		return types.CommandResult{Success: false, Error: err.Error()}
	}
	if err := d.validator.ValidatePath(cmd.Payload.Destination); err != nil {
		return types.CommandResult{Success: false, Error: err.Error()}
	}

	if err := platform.Copy(cmd.Payload.Source, cmd.Payload.Destination); err != nil {
		return types.CommandResult{Success: false, Error: err.Error()}
	}
	return types.CommandResult{Success: true, Output: fmt.Sprintf("copied %s to %s", cmd.Payload.Source, cmd.Payload.Destination)}
}

func (d *Dispatcher) dispatchConfigure(cmd types.Command) types.CommandResult {
	if err := d.validator.ValidatePath(cmd.Payload.Path); err != nil {
		return types.CommandResult{Success: false, Error: err.Error()}
	}

	data, err := json.Marshal(cmd.Payload.Config)
	if err != nil {
		return types.CommandResult{Success: false, Error: err.Error()}
	}

	if err := platform.WriteFile(cmd.Payload.Path, data); err != nil {
		return types.CommandResult{Success: false, Error: err.Error()}
	}
	return types.CommandResult{Success: true, Output: "configuration written to " + cmd.Payload.Path}
}

func (d *Dispatcher) dispatchMonitor(cmd types.Command) types.CommandResult {
	d.logger.Info("monitor command received", "monitor_name", cmd.Payload.MonitorName)
	return types.CommandResult{Success: true, Output: "monitor config updated: " + cmd.Payload.MonitorName}
}

func (d *Dispatcher) dispatchStop(ctx context.Context, cmd types.Command, timeout time.Duration) types.CommandResult {
	res, err := platform.StopProcess(ctx, timeout, cmd.Payload.Command)
	if err != nil {
		return types.CommandResult{Success: false, Error: err.Error()}
	}
	return types.CommandResult{
		Success: res.ExitCode == 0,
		Output:  res.Stdout,
		Error:   errorOrEmpty(res.ExitCode == 0, res.Stderr),
	}
}

func errorOrEmpty(success bool, stderr string) string {
	if success {
		return ""
	}
	if stderr == "" {
		return "command exited non-zero"
	}
	return stderr
}
