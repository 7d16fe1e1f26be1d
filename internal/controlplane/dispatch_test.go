package controlplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/hostagent/internal/security"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

func TestDispatch_RejectsDisallowedCommand(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.AllowedCommands = map[string]struct{}{"ls": {}}
	validator := security.New(cfg, testLogger(), nil)
	dispatcher := NewDispatcher(validator, testLogger())

	result := dispatcher.Dispatch(context.Background(), types.Command{
		ID:   "c1",
		Kind: types.CommandExecute,
		Payload: types.CommandPayload{
			Command: "rm",
			Args:    []string{"-rf", "/"},
		},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Security validation failed")
	assert.Equal(t, "c1", result.CommandID)
}

func TestDispatch_AllowedExecuteRuns(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.AllowedCommands = map[string]struct{}{"echo": {}}
	validator := security.New(cfg, testLogger(), nil)
	dispatcher := NewDispatcher(validator, testLogger())

	result := dispatcher.Dispatch(context.Background(), types.Command{
		ID:   "c2",
		Kind: types.CommandExecute,
		Payload: types.CommandPayload{
			Command: "echo",
			Args:    []string{"hello"},
		},
	})

	require.True(t, result.Success)
	assert.Contains(t, result.Output, "hello")
}

func TestDispatch_DeployRejectsPathOutsideAllowlist(t *testing.T) {
	validator := security.New(security.DefaultConfig(), testLogger(), nil)
	dispatcher := NewDispatcher(validator, testLogger())

	result := dispatcher.Dispatch(context.Background(), types.Command{
		ID:   "c3",
		Kind: types.CommandDeploy,
		Payload: types.CommandPayload{
			Source:      "/etc/passwd",
			Destination: "/etc/shadow",
		},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Security validation failed")
}

func TestDispatch_MonitorAlwaysSucceeds(t *testing.T) {
	validator := security.New(security.DefaultConfig(), testLogger(), nil)
	dispatcher := NewDispatcher(validator, testLogger())

	result := dispatcher.Dispatch(context.Background(), types.Command{
		ID:      "c4",
		Kind:    types.CommandMonitor,
		Payload: types.CommandPayload{MonitorName: "disk-usage"},
	})

	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "disk-usage")
}

func TestDispatch_UnknownKindFails(t *testing.T) {
	validator := security.New(security.DefaultConfig(), testLogger(), nil)
	dispatcher := NewDispatcher(validator, testLogger())

	result := dispatcher.Dispatch(context.Background(), types.Command{
		ID:   "c5",
		Kind: types.CommandKind("bogus"),
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown command kind")
}
