package supervisor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/hostagent/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func minimalConfig() *config.Config {
	cfg := config.Default()
	cfg.ControlPlane.Enabled = false
	cfg.DataPlane.Enabled = false
	cfg.Agent.HTTPEnabled = false
	cfg.Logging.AuditFilename = ""
	return cfg
}

func TestNew_BuildsWithEverythingDisabled(t *testing.T) {
	sup := New(minimalConfig(), testLogger(), nil)
	require.NotNil(t, sup)
	assert.Nil(t, sup.pipeline)
	assert.Nil(t, sup.loop)
	assert.Nil(t, sup.introspection)

	info := sup.AgentInfo()
	assert.NotEmpty(t, info.ID)
	assert.NotEmpty(t, info.Hostname)
}

func TestNew_ConstructsControlAndDataPlaneWhenEnabled(t *testing.T) {
	cfg := minimalConfig()
	cfg.ControlPlane.Enabled = true
	cfg.ControlPlane.ServerURL = "http://127.0.0.1:1"
	cfg.DataPlane.Enabled = true

	sup := New(cfg, testLogger(), nil)
	require.NotNil(t, sup.loop)
	require.NotNil(t, sup.pipeline)
}

func TestNew_GeneratesIDWhenConfigOmitsOne(t *testing.T) {
	cfg := minimalConfig()
	cfg.Agent.ID = ""

	sup := New(cfg, testLogger(), nil)
	assert.NotEmpty(t, sup.AgentInfo().ID)
}

func TestRun_ReturnsOnContextCancel(t *testing.T) {
	sup := New(minimalConfig(), testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestApplyReload_UpdatesSecurityAndPollInterval(t *testing.T) {
	cfg := minimalConfig()
	cfg.ControlPlane.Enabled = true
	cfg.ControlPlane.ServerURL = "http://127.0.0.1:1"
	cfg.ControlPlane.PollIntervalSeconds = 10

	sup := New(cfg, testLogger(), nil)

	require.NoError(t, sup.validator.ValidateCommand("ls"))
	require.Error(t, sup.validator.ValidateCommand("custom-tool"))

	newCfg := config.Default()
	*newCfg = *cfg
	newCfg.Security.AllowedCommands = []string{"custom-tool"}
	newCfg.ControlPlane.PollIntervalSeconds = 20

	deferred := sup.ApplyReload(newCfg)
	assert.Empty(t, deferred)

	assert.Error(t, sup.validator.ValidateCommand("ls"))
	assert.NoError(t, sup.validator.ValidateCommand("custom-tool"))
}

func TestApplyReload_FlagsStructuralChangesAsDeferred(t *testing.T) {
	cfg := minimalConfig()
	sup := New(cfg, testLogger(), nil)

	newCfg := config.Default()
	*newCfg = *cfg
	newCfg.Agent.HTTPEnabled = true
	newCfg.Agent.HTTPPort = 9191
	newCfg.DataPlane.Enabled = true

	deferred := sup.ApplyReload(newCfg)
	assert.Contains(t, deferred, "agent.http_port/http_enabled")
	assert.Contains(t, deferred, "data_plane topology")
}

func TestApplyReload_UpdatesLogLevel(t *testing.T) {
	cfg := minimalConfig()
	var level slog.LevelVar
	level.Set(slog.LevelInfo)

	sup := New(cfg, testLogger(), &level)

	newCfg := config.Default()
	*newCfg = *cfg
	newCfg.Logging.Level = "debug"

	sup.ApplyReload(newCfg)
	assert.Equal(t, slog.LevelDebug, level.Level())
}
