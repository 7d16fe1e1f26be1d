package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigGenerateThenValidate(t *testing.T) {
	viper.Reset()
	path := filepath.Join(t.TempDir(), "agent.yaml")

	generate := newConfigGenerateCmd()
	generate.SetArgs([]string{"--output", path})
	var out bytes.Buffer
	generate.SetOut(&out)
	require.NoError(t, generate.Execute())
	assert.Contains(t, out.String(), path)

	validate := newConfigValidateCmd()
	validate.SetArgs([]string{"--config", path})
	var validateOut bytes.Buffer
	validate.SetOut(&validateOut)
	require.NoError(t, validate.Execute())
	assert.Contains(t, validateOut.String(), "is valid")
}

func TestConfigGenerate_RequiresOutputFlag(t *testing.T) {
	viper.Reset()
	generate := newConfigGenerateCmd()
	generate.SetArgs([]string{})
	err := generate.Execute()
	require.Error(t, err)

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitConfigError, exitErr.code)
}

func TestConfigValidate_RejectsControlPlaneMissingServerURL(t *testing.T) {
	viper.Reset()
	path := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("control_plane:\n  enabled: true\n"), 0o644))

	validate := newConfigValidateCmd()
	validate.SetArgs([]string{"--config", path})
	err := validate.Execute()
	require.Error(t, err)

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitConfigError, exitErr.code)
}
