package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/hostagent/internal/types"
)

func TestClient_RegisterSendsAuthHeaderAndBody(t *testing.T) {
	var gotAuth string
	var gotBody types.AgentInfo

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "/api/agents/register", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token", srv.Client())
	err := client.Register(context.Background(), types.AgentInfo{ID: "agent-1", Hostname: "host-a"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "agent-1", gotBody.ID)
}

func TestClient_PollCommandsDecodesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agents/agent-1/commands", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]types.Command{
			{ID: "cmd-1", Kind: types.CommandMonitor, Payload: types.CommandPayload{MonitorName: "cpu"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", srv.Client())
	commands, err := client.PollCommands(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "cmd-1", commands[0].ID)
}

func TestClient_PostResultRoundTrips(t *testing.T) {
	var gotResult types.CommandResult

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/commands/cmd-1/result", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotResult))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", srv.Client())
	err := client.PostResult(context.Background(), types.CommandResult{
		CommandID: "cmd-1", Success: true, Output: "done", ExecutionTimeMs: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, "cmd-1", gotResult.CommandID)
	assert.True(t, gotResult.Success)
}

func TestClient_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", srv.Client())
	err := client.Register(context.Background(), types.AgentInfo{ID: "agent-1"})
	assert.Error(t, err)
}
