// Package controlplane implements the agent's outbound side: the
// registration/heartbeat/poll/dispatch/report loop that talks to the
// central control server over HTTP.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vitaliisemenov/hostagent/internal/agenterr"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

// Client is the agent's HTTP client for the control-server contract.
// It carries no retry logic of its own — ExecuteWithRetry wraps every
// call site in the Loop.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Client. httpClient is expected to be the
// shared hardened client from internal/transport.
func NewClient(serverURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{serverURL: serverURL, apiKey: apiKey, httpClient: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return agenterr.Wrap(agenterr.KindNetwork, "failed to encode request body", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return agenterr.Wrap(agenterr.KindNetwork, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return agenterr.Wrap(agenterr.KindNetwork, fmt.Sprintf("request to %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return agenterr.New(agenterr.KindNetwork, fmt.Sprintf("%s returned status %d", path, resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return agenterr.Wrap(agenterr.KindNetwork, fmt.Sprintf("failed to decode response from %s", path), err)
		}
	}
	return nil
}

// Register posts AgentInfo to /api/agents/register.
func (c *Client) Register(ctx context.Context, info types.AgentInfo) error {
	return c.do(ctx, http.MethodPost, "/api/agents/register", info, nil)
}

// Heartbeat posts the current AgentInfo to
// /api/agents/{id}/heartbeat.
func (c *Client) Heartbeat(ctx context.Context, info types.AgentInfo) error {
	return c.do(ctx, http.MethodPost, "/api/agents/"+info.ID+"/heartbeat", info, nil)
}

// PollCommands GETs /api/agents/{id}/commands and decodes the
// response as a list of pending Commands.
func (c *Client) PollCommands(ctx context.Context, agentID string) ([]types.Command, error) {
	var commands []types.Command
	if err := c.do(ctx, http.MethodGet, "/api/agents/"+agentID+"/commands", nil, &commands); err != nil {
		return nil, err
	}
	return commands, nil
}

// PostResult POSTs a CommandResult to /api/commands/{cmdId}/result.
func (c *Client) PostResult(ctx context.Context, result types.CommandResult) error {
	return c.do(ctx, http.MethodPost, "/api/commands/"+result.CommandID+"/result", result, nil)
}
