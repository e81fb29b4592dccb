// Package memory provides the Graphiti long-term memory client. Graphiti
// exposes its tools over MCP JSON-RPC; this client wraps the handful of calls
// the assistant uses.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultGroupID is the memory group used when callers pass none.
const DefaultGroupID = "main"

// Client talks to a Graphiti MCP server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the Graphiti server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthy reports whether the server's health endpoint answers 200.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	Result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call invokes a Graphiti tool via JSON-RPC tools/call and returns the text of
// the first content block.
func (c *Client) Call(ctx context.Context, tool string, arguments map[string]any) (string, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "tools/call",
		Params:  rpcParams{Name: tool, Arguments: arguments},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp/", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", tool, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("call %s: status %d", tool, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("call %s: decode response: %w", tool, err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("call %s: rpc error %d: %s", tool, decoded.Error.Code, decoded.Error.Message)
	}
	if len(decoded.Result.Content) == 0 {
		return "", nil
	}
	return decoded.Result.Content[0].Text, nil
}

// GetEpisodes retrieves recent conversation episodes.
func (c *Client) GetEpisodes(ctx context.Context, groupIDs []string, maxEpisodes int) (string, error) {
	if len(groupIDs) == 0 {
		groupIDs = []string{DefaultGroupID}
	}
	if maxEpisodes <= 0 {
		maxEpisodes = 5
	}
	return c.Call(ctx, "get_episodes", map[string]any{
		"group_ids":    groupIDs,
		"max_episodes": maxEpisodes,
	})
}

// SearchFacts searches memory for facts and relationships.
func (c *Client) SearchFacts(ctx context.Context, query string, groupIDs []string) (string, error) {
	if len(groupIDs) == 0 {
		groupIDs = []string{DefaultGroupID}
	}
	return c.Call(ctx, "search_memory_facts", map[string]any{
		"query":     query,
		"group_ids": groupIDs,
	})
}

// SearchNodes searches memory for entities.
func (c *Client) SearchNodes(ctx context.Context, query string, groupIDs []string) (string, error) {
	if len(groupIDs) == 0 {
		groupIDs = []string{DefaultGroupID}
	}
	return c.Call(ctx, "search_nodes", map[string]any{
		"query":     query,
		"group_ids": groupIDs,
	})
}

// AddMemory stores an episode summary.
func (c *Client) AddMemory(ctx context.Context, name, episodeBody, groupID, source string) (string, error) {
	if groupID == "" {
		groupID = DefaultGroupID
	}
	if source == "" {
		source = "text"
	}
	return c.Call(ctx, "add_memory", map[string]any{
		"name":         name,
		"episode_body": episodeBody,
		"group_id":     groupID,
		"source":       source,
	})
}
