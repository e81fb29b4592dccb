package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestHealthy(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})
	if !client.Healthy(context.Background()) {
		t.Error("expected healthy")
	}

	down := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if down.Healthy(context.Background()) {
		t.Error("expected unhealthy")
	}
}

func TestCallSendsJSONRPC(t *testing.T) {
	var captured map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mcp/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      captured["id"],
			"result": map[string]any{
				"content": []map[string]any{{"type": "text", "text": `[{"fact":"likes coffee"}]`}},
			},
		})
	})

	got, err := client.SearchFacts(context.Background(), "coffee", nil)
	if err != nil {
		t.Fatalf("search facts: %v", err)
	}
	if got != `[{"fact":"likes coffee"}]` {
		t.Errorf("got %q", got)
	}

	if captured["jsonrpc"] != "2.0" || captured["method"] != "tools/call" {
		t.Errorf("bad envelope: %v", captured)
	}
	if captured["id"] == "" {
		t.Error("request id must be set")
	}
	params := captured["params"].(map[string]any)
	if params["name"] != "search_memory_facts" {
		t.Errorf("tool name = %v", params["name"])
	}
	args := params["arguments"].(map[string]any)
	if args["query"] != "coffee" {
		t.Errorf("query = %v", args["query"])
	}
	groups := args["group_ids"].([]any)
	if len(groups) != 1 || groups[0] != "main" {
		t.Errorf("default group ids = %v", groups)
	}
}

func TestCallRPCError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"error":   map[string]any{"code": -32601, "message": "method not found"},
		})
	})

	_, err := client.Call(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCallEmptyContent(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"result":  map[string]any{},
		})
	})

	got, err := client.AddMemory(context.Background(), "note", "body", "", "")
	if err != nil {
		t.Fatalf("add memory: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}
