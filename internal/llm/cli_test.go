package llm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestParseStream(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system","session_id":"sess-1"}`,
		`not json at all`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"mcp__memory__get_episodes"}]}}`,
		`{"type":"result","result":"  Final answer.  ","session_id":"sess-1"}`,
	}, "\n")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	res := parseStream(strings.NewReader(input), logger)
	if res.text != "Final answer." {
		t.Errorf("text = %q", res.text)
	}
	if res.sessionID != "sess-1" {
		t.Errorf("session = %q", res.sessionID)
	}
	if !strings.Contains(buf.String(), "Recalling recent conversations") {
		t.Errorf("expected tool progress log, got %q", buf.String())
	}
}

func TestParseStreamKeepsFirstSessionID(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system","session_id":"sess-a"}`,
		`{"type":"result","result":"ok","session_id":"sess-b"}`,
	}, "\n")
	res := parseStream(strings.NewReader(input), slog.New(slog.DiscardHandler))
	if res.sessionID != "sess-a" {
		t.Errorf("session = %q, want the one announced first", res.sessionID)
	}
}

func TestParseStreamNoResult(t *testing.T) {
	input := `{"type":"system","session_id":"sess-9"}` + "\n"
	res := parseStream(strings.NewReader(input), slog.New(slog.DiscardHandler))
	if res.text != "" {
		t.Errorf("text = %q", res.text)
	}
	if res.sessionID != "sess-9" {
		t.Errorf("session = %q", res.sessionID)
	}
}

func TestParseStreamEmpty(t *testing.T) {
	res := parseStream(strings.NewReader(""), slog.New(slog.DiscardHandler))
	if res.text != "" || res.sessionID != "" {
		t.Errorf("got %+v", res)
	}
}

func TestParseResumeOutput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json", `{"result":"Recovered answer","session_id":"s"}`, "Recovered answer"},
		{"json empty result", `{"result":""}`, ""},
		{"plain text", "Just text output\n", "Just text output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseResumeOutput([]byte(tt.in)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// writeStub creates an executable shell script that stands in for the
// claude binary. Scripts inspect "$*" to tell the first run from a resume.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude-stub")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func newStubBackend(t *testing.T, script string) (*CLIBackend, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	b := NewCLIBackend(CLIConfig{
		Binary:  writeStub(t, script),
		Model:   "m",
		Timeout: 10 * time.Second,
	}, logger)
	return b, &buf
}

func TestRespondStreamRun(t *testing.T) {
	b, logs := newStubBackend(t, `
echo '{"type":"system","session_id":"sess-1"}'
echo '{"type":"assistant","message":{"content":[{"type":"tool_use","name":"mcp__memory__get_episodes"}]}}'
echo '{"type":"result","result":"Final answer.","session_id":"sess-1"}'`)

	got, err := b.Respond(context.Background(), Request{System: "sys", User: "hi"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got != "Final answer." {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(logs.String(), "Recalling recent conversations") {
		t.Errorf("expected tool progress log, got %q", logs.String())
	}
}

func TestRespondExitFailure(t *testing.T) {
	b, _ := newStubBackend(t, `
echo "model backend unavailable" >&2
exit 3`)

	_, err := b.Respond(context.Background(), Request{User: "hi"})
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backendErr.Reason != ReasonServerError {
		t.Errorf("reason = %q", backendErr.Reason)
	}
	if !strings.Contains(err.Error(), "model backend unavailable") {
		t.Errorf("error should carry the stderr snippet, got %q", err)
	}
}

func TestRespondTimeout(t *testing.T) {
	b, _ := newStubBackend(t, `sleep 10`)
	b.cfg.Timeout = 100 * time.Millisecond

	_, err := b.Respond(context.Background(), Request{User: "hi"})
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backendErr.Reason != ReasonTimeout {
		t.Errorf("reason = %q", backendErr.Reason)
	}
}

func TestRespondEmptyResultResumes(t *testing.T) {
	b, _ := newStubBackend(t, `
case "$*" in
*--resume*)
  echo '{"result":"Recovered answer.","session_id":"sess-1"}'
  ;;
*)
  echo '{"type":"system","session_id":"sess-1"}'
  echo '{"type":"result","result":"","session_id":"sess-1"}'
  ;;
esac`)

	got, err := b.Respond(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got != "Recovered answer." {
		t.Errorf("got %q", got)
	}
}

func TestRespondResumeFailureReturnsSentinel(t *testing.T) {
	b, logs := newStubBackend(t, `
case "$*" in
*--resume*)
  echo "resume exploded" >&2
  exit 1
  ;;
*)
  echo '{"type":"system","session_id":"sess-1"}'
  echo '{"type":"result","result":"","session_id":"sess-1"}'
  ;;
esac`)

	got, err := b.Respond(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("a failed resume must not surface an error, got %v", err)
	}
	if got != NoResponse {
		t.Errorf("got %q, want %q", got, NoResponse)
	}
	if !strings.Contains(logs.String(), "resume failed") {
		t.Errorf("expected resume failure log, got %q", logs.String())
	}
}

func TestRespondNoSessionSkipsResume(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "runs")
	b, _ := newStubBackend(t, `
echo run >> `+counter+`
echo '{"type":"result","result":""}'`)

	got, err := b.Respond(context.Background(), Request{User: "hi"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got != NoResponse {
		t.Errorf("got %q, want %q", got, NoResponse)
	}
	runs, err := os.ReadFile(counter)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if n := strings.Count(string(runs), "run"); n != 1 {
		t.Errorf("expected a single invocation, got %d", n)
	}
}

func TestCLIBackendDefaults(t *testing.T) {
	b := NewCLIBackend(CLIConfig{Model: "m"}, slog.New(slog.DiscardHandler))
	if b.cfg.Binary != "claude" {
		t.Errorf("binary = %q", b.cfg.Binary)
	}
	if b.cfg.AllowedTools != "mcp__*" {
		t.Errorf("allowed tools = %q", b.cfg.AllowedTools)
	}
	if b.cfg.Timeout <= 0 {
		t.Errorf("timeout = %v", b.cfg.Timeout)
	}
}
