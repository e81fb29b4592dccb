package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/concierge/internal/tools"
)

// resumeNudge is sent when a run finished without a result but left a
// session behind.
const resumeNudge = "Continue. If you already answered, repeat your final response."

const stderrSnippetLen = 200

// CLIConfig configures the subprocess backend.
type CLIConfig struct {
	Binary        string
	Model         string
	MCPConfigPath string
	AllowedTools  string
	Timeout       time.Duration
}

// CLIBackend spawns the claude CLI per request and reads its JSONL event
// stream. Tool calls happen inside the subprocess via MCP servers, so the
// in-process registry is not involved.
type CLIBackend struct {
	cfg    CLIConfig
	logger *slog.Logger
}

// NewCLIBackend creates the subprocess backend.
func NewCLIBackend(cfg CLIConfig, logger *slog.Logger) *CLIBackend {
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	if cfg.AllowedTools == "" {
		cfg.AllowedTools = "mcp__*"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &CLIBackend{cfg: cfg, logger: logger}
}

// Respond runs one CLI invocation and, when the run produced a session but
// no result text, nudges that session once to recover the answer.
func (b *CLIBackend) Respond(ctx context.Context, req Request) (string, error) {
	prompt := req.User
	if req.System != "" {
		prompt = req.System + "\n\n" + req.User
	}

	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--model", b.cfg.Model,
	}
	if b.cfg.MCPConfigPath != "" {
		args = append(args, "--mcp-config", b.cfg.MCPConfigPath)
	}
	args = append(args, "--allowedTools", b.cfg.AllowedTools)

	res, err := b.runStream(ctx, args)
	if err != nil {
		return "", err
	}
	if res.text != "" {
		return res.text, nil
	}
	if res.sessionID == "" {
		return NoResponse, nil
	}

	// One resume attempt; a failed resume is not worth a retry cycle when the
	// first run already completed cleanly.
	b.logger.Info("empty result, resuming session", "session_id", res.sessionID)
	text, err := b.resume(ctx, res.sessionID)
	if err != nil {
		b.logger.Warn("resume failed", "session_id", res.sessionID, "error", err)
		return NoResponse, nil
	}
	if text == "" {
		return NoResponse, nil
	}
	return text, nil
}

func (b *CLIBackend) resume(ctx context.Context, sessionID string) (string, error) {
	args := []string{
		"-p", resumeNudge,
		"--output-format", "json",
		"--resume", sessionID,
		"--model", b.cfg.Model,
	}
	out, err := b.run(ctx, args)
	if err != nil {
		return "", err
	}
	return parseResumeOutput(out), nil
}

// streamResult is what one stream-json run yields.
type streamResult struct {
	text      string
	sessionID string
}

func (b *CLIBackend) runStream(ctx context.Context, args []string) (streamResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.cfg.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return streamResult{}, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return streamResult{}, fmt.Errorf("start %s: %w", b.cfg.Binary, err)
	}

	res := parseStream(stdout, b.logger)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return streamResult{}, &BackendError{
				Reason: ReasonTimeout,
				Model:  b.cfg.Model,
				Cause:  fmt.Errorf("%s timed out after %s", b.cfg.Binary, b.cfg.Timeout),
			}
		}
		return streamResult{}, b.exitError(err, stderr.Bytes())
	}
	return res, nil
}

func (b *CLIBackend) run(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &BackendError{
				Reason: ReasonTimeout,
				Model:  b.cfg.Model,
				Cause:  fmt.Errorf("%s timed out after %s", b.cfg.Binary, b.cfg.Timeout),
			}
		}
		return nil, b.exitError(err, stderr.Bytes())
	}
	return stdout.Bytes(), nil
}

func (b *CLIBackend) exitError(err error, stderr []byte) error {
	snippet := strings.TrimSpace(string(stderr))
	if len(snippet) > stderrSnippetLen {
		snippet = snippet[:stderrSnippetLen]
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &BackendError{
			Reason: ReasonServerError,
			Model:  b.cfg.Model,
			Cause:  fmt.Errorf("%s exited with code %d: %s", b.cfg.Binary, exitErr.ExitCode(), snippet),
		}
	}
	return &BackendError{Reason: ReasonUnknown, Model: b.cfg.Model, Cause: err}
}

// streamEvent mirrors one line of the CLI's stream-json output. Only the
// fields this backend reads are declared.
type streamEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	Message   struct {
		Content []struct {
			Type string `json:"type"`
			Name string `json:"name"`
		} `json:"content"`
	} `json:"message"`
}

// parseStream consumes JSONL events until EOF. Lines that are not valid
// JSON are skipped. Assistant tool_use events are surfaced as progress logs.
func parseStream(r io.Reader, logger *slog.Logger) streamResult {
	var res streamResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event streamEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		switch event.Type {
		case "system":
			if event.SessionID != "" {
				res.sessionID = event.SessionID
			}
		case "assistant":
			for _, block := range event.Message.Content {
				if block.Type != "tool_use" {
					continue
				}
				if progress := tools.Progress(block.Name); progress != "" {
					logger.Info("tool call", "tool", block.Name, "progress", progress)
				}
			}
		case "result":
			res.text = strings.TrimSpace(event.Result)
			if res.sessionID == "" {
				res.sessionID = event.SessionID
			}
		}
	}
	return res
}

// parseResumeOutput handles the --output-format json shape, falling back to
// treating the output as plain text when it is not a JSON object.
func parseResumeOutput(out []byte) string {
	var payload struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out), &payload); err == nil {
		return strings.TrimSpace(payload.Result)
	}
	return strings.TrimSpace(string(out))
}
