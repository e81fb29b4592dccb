package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/concierge/internal/retry"
	"github.com/haasonsaas/concierge/internal/tools"
)

// messagesAPI is the slice of the Anthropic SDK the backend needs. Tests
// substitute a scripted fake.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type sdkMessages struct {
	client anthropic.Client
}

func (s sdkMessages) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return s.client.Messages.New(ctx, params)
}

// AnthropicConfig configures the API backend.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	Retry       retry.Config
}

// AnthropicBackend talks to the Anthropic Messages API and runs the tool-use
// dialog loop against the registry.
type AnthropicBackend struct {
	api         messagesAPI
	registry    *tools.Registry
	logger      *slog.Logger
	model       string
	maxTokens   int64
	temperature float64
	retry       retry.Config
}

// NewAnthropicBackend creates the API backend.
func NewAnthropicBackend(cfg AnthropicConfig, registry *tools.Registry, logger *slog.Logger) *AnthropicBackend {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 4
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	cfg.Retry.Retriable = IsRetryable

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicBackend{
		api:         sdkMessages{client: client},
		registry:    registry,
		logger:      logger,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		retry:       cfg.Retry,
	}
}

// Respond runs the tool-use dialog loop: call the API, dispatch every
// tool_use block, feed the results back, and repeat until the model stops
// asking for tools or the round budget runs out.
func (b *AnthropicBackend) Respond(ctx context.Context, req Request) (string, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
	}
	toolParams, err := b.convertTools()
	if err != nil {
		return "", fmt.Errorf("convert tools: %w", err)
	}

	var textParts []string
	for round := 0; round < MaxToolRounds; round++ {
		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(b.model),
			MaxTokens:   b.maxTokens,
			Temperature: anthropic.Float(b.temperature),
			System:      []anthropic.TextBlockParam{{Text: req.System}},
			Messages:    messages,
			Tools:       toolParams,
		}

		message, err := retry.Do(ctx, b.retry, func(ctx context.Context) (*anthropic.Message, error) {
			m, callErr := b.api.New(ctx, params)
			if callErr != nil {
				return nil, WrapError(callErr, b.model)
			}
			return m, nil
		})
		if err != nil {
			return "", err
		}

		textParts = textParts[:0]
		var toolUses []anthropic.ContentBlockUnion
		for _, block := range message.Content {
			switch block.Type {
			case "text":
				textParts = append(textParts, block.Text)
			case "tool_use":
				toolUses = append(toolUses, block)
			}
		}

		if len(toolUses) == 0 || message.StopReason == anthropic.StopReasonEndTurn {
			if len(textParts) == 0 {
				return NoResponse, nil
			}
			return strings.Join(textParts, "\n"), nil
		}

		messages = append(messages, message.ToParam())

		resultBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(toolUses))
		for _, use := range toolUses {
			if progress := tools.Progress(use.Name); progress != "" {
				b.logger.Info("tool call", "tool", use.Name, "progress", progress)
			}
			result := b.registry.Dispatch(ctx, use.Name, json.RawMessage(use.Input))
			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(use.ID, result, false))
		}
		messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
	}

	if len(textParts) == 0 {
		return MaxRoundsReached, nil
	}
	return strings.Join(textParts, "\n"), nil
}

func (b *AnthropicBackend) convertTools() ([]anthropic.ToolUnionParam, error) {
	defs := b.registry.Definitions()
	params := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", def.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if def.Description != "" {
			param.OfTool.Description = anthropic.String(def.Description)
		}
		params = append(params, param)
	}
	return params, nil
}
