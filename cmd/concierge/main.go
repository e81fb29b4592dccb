// Package main is the CLI entry point for the concierge gateway.
//
// Concierge connects a personal Telegram bot to Claude with durable
// conversation history, a Graphiti memory graph, and a todo list.
//
// Start the gateway:
//
//	concierge serve --config concierge.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/concierge/internal/channels/telegram"
	"github.com/haasonsaas/concierge/internal/config"
	"github.com/haasonsaas/concierge/internal/llm"
	"github.com/haasonsaas/concierge/internal/memory"
	"github.com/haasonsaas/concierge/internal/orchestrator"
	"github.com/haasonsaas/concierge/internal/retry"
	"github.com/haasonsaas/concierge/internal/storage"
	"github.com/haasonsaas/concierge/internal/tools"
	"github.com/haasonsaas/concierge/internal/tools/clock"
	"github.com/haasonsaas/concierge/internal/tools/memorysearch"
	"github.com/haasonsaas/concierge/internal/tools/todos"
	"github.com/haasonsaas/concierge/internal/voice"
	"github.com/haasonsaas/concierge/pkg/models"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "concierge",
		Short:        "Concierge - personal assistant gateway for Telegram",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("concierge %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway: open the database, register tools, connect the model
backend, and begin receiving Telegram updates.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "concierge.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := buildLogger(cfg.Logging, debug)
	slog.SetDefault(logger)

	logger.Info("starting concierge gateway",
		"version", version,
		"commit", commit,
		"config", configPath,
		"backend", cfg.LLM.Backend)

	db, err := storage.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	registry, err := buildRegistry(ctx, cfg, db, logger)
	if err != nil {
		db.Close()
		return err
	}

	backend, err := buildBackend(cfg, registry, logger)
	if err != nil {
		db.Close()
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		db.Close()
		return err
	}

	// The adapter delivers events to the orchestrator and the orchestrator
	// sends responses through the adapter; bind the forward edge lazily.
	var orch *orchestrator.Orchestrator
	adapter, err := buildAdapter(cfg, func(ctx context.Context, event models.Event) {
		orch.OnEvent(ctx, event)
	}, logger)
	if err != nil {
		db.Close()
		return err
	}

	orch = orchestrator.New(orchestrator.Config{
		HistoryTurns:     cfg.Orchestrator.HistoryTurns,
		HistoryMaxChars:  cfg.Orchestrator.HistoryMaxChars,
		DebounceWindow:   cfg.Orchestrator.DebounceDelay,
		FallbackMaxChars: cfg.Orchestrator.FallbackMaxChars,
		RetryDelay:       cfg.Orchestrator.RetryDelay,
		Timezone:         loc,
	}, backend, db.History(), adapter, logger)

	if err := adapter.Start(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to start telegram adapter: %w", err)
	}

	logger.Info("concierge gateway running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	// Shutdown order: stop ingress, let in-flight batches finish, close stores.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := adapter.Stop(shutdownCtx); err != nil {
		logger.Error("telegram adapter stop failed", "error", err)
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown failed", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("database close failed", "error", err)
	}

	logger.Info("concierge gateway stopped")
	return nil
}

func buildLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// buildRegistry wires the tool surface: todos, clock, and the Graphiti
// memory tools when a server is configured.
func buildRegistry(ctx context.Context, cfg *config.Config, db *storage.DB, logger *slog.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	if err := todos.Register(registry, db.Todos()); err != nil {
		return nil, fmt.Errorf("failed to register todo tools: %w", err)
	}
	if err := clock.Register(registry, cfg.Orchestrator.UserTimezone); err != nil {
		return nil, fmt.Errorf("failed to register clock tool: %w", err)
	}

	if cfg.Memory.GraphitiURL != "" {
		client := memory.NewClient(cfg.Memory.GraphitiURL)
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if !client.Healthy(healthCtx) {
			logger.Warn("graphiti server not reachable, memory tools may fail",
				"url", cfg.Memory.GraphitiURL)
		}
		if err := memorysearch.Register(registry, client); err != nil {
			return nil, fmt.Errorf("failed to register memory tools: %w", err)
		}
	} else {
		logger.Warn("no graphiti_url configured, memory tools disabled")
	}

	return registry, nil
}

func buildBackend(cfg *config.Config, registry *tools.Registry, logger *slog.Logger) (llm.Backend, error) {
	switch cfg.LLM.Backend {
	case config.BackendAPI:
		return llm.NewAnthropicBackend(llm.AnthropicConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: *cfg.LLM.Temperature,
			Retry:       retry.Config{MaxAttempts: 4},
		}, registry, logger), nil
	case config.BackendCLI:
		return llm.NewCLIBackend(llm.CLIConfig{
			Binary:        cfg.LLM.ClaudeBinary,
			Model:         cfg.LLM.Model,
			MCPConfigPath: cfg.LLM.MCPConfigPath,
			Timeout:       cfg.LLM.ClaudeTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.LLM.Backend)
	}
}

func buildAdapter(cfg *config.Config, handler telegram.EventHandler, logger *slog.Logger) (*telegram.Adapter, error) {
	var recognizer telegram.Recognizer
	if cfg.SpeechKit.APIKey != "" {
		recognizer = voice.NewRecognizer(cfg.SpeechKit.APIKey, cfg.SpeechKit.FolderID, cfg.SpeechKit.Language)
	}

	mode := telegram.ModeLongPolling
	if cfg.Telegram.Mode == "webhook" {
		mode = telegram.ModeWebhook
	}

	adapter, err := telegram.NewAdapter(telegram.Config{
		Token:            cfg.Telegram.Token,
		Mode:             mode,
		WebhookURL:       cfg.Telegram.WebhookURL,
		ListenAddr:       cfg.Telegram.ListenAddr,
		AllowedChatIDs:   cfg.Telegram.AllowedChatIDs,
		MaxVoiceDuration: cfg.Telegram.MaxVoiceDuration,
		Logger:           logger,
	}, handler, recognizer)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram adapter: %w", err)
	}
	return adapter, nil
}
