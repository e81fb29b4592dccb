// Package config loads the YAML configuration. Values may reference
// environment variables with ${VAR} syntax; they are expanded before parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the gateway.
type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram"`
	LLM          LLMConfig          `yaml:"llm"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Storage      StorageConfig      `yaml:"storage"`
	Memory       MemoryConfig       `yaml:"memory"`
	SpeechKit    SpeechKitConfig    `yaml:"speechkit"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type TelegramConfig struct {
	Token            string  `yaml:"token"`
	AllowedChatIDs   []int64 `yaml:"allowed_chat_ids"`
	Mode             string  `yaml:"mode"`
	WebhookURL       string  `yaml:"webhook_url"`
	ListenAddr       string  `yaml:"listen_addr"`
	MaxVoiceDuration int     `yaml:"max_voice_duration"`
}

// Backend selects how the model is driven.
const (
	BackendAPI = "api"
	BackendCLI = "cli"
)

type LLMConfig struct {
	Backend   string `yaml:"backend"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`

	// Temperature is a pointer so an explicit 0.0 survives defaulting.
	Temperature *float64 `yaml:"temperature"`

	// CLI backend only
	ClaudeBinary  string        `yaml:"claude_binary"`
	ClaudeTimeout time.Duration `yaml:"claude_timeout"`
	MCPConfigPath string        `yaml:"mcp_config_path"`
}

type OrchestratorConfig struct {
	DebounceDelay    time.Duration `yaml:"debounce_delay"`
	HistoryTurns     int           `yaml:"history_turns"`
	HistoryMaxChars  int           `yaml:"history_max_chars"`
	FallbackMaxChars int           `yaml:"fallback_max_chars"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	UserTimezone     string        `yaml:"user_timezone"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type MemoryConfig struct {
	GraphitiURL string `yaml:"graphiti_url"`
}

type SpeechKitConfig struct {
	APIKey   string `yaml:"api_key"`
	FolderID string `yaml:"folder_id"`
	Language string `yaml:"language"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Telegram.Mode == "" {
		cfg.Telegram.Mode = "polling"
	}
	if cfg.Telegram.ListenAddr == "" {
		cfg.Telegram.ListenAddr = ":8443"
	}
	if cfg.Telegram.MaxVoiceDuration == 0 {
		cfg.Telegram.MaxVoiceDuration = 60
	}
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = BackendAPI
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.Temperature == nil {
		temp := 0.7
		cfg.LLM.Temperature = &temp
	}
	if cfg.LLM.ClaudeBinary == "" {
		cfg.LLM.ClaudeBinary = "claude"
	}
	if cfg.LLM.ClaudeTimeout == 0 {
		cfg.LLM.ClaudeTimeout = 5 * time.Minute
	}
	if cfg.Orchestrator.DebounceDelay == 0 {
		cfg.Orchestrator.DebounceDelay = 5 * time.Second
	}
	if cfg.Orchestrator.HistoryTurns == 0 {
		cfg.Orchestrator.HistoryTurns = 20
	}
	if cfg.Orchestrator.HistoryMaxChars == 0 {
		cfg.Orchestrator.HistoryMaxChars = 500
	}
	if cfg.Orchestrator.FallbackMaxChars == 0 {
		cfg.Orchestrator.FallbackMaxChars = 4000
	}
	if cfg.Orchestrator.RetryDelay == 0 {
		cfg.Orchestrator.RetryDelay = 30 * time.Second
	}
	if cfg.Orchestrator.UserTimezone == "" {
		cfg.Orchestrator.UserTimezone = "UTC"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "concierge.db"
	}
	if cfg.SpeechKit.Language == "" {
		cfg.SpeechKit.Language = "ru-RU"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if len(c.Telegram.AllowedChatIDs) == 0 {
		return fmt.Errorf("telegram.allowed_chat_ids is required")
	}
	if c.Telegram.Mode != "polling" && c.Telegram.Mode != "webhook" {
		return fmt.Errorf("telegram.mode must be polling or webhook, got %q", c.Telegram.Mode)
	}
	if c.Telegram.Mode == "webhook" && c.Telegram.WebhookURL == "" {
		return fmt.Errorf("telegram.webhook_url is required in webhook mode")
	}

	switch c.LLM.Backend {
	case BackendAPI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for the api backend")
		}
	case BackendCLI:
	default:
		return fmt.Errorf("llm.backend must be api or cli, got %q", c.LLM.Backend)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("orchestrator.user_timezone: %w", err)
	}
	return nil
}

// Location resolves the configured user timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Orchestrator.UserTimezone)
}
