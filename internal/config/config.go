// Package config defines the daemon configuration surface. The host hands
// the daemon a YAML document as a string; paths under the host-provided data
// directory are filled in by the daemon after parsing and never come from
// the document itself.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/pocketclaw/internal/otel"
)

// ProviderSettings selects the LLM provider used by the agent runner.
type ProviderSettings struct {
	// Name is a provider keyword or a "custom:<url>" / "anthropic-custom:<url>" form.
	Name    string `yaml:"name"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ReliabilityConfig tunes component supervision.
type ReliabilityConfig struct {
	InitialBackoffSeconds uint64 `yaml:"initial_backoff_seconds"`
	MaxBackoffSeconds     uint64 `yaml:"max_backoff_seconds"`
}

// HeartbeatConfig drives the periodic HEARTBEAT.md worker.
type HeartbeatConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Token      string  `yaml:"token"`
	AllowedIDs []int64 `yaml:"allowed_ids"`
}

// ChannelsConfig groups chat channel settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// CostConfig enables the usage ledger and budget enforcement.
type CostConfig struct {
	Enabled          bool    `yaml:"enabled"`
	SessionBudgetUSD float64 `yaml:"session_budget_usd"`
	DailyBudgetUSD   float64 `yaml:"daily_budget_usd"`
	MonthlyBudgetUSD float64 `yaml:"monthly_budget_usd"`
	// WarningThreshold is the fraction of a budget at which CheckBudget
	// starts returning warnings. Defaults to 0.8.
	WarningThreshold float64 `yaml:"warning_threshold"`
}

// MemoryConfig enables the long-term memory store.
type MemoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ToolsConfig gates optional tool families in the reported inventory.
type ToolsConfig struct {
	HTTPEnabled     bool   `yaml:"http_enabled"`
	BrowserEnabled  bool   `yaml:"browser_enabled"`
	DelegateEnabled bool   `yaml:"delegate_enabled"`
	ComposioAPIKey  string `yaml:"composio_api_key"`
}

// Config is the effective daemon configuration.
type Config struct {
	AgentName string `yaml:"agent_name"`
	UserName  string `yaml:"user_name"`
	Timezone  string `yaml:"timezone"`
	LogLevel  string `yaml:"log_level"`

	Provider    ProviderSettings  `yaml:"provider"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Cost        CostConfig        `yaml:"cost"`
	Memory      MemoryConfig      `yaml:"memory"`
	Tools       ToolsConfig       `yaml:"tools"`
	Telemetry   otel.Config       `yaml:"telemetry"`

	// Filled in by the daemon from the host-provided data directory.
	WorkspaceDir string `yaml:"-"`
	StateDir     string `yaml:"-"`
}

func defaultConfig() Config {
	return Config{
		AgentName: "PocketClaw",
		UserName:  "User",
		Timezone:  "UTC",
		LogLevel:  "info",
		Provider: ProviderSettings{
			Name:  "anthropic",
			Model: "claude-sonnet-4-5",
		},
		Reliability: ReliabilityConfig{
			InitialBackoffSeconds: 1,
			MaxBackoffSeconds:     60,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         false,
			IntervalMinutes: 30,
		},
		Cost: CostConfig{
			Enabled:          true,
			WarningThreshold: 0.8,
		},
		Memory: MemoryConfig{
			Enabled: true,
		},
	}
}

// Parse decodes a YAML document into a Config, applying defaults, env
// overrides, and normalization. The document may be empty.
func Parse(text string) (Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(text) != "" {
		if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the host environment supply secrets that should not
// live in the config document.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POCKETCLAW_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("POCKETCLAW_TELEGRAM_TOKEN"); v != "" {
		cfg.Channels.Telegram.Token = v
	}
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.AgentName) == "" {
		cfg.AgentName = "PocketClaw"
	}
	if strings.TrimSpace(cfg.UserName) == "" {
		cfg.UserName = "User"
	}
	if strings.TrimSpace(cfg.Timezone) == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.Provider.Name = strings.TrimSpace(cfg.Provider.Name)
	// Legacy provider aliases.
	if cfg.Provider.Name == "claude" {
		cfg.Provider.Name = "anthropic"
	}
	if cfg.Provider.Name == "gpt" || cfg.Provider.Name == "chatgpt" {
		cfg.Provider.Name = "openai"
	}
	if cfg.Heartbeat.IntervalMinutes <= 0 {
		cfg.Heartbeat.IntervalMinutes = 30
	}
	if cfg.Cost.WarningThreshold <= 0 || cfg.Cost.WarningThreshold > 1 {
		cfg.Cost.WarningThreshold = 0.8
	}
}

// Validate rejects configurations that cannot possibly run.
func (c Config) Validate() error {
	if c.Provider.Name == "" {
		return fmt.Errorf("provider.name must not be empty")
	}
	if c.Cost.SessionBudgetUSD < 0 || c.Cost.DailyBudgetUSD < 0 || c.Cost.MonthlyBudgetUSD < 0 {
		return fmt.Errorf("cost budgets must not be negative")
	}
	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return fmt.Errorf("channels.telegram.enabled requires a token")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level: %s", c.LogLevel)
	}
	return nil
}

// HasSupervisedChannels reports whether any chat channel needs a supervised
// component. When false the channels slot is marked healthy without
// spawning anything.
func (c Config) HasSupervisedChannels() bool {
	return c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) != ""
}

// Fingerprint returns a stable hash of the active config, used to detect
// config changes across restarts without logging secrets.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "agent=%s|provider=%s|model=%s|log=%s|hb=%t/%d|tg=%t|cost=%t",
		c.AgentName, c.Provider.Name, c.Provider.Model, c.LogLevel,
		c.Heartbeat.Enabled, c.Heartbeat.IntervalMinutes,
		c.Channels.Telegram.Enabled, c.Cost.Enabled)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}
