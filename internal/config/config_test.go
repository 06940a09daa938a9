package config

import (
	"strings"
	"testing"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse("")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.AgentName != "PocketClaw" {
		t.Errorf("agent_name = %s, want PocketClaw", cfg.AgentName)
	}
	if cfg.Provider.Name != "anthropic" {
		t.Errorf("provider = %s, want anthropic", cfg.Provider.Name)
	}
	if cfg.Reliability.InitialBackoffSeconds != 1 || cfg.Reliability.MaxBackoffSeconds != 60 {
		t.Errorf("unexpected backoff defaults: %+v", cfg.Reliability)
	}
	if cfg.Cost.WarningThreshold != 0.8 {
		t.Errorf("warning threshold = %f, want 0.8", cfg.Cost.WarningThreshold)
	}
}

func TestParseOverrides(t *testing.T) {
	text := `
agent_name: Scout
log_level: debug
provider:
  name: openai
  model: gpt-4o
reliability:
  initial_backoff_seconds: 2
  max_backoff_seconds: 10
heartbeat:
  enabled: true
  interval_minutes: 15
`
	cfg, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.AgentName != "Scout" || cfg.LogLevel != "debug" {
		t.Fatalf("identity not applied: %+v", cfg)
	}
	if cfg.Provider.Name != "openai" || cfg.Provider.Model != "gpt-4o" {
		t.Fatalf("provider not applied: %+v", cfg.Provider)
	}
	if !cfg.Heartbeat.Enabled || cfg.Heartbeat.IntervalMinutes != 15 {
		t.Fatalf("heartbeat not applied: %+v", cfg.Heartbeat)
	}
}

func TestParseMalformedYAML(t *testing.T) {
	if _, err := Parse("provider: [unclosed"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProviderAliases(t *testing.T) {
	cfg, err := Parse("provider:\n  name: claude\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Provider.Name != "anthropic" {
		t.Fatalf("claude alias not normalized: %s", cfg.Provider.Name)
	}

	cfg, err = Parse("provider:\n  name: chatgpt\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Provider.Name != "openai" {
		t.Fatalf("chatgpt alias not normalized: %s", cfg.Provider.Name)
	}
}

func TestValidateRejectsNegativeBudget(t *testing.T) {
	_, err := Parse("cost:\n  enabled: true\n  daily_budget_usd: -5\n")
	if err == nil || !strings.Contains(err.Error(), "negative") {
		t.Fatalf("expected negative budget error, got %v", err)
	}
}

func TestValidateRejectsTelegramWithoutToken(t *testing.T) {
	_, err := Parse("channels:\n  telegram:\n    enabled: true\n")
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected telegram token error, got %v", err)
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	if _, err := Parse("log_level: verbose\n"); err == nil {
		t.Fatal("expected log level error")
	}
}

func TestEnvOverrideAPIKey(t *testing.T) {
	t.Setenv("POCKETCLAW_API_KEY", "sk-from-env")
	cfg, err := Parse("provider:\n  name: openai\n  api_key: sk-from-file\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" {
		t.Fatalf("env override not applied: %s", cfg.Provider.APIKey)
	}
}

func TestHasSupervisedChannels(t *testing.T) {
	cfg, _ := Parse("")
	if cfg.HasSupervisedChannels() {
		t.Fatal("no channels configured, should be false")
	}
	cfg, err := Parse("channels:\n  telegram:\n    enabled: true\n    token: \"123:abc\"\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.HasSupervisedChannels() {
		t.Fatal("telegram enabled with token, should be true")
	}
}

func TestFingerprintStable(t *testing.T) {
	a, _ := Parse("agent_name: A\n")
	b, _ := Parse("agent_name: A\n")
	c, _ := Parse("agent_name: B\n")
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical configs produced different fingerprints")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("different configs produced identical fingerprints")
	}
	if !strings.HasPrefix(a.Fingerprint(), "cfg-") {
		t.Fatalf("fingerprint format: %s", a.Fingerprint())
	}
}
