package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "GATEWAY_HOST", "SESSION_TTL", "EXPIRY_ENFORCED", "MESSAGE_RATE",
		"ALLOWED_ORIGINS", "WATCH_IGNORE", "LOG_LEVEL", "JOURNAL_RETENTION",
	} {
		t.Setenv(key, "")
	}
	// t.Setenv cannot unset; empty values exercise the fallback paths instead.
	t.Setenv("PORT", "8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("TTL = %v, want 24h", cfg.Session.TTL)
	}
	if !cfg.Session.ExpiryEnforced {
		t.Error("expiry should be enforced by default")
	}
	if cfg.Gateway.MessageRate != 50 {
		t.Errorf("MessageRate = %v, want 50", cfg.Gateway.MessageRate)
	}
	if len(cfg.Gateway.AllowedOrigins) != 1 || cfg.Gateway.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v", cfg.Gateway.AllowedOrigins)
	}
	if cfg.Watch.Ignore != nil {
		t.Errorf("Ignore = %v, want nil", cfg.Watch.Ignore)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Journal.Retention != 7*24*time.Hour {
		t.Errorf("Retention = %v", cfg.Journal.Retention)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GATEWAY_HOST", "127.0.0.1")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("EXPIRY_ENFORCED", "off")
	t.Setenv("MESSAGE_RATE", "2.5")
	t.Setenv("MESSAGE_BURST", "5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("WATCH_IGNORE", "*.log,tmp")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" || cfg.GatewayHost != "127.0.0.1" {
		t.Errorf("Port=%q GatewayHost=%q", cfg.Port, cfg.GatewayHost)
	}
	if cfg.Session.TTL != 90*time.Minute {
		t.Errorf("TTL = %v", cfg.Session.TTL)
	}
	if cfg.Session.ExpiryEnforced {
		t.Error("EXPIRY_ENFORCED=off should disable the sweeper")
	}
	if cfg.Gateway.MessageRate != 2.5 || cfg.Gateway.MessageBurst != 5 {
		t.Errorf("rate=%v burst=%d", cfg.Gateway.MessageRate, cfg.Gateway.MessageBurst)
	}
	if got := strings.Join(cfg.Gateway.AllowedOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("AllowedOrigins = %q", got)
	}
	if got := strings.Join(cfg.Watch.Ignore, "|"); got != "*.log|tmp" {
		t.Errorf("Ignore = %q", got)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")
	t.Setenv("SEND_QUEUE_SIZE", "many")
	t.Setenv("EXPIRY_ENFORCED", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("TTL = %v, want fallback", cfg.Session.TTL)
	}
	if cfg.Gateway.SendQueueSize != 64 {
		t.Errorf("SendQueueSize = %d, want fallback", cfg.Gateway.SendQueueSize)
	}
	if !cfg.Session.ExpiryEnforced {
		t.Error("unparseable bool should fall back to true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }, "SESSION_TTL"},
		{"zero queue", func(c *Config) { c.Gateway.SendQueueSize = 0 }, "SEND_QUEUE_SIZE"},
		{"negative rate", func(c *Config) { c.Gateway.MessageRate = -1 }, "MESSAGE_RATE"},
		{"journal without db", func(c *Config) { c.DBPath = "" }, "DB_PATH"},
		{"empty host name", func(c *Config) { c.Session.HostName = "" }, "HOST_NAME"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tc.wantErr)
			}
		})
	}

	cfg := valid()
	cfg.Journal.Enabled = false
	cfg.DBPath = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("DB_PATH is optional without the journal: %v", err)
	}
}

func valid() *Config {
	return &Config{
		Port:          "8080",
		WorkspaceRoot: ".",
		DBPath:        "./data/livesync.db",
		Session:       SessionConfig{TTL: time.Hour, SweepInterval: time.Minute, ExpiryEnforced: true, HostName: "Host"},
		Gateway:       GatewayConfig{SendQueueSize: 8, MaxMessageBytes: 1024},
		Journal:       JournalConfig{Enabled: true, QueueSize: 10},
		Watch:         WatchConfig{Enabled: true},
	}
}
