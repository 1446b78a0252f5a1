// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	GatewayHost   string // interface session gateways bind to, "" = all
	WorkspaceRoot string
	DBPath        string
	LogLevel      slog.Level

	Session SessionConfig
	Gateway GatewayConfig
	Journal JournalConfig
	Watch   WatchConfig
}

// SessionConfig controls session lifetime and the host participant.
type SessionConfig struct {
	TTL            time.Duration
	SweepInterval  time.Duration
	ExpiryEnforced bool
	HostName       string
	HostEmail      string
}

// GatewayConfig controls per-connection limits.
type GatewayConfig struct {
	SendQueueSize   int
	MessageRate     float64
	MessageBurst    int
	MaxMessageBytes int64
	AllowedOrigins  []string
}

// JournalConfig controls the sqlite event journal.
type JournalConfig struct {
	Enabled   bool
	QueueSize int
	Retention time.Duration
}

// WatchConfig controls the workspace file watcher.
type WatchConfig struct {
	Enabled  bool
	Debounce time.Duration
	Ignore   []string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		GatewayHost:   getEnv("GATEWAY_HOST", ""),
		WorkspaceRoot: getEnv("WORKSPACE_ROOT", "."),
		DBPath:        getEnv("DB_PATH", "./data/livesync.db"),
		LogLevel:      getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		Session: SessionConfig{
			TTL:            getEnvDuration("SESSION_TTL", 24*time.Hour),
			SweepInterval:  getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
			ExpiryEnforced: getEnvBool("EXPIRY_ENFORCED", true),
			HostName:       getEnv("HOST_NAME", "Host"),
			HostEmail:      getEnv("HOST_EMAIL", ""),
		},
		Gateway: GatewayConfig{
			SendQueueSize:   getEnvInt("SEND_QUEUE_SIZE", 64),
			MessageRate:     getEnvFloat("MESSAGE_RATE", 50),
			MessageBurst:    getEnvInt("MESSAGE_BURST", 100),
			MaxMessageBytes: int64(getEnvInt("MAX_MESSAGE_BYTES", 4<<20)),
			AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Journal: JournalConfig{
			Enabled:   getEnvBool("JOURNAL_ENABLED", true),
			QueueSize: getEnvInt("JOURNAL_QUEUE_SIZE", 1000),
			Retention: getEnvDuration("JOURNAL_RETENTION", 7*24*time.Hour),
		},
		Watch: WatchConfig{
			Enabled:  getEnvBool("WATCH_ENABLED", true),
			Debounce: getEnvDuration("WATCH_DEBOUNCE", 200*time.Millisecond),
			Ignore:   getEnvList("WATCH_IGNORE", nil),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Journal.Enabled && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when the journal is enabled")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Session.ExpiryEnforced && c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.Session.HostName == "" {
		return fmt.Errorf("HOST_NAME cannot be empty")
	}
	if c.Gateway.SendQueueSize <= 0 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be > 0")
	}
	if c.Gateway.MessageRate < 0 {
		return fmt.Errorf("MESSAGE_RATE must be >= 0")
	}
	if c.Gateway.MaxMessageBytes <= 0 {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be > 0")
	}
	if c.Journal.Enabled && c.Journal.QueueSize <= 0 {
		return fmt.Errorf("JOURNAL_QUEUE_SIZE must be > 0")
	}
	if c.Watch.Enabled && c.WorkspaceRoot == "" {
		return fmt.Errorf("WORKSPACE_ROOT cannot be empty when watching is enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
