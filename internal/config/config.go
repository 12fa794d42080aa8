package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config is the daemon configuration, parsed from WAGATE_* environment
// variables.
type Config struct {
	DataDir    string `env:"WAGATE_DATA_DIR" envDefault:"/var/lib/wagate"`
	DBPath     string `env:"WAGATE_DB_PATH"`
	ListenAddr string `env:"WAGATE_LISTEN_ADDR" envDefault:":3001"`
	APIKey     string `env:"WAGATE_API_KEY,required"`

	BotName string `env:"WAGATE_BOT_NAME" envDefault:"Wagate"`

	EnableWebhook     bool   `env:"WAGATE_ENABLE_WEBHOOK" envDefault:"false"`
	WebhookURL        string `env:"WAGATE_WEBHOOK_URL"`
	WebhookEventsPath string `env:"WAGATE_WEBHOOK_EVENTS_FILE"`

	ReconnectInterval    int    `env:"WAGATE_RECONNECT_INTERVAL" envDefault:"5"`
	MaxReconnectRetries  int    `env:"WAGATE_MAX_RECONNECT_RETRIES" envDefault:"5"`
	MaxQRGenerations     int    `env:"WAGATE_MAX_QR_GENERATIONS" envDefault:"5"`
	SessionConfigID      string `env:"WAGATE_SESSION_CONFIG_ID" envDefault:"session-config"`
	ReadIncomingMessages bool   `env:"WAGATE_READ_INCOMING_MESSAGES" envDefault:"false"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.EnableWebhook && cfg.WebhookURL == "" {
		return nil, fmt.Errorf("WAGATE_WEBHOOK_URL is required when WAGATE_ENABLE_WEBHOOK is true")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "gateway.db")
	}
	return &cfg, nil
}

// SessionDBPath returns the engine-owned credential database path for a
// session.
func (c *Config) SessionDBPath(sessionID string) string {
	return filepath.Join(c.DataDir, "sessions", sessionID, "engine.db")
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "wagated.log")
}
