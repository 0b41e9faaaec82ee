package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version string       `yaml:"version"`
	Server  ServerConfig `yaml:"server"`
	API     APIConfig    `yaml:"api"`
	Quota   QuotaConfig  `yaml:"quota"`
	Store   StoreConfig  `yaml:"store"`
	Alerts  AlertsConfig `yaml:"alerts"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig contains API key authentication configuration.
type AuthConfig struct {
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// RateLimitConfig contains per-IP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// QuotaConfig contains the default per-user limits applied when a usage
// record is first created, and the consume retry bound.
type QuotaConfig struct {
	DailyLimit   int `yaml:"daily_limit"`
	WeeklyLimit  int `yaml:"weekly_limit"`
	MonthlyLimit int `yaml:"monthly_limit"`
	MaxRetries   int `yaml:"max_retries"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "memory"
	DBPath  string `yaml:"db_path"`
	// Retention is how long idle records are kept before the sweeper prunes
	// them. Zero disables sweeping.
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AlertsConfig contains operational alerting configuration.
type AlertsConfig struct {
	Enabled     bool           `yaml:"enabled"`
	MinInterval time.Duration  `yaml:"min_interval"`
	Telegram    TelegramConfig `yaml:"telegram"`
}

// TelegramConfig contains Telegram notifier credentials.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls requires cert_file and key_file when enabled")
		}
	}
	if c.Quota.DailyLimit <= 0 {
		return fmt.Errorf("quota.daily_limit must be positive, got %d", c.Quota.DailyLimit)
	}
	if c.Quota.WeeklyLimit <= 0 {
		return fmt.Errorf("quota.weekly_limit must be positive, got %d", c.Quota.WeeklyLimit)
	}
	if c.Quota.MonthlyLimit <= 0 {
		return fmt.Errorf("quota.monthly_limit must be positive, got %d", c.Quota.MonthlyLimit)
	}
	if c.Quota.MaxRetries <= 0 {
		return fmt.Errorf("quota.max_retries must be positive, got %d", c.Quota.MaxRetries)
	}
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store.backend must be \"sqlite\" or \"memory\", got %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path is required for the sqlite backend")
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("store.retention must not be negative")
	}
	if c.Alerts.Enabled {
		if c.Alerts.Telegram.BotToken == "" || c.Alerts.Telegram.ChatID == 0 {
			return fmt.Errorf("alerts.telegram requires bot_token and chat_id when enabled")
		}
	}
	return nil
}
