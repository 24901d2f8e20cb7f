package config

import (
	"fmt"
	"time"

	"github.com/anthrax3/sentry/internal/logging"
)

// Config is the full daemon configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
	Database    DatabaseConfig    `koanf:"database"`
	Personalize PersonalizeConfig `koanf:"personalize"`
	NATS        NATSConfig        `koanf:"nats"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds the SQLite directory database settings.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// PersonalizeConfig tunes digest personalization.
type PersonalizeConfig struct {
	Workers int `koanf:"workers"`
}

// NATSConfig holds settings for publishing personalized digests.
// When Enabled is false the daemon serves HTTP responses only.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout cannot be negative: %s", c.Server.ShutdownTimeout)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Personalize.Workers < 1 {
		return fmt.Errorf("personalize workers must be positive: %d", c.Personalize.Workers)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats url is required when nats is enabled")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9290
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "sentry.db"
	}

	if cfg.Personalize.Workers == 0 {
		cfg.Personalize.Workers = 4
	}

	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "digests.personalized"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "digestd"
	}
}
