package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NewDefaultConfig returns the default logging configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	return nil
}

// New creates a logger from config.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	level, _ := zapcore.ParseLevel(cfg.Level)
	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(os.Stdout), level)
	return zap.New(core, zap.AddCaller()), nil
}

// newEncoder creates a JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}
