// Package config provides configuration loading for digestd.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, NATS_SUBJECT_PREFIX, etc.)
//  2. YAML config file
//  3. Hardcoded defaults
//
// If configPath is empty, only environment variables and defaults apply.
// A non-empty configPath that does not exist is not an error; the file is
// simply skipped.
//
// Environment variables use an underscore separator and are uppercased.
// The transformer splits on the first underscore (section.field_name):
//
//	SERVER_SHUTDOWN_TIMEOUT -> server.shutdown_timeout
//	DATABASE_PATH           -> database.path
//	NATS_SUBJECT_PREFIX     -> nats.subject_prefix
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			// Open once and validate via the file descriptor to avoid a
			// TOCTOU race between stat and read.
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}

			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
