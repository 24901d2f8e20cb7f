package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileDefaults(t *testing.T) {
	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9290, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "sentry.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Personalize.Workers)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "digests.personalized", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "digestd", cfg.Telemetry.ServiceName)
}

func TestLoadWithFileYAML(t *testing.T) {
	content := `
server:
  host: 0.0.0.0
  port: 8080
  shutdown_timeout: 30s
logging:
  level: debug
  format: console
database:
  path: /var/lib/sentry/directory.db
personalize:
  workers: 8
nats:
  enabled: true
  url: nats://localhost:4222
  subject_prefix: digests.test
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/sentry/directory.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Personalize.Workers)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "digests.test", cfg.NATS.SubjectPrefix)
}

func TestLoadWithFileEnvOverride(t *testing.T) {
	content := `
server:
  port: 8080
database:
  path: from-file.db
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("DATABASE_PATH", "from-env.db")
	t.Setenv("PERSONALIZE_WORKERS", "2")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "from-env.db", cfg.Database.Path)
	assert.Equal(t, 2, cfg.Personalize.Workers)
}

func TestLoadWithFileMissingFile(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9290, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"negative shutdown", func(c *Config) { c.Server.ShutdownTimeout = -time.Second }, "shutdown timeout"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging"},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"zero workers", func(c *Config) { c.Personalize.Workers = 0 }, "workers"},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true }, "nats url"},
		{"telemetry enabled without endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "telemetry endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
