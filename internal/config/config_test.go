package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 240, cfg.RateLimit.PerMinute)
	assert.Empty(t, cfg.Auth.Secret)
	assert.Error(t, cfg.Validate(), "missing secret must not validate")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.yaml")
	content := []byte(`
server:
  addr: ":8080"
database:
  driver: postgres
  dsn: "host=db user=app"
auth:
  secret: file-secret
  token_ttl: 30m
log:
  format: json
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("HELPINGHAND_AUTH_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "env-secret", cfg.Auth.Secret, "env overrides file")
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDevSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HELPINGHAND_DEV", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DevSecret, cfg.Auth.Secret)
	assert.NoError(t, cfg.Validate())

	cfg.Dev = false
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database:  Database{Driver: "sqlite", DSN: "x.db"},
			Auth:      Auth{Secret: "s", TokenTTL: time.Hour},
			RateLimit: RateLimit{Enabled: true, PerMinute: 10},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver", func(c *Config) { c.Database.Driver = "mongo" }},
		{"dsn", func(c *Config) { c.Database.DSN = " " }},
		{"ttl", func(c *Config) { c.Auth.TokenTTL = 0 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"rate", func(c *Config) { c.RateLimit.PerMinute = 0 }},
	}
	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
