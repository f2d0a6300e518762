package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8008", cfg.Server.Addr)
	assert.Equal(t, "taskboard.db", cfg.Server.DBPath)
	assert.Equal(t, 24*time.Hour, cfg.Server.TokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.Server.DraftTTL)
	assert.Equal(t, "http://localhost:8008", cfg.Client.BaseURL)
	assert.Equal(t, 4, cfg.Client.LinkConcurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	require.NoError(t, cfg.ValidateServer(false))
	require.NoError(t, cfg.ValidateClient())
	assert.ErrorIs(t, cfg.ValidateServer(true), ErrDevSecret)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  token_ttl: 2h
client:
  workspace: ws-1
  project: p-1
log:
  level: debug
telemetry:
  enabled: true
  exporter: none
`), 0o644))
	t.Setenv("TASKBOARD_SERVER_ADDR", ":7070")
	t.Setenv("TASKBOARD_CLIENT_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr, "env wins over the file")
	assert.Equal(t, 2*time.Hour, cfg.Server.TokenTTL)
	assert.Equal(t, 3*time.Second, cfg.Client.Timeout)
	assert.Equal(t, "ws-1", cfg.Client.Workspace)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taskboard.yaml"), []byte("client:\n  project: from-file\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Client.Project)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(*Config) error
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = " " }, func(c *Config) error { return c.ValidateServer(false) }},
		{"empty secret", func(c *Config) { c.Server.JWTSecret = "" }, func(c *Config) error { return c.ValidateServer(false) }},
		{"zero ttl", func(c *Config) { c.Server.TokenTTL = 0 }, func(c *Config) error { return c.ValidateServer(false) }},
		{"bad base url", func(c *Config) { c.Client.BaseURL = "localhost:8008" }, func(c *Config) error { return c.ValidateClient() }},
		{"no link workers", func(c *Config) { c.Client.LinkConcurrency = 0 }, func(c *Config) error { return c.ValidateClient() }},
		{"unknown exporter", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, func(c *Config) error { return c.ValidateClient() }},
		{"sample rate above one", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SampleRate = 2
		}, func(c *Config) error { return c.ValidateServer(false) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorIs(t, tt.check(cfg), ErrInvalidConfig)
		})
	}
}
