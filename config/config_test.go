package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trilex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, TransportQuery, cfg.CredentialTransport)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Zero(t, cfg.Reconnect.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
endpoint: ws://localhost:8080/ws/socket/
credential_transport: header
write_timeout: 2s
reconnect:
  max_attempts: 3
  initial_interval: 100ms
archive:
  driver: sqlite
  path: /tmp/trilex.db
`)
	t.Setenv("TRILEX_ACCESS_TOKEN", "env-token")
	t.Setenv("TRILEX_RECONNECT_MAX_ATTEMPTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/ws/socket/", cfg.Endpoint)
	assert.Equal(t, TransportHeader, cfg.CredentialTransport)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Reconnect.InitialInterval)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxInterval)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, 7, cfg.Reconnect.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "endpoint: [unterminated"))
	assert.Error(t, err)
}

func TestBindFlagsOverride(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	BindFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"-token", "flag-token", "-reconnect", "2", "-credential-transport", "frame"}))

	assert.Equal(t, "flag-token", cfg.Token)
	assert.Equal(t, 2, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, TransportFrame, cfg.CredentialTransport)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http endpoint", func(c *Config) { c.Endpoint = "https://example.com/ws" }},
		{"unknown transport", func(c *Config) { c.CredentialTransport = "cookie" }},
		{"negative reconnect", func(c *Config) { c.Reconnect.MaxAttempts = -1 }},
		{"sqlite without path", func(c *Config) { c.Archive.Driver = "sqlite" }},
		{"mongo without uri", func(c *Config) { c.Archive.Driver = "mongo" }},
		{"unknown archive", func(c *Config) { c.Archive.Driver = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseFlagsLayersFileAndFlags(t *testing.T) {
	path := writeConfig(t, `
endpoint: ws://file.test/ws/socket/
log_level: debug
`)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	room := fs.String("room", "", "room")

	cfg, err := ParseFlags(fs, []string{"-room", "r1", "--config=" + path, "-log-level", "warn"})
	require.NoError(t, err)

	assert.Equal(t, "r1", *room)
	assert.Equal(t, "ws://file.test/ws/socket/", cfg.Endpoint)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "a.yaml", configPath([]string{"-config", "a.yaml"}))
	assert.Equal(t, "b.yaml", configPath([]string{"-x", "--config=b.yaml"}))
	assert.Empty(t, configPath([]string{"-token", "abc"}))
	assert.Empty(t, configPath([]string{"-config"}))
}
