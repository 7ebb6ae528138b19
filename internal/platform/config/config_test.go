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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 300*time.Second, cfg.Provider.TTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, []string{"/sign-in", "/sign-up"}, cfg.Session.PublicPaths)
	assert.Equal(t, devSessionSecret, cfg.Session.Secret)
	assert.False(t, cfg.Hosted.Enabled())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
provider:
  ttl: 60s
session:
  public_paths: ["/sign-in", "/sign-up", "/docs"]
hosted:
  issuer: https://id.example.com
  client_id: app
`), 0o600))

	t.Setenv("AUTHGATE_ADDR", ":7070")
	t.Setenv("AUTHGATE_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr, "env overrides file")
	assert.Equal(t, 60*time.Second, cfg.Provider.TTL)
	assert.Equal(t, []string{"/sign-in", "/sign-up", "/docs"}, cfg.Session.PublicPaths)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.KafkaBrokers)
	assert.True(t, cfg.Hosted.Enabled())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Run("production requires a secret", func(t *testing.T) {
		t.Setenv("AUTHGATE_ENV", EnvProduction)
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("production requires a long secret", func(t *testing.T) {
		t.Setenv("AUTHGATE_ENV", EnvProduction)
		t.Setenv("AUTHGATE_SESSION_SECRET", "short")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("AUTHGATE_PROVIDER_TTL", "soon")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("unknown env", func(t *testing.T) {
		t.Setenv("AUTHGATE_ENV", "staging")
		_, err := Load("")
		require.Error(t, err)
	})
}
