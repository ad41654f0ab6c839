package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Server.RateLimitWindow)
	assert.Equal(t, 100, cfg.Server.RateLimitMax)
	assert.Equal(t, "", cfg.Redis.Addr)
	assert.False(t, cfg.SMTP.Enabled())
	assert.False(t, cfg.LLM.Enabled())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := `
server:
  port: "9000"
  env: prod
database:
  dsn: "postgres://from-yaml"
redis:
  addr: "localhost:6379"
llm:
  base_url: "http://llm.local"
  token: "yaml-token"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("DATABASE_URL", "postgres://from-env")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_MAX", "0")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "postgres://from-env", cfg.Database.DSN)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.Server.RateLimitWindow)
	assert.Zero(t, cfg.Server.RateLimitMax)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.LLM.Enabled())
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
