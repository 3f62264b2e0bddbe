package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	path := writeFile(t, "config.yml", `
api:
  timeout: 3s
  rate_limit: 2.5
redis:
  address: redis:6379
  ttl: 2h
dogs:
  photos: false
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, 60, cfg.Telegram.Timeout)
	assert.Equal(t, "https://frontend-take-home-service.fetch.com", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2.5, cfg.API.RateLimit)
	assert.Equal(t, 10, cfg.API.Burst)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, 2*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, time.Hour, cfg.Breeds.Cache.TTL)
	assert.False(t, cfg.Dogs.Photos)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	t.Setenv("DOGFINDER_REDIS_DB", "3")
	// registered so the variable loaded from the file is cleaned up too
	t.Setenv("TELEGRAM_TOKEN", "")
	os.Unsetenv("TELEGRAM_TOKEN")

	envFile := writeFile(t, ".env", "TELEGRAM_TOKEN=from-dotenv\n")
	path := writeFile(t, "config.yml", "log:\n  level: warn\n")

	cfg, err := Load(path, envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.Telegram.Token)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, slog.LevelWarn, cfg.Log.SlogLevel())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		content string
	}{
		{"missing token", "", "log:\n  level: info\n"},
		{"bad level", "t", "log:\n  level: loud\n"},
		{"bad base url", "t", "api:\n  base_url: not a url\n"},
		{"bad redis address", "t", "redis:\n  address: redis\n"},
		{"zero burst", "t", "api:\n  burst: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TELEGRAM_TOKEN", tt.token)
			_, err := Load(writeFile(t, "config.yml", tt.content))
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "t")
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorContains(t, err, "read config")
}
