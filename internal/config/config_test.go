package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_PORT", "8000")
	t.Setenv("DB_USER", "farmwise")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "farmwise")
	t.Setenv("ACCESS_TOKEN_SECRET", "access")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, 10, cfg.RefreshTTLDays)
	assert.Equal(t, 4, cfg.Realtime.IngestWorkers)
	assert.Equal(t, 256, cfg.Realtime.QueueSize)
	assert.Zero(t, cfg.Realtime.TypingRPS)
	assert.Equal(t, "cloudinary", cfg.Upload.Backend)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_ReportsAllMissing(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "farmwise")
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "r")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT")
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_SECRET")
}

func TestLoad_RealtimeOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("WS_INGEST_WORKERS", "0")
	t.Setenv("WS_TYPING_RPS", "2.5")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Realtime.IngestWorkers)
	assert.Equal(t, 2.5, cfg.Realtime.TypingRPS)
	assert.True(t, cfg.IsProduction())
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestLoadCacheConfig_Methods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head ,")
	t.Setenv("CACHE_TTL", "bogus")

	cc := LoadCacheConfig()
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cc.Methods)
	assert.Equal(t, time.Minute, cc.TTL)
}
