package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(false)
	require.NoError(t, err)

	assert.Equal(t, "relay.db", cfg.DBFile)
	assert.Equal(t, "localhost:8081", cfg.AdminAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 100, cfg.OutboxSize)
	assert.Equal(t, 5*time.Minute, cfg.UserCacheTTL)
	assert.Equal(t, BusDriverLocal, cfg.BusDriver)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("RELAY_DB", "/tmp/x.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OUTBOX_SIZE", "7")
	t.Setenv("BUS_DRIVER", "Redis")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(false)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", cfg.DBFile)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 7, cfg.OutboxSize)
	assert.Equal(t, BusDriverRedis, cfg.BusDriver)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"Bad TTL", "USER_CACHE_TTL", "soon"},
		{"Zero TTL", "USER_CACHE_TTL", "0s"},
		{"Bad outbox", "OUTBOX_SIZE", "lots"},
		{"Negative outbox", "OUTBOX_SIZE", "-1"},
		{"Bad level", "LOG_LEVEL", "loud"},
		{"Bad driver", "BUS_DRIVER", "kafka"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(false)
			assert.Error(t, err)
		})
	}
}

func TestLoad_CLIModeSkipsServerChecks(t *testing.T) {
	t.Setenv("BUS_DRIVER", "kafka")
	_, err := Load(true)
	assert.NoError(t, err)
}
