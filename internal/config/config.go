package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BusDriverLocal = "local"
	BusDriverRedis = "redis"
)

type Config struct {
	DBFile       string
	AdminAddr    string
	APIAddr      string
	BaseURL      string
	LogLevel     slog.Level
	OutboxSize   int
	UserCacheTTL time.Duration
	BusDriver    string
	RedisAddr    string
	RedisPrefix  string
}

func Load(cliMode bool) (*Config, error) {
	userCacheTTL, err := time.ParseDuration(getEnv("USER_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("USER_CACHE_TTL: %w", err)
	}

	outboxSize, err := strconv.Atoi(getEnv("OUTBOX_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("OUTBOX_SIZE: %w", err)
	}

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		DBFile:       getEnv("RELAY_DB", "relay.db"),
		AdminAddr:    getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:      getEnv("API_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:     logLevel,
		OutboxSize:   outboxSize,
		UserCacheTTL: userCacheTTL,
		BusDriver:    strings.ToLower(getEnv("BUS_DRIVER", BusDriverLocal)),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPrefix:  getEnv("REDIS_PREFIX", "relay:"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the server settings. In CLI mode only the admin
// address matters.
func (c *Config) Validate(cliMode bool) error {
	if c.AdminAddr == "" {
		return fmt.Errorf("ADMIN_ADDR is required")
	}
	if cliMode {
		return nil
	}

	if c.OutboxSize <= 0 {
		return fmt.Errorf("OUTBOX_SIZE must be greater than 0")
	}

	if c.UserCacheTTL <= 0 {
		return fmt.Errorf("USER_CACHE_TTL must be greater than 0")
	}

	switch c.BusDriver {
	case BusDriverLocal:
	case BusDriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when BUS_DRIVER=redis")
		}
	default:
		return fmt.Errorf("unknown BUS_DRIVER %q", c.BusDriver)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
