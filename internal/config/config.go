// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/atmx/stocker/internal/ticker"
)

// Config holds application configuration
type Config struct {
	Port         int
	DatabaseURL  string // Postgres; takes precedence over DatabasePath
	DatabasePath string // SQLite file
	RedisURL     string
	NameCacheTTL time.Duration // 0 keeps names for the cache's lifetime
	ScanInterval time.Duration
	QuoteTimeout time.Duration
	AckDeadline  time.Duration
	TickerSuffix string
	LogLevel     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DatabasePath: getEnv("DATABASE_PATH", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		NameCacheTTL: getEnvAsDuration("NAME_CACHE_TTL", 0),
		ScanInterval: getEnvAsDuration("SCAN_INTERVAL", 5*time.Minute),
		QuoteTimeout: getEnvAsDuration("QUOTE_TIMEOUT", 10*time.Second),
		AckDeadline:  getEnvAsDuration("ACK_DEADLINE", 3*time.Second),
		TickerSuffix: strings.ToUpper(getEnv("TICKER_SUFFIX", ticker.DefaultSuffix)),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive")
	}
	if c.QuoteTimeout <= 0 {
		return fmt.Errorf("QUOTE_TIMEOUT must be positive")
	}
	if c.AckDeadline <= 0 {
		return fmt.Errorf("ACK_DEADLINE must be positive")
	}
	if c.NameCacheTTL < 0 {
		return fmt.Errorf("NAME_CACHE_TTL must not be negative")
	}
	if !ticker.IsKnownSuffix(c.TickerSuffix) {
		return fmt.Errorf("TICKER_SUFFIX %q is not a recognized exchange suffix", c.TickerSuffix)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
