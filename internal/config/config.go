// Package config reads service configuration from the environment. A .env
// file is auto-loaded for local development; real environment variables take
// precedence.
package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// StoreConfig holds PostgreSQL connection settings.
type StoreConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// LockoutConfig shapes the failed-login lockout policy.
type LockoutConfig struct {
	Threshold    int
	Duration     time.Duration
	RejectLocked bool
}

// TokenConfig holds token issuance settings. Secret has no default.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ThrottleConfig shapes per-identifier login throttling.
type ThrottleConfig struct {
	Interval time.Duration
	Burst    int
}

// Config is the full service configuration.
type Config struct {
	Store    StoreConfig
	Lockout  LockoutConfig
	Token    TokenConfig
	Throttle ThrottleConfig
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Store: StoreConfig{
			DSN:          getEnv("GHOSTID_PG_DSN", ""),
			MaxOpenConns: getEnvInt("GHOSTID_PG_MAX_OPEN_CONNS", 50),
			MaxIdleConns: getEnvInt("GHOSTID_PG_MAX_IDLE_CONNS", 25),
		},
		Lockout: LockoutConfig{
			Threshold:    getEnvInt("GHOSTID_LOCKOUT_THRESHOLD", 5),
			Duration:     getEnvDuration("GHOSTID_LOCKOUT_DURATION", 30*time.Minute),
			RejectLocked: getEnvBool("GHOSTID_LOCKOUT_REJECT", false),
		},
		Token: TokenConfig{
			Secret:     getEnv("GHOSTID_TOKEN_SECRET", ""),
			Issuer:     getEnv("GHOSTID_TOKEN_ISSUER", "ghostid"),
			AccessTTL:  getEnvDuration("GHOSTID_TOKEN_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getEnvDuration("GHOSTID_TOKEN_REFRESH_TTL", 14*24*time.Hour),
		},
		Throttle: ThrottleConfig{
			Interval: getEnvDuration("GHOSTID_THROTTLE_INTERVAL", time.Second),
			Burst:    getEnvInt("GHOSTID_THROTTLE_BURST", 5),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
