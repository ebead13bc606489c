package config

import (
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	// Ledger
	InitialCapital decimal.Decimal

	// Listeners
	APIAddr     string
	MetricsAddr string

	// Persistence: "sqlite", "redis", or "none"
	StoreBackend  string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string

	// Price feed WebSocket URL; empty disables the feed (prices can
	// still be pushed via POST /api/v1/prices).
	PriceFeedURL string

	// Base32 TOTP secret arming the demo→live transition; empty
	// disables the check.
	LiveModeTOTPSecret string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		InitialCapital: mustDecimal("LEDGER_INITIAL_CAPITAL", "100000"),

		APIAddr:     getEnv("API_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		SQLitePath:    getEnv("SQLITE_PATH", "data/paperledger.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		PriceFeedURL: getEnv("PRICE_FEED_URL", ""),

		LiveModeTOTPSecret: getEnv("LIVE_MODE_TOTP_SECRET", ""),
	}
}

func mustDecimal(key, fallback string) decimal.Decimal {
	raw := getEnv(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil || d.LessThanOrEqual(decimal.Zero) {
		log.Fatalf("[config] %s must be a positive decimal, got %q", key, raw)
	}
	return d
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
