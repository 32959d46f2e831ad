package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Channel endpoints
	RequestHost string
	RequestPort int
	PushHost    string
	PushPort    int
	ReplyHost   string
	ReplyPort   int

	// Series identity (fixed per overlay session)
	Symbol      string
	Resolution  string
	PeriodCount int
	SeriesKind  string

	// Infrastructure
	MetricsAddr   string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string

	// Optional shared TOTP secret for link authentication ("" disables it)
	LinkTOTPSecret string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RequestHost: getEnv("CHAN_REQUEST_HOST", "localhost"),
		RequestPort: getEnvInt("CHAN_REQUEST_PORT", 5555),
		PushHost:    getEnv("CHAN_PUSH_HOST", "localhost"),
		PushPort:    getEnvInt("CHAN_PUSH_PORT", 5556),
		ReplyHost:   getEnv("CHAN_REPLY_HOST", "localhost"),
		ReplyPort:   getEnvInt("CHAN_REPLY_PORT", 5557),

		Symbol:      getEnv("SERIES_SYMBOL", "NIFTY"),
		Resolution:  getEnv("SERIES_RESOLUTION", "minute"),
		PeriodCount: getEnvInt("SERIES_PERIOD_COUNT", 14),
		SeriesKind:  getEnv("SERIES_KIND", "sma"),

		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		LinkTOTPSecret: getEnv("LINK_TOTP_SECRET", ""),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
