// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay process.
type Config struct {
	Port string
	Env  string

	// Transport
	AllowedOrigins []string
	MaxMessageSize int64

	// Per-connection message rate limiting
	RateLimitBurst  int
	RateLimitRefill time.Duration

	// Stale-session sweeping
	SweepInterval  time.Duration
	SessionIdleTTL time.Duration

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, falling back to
// defaults. In development a .env file is honored if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		AllowedOrigins:  parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:8080")),
		MaxMessageSize:  parseInt64(os.Getenv("MAX_MESSAGE_SIZE"), 4096),
		RateLimitBurst:  parseInt(os.Getenv("RATE_LIMIT_BURST"), 10),
		RateLimitRefill: parseDuration(os.Getenv("RATE_LIMIT_REFILL_INTERVAL"), time.Second),
		SweepInterval:   parseDuration(os.Getenv("SWEEP_INTERVAL"), time.Hour),
		SessionIdleTTL:  parseDuration(os.Getenv("SESSION_IDLE_TTL"), 24*time.Hour),
		ShutdownTimeout: parseDuration(os.Getenv("SHUTDOWN_TIMEOUT"), 30*time.Second),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func parseInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseInt64(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}
