// Package config centralises configuration parsing for the activity service.
package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration values for the activity service.
type Config struct {
	HTTPAddress         string
	DatabaseURL         string
	StoreConnectTimeout time.Duration
	StoreFallback       bool // Serve from memory when the configured store cannot be reached.
	StaticDir           string
	CORSAllowedOrigin   string
	KafkaBrokers        []string
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxMaxAttempts   int           // Failed deliveries before an event moves to the DLQ.
	DLQPollInterval     time.Duration // Interval between DLQ polling iterations.
	DLQMaxRetries       int           // Replays of a DLQ entry before it is quarantined.
	DLQBaseDelay        time.Duration // Base delay used for exponential backoff.
	MetricsAddress      string        // Listen address of the DLQ manager metrics endpoint.
}

// Load reads an optional .env file and environment variables into Config,
// applying sensible defaults for local dev.
func Load() Config {
	loadDotEnv(getEnv("ENV_FILE", ".env"))

	return Config{
		HTTPAddress:         getEnv("HTTP_ADDRESS", ":8000"),
		DatabaseURL:         getEnv("DATABASE_URL", "sqlite://data.db"),
		StoreConnectTimeout: getDurationEnv("STORE_CONNECT_TIMEOUT", 5*time.Second),
		StoreFallback:       getBoolEnv("STORE_FALLBACK", true),
		StaticDir:           getEnv("STATIC_DIR", "static"),
		CORSAllowedOrigin:   getEnv("CORS_ALLOWED_ORIGIN", ""),
		KafkaBrokers:        splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		OutboxPollInterval:  getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:     getIntEnv("OUTBOX_BATCH_SIZE", 25),
		OutboxMaxAttempts:   getIntEnv("OUTBOX_MAX_ATTEMPTS", 3),
		DLQPollInterval:     getDurationEnv("DLQ_POLL_INTERVAL", 30*time.Second),
		DLQMaxRetries:       getIntEnv("DLQ_MAX_RETRIES", 5),
		DLQBaseDelay:        getDurationEnv("DLQ_BASE_DELAY", time.Minute),
		MetricsAddress:      getEnv("METRICS_ADDRESS", ":9102"),
	}
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: ignoring %s: %v", path, err)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
