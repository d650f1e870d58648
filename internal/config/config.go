// Package config provides environment-driven configuration for the backup daemon.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Config holds all application configuration values.
type Config struct {
	DBDriver          string
	DatabaseURL       Secret
	DBMaxConns        int32
	TablePrefix       string
	RunMigrations     bool
	Port              string
	ListenHost        string
	CORSOrigins       []string
	LogLevel          string
	BackupDestination string
	WWWRoot           string
	BackupWorkers     int
	BackupQueueSize   int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DBDriver:          envOrDefault("DB_DRIVER", "postgres"),
		DatabaseURL:       Secret(envOrDefault("DATABASE_URL", "")),
		TablePrefix:       envOrDefault("TABLE_PREFIX", ""),
		RunMigrations:     envOrDefault("RUN_MIGRATIONS", "false") == "true",
		Port:              envOrDefault("PORT", "3040"),
		ListenHost:        envOrDefault("LISTEN_HOST", "127.0.0.1"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		BackupDestination: envOrDefault("BACKUP_DESTINATION", "file:///var/lib/anonforum/backups"),
		WWWRoot:           strings.TrimRight(envOrDefault("WWWROOT", ""), "/"),
	}

	workers, err := envInt("BACKUP_WORKERS", 4, 1, 16)
	if err != nil {
		return nil, err
	}
	cfg.BackupWorkers = workers

	queueSize, err := envInt("BACKUP_QUEUE_SIZE", 64, 1, 10000)
	if err != nil {
		return nil, err
	}
	cfg.BackupQueueSize = queueSize

	maxConns, err := envInt("DB_MAX_CONNS", 21, 2, 200)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxConns = int32(maxConns) //nolint:gosec // bounded above.

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:3002")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

// envInt reads an integer variable and checks it against [lo, hi].
func envInt(key string, fallback, lo, hi int) (int, error) {
	v, err := strconv.Atoi(envOrDefault(key, strconv.Itoa(fallback)))
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, lo, hi)
	}

	return v, nil
}
