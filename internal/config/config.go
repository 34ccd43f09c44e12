// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/streamshare/internal/policy"
)

// Config is the process configuration.
type Config struct {
	// DBDriver is "sqlite" or "postgres".
	DBDriver string
	// DBPath is the SQLite database file.
	DBPath string
	// DatabaseDSN is the PostgreSQL connection string.
	DatabaseDSN string

	// Windows are the access-data deadlines.
	Windows policy.Windows

	// SweepInterval is how often the overdue sweep runs.
	SweepInterval time.Duration

	// MaxConflictRetries bounds re-reads after a lost optimistic-lock race.
	MaxConflictRetries int

	// MetricsAddr is where /metrics is served. Empty disables it.
	MetricsAddr string

	// AdminEmails are system administrators who may manage any group.
	AdminEmails []string

	// CatalogFile is a YAML list of streaming services seeded at start-up.
	// Empty skips seeding.
	CatalogFile string

	LogLevel string
}

// LoadDotEnv reads KEY=value pairs from the given files (default ".env")
// into the environment without overriding variables that are already set.
// A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	defaults := policy.DefaultWindows()

	pendingDeadline, err := getDuration("PENDING_DEADLINE", defaults.PendingDeadline)
	if err != nil {
		return nil, err
	}
	sentGrace, err := getDuration("SENT_GRACE", defaults.SentGrace)
	if err != nil {
		return nil, err
	}
	pendingSweepAge, err := getDuration("PENDING_SWEEP_AGE", defaults.PendingSweepAge)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := getDuration("SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	retries, err := getInt("MAX_CONFLICT_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	dsn := getEnv("DATABASE_DSN", "")
	driver := strings.ToLower(getEnv("DB_DRIVER", ""))
	if driver == "" {
		if strings.HasPrefix(strings.ToLower(dsn), "postgres") {
			driver = "postgres"
		} else {
			driver = "sqlite"
		}
	}

	cfg := &Config{
		DBDriver:    driver,
		DBPath:      getEnv("DB_PATH", "./data/streamshare.db"),
		DatabaseDSN: dsn,
		Windows: policy.Windows{
			PendingDeadline: pendingDeadline,
			SentGrace:       sentGrace,
			PendingSweepAge: pendingSweepAge,
		},
		SweepInterval:      sweepInterval,
		MaxConflictRetries: retries,
		MetricsAddr:        getEnv("METRICS_ADDR", ":9090"),
		AdminEmails:        splitList(getEnv("ADMIN_EMAILS", "")),
		CatalogFile:        getEnv("CATALOG_FILE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH required for sqlite driver")
		}
	case "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN required for postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.Windows.PendingDeadline <= 0 || c.Windows.SentGrace <= 0 || c.Windows.PendingSweepAge <= 0 {
		return fmt.Errorf("access data windows must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
