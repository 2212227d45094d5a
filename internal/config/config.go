package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings read from the environment (and an optional .env file).
type Config struct {
	DatabaseURL string
	AppEnv      string
	LogLevel    string
	DBMaxConns  int32

	// Cron specs for the reconciliation scheduler. Empty disables the job.
	ExcessCleanupSchedule string
	ReturnToLostSchedule  string
}

// Load reads .env (if present) and then the environment.
// DATABASE_URL is not validated here; commands that need a database call RequireDatabase.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		AppEnv:                envOr("APP_ENV", "production"),
		LogLevel:              strings.ToLower(envOr("LOG_LEVEL", "info")),
		ExcessCleanupSchedule: os.Getenv("RECONCILE_EXCESS_SCHEDULE"),
		ReturnToLostSchedule:  os.Getenv("RECONCILE_RETURN_SCHEDULE"),
	}

	if raw := os.Getenv("DB_MAX_CONNS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("DB_MAX_CONNS must be a positive integer, got %q", raw)
		}
		cfg.DBMaxConns = int32(n)
	}

	return cfg, nil
}

// IsDevelopment reports whether human-friendly console output should be used.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// RequireDatabase returns an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
