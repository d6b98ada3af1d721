/*
Package config loads server configuration.

PURPOSE:
  Reads configuration from the environment, with a .env file loaded
  first when present (godotenv). Flags in cmd/server override whatever
  the environment provides.

VARIABLES:
  PORT              HTTP port (default 8080)
  DATABASE_PATH     SQLite file path (default leave.db, ":memory:" works)
  ALLOWED_ORIGINS   Comma-separated CORS origins
  SCHEDULER_ENABLED "false" disables the in-process job scheduler
  CHECK_INTERVAL    Scheduler wake interval (Go duration, default 1h)
  LOG_LEVEL         zap level: debug, info, warn, error (default info)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	DatabasePath     string
	AllowedOrigins   []string
	SchedulerEnabled bool
	CheckInterval    time.Duration
	LogLevel         string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg := &Config{
		Port:             8080,
		DatabasePath:     "leave.db",
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		SchedulerEnabled: true,
		CheckInterval:    time.Hour,
		LogLevel:         "info",
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", raw, err)
		}
		cfg.Port = port
	}
	if raw := os.Getenv("DATABASE_PATH"); raw != "" {
		cfg.DatabasePath = raw
	}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		parts := strings.Split(raw, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		cfg.AllowedOrigins = origins
	}
	if raw := os.Getenv("SCHEDULER_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_ENABLED %q: %w", raw, err)
		}
		cfg.SchedulerEnabled = enabled
	}
	if raw := os.Getenv("CHECK_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CHECK_INTERVAL %q: %w", raw, err)
		}
		cfg.CheckInterval = interval
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}

	return cfg, nil
}
