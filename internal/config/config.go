package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// DatabasePath is the SQLite database file path.
	DatabasePath string

	// PageSize is the number of posts per feed page, shared by every scope.
	PageSize int

	// CacheTTL is how long the cached home timeline stays fresh.
	CacheTTL time.Duration

	// SessionMaxAge is how long a login session lasts.
	SessionMaxAge time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          8080,
		DatabasePath:  "microblog.db",
		PageSize:      10,
		CacheTTL:      20 * time.Second,
		SessionMaxAge: 24 * time.Hour,
	}

	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = port
	}

	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}

	if s := os.Getenv("PAGE_SIZE"); s != "" {
		size, err := strconv.Atoi(s)
		if err != nil || size < 1 {
			return nil, fmt.Errorf("PAGE_SIZE must be a positive integer, got %q", s)
		}
		cfg.PageSize = size
	}

	if s := os.Getenv("CACHE_TTL"); s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("CACHE_TTL must be a non-negative number of seconds, got %q", s)
		}
		cfg.CacheTTL = time.Duration(secs) * time.Second
	}

	if s := os.Getenv("SESSION_MAX_AGE"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_MAX_AGE: %w", err)
		}
		cfg.SessionMaxAge = d
	}

	return cfg, nil
}
