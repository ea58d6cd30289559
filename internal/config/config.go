// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	FrontendURL   string `env:"FRONTEND_URL"`
	DBPath        string `env:"DB_PATH" envDefault:"./data/fauxto.db"`
	ContentDir    string `env:"CONTENT_DIR" envDefault:"./content"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"/static"`

	Resolver    ResolverConfig
	CatalogSync CatalogSyncConfig
	ActivityLog ActivityLogConfig

	ActivityRingSize int `env:"ACTIVITY_RING_SIZE" envDefault:"256"`
}

// ResolverConfig controls the dataset manifest micro-cache.
type ResolverConfig struct {
	CacheSize int           `env:"RESOLVER_CACHE_SIZE" envDefault:"128"`
	CacheTTL  time.Duration `env:"RESOLVER_CACHE_TTL"  envDefault:"30s"`
}

// CatalogSyncConfig controls periodic catalog reconciliation.
type CatalogSyncConfig struct {
	Enabled  bool          `env:"CATALOG_SYNC_ENABLED"  envDefault:"true"`
	Interval time.Duration `env:"CATALOG_SYNC_INTERVAL" envDefault:"5m"`
}

// ActivityLogConfig controls NDJSON activity journaling.
type ActivityLogConfig struct {
	Enabled   bool   `env:"ACTIVITY_LOG_ENABLED"    envDefault:"true"`
	Path      string `env:"ACTIVITY_LOG_PATH"       envDefault:"./data/logs/activity.ndjson"`
	QueueSize int    `env:"ACTIVITY_LOG_QUEUE_SIZE" envDefault:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ContentDir == "" {
		return fmt.Errorf("CONTENT_DIR cannot be empty")
	}
	if c.PublicBaseURL == "" {
		return fmt.Errorf("PUBLIC_BASE_URL cannot be empty")
	}
	if c.Resolver.CacheSize <= 0 {
		return fmt.Errorf("RESOLVER_CACHE_SIZE must be > 0")
	}
	if c.Resolver.CacheTTL <= 0 {
		return fmt.Errorf("RESOLVER_CACHE_TTL must be > 0")
	}
	if c.CatalogSync.Enabled && c.CatalogSync.Interval <= 0 {
		return fmt.Errorf("CATALOG_SYNC_INTERVAL must be > 0")
	}
	if c.ActivityLog.Enabled && c.ActivityLog.Path == "" {
		return fmt.Errorf("ACTIVITY_LOG_PATH cannot be empty")
	}
	if c.ActivityLog.QueueSize <= 0 {
		return fmt.Errorf("ACTIVITY_LOG_QUEUE_SIZE must be > 0")
	}
	if c.ActivityRingSize <= 0 {
		return fmt.Errorf("ACTIVITY_RING_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
