package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTMDB(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireTMDBKey reports a descriptive error when no TMDB API key is configured.
// Only commands that talk to the TMDB API call it; gap analysis works offline.
func (c *Config) RequireTMDBKey() error {
	if c.TMDB.APIKey != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/catalogsync/config.toml"
	}
	return fmt.Errorf("tmdb.api_key is required. Set TMDB_API_KEY env var or edit %s (create with 'catalogsync config init')", defaultPath)
}

func (c *Config) validateTMDB() error {
	if !strings.HasPrefix(c.TMDB.BaseURL, "http://") && !strings.HasPrefix(c.TMDB.BaseURL, "https://") {
		return fmt.Errorf("tmdb.base_url must be an http(s) url, got %q", c.TMDB.BaseURL)
	}
	if c.TMDB.RequestsPerSecond < minTMDBRequestsPerSecondLimit {
		return fmt.Errorf("tmdb.requests_per_second must be at least %.1f", minTMDBRequestsPerSecondLimit)
	}
	return nil
}

func (c *Config) validateResolver() error {
	if c.Resolver.MaxFallbackLevel < 1 || c.Resolver.MaxFallbackLevel > maxResolverFallbackLevel {
		return fmt.Errorf("resolver.max_fallback_level must be between 1 and %d", maxResolverFallbackLevel)
	}
	if c.Resolver.MinConfidence <= 0 || c.Resolver.MinConfidence > 1 {
		return errors.New("resolver.min_confidence must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateExport() error {
	if !strings.HasPrefix(c.Export.BaseURL, "http://") && !strings.HasPrefix(c.Export.BaseURL, "https://") {
		return fmt.Errorf("export.base_url must be an http(s) url, got %q", c.Export.BaseURL)
	}
	if c.Export.MinPopularity < 0 {
		return errors.New("export.min_popularity must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
