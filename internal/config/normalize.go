package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTMDB()
	c.normalizeExport()
	c.normalizeResolver()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ExportCacheDir) == "" {
		c.Paths.ExportCacheDir = defaultExportCacheDir
	}
	if c.Paths.ExportCacheDir, err = expandPath(c.Paths.ExportCacheDir); err != nil {
		return fmt.Errorf("paths.export_cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = filepath.Join(c.Paths.DataDir, defaultDatabaseFile)
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeTMDB() {
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.RequestsPerSecond == 0 {
		c.TMDB.RequestsPerSecond = defaultTMDBRequestsPerSecond
	}
	if c.TMDB.TimeoutSeconds <= 0 {
		c.TMDB.TimeoutSeconds = defaultTMDBTimeoutSeconds
	}
}

func (c *Config) normalizeExport() {
	c.Export.BaseURL = strings.TrimRight(strings.TrimSpace(c.Export.BaseURL), "/")
	if c.Export.BaseURL == "" {
		c.Export.BaseURL = defaultExportBaseURL
	}
	if c.Export.DownloadTimeoutSeconds <= 0 {
		c.Export.DownloadTimeoutSeconds = defaultExportDownloadTimeout
	}
}

func (c *Config) normalizeResolver() {
	if c.Resolver.MaxFallbackLevel == 0 {
		c.Resolver.MaxFallbackLevel = defaultResolverMaxFallback
	}
	if c.Resolver.MinConfidence == 0 {
		c.Resolver.MinConfidence = defaultResolverMinConfidence
	}
	if c.Resolver.BatchWorkers <= 0 {
		c.Resolver.BatchWorkers = defaultResolverBatchWorkers
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.FileMaxSizeMB <= 0 {
		c.Logging.FileMaxSizeMB = defaultLogFileMaxSizeMB
	}
	if c.Logging.FileMaxBackups < 0 {
		c.Logging.FileMaxBackups = 0
	}
	if c.Logging.FileMaxAgeDays < 0 {
		c.Logging.FileMaxAgeDays = 0
	}
}
