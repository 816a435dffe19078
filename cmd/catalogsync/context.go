package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"catalogsync/internal/catalog"
	"catalogsync/internal/config"
	"catalogsync/internal/export"
	"catalogsync/internal/gap"
	"catalogsync/internal/logging"
	"catalogsync/internal/resolver"
	"catalogsync/internal/store"
	"catalogsync/internal/tmdb"
	"catalogsync/internal/tracking"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	logCloser  io.Closer

	storeOnce sync.Once
	store     *store.Store
	storeErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.configPath = resolved
		c.configExists = exists
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// loggerFor returns the process logger, writing console output to the
// command's stderr so stdout stays reserved for reports.
func (c *commandContext) loggerFor(cmd *cobra.Command) *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, _ := c.ensureConfig()
		logger, closer, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr())
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "logging disabled: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
		c.logCloser = closer
	})
	return c.logger
}

func (c *commandContext) openStore() (*store.Store, error) {
	c.storeOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.storeErr = err
			return
		}
		c.store, c.storeErr = store.Open(cfg)
	})
	return c.store, c.storeErr
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
	}
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}

func (c *commandContext) tmdbClient() (*tmdb.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireTMDBKey(); err != nil {
		return nil, err
	}
	return tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language,
		tmdb.WithTimeout(cfg.TMDBTimeout()),
		tmdb.WithRateLimit(cfg.TMDB.RequestsPerSecond),
	)
}

func (c *commandContext) tracker(cmd *cobra.Command) (tracking.Tracker, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Tracking.Enabled {
		return tracking.Nop{}, nil
	}
	logger := c.loggerFor(cmd)
	trackers := tracking.Multi{tracking.NewLogTracker(logger)}
	if cfg.Tracking.Persist {
		st, err := c.openStore()
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, tracking.NewStoreTracker(st, logger))
	}
	return trackers, nil
}

func (c *commandContext) resolver(cmd *cobra.Command, depth int, floor float64) (*resolver.Resolver, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := c.tmdbClient()
	if err != nil {
		return nil, err
	}
	tracker, err := c.tracker(cmd)
	if err != nil {
		return nil, err
	}
	rcfg := resolver.Config{
		MaxFallbackLevel: cfg.Resolver.MaxFallbackLevel,
		MinConfidence:    cfg.Resolver.MinConfidence,
	}
	if depth > 0 {
		rcfg.MaxFallbackLevel = depth
	}
	if floor > 0 {
		rcfg.MinConfidence = floor
	}
	return resolver.New(client, rcfg, tracker, c.loggerFor(cmd))
}

func (c *commandContext) acquirer(cmd *cobra.Command) (*export.Acquirer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return export.NewAcquirer(cfg.Export.BaseURL, cfg.Paths.ExportCacheDir, cfg.ExportDownloadTimeout(), c.loggerFor(cmd)), nil
}

func (c *commandContext) analyzer(cmd *cobra.Command, kind catalog.Kind) (*gap.Analyzer, error) {
	st, err := c.openStore()
	if err != nil {
		return nil, err
	}
	acq, err := c.acquirer(cmd)
	if err != nil {
		return nil, err
	}
	logger := c.loggerFor(cmd)
	return gap.NewAnalyzer(kind, acq, export.NewReader(logger), st, st, logger)
}

func parseKindFlag(value string) (catalog.Kind, error) {
	kind, err := catalog.ParseKind(value)
	if err != nil {
		return "", fmt.Errorf("--kind: %w", err)
	}
	return kind, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func terseError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, export.ErrFileNotFound) {
		return fmt.Errorf("%s: no export file available (%v); run without --cached-only to download", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
