package config

const (
	defaultDataDir                = "~/.local/share/catalogsync"
	defaultLogDir                 = "~/.local/share/catalogsync/logs"
	defaultExportCacheDir         = "~/.cache/catalogsync/exports"
	defaultDatabaseFile           = "catalog.db"
	defaultTMDBBaseURL            = "https://api.themoviedb.org/3"
	defaultTMDBLanguage           = "en-US"
	defaultTMDBRequestsPerSecond  = 4.0
	defaultTMDBTimeoutSeconds     = 10
	defaultExportBaseURL          = "https://files.tmdb.org/p/exports"
	defaultExportDownloadTimeout  = 600
	defaultResolverMaxFallback    = 3
	defaultResolverMinConfidence  = 0.7
	defaultResolverBatchWorkers   = 4
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogFileMaxSizeMB       = 50
	defaultLogFileMaxBackups      = 5
	defaultLogFileMaxAgeDays      = 30
	maxResolverFallbackLevel      = 6
	minTMDBRequestsPerSecondLimit = 0.1
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:        defaultDataDir,
			LogDir:         defaultLogDir,
			ExportCacheDir: defaultExportCacheDir,
		},
		TMDB: TMDB{
			BaseURL:           defaultTMDBBaseURL,
			Language:          defaultTMDBLanguage,
			RequestsPerSecond: defaultTMDBRequestsPerSecond,
			TimeoutSeconds:    defaultTMDBTimeoutSeconds,
		},
		Export: Export{
			BaseURL:                defaultExportBaseURL,
			DownloadTimeoutSeconds: defaultExportDownloadTimeout,
			SkipVideo:              true,
			SkipAdult:              true,
		},
		Resolver: Resolver{
			MaxFallbackLevel: defaultResolverMaxFallback,
			MinConfidence:    defaultResolverMinConfidence,
			BatchWorkers:     defaultResolverBatchWorkers,
		},
		Tracking: Tracking{
			Enabled: true,
			Persist: true,
		},
		Logging: Logging{
			Format:         defaultLogFormat,
			Level:          defaultLogLevel,
			FileMaxSizeMB:  defaultLogFileMaxSizeMB,
			FileMaxBackups: defaultLogFileMaxBackups,
			FileMaxAgeDays: defaultLogFileMaxAgeDays,
		},
	}
}
