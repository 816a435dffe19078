package preflight

import (
	"context"

	"catalogsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config. The TMDB check
// is skipped when no API key is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Export cache", cfg.Paths.ExportCacheDir),
	}

	if cfg.TMDB.APIKey != "" {
		results = append(results, CheckTMDB(ctx, cfg.TMDB.BaseURL, cfg.TMDB.APIKey))
	} else {
		results = append(results, Result{Name: "TMDB API", Detail: "API key missing (set tmdb.api_key or TMDB_API_KEY)"})
	}
	results = append(results, CheckExportHost(ctx, cfg.Export.BaseURL))
	return results
}
