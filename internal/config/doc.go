// Package config loads, normalizes, and validates catalogsync configuration.
//
// It owns the TOML schema, default values, sample file generation, and helpers
// for expanding user paths. Load searches the explicit --config path, then
// ~/.config/catalogsync/config.toml, then ./catalogsync.toml, and falls back to
// defaults when none exist. Environment variables fill secrets that are left
// blank in the file.
//
// Resolver thresholds live here as plain data and are handed to the resolver
// constructor; nothing reads them from package state at call time.
package config
