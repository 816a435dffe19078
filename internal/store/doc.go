// Package store persists the locally owned catalog in SQLite.
//
// It holds the movie and person rows whose TMDB IDs form the local universe
// for gap analysis, a small key/value table for baseline snapshots, and the
// api_calls table written by the tracking boundary. Schema changes ship as
// embedded SQL migrations applied in a single transaction on Open.
//
// Rows may exist without a TMDB ID; those are unlinked references waiting for
// the resolver and are excluded from LocalIDs.
package store
