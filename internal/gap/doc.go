// Package gap reconciles a TMDB daily export against the local catalog.
//
// An Analyzer is bound to one entity kind and computes which export IDs are
// missing locally, which local IDs no longer appear in the export, coverage
// overall and per popularity tier, and import recommendations for the most
// popular tiers. ExportStats is the cheap scalar-only variant used for
// incremental checks, and UpdateBaseline persists a snapshot of the export
// size for later comparison.
package gap
