// Package resolver links a partial, possibly noisy movie reference (an
// external ID, a title, a release year) to a TMDB entity.
//
// Resolution runs a fixed cascade of strategies ordered from most to least
// precise. Each strategy has a precondition over the query and a flat
// confidence. Strategies whose precondition fails are skipped, the remainder
// is truncated to the configured depth, and the first strategy that returns an
// entity with confidence at or above the configured floor wins. Lookup errors
// never abort the cascade; they are recorded on the attempt trace so callers
// can tell an exhausted catalog from an unavailable provider.
package resolver
