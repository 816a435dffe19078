// Package tmdb provides the minimal TMDB API client used during entity
// resolution.
//
// It authenticates requests and exposes movie search with an optional
// release-year filter, external ID lookups through /find, and movie/person
// detail retrieval. Every request passes through a shared rate limiter and is
// bounded by the HTTP client timeout. Non-200 responses surface as
// *StatusError so callers can tell rate limiting and outages apart from
// ordinary misses. Options allow tests to supply custom HTTP clients without
// modifying production code.
package tmdb
