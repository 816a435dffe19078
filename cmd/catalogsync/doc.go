// Command catalogsync links local movie records to TMDB and reports how far
// the local catalog lags behind TMDB's daily ID exports.
//
// Subcommands:
//   - resolve: run the resolution cascade for one reference
//   - gap: reconcile the local catalog against a daily export
//   - catalog: add, list, import, and link local rows
//   - calls: summarize tracked lookups per strategy
//   - config: create, validate, and print configuration
//   - doctor: check directories and remote endpoints
package main
