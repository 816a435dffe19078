// Package logging assembles structured slog loggers and formatting helpers used
// across catalogsync.
//
// It owns the console and JSON handlers, routes file output through a
// size-rotated writer, and exposes attribute helpers plus a context-carried
// correlation ID so resolver and gap analysis logs line up per invocation. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape as the rest of the system.
package logging
