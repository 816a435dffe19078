// Package tracking wraps every external catalog lookup so that its source,
// operation, fallback level, latency, and outcome are observable.
//
// A Tracker is transparent: the wrapped function writes its results into
// caller-owned variables and Track hands back the function's error unchanged.
// Functions report an empty lookup by returning ErrNoCandidate, which lets
// trackers tell "matched" apart from "nothing found" without inspecting
// payloads.
package tracking
