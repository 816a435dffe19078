package tracking

import (
	"context"
	"errors"
	"time"
)

// ErrNoCandidate signals a lookup that completed without producing an entity.
var ErrNoCandidate = errors.New("no candidate")

// Outcome classifies a tracked call.
type Outcome string

const (
	OutcomeMatched     Outcome = "matched"
	OutcomeNoCandidate Outcome = "no_candidate"
	OutcomeError       Outcome = "error"
)

// Classify maps a wrapped function's error onto an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeMatched
	case errors.Is(err, ErrNoCandidate):
		return OutcomeNoCandidate
	default:
		return OutcomeError
	}
}

// Call describes one external lookup.
type Call struct {
	Source        string
	Operation     string
	Key           string
	FallbackLevel int
	Confidence    float64
	Metadata      map[string]string
}

// Strategy returns the strategy name carried in metadata, if any.
func (c Call) Strategy() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata["strategy_name"]
}

// Tracker observes external lookups.
type Tracker interface {
	Track(ctx context.Context, call Call, fn func(context.Context) error) error
}

// Nop runs the function without observing it.
type Nop struct{}

// Track implements Tracker.
func (Nop) Track(ctx context.Context, _ Call, fn func(context.Context) error) error {
	return fn(ctx)
}

// Multi fans a call out to several trackers. The function runs exactly once.
type Multi []Tracker

// Track implements Tracker.
func (m Multi) Track(ctx context.Context, call Call, fn func(context.Context) error) error {
	wrapped := fn
	for i := len(m) - 1; i >= 0; i-- {
		tracker := m[i]
		if tracker == nil {
			continue
		}
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return tracker.Track(ctx, call, inner)
		}
	}
	return wrapped(ctx)
}

func timed(ctx context.Context, fn func(context.Context) error) (time.Duration, error) {
	start := time.Now()
	err := fn(ctx)
	return time.Since(start), err
}
