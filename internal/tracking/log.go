package tracking

import (
	"context"
	"log/slog"

	"catalogsync/internal/logging"
)

// LogTracker emits one structured log line per call.
type LogTracker struct {
	logger *slog.Logger
}

// NewLogTracker constructs a LogTracker. A nil logger discards output.
func NewLogTracker(logger *slog.Logger) *LogTracker {
	return &LogTracker{logger: logging.NewComponentLogger(logger, "tracking")}
}

// Track implements Tracker.
func (t *LogTracker) Track(ctx context.Context, call Call, fn func(context.Context) error) error {
	latency, err := timed(ctx, fn)
	outcome := Classify(err)

	attrs := []logging.Attr{
		logging.String("source", call.Source),
		logging.String("operation", call.Operation),
		logging.String("key", call.Key),
		logging.Int("fallback_level", call.FallbackLevel),
		logging.Float64("confidence", call.Confidence),
		logging.String("outcome", string(outcome)),
		logging.Duration("latency", latency),
	}
	if strategy := call.Strategy(); strategy != "" {
		attrs = append(attrs, logging.String(logging.FieldStrategy, strategy))
	}
	logger := logging.WithContext(ctx, t.logger)
	if outcome == OutcomeError {
		attrs = append(attrs, logging.Error(err))
		logging.WarnWithContext(logger, "external lookup failed", "lookup_failed",
			append(attrs,
				logging.String(logging.FieldErrorHint, "check TMDB availability and API key"),
				logging.String(logging.FieldImpact, "resolution continues with the next strategy"),
			)...)
		return err
	}
	logger.Debug("external lookup", logging.Args(attrs...)...)
	return err
}
