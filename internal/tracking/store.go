package tracking

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"catalogsync/internal/logging"
	"catalogsync/internal/store"
)

// Recorder persists call records.
type Recorder interface {
	RecordCall(ctx context.Context, rec store.CallRecord) error
}

// StoreTracker persists every call to the api_calls table.
type StoreTracker struct {
	recorder Recorder
	logger   *slog.Logger
}

// NewStoreTracker constructs a StoreTracker backed by recorder.
func NewStoreTracker(recorder Recorder, logger *slog.Logger) *StoreTracker {
	return &StoreTracker{recorder: recorder, logger: logging.NewComponentLogger(logger, "tracking")}
}

// Track implements Tracker. Persistence failures are logged and never
// replace the wrapped function's error.
func (t *StoreTracker) Track(ctx context.Context, call Call, fn func(context.Context) error) error {
	latency, err := timed(ctx, fn)
	if t.recorder == nil {
		return err
	}

	rec := store.CallRecord{
		ID:            uuid.NewString(),
		Source:        call.Source,
		Operation:     call.Operation,
		Key:           call.Key,
		FallbackLevel: call.FallbackLevel,
		Confidence:    call.Confidence,
		Strategy:      call.Strategy(),
		Outcome:       string(Classify(err)),
		Latency:       latency,
		Metadata:      call.Metadata,
	}
	if rec.Outcome == string(OutcomeError) && err != nil {
		rec.ErrorMessage = err.Error()
	}
	// Record even when the caller's context is already done.
	if recErr := t.recorder.RecordCall(context.WithoutCancel(ctx), rec); recErr != nil {
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "call record not persisted", "tracking_persist_failed",
			logging.String("operation", call.Operation),
			logging.Error(recErr),
			logging.String(logging.FieldErrorHint, "check database permissions and disk space"),
			logging.String(logging.FieldImpact, "call statistics will be incomplete"),
		)
	}
	return err
}
