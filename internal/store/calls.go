package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CallRecord is one tracked external lookup.
type CallRecord struct {
	ID            string
	Source        string
	Operation     string
	Key           string
	FallbackLevel int
	Confidence    float64
	Strategy      string
	Outcome       string
	ErrorMessage  string
	Latency       time.Duration
	Metadata      map[string]string
	CreatedAt     time.Time
}

// StrategySummary aggregates recorded calls for one strategy.
type StrategySummary struct {
	Strategy      string
	FallbackLevel int
	Calls         int
	Matched       int
	NoCandidate   int
	Errors        int
	AvgLatency    time.Duration
}

// SuccessRate returns the matched share of calls as a percentage.
func (s StrategySummary) SuccessRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Calls) * 100
}

// RecordCall persists a tracked call.
func (s *Store) RecordCall(ctx context.Context, rec CallRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("call id required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var metadata any
	if len(rec.Metadata) > 0 {
		encoded, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode call metadata: %w", err)
		}
		metadata = string(encoded)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_calls (id, source, operation, call_key, fallback_level, confidence, strategy,
             outcome, error_message, latency_ms, metadata_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Source,
		rec.Operation,
		nullableString(rec.Key),
		nullableInt(rec.FallbackLevel),
		rec.Confidence,
		nullableString(rec.Strategy),
		rec.Outcome,
		nullableString(rec.ErrorMessage),
		rec.Latency.Milliseconds(),
		metadata,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// RecentCalls returns the newest recorded calls first.
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, operation, call_key, fallback_level, confidence, strategy, outcome,
             error_message, latency_ms, metadata_json, created_at
         FROM api_calls ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []CallRecord
	for rows.Next() {
		var (
			rec        CallRecord
			key        sql.NullString
			level      sql.NullInt64
			confidence sql.NullFloat64
			strategy   sql.NullString
			errMsg     sql.NullString
			latencyMS  int64
			metadata   sql.NullString
			created    sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Operation, &key, &level, &confidence, &strategy,
			&rec.Outcome, &errMsg, &latencyMS, &metadata, &created); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		rec.Key = key.String
		rec.FallbackLevel = int(level.Int64)
		rec.Confidence = confidence.Float64
		rec.Strategy = strategy.String
		rec.ErrorMessage = errMsg.String
		rec.Latency = time.Duration(latencyMS) * time.Millisecond
		rec.CreatedAt = parseStamp(created)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode call metadata %s: %w", rec.ID, err)
			}
		}
		calls = append(calls, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// CallSummary groups recorded calls by strategy, ordered by fallback level.
// Calls recorded since the given time are included; a zero time means all.
func (s *Store) CallSummary(ctx context.Context, since time.Time) ([]StrategySummary, error) {
	query := `SELECT COALESCE(strategy, operation), COALESCE(fallback_level, 0), COUNT(1),
             SUM(CASE WHEN outcome = 'matched' THEN 1 ELSE 0 END),
             SUM(CASE WHEN outcome = 'no_candidate' THEN 1 ELSE 0 END),
             SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END),
             AVG(latency_ms)
         FROM api_calls`
	args := []any{}
	if !since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += ` GROUP BY 1, 2 ORDER BY 2, 1`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize calls: %w", err)
	}
	defer rows.Close()

	var summaries []StrategySummary
	for rows.Next() {
		var (
			summary StrategySummary
			avg     sql.NullFloat64
		)
		if err := rows.Scan(&summary.Strategy, &summary.FallbackLevel, &summary.Calls,
			&summary.Matched, &summary.NoCandidate, &summary.Errors, &avg); err != nil {
			return nil, fmt.Errorf("scan call summary: %w", err)
		}
		summary.AvgLatency = time.Duration(avg.Float64 * float64(time.Millisecond))
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call summary: %w", err)
	}
	return summaries, nil
}
