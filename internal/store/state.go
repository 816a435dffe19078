package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StateEntry is a single key/value row.
type StateEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// SetState writes value under key, replacing any previous value.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("state key required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_state (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, nowStamp())
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// SetStates writes several keys atomically.
func (s *Store) SetStates(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	stamp := nowStamp()
	for key, value := range values {
		if strings.TrimSpace(key) == "" {
			return errors.New("state key required")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv_state (key, value, updated_at) VALUES (?, ?, ?)
             ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, stamp); err != nil {
			return fmt.Errorf("set state %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// GetState reads key. The boolean reports whether the key exists.
func (s *Store) GetState(ctx context.Context, key string) (StateEntry, bool, error) {
	var (
		entry   = StateEntry{Key: key}
		updated sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM kv_state WHERE key = ?`, key).Scan(&entry.Value, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return StateEntry{}, false, nil
	}
	if err != nil {
		return StateEntry{}, false, fmt.Errorf("get state %s: %w", key, err)
	}
	entry.UpdatedAt = parseStamp(updated)
	return entry, true, nil
}
