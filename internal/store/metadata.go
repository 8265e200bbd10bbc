package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// metadata keys. The metadata table is a singleton key-value
// collection for process-wide sync bookkeeping.
const (
	keyLastSync = "last_sync"
)

// LastSync returns the timestamp of the last fully successful sync
// pass, or the zero time if no pass has completed yet.
func (s *Store) LastSync(ctx context.Context) (time.Time, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = ?`, keyLastSync).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last_sync: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt last_sync value %q: %w", value, err)
	}
	return t, nil
}

// SetLastSync records the completion time of a successful sync pass.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.setMeta(ctx, keyLastSync, t.UTC().Format(time.RFC3339Nano))
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO metadata (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}
