package database

import (
	"context"
	"fmt"
	"time"
)

// Event kinds recorded in the activity log.
const (
	KindHeartbeat  = "heartbeat"
	KindConnection = "connection"
	KindRelay      = "relay"
	KindRequest    = "request"
)

// ActivityEvent is one row of the activity log.
type ActivityEvent struct {
	ID        int64
	Timestamp time.Time
	Kind      string
	ClientID  string
	Topic     string
	Detail    string
}

// ActivityStore persists daemon events for later inspection. All methods
// are safe for concurrent use; writes serialise on the single SQLite
// connection.
type ActivityStore struct {
	db *DB
}

// NewActivityStore wraps an open database. Migrate must have been run.
func NewActivityStore(db *DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// Record appends one event.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - kind: One of the Kind constants
//   - clientID, topic, detail: Event attributes; empty strings are fine
//
// Returns:
//   - error: If the insert fails
func (s *ActivityStore) Record(ctx context.Context, kind, clientID, topic, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity (ts, kind, client_id, topic, detail)
		VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		kind, clientID, topic, detail,
	)
	if err != nil {
		return fmt.Errorf("recording %s event: %w", kind, err)
	}
	return nil
}

// Recent returns the newest events of a kind, most recent first. An empty
// kind returns events of every kind.
func (s *ActivityStore) Recent(ctx context.Context, kind string, limit int) ([]ActivityEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, ts, kind, client_id, topic, detail FROM activity
		WHERE (? = '' OR kind = ?)
		ORDER BY id DESC LIMIT ?`
	rows, err := s.db.DB.QueryContext(ctx, query, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var events []ActivityEvent
	for rows.Next() {
		var e ActivityEvent
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.ClientID, &e.Topic, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts) //nolint:errcheck // Format is controlled
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}
	return events, nil
}

// CountByKind returns how many events of a kind are stored.
func (s *ActivityStore) CountByKind(ctx context.Context, kind string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM activity WHERE kind = ?", kind,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s events: %w", kind, err)
	}
	return n, nil
}

// Prune deletes events older than the retention window and returns how
// many rows were removed. A non-positive retention is a no-op.
func (s *ActivityStore) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx, "DELETE FROM activity WHERE ts < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning activity: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading prune count: %w", err)
	}
	return removed, nil
}
