package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists events in the behavior_events table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open lib/pq connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts the event. Ids are unique, so a replayed append with the
// same id is ignored.
func (s *PostgresStore) Append(ctx context.Context, event *BehaviorEvent) error {
	var meta []byte
	if len(event.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO behavior_events (
			id, user_id, action, element, section, duration_ms, metadata, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.UserID, string(event.Action), event.Element, event.Section,
		nullInt64(event.DurationMs), nullBytes(meta), event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Query reads a user's events in the requested order.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]*BehaviorEvent, error) {
	if q.Order != OldestFirst && q.Order != NewestFirst {
		return nil, ErrOrderRequired
	}

	inner := `
		SELECT id, user_id, action, element, section, duration_ms, metadata, occurred_at
		FROM behavior_events
		WHERE user_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC`
	args := []any{q.UserID, q.Since}
	if q.Limit > 0 {
		inner += ` LIMIT $3`
		args = append(args, q.Limit)
	}

	query := inner
	if q.Order == OldestFirst {
		query = `SELECT * FROM (` + inner + `) recent ORDER BY occurred_at ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*BehaviorEvent
	for rows.Next() {
		var (
			e        BehaviorEvent
			action   string
			duration sql.NullInt64
			meta     []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &e.Element, &e.Section, &duration, &meta, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Action = Action(action)
		if duration.Valid {
			e.DurationMs = Int64(duration.Int64)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", e.ID, err)
			}
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Count returns the number of events stored for userID.
func (s *PostgresStore) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM behavior_events WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ActiveUsers lists users with events at or after since.
func (s *PostgresStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM behavior_events
		WHERE occurred_at >= $1
		ORDER BY user_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
