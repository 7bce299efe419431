// Package synclog is the append-only audit trail of calendar sync attempts.
package synclog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Direction of a sync attempt.
type Direction string

const (
	ToRemote   Direction = "to_remote"
	FromRemote Direction = "from_remote"
)

// Status of a sync attempt.
type Status string

const (
	Success  Status = "success"
	Failed   Status = "failed"
	Conflict Status = "conflict"
)

// Entry is one sync attempt. Entries are never updated after creation.
type Entry struct {
	ID              int64
	ExternalEventID string
	MealID          *int64
	Direction       Direction
	Status          Status
	Timestamp       time.Time
	ErrorMessage    string
	Metadata        map[string]any
}

// Store appends and reads sync log entries.
type Store struct {
	db *sql.DB
}

// NewStore creates a new sync log Store.
func NewStore(d *sql.DB) *Store {
	return &Store{db: d}
}

// Append records an entry. A zero Timestamp is set to now.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal sync log metadata: %w", err)
	}

	var mealID sql.NullInt64
	if e.MealID != nil {
		mealID = sql.NullInt64{Int64: *e.MealID, Valid: true}
	}
	errMsg := sql.NullString{String: e.ErrorMessage, Valid: e.ErrorMessage != ""}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_log (external_event_id, meal_id, direction, status, timestamp, error_message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ExternalEventID, mealID, string(e.Direction), string(e.Status), e.Timestamp.UTC(), errMsg, string(metaJSON))
	if err != nil {
		return fmt.Errorf("failed to append sync log entry: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `SELECT id, external_event_id, meal_id, direction, status, timestamp, error_message, metadata
		FROM sync_log ORDER BY id DESC LIMIT ?`, limit)
}

// ForExternalID returns every entry about one remote event, oldest first.
func (s *Store) ForExternalID(ctx context.Context, externalEventID string) ([]Entry, error) {
	return s.query(ctx, `SELECT id, external_event_id, meal_id, direction, status, timestamp, error_message, metadata
		FROM sync_log WHERE external_event_id = ? ORDER BY id`, externalEventID)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			mealID    sql.NullInt64
			direction string
			status    string
			errMsg    sql.NullString
			meta      string
		)
		if err := rows.Scan(&e.ID, &e.ExternalEventID, &mealID, &direction, &status, &e.Timestamp, &errMsg, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		if mealID.Valid {
			id := mealID.Int64
			e.MealID = &id
		}
		e.Direction = Direction(direction)
		e.Status = Status(status)
		e.ErrorMessage = errMsg.String
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sync log metadata: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	return entries, nil
}
