package metrics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// CycleMetric records the outcome of a single sync cycle.
type CycleMetric struct {
	ID          string
	Trigger     string
	StartedAt   time.Time
	DurationMS  int64
	Created     int
	Skipped     int
	Unmatched   int
	ParseErrors int
	Failed      int
	Exported    int
	Fatal       string
}

// Store handles persistence of sync cycle metrics to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a cycle metric to the database.
func (s *Store) Record(ctx context.Context, m CycleMetric) error {
	ts := m.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	var fatal sql.NullString
	if m.Fatal != "" {
		fatal = sql.NullString{String: m.Fatal, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cycles (id, trigger, started_at, duration_ms, created, skipped, unmatched, parse_errors, failed, exported, fatal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Trigger, ts.UTC().Format(timestampLayout), m.DurationMS,
		m.Created, m.Skipped, m.Unmatched, m.ParseErrors, m.Failed, m.Exported, fatal)
	if err != nil {
		return fmt.Errorf("failed to insert sync cycle: %w", err)
	}
	return nil
}

// DailyActivity represents sync totals for a single day (UTC).
type DailyActivity struct {
	Date      string
	Cycles    int
	Created   int
	Exported  int
	Unmatched int
	Failed    int
	Aborted   int
}

// GetDailyActivity retrieves activity for the last N days, newest first.
func (s *Store) GetDailyActivity(ctx context.Context, days int) ([]DailyActivity, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(timestampLayout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(started_at, 1, 10) AS day, COUNT(*),
			SUM(created), SUM(exported), SUM(unmatched), SUM(failed + parse_errors),
			SUM(CASE WHEN fatal IS NULL THEN 0 ELSE 1 END)
		FROM sync_cycles
		WHERE started_at >= ?
		GROUP BY day
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}
	defer rows.Close()

	var results []DailyActivity
	for rows.Next() {
		var a DailyActivity
		if err := rows.Scan(&a.Date, &a.Cycles, &a.Created, &a.Exported, &a.Unmatched, &a.Failed, &a.Aborted); err != nil {
			return nil, fmt.Errorf("failed to scan daily activity: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// LastCycle returns the most recent cycle, or nil when none ran yet.
func (s *Store) LastCycle(ctx context.Context) (*CycleMetric, error) {
	var (
		m     CycleMetric
		fatal sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, trigger, started_at, duration_ms, created, skipped, unmatched, parse_errors, failed, exported, fatal
		FROM sync_cycles ORDER BY started_at DESC, rowid DESC LIMIT 1`).
		Scan(&m.ID, &m.Trigger, &m.StartedAt, &m.DurationMS, &m.Created, &m.Skipped, &m.Unmatched, &m.ParseErrors, &m.Failed, &m.Exported, &fatal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync cycle: %w", err)
	}
	m.Fatal = fatal.String
	return &m, nil
}

// Cleanup removes records older than the specified number of days and
// returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(timestampLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_cycles WHERE started_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sync cycles: %w", err)
	}
	return res.RowsAffected()
}
