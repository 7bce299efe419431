package unmatched

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meal-planner/internal/meal"

	"github.com/google/uuid"
)

const eventColumns = `id, external_event_id, original_title, date, meal_type, extracted_recipe_name, status, notes, created_at, resolved_at, resolved_recipe_id`

// Repository persists unmatched events.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new unmatched event Repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// InsertIfAbsent stores e as Pending unless an event with the same external
// id already exists, in which case the stored row is left untouched. It
// reports whether a row was inserted.
func (r *Repository) InsertIfAbsent(ctx context.Context, e *Event) (bool, error) {
	existing, err := r.GetByExternalID(ctx, e.ExternalEventID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		*e = *existing
		return false, nil
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Status = Pending
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO unmatched_events (id, external_event_id, original_title, date, meal_type, extracted_recipe_name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_event_id) DO NOTHING`,
		e.ID, e.ExternalEventID, e.OriginalTitle, e.Date, string(e.MealType), e.ExtractedRecipeName, string(Pending), e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert unmatched event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert unmatched event: %w", err)
	}
	return n == 1, nil
}

// Get retrieves an unmatched event by ID.
func (r *Repository) Get(ctx context.Context, id string) (*Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM unmatched_events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unmatched event: %w", err)
	}
	return e, nil
}

// GetByExternalID returns the event for a remote event id, or nil.
func (r *Repository) GetByExternalID(ctx context.Context, externalEventID string) (*Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM unmatched_events WHERE external_event_id = ?`, externalEventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unmatched event by external id: %w", err)
	}
	return e, nil
}

// ListPending returns pending events ordered by date.
func (r *Repository) ListPending(ctx context.Context) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM unmatched_events
		WHERE status = ? ORDER BY date, created_at`, string(Pending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending unmatched events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unmatched event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list pending unmatched events: %w", err)
	}
	return events, nil
}

// MarkMatched moves a pending event to Matched. It returns
// ErrAlreadyResolved when the event is not pending any more.
func (r *Repository) MarkMatched(ctx context.Context, id, recipeID string, at time.Time) error {
	return r.resolve(ctx, id, Matched, `resolved_recipe_id = ?`, recipeID, at)
}

// MarkIgnored moves a pending event to Ignored, keeping notes for audit.
func (r *Repository) MarkIgnored(ctx context.Context, id, notes string, at time.Time) error {
	return r.resolve(ctx, id, Ignored, `notes = ?`, notes, at)
}

func (r *Repository) resolve(ctx context.Context, id string, to Status, setColumn string, value string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE unmatched_events SET status = ?, resolved_at = ?, `+setColumn+`
		WHERE id = ? AND status = ?`,
		string(to), at.UTC(), value, id, string(Pending))
	if err != nil {
		return fmt.Errorf("failed to mark unmatched event %s as %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark unmatched event %s as %s: %w", id, to, err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*Event, error) {
	var (
		e          Event
		mealType   string
		status     string
		resolvedAt sql.NullTime
		recipeID   sql.NullString
	)
	err := s.Scan(&e.ID, &e.ExternalEventID, &e.OriginalTitle, &e.Date, &mealType, &e.ExtractedRecipeName,
		&status, &e.Notes, &e.CreatedAt, &resolvedAt, &recipeID)
	if err != nil {
		return nil, err
	}
	e.MealType = meal.Type(mealType)
	e.Status = Status(status)
	e.ResolvedRecipeID = recipeID.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	return &e, nil
}
