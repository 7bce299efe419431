package meal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"meal-planner/internal/database"
)

const mealColumns = `id, date, meal_type, recipe_id, people_assigned, external_event_id, last_synced_at, sync_source, created_at`

// Repository is a database-backed repository for meals.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new meal Repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// Create inserts m and sets its ID. The (date, meal_type) and
// external_event_id unique constraints surface as ErrSlotTaken and
// ErrAlreadyLinked.
func (r *Repository) Create(ctx context.Context, m *Meal) error {
	people, err := json.Marshal(nonNil(m.PeopleAssigned))
	if err != nil {
		return fmt.Errorf("failed to marshal people: %w", err)
	}
	if m.SyncSource == "" {
		m.SyncSource = LocalOnly
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO meals (date, meal_type, recipe_id, people_assigned, external_event_id, last_synced_at, sync_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Date, string(m.MealType), m.RecipeID, string(people),
		nullString(m.ExternalEventID), nullTime(m.LastSyncedAt), string(m.SyncSource), m.CreatedAt)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "external_event_id"):
			return ErrAlreadyLinked
		case database.IsUniqueViolation(err, "meals.date"):
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to insert meal: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read meal id: %w", err)
	}
	m.ID = id
	return nil
}

// Get retrieves a meal by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Meal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mealColumns+` FROM meals WHERE id = ?`, id)
	m, err := scanMeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// FindBySlot returns the meal in the slot, or nil when the slot is free.
func (r *Repository) FindBySlot(ctx context.Context, date string, mealType Type) (*Meal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mealColumns+` FROM meals WHERE date = ? AND meal_type = ?`, date, string(mealType))
	m, err := scanMeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find meal by slot: %w", err)
	}
	return m, nil
}

// FindByExternalID returns the meal linked to the remote event, or nil.
func (r *Repository) FindByExternalID(ctx context.Context, externalEventID string) (*Meal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mealColumns+` FROM meals WHERE external_event_id = ?`, externalEventID)
	m, err := scanMeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find meal by external id: %w", err)
	}
	return m, nil
}

// ListUnlinked returns meals in [start, end] that have no remote event yet.
func (r *Repository) ListUnlinked(ctx context.Context, start, end string) ([]Meal, error) {
	return r.list(ctx, `SELECT `+mealColumns+` FROM meals
		WHERE external_event_id IS NULL AND date >= ? AND date <= ?
		ORDER BY date, CASE meal_type WHEN 'Breakfast' THEN 0 WHEN 'Lunch' THEN 1 ELSE 2 END`, start, end)
}

// ListRange returns all meals in [start, end].
func (r *Repository) ListRange(ctx context.Context, start, end string) ([]Meal, error) {
	return r.list(ctx, `SELECT `+mealColumns+` FROM meals
		WHERE date >= ? AND date <= ?
		ORDER BY date, CASE meal_type WHEN 'Breakfast' THEN 0 WHEN 'Lunch' THEN 1 ELSE 2 END`, start, end)
}

// Link records the remote event id of a meal. Only an unlinked meal can be
// linked; linking an already linked meal returns ErrAlreadyLinked.
func (r *Repository) Link(ctx context.Context, id int64, externalEventID string, syncedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE meals SET external_event_id = ?, last_synced_at = ?
		WHERE id = ? AND external_event_id IS NULL`,
		externalEventID, syncedAt.UTC(), id)
	if err != nil {
		if database.IsUniqueViolation(err, "external_event_id") {
			return ErrAlreadyLinked
		}
		return fmt.Errorf("failed to link meal %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to link meal %d: %w", id, err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyLinked
	}
	return nil
}

// Delete removes a meal.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM meals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete meal %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Meal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	defer rows.Close()

	var meals []Meal
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		meals = append(meals, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	return meals, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeal(s scanner) (*Meal, error) {
	var (
		m          Meal
		mealType   string
		people     string
		externalID sql.NullString
		syncedAt   sql.NullTime
		source     string
	)
	if err := s.Scan(&m.ID, &m.Date, &mealType, &m.RecipeID, &people, &externalID, &syncedAt, &source, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.MealType = Type(mealType)
	m.SyncSource = SyncSource(source)
	m.ExternalEventID = externalID.String
	if syncedAt.Valid {
		t := syncedAt.Time
		m.LastSyncedAt = &t
	}
	if err := json.Unmarshal([]byte(people), &m.PeopleAssigned); err != nil {
		return nil, fmt.Errorf("failed to unmarshal people for meal %d: %w", m.ID, err)
	}
	return &m, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
