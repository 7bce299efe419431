package shopping

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository handles persistence of shopping list items.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new shopping list repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// ReplaceForMeal swaps the items of a meal for the given lines in one
// transaction, so expanding the same meal twice never duplicates lines.
func (r *Repository) ReplaceForMeal(ctx context.Context, mealID int64, recipeID string, lines []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shopping_items WHERE meal_id = ?`, mealID); err != nil {
		return fmt.Errorf("failed to clear shopping items: %w", err)
	}

	now := time.Now().UTC()
	for _, line := range lines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shopping_items (meal_id, recipe_id, item, created_at) VALUES (?, ?, ?, ?)`,
			mealID, recipeID, line, now); err != nil {
			return fmt.Errorf("failed to insert shopping item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit shopping items: %w", err)
	}
	return nil
}

// ListByMeal retrieves the items of a meal in insertion order.
func (r *Repository) ListByMeal(ctx context.Context, mealID int64) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, meal_id, recipe_id, item, created_at FROM shopping_items WHERE meal_id = ? ORDER BY id`, mealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shopping items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.MealID, &it.RecipeID, &it.Item, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shopping item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteByMeal deletes the items of a meal.
func (r *Repository) DeleteByMeal(ctx context.Context, mealID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM shopping_items WHERE meal_id = ?`, mealID); err != nil {
		return fmt.Errorf("failed to delete shopping items: %w", err)
	}
	return nil
}
