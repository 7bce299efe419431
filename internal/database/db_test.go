package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"recipes", "meals", "unmatched_events", "sync_log", "shopping_items", "sync_cycles"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table '%s' to exist: %v", table, err)
		}
	}

	t.Run("MigrationsAreIdempotent", func(t *testing.T) {
		if err := RunMigrations(dbPath); err != nil {
			t.Fatalf("Expected second migration run to be a no-op, got %v", err)
		}
	})

	t.Run("SlotUniqueness", func(t *testing.T) {
		insert := `INSERT INTO meals (date, meal_type, recipe_id, created_at) VALUES ('2024-03-01', 'Dinner', 'r1', CURRENT_TIMESTAMP)`
		if _, err := db.SQL.Exec(insert); err != nil {
			t.Fatalf("First insert failed: %v", err)
		}
		_, err := db.SQL.Exec(insert)
		if !IsUniqueViolation(err, "meals.date") {
			t.Errorf("Expected a unique violation on meals.date, got %v", err)
		}
		if IsUniqueViolation(err, "meals.external_event_id") {
			t.Errorf("Did not expect the violation to mention external_event_id: %v", err)
		}
	})
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Error("nil error must not be a unique violation")
	}
	if IsUniqueViolation(errors.New("disk I/O error"), "") {
		t.Error("unrelated error must not be a unique violation")
	}
	// Only the driver's result code counts, not the message.
	if IsUniqueViolation(errors.New("UNIQUE constraint failed: unmatched_events.external_event_id"), "") {
		t.Error("a plain error mentioning a constraint must not be a unique violation")
	}

	db, err := NewDB(filepath.Join(t.TempDir(), "unique.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer db.Close()

	insert := `INSERT INTO meals (date, meal_type, recipe_id, external_event_id, created_at) VALUES (?, 'Lunch', 'r1', 'evt-1', CURRENT_TIMESTAMP)`
	if _, err := db.SQL.Exec(insert, "2024-03-01"); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	_, err = db.SQL.Exec(insert, "2024-03-02")
	wrapped := fmt.Errorf("failed to create meal: %w", err)
	if !IsUniqueViolation(wrapped, "external_event_id") {
		t.Errorf("Expected a wrapped unique violation on external_event_id, got %v", err)
	}
	if IsUniqueViolation(wrapped, "meals.date") {
		t.Errorf("Did not expect the violation to mention meals.date: %v", err)
	}
}
