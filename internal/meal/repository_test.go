package meal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"meal-planner/internal/database"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.SQL)
}

func TestParseType(t *testing.T) {
	for _, in := range []string{"lunch", "LUNCH", " Lunch "} {
		got, err := ParseType(in)
		if err != nil || got != Lunch {
			t.Errorf("ParseType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseType("brunch"); err == nil {
		t.Error("Expected an error for 'brunch'")
	}
	if Type("lunch").Valid() {
		t.Error("Only canonical meal types are valid")
	}
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	dinner := &Meal{Date: "2024-03-01", MealType: Dinner, RecipeID: "r1", PeopleAssigned: []string{"ana"}}
	if err := repo.Create(ctx, dinner); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if dinner.ID == 0 || dinner.SyncSource != LocalOnly {
		t.Fatalf("Expected id and default source, got %+v", dinner)
	}

	t.Run("SlotTaken", func(t *testing.T) {
		err := repo.Create(ctx, &Meal{Date: "2024-03-01", MealType: Dinner, RecipeID: "r2"})
		if !errors.Is(err, ErrSlotTaken) {
			t.Errorf("Expected ErrSlotTaken, got %v", err)
		}
	})

	t.Run("FindBySlot", func(t *testing.T) {
		m, err := repo.FindBySlot(ctx, "2024-03-01", Dinner)
		if err != nil || m == nil {
			t.Fatalf("Expected meal, got %v (%v)", m, err)
		}
		if len(m.PeopleAssigned) != 1 || m.PeopleAssigned[0] != "ana" || m.Linked() {
			t.Errorf("Unexpected meal %+v", m)
		}
		free, err := repo.FindBySlot(ctx, "2024-03-01", Lunch)
		if err != nil || free != nil {
			t.Errorf("Expected free slot, got %v (%v)", free, err)
		}
	})

	t.Run("LinkOnce", func(t *testing.T) {
		unlinked, err := repo.ListUnlinked(ctx, "2024-03-01", "2024-03-01")
		if err != nil || len(unlinked) != 1 {
			t.Fatalf("Expected one unlinked meal, got %v (%v)", unlinked, err)
		}

		syncedAt := time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC)
		if err := repo.Link(ctx, dinner.ID, "evt-1", syncedAt); err != nil {
			t.Fatalf("Link failed: %v", err)
		}
		if err := repo.Link(ctx, dinner.ID, "evt-2", syncedAt); !errors.Is(err, ErrAlreadyLinked) {
			t.Errorf("Expected ErrAlreadyLinked on relink, got %v", err)
		}

		m, err := repo.FindByExternalID(ctx, "evt-1")
		if err != nil || m == nil || m.ID != dinner.ID {
			t.Fatalf("Expected linked meal, got %v (%v)", m, err)
		}
		if m.LastSyncedAt == nil || !m.LastSyncedAt.Equal(syncedAt) {
			t.Errorf("Expected last synced at %v, got %v", syncedAt, m.LastSyncedAt)
		}

		unlinked, err = repo.ListUnlinked(ctx, "2024-03-01", "2024-03-01")
		if err != nil || len(unlinked) != 0 {
			t.Errorf("Expected no unlinked meals after link, got %v (%v)", unlinked, err)
		}
	})

	t.Run("ExternalIDUnique", func(t *testing.T) {
		err := repo.Create(ctx, &Meal{Date: "2024-03-02", MealType: Lunch, RecipeID: "r1", ExternalEventID: "evt-1", SyncSource: FromRemote})
		if !errors.Is(err, ErrAlreadyLinked) {
			t.Errorf("Expected ErrAlreadyLinked, got %v", err)
		}
	})

	t.Run("ListRangeOrder", func(t *testing.T) {
		for _, mt := range []Type{Lunch, Breakfast} {
			if err := repo.Create(ctx, &Meal{Date: "2024-03-01", MealType: mt, RecipeID: "r3"}); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}
		meals, err := repo.ListRange(ctx, "2024-03-01", "2024-03-01")
		if err != nil || len(meals) != 3 {
			t.Fatalf("Expected 3 meals, got %v (%v)", meals, err)
		}
		if meals[0].MealType != Breakfast || meals[1].MealType != Lunch || meals[2].MealType != Dinner {
			t.Errorf("Expected day order, got %s %s %s", meals[0].MealType, meals[1].MealType, meals[2].MealType)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, dinner.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(ctx, dinner.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if err := repo.Delete(ctx, dinner.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound on second delete, got %v", err)
		}
	})
}
