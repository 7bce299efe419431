package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"meal-planner/internal/database"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db.SQL)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	last, err := s.LastCycle(ctx)
	if err != nil || last != nil {
		t.Fatalf("Expected no cycles yet, got %+v, %v", last, err)
	}

	now := time.Now()
	cycles := []CycleMetric{
		{ID: "c1", Trigger: "scheduled", StartedAt: now.Add(-2 * time.Minute), Created: 2, Exported: 1},
		{ID: "c2", Trigger: "manual", StartedAt: now.Add(-time.Minute), Unmatched: 1, Failed: 1, ParseErrors: 1},
		{ID: "c3", Trigger: "scheduled", StartedAt: now, Fatal: "calendar: no valid token"},
		{ID: "old", Trigger: "scheduled", StartedAt: now.AddDate(0, 0, -40), Created: 9},
	}
	for _, c := range cycles {
		if err := s.Record(ctx, c); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	t.Run("DailyActivity", func(t *testing.T) {
		days, err := s.GetDailyActivity(ctx, 7)
		if err != nil {
			t.Fatalf("GetDailyActivity failed: %v", err)
		}
		var total DailyActivity
		for _, d := range days {
			total.Cycles += d.Cycles
			total.Created += d.Created
			total.Exported += d.Exported
			total.Unmatched += d.Unmatched
			total.Failed += d.Failed
			total.Aborted += d.Aborted
		}
		want := DailyActivity{Cycles: 3, Created: 2, Exported: 1, Unmatched: 1, Failed: 2, Aborted: 1}
		if total != want {
			t.Errorf("Got %+v, want %+v", total, want)
		}
	})

	t.Run("LastCycle", func(t *testing.T) {
		last, err := s.LastCycle(ctx)
		if err != nil {
			t.Fatalf("LastCycle failed: %v", err)
		}
		if last == nil || last.ID != "c3" || last.Fatal == "" {
			t.Errorf("Expected c3 with a fatal error, got %+v", last)
		}
	})

	t.Run("Cleanup", func(t *testing.T) {
		n, err := s.Cleanup(ctx, 30)
		if err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 row removed, got %d", n)
		}
	})
}

func TestGetSysHealth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	os.WriteFile(path, make([]byte, 2048), 0644)
	os.WriteFile(path+"-wal", make([]byte, 1024), 0644)

	h := GetSysHealth(path)
	if h.DatabaseSize != "3.0 KB" {
		t.Errorf("Expected 3.0 KB, got %s", h.DatabaseSize)
	}
	if h.Goroutines == 0 {
		t.Error("Expected at least one goroutine")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{0: "0 B", 1023: "1023 B", 1536: "1.5 KB", 5 << 20: "5.0 MB"}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %s, want %s", in, got, want)
		}
	}
}
