package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"meal-planner/internal/calendar"
	"meal-planner/internal/calsync"
	"meal-planner/internal/config"
	"meal-planner/internal/database"
	"meal-planner/internal/ghost"
	"meal-planner/internal/meal"
	"meal-planner/internal/recipe"
)

// memCalendar is an in-memory remote calendar.
type memCalendar struct {
	mu     sync.Mutex
	events []calendar.Event
	nextID int
}

func (c *memCalendar) add(summary, date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.events = append(c.events, calendar.Event{
		ID:      fmt.Sprintf("evt-%d", c.nextID),
		Summary: summary,
		Start:   calendar.EventTime{Date: date},
		Updated: time.Now(),
	})
}

func (c *memCalendar) ListEvents(context.Context, time.Time, time.Time) ([]calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]calendar.Event(nil), c.events...), nil
}

func (c *memCalendar) CreateEvent(_ context.Context, ev calendar.NewEvent) (string, error) {
	c.add(ev.Summary, ev.Date)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1].ID, nil
}

func (c *memCalendar) DeleteEvent(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ev := range c.events {
		if ev.ID == id {
			c.events = append(c.events[:i], c.events[i+1:]...)
			return nil
		}
	}
	return nil
}

func (c *memCalendar) summaries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		out = append(out, ev.Summary)
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	settings := config.DefaultSyncSettings()
	settings.Household = []string{"ana", "rui"}
	settings.Schedule = "@every 1h"
	settings.InitialDelay = -1
	return &config.Config{
		DatabasePath: filepath.Join(t.TempDir(), "app.db"),
		Timezone:     "UTC",
		AppBaseURL:   "https://meals.example",
		Sync:         settings,
	}
}

func newTestApp(t *testing.T, cfg *config.Config, cal calendar.Client, gh ghost.Client) *App {
	t.Helper()
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	a := NewApp(cfg, db, cal, gh)
	t.Cleanup(func() { a.Close() })
	return a
}

func today() string {
	return time.Now().UTC().Format(meal.DateLayout)
}

func tomorrow() string {
	return time.Now().UTC().AddDate(0, 0, 1).Format(meal.DateLayout)
}

func TestCatalogThenSync(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"posts": [
			{"id": "r1", "title": "Spaghetti Carbonara", "url": "http://blog/carbonara/", "updated_at": "2024-01-01T10:00:00Z",
			 "html": "<p>Serves 4</p><h2>Ingredients</h2><ul><li>200 g spaghetti</li><li>2 eggs</li></ul>"},
			{"id": "r2", "title": "Tomato Soup", "url": "http://blog/soup/", "updated_at": "2024-01-02T10:00:00Z",
			 "html": "<ul><li>1 kg tomatoes</li></ul>"}
		]}`)
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.GhostURL = server.URL
	cfg.GhostContentKey = "test_key"

	cal := &memCalendar{}
	a := newTestApp(t, cfg, cal, ghost.NewClient(cfg))

	stats, err := a.SyncCatalog(ctx)
	if err != nil {
		t.Fatalf("SyncCatalog failed: %v", err)
	}
	if stats.Saved != 2 {
		t.Fatalf("Expected 2 saved recipes, got %+v", stats)
	}

	cal.add("Lunch: spaghetti carbonara", today())
	cal.add("Dinner: Mystery Stew", tomorrow())
	cal.add("Dentist", today())

	preview, err := a.Preview(ctx)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(preview.Matched) != 1 || len(preview.Unmatched) != 1 {
		t.Fatalf("Unexpected preview: %+v", preview)
	}

	report, err := a.RunSync(ctx)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if report.Created != 1 || report.Unmatched != 1 || report.Exported != 0 {
		t.Errorf("Unexpected report: %s", report.Summary())
	}

	meals, err := a.Meals(ctx)
	if err != nil || len(meals) != 1 {
		t.Fatalf("Expected 1 meal, got %d (%v)", len(meals), err)
	}
	if meals[0].SyncSource != meal.FromRemote || len(meals[0].PeopleAssigned) != 2 {
		t.Errorf("Unexpected meal %+v", meals[0])
	}

	items, err := a.ShoppingList(ctx, meals[0].ID)
	if err != nil {
		t.Fatalf("ShoppingList failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 shopping items, got %d", len(items))
	}

	pending, err := a.PendingUnmatched(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("Expected 1 pending event, got %d (%v)", len(pending), err)
	}
	if err := a.Ignore(ctx, pending[0].ID, "eating out"); err != nil {
		t.Fatalf("Ignore failed: %v", err)
	}
	if pending, _ := a.PendingUnmatched(ctx); len(pending) != 0 {
		t.Errorf("Expected no pending events, got %d", len(pending))
	}

	last, err := a.LastCycle(ctx)
	if err != nil || last == nil {
		t.Fatalf("Expected a recorded cycle, got %v (%v)", last, err)
	}
	if last.ID != report.CycleID || last.Created != 1 {
		t.Errorf("Unexpected cycle metric %+v", last)
	}
}

func TestPlanMealIsExported(t *testing.T) {
	ctx := context.Background()
	cal := &memCalendar{}
	a := newTestApp(t, testConfig(t), cal, nil)

	if err := a.recipeRepo.Save(ctx, recipe.Recipe{ID: "r3", Title: "Tomato Soup", Servings: "2", Ingredients: []string{"1 kg tomatoes"}}); err != nil {
		t.Fatalf("Failed to save recipe: %v", err)
	}

	t.Run("UnknownRecipe", func(t *testing.T) {
		if _, err := a.PlanMeal(ctx, today(), meal.Lunch, "missing", nil); !errors.Is(err, calsync.ErrRecipeNotFound) {
			t.Errorf("Expected ErrRecipeNotFound, got %v", err)
		}
	})

	t.Run("BadDate", func(t *testing.T) {
		if _, err := a.PlanMeal(ctx, "tomorrow", meal.Lunch, "r3", nil); err == nil {
			t.Error("Expected an error for a malformed date")
		}
	})

	m, err := a.PlanMeal(ctx, today(), meal.Lunch, "r3", nil)
	if err != nil {
		t.Fatalf("PlanMeal failed: %v", err)
	}
	if len(m.PeopleAssigned) != 2 {
		t.Errorf("Expected the household to be assigned, got %v", m.PeopleAssigned)
	}
	if _, err := a.PlanMeal(ctx, today(), meal.Lunch, "r3", nil); !errors.Is(err, meal.ErrSlotTaken) {
		t.Errorf("Expected ErrSlotTaken, got %v", err)
	}

	items, _ := a.ShoppingList(ctx, m.ID)
	if len(items) != 1 || items[0].Item != "1 kg tomatoes" {
		t.Errorf("Unexpected shopping items %+v", items)
	}

	report, err := a.RunSync(ctx)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if report.Exported != 1 {
		t.Fatalf("Expected 1 exported meal, got %s", report.Summary())
	}
	summaries := cal.summaries()
	if len(summaries) != 1 || summaries[0] != "* Lunch: Tomato Soup" {
		t.Errorf("Unexpected remote events %v", summaries)
	}

	// The exported event comes back on the next import and is recognized.
	report, err = a.RunSync(ctx)
	if err != nil {
		t.Fatalf("Second RunSync failed: %v", err)
	}
	if report.Created != 0 || report.Exported != 0 || report.Unmatched != 0 {
		t.Errorf("Expected an idempotent second cycle, got %s", report.Summary())
	}

	if err := a.DeleteMeal(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMeal failed: %v", err)
	}
	if len(cal.summaries()) != 0 {
		t.Error("Expected the remote event to be deleted")
	}
}

func TestWithoutGhost(t *testing.T) {
	a := newTestApp(t, testConfig(t), &memCalendar{}, nil)
	if _, err := a.SyncCatalog(context.Background()); !errors.Is(err, ErrCatalogUnavailable) {
		t.Errorf("Expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestUnauthorizedCalendar(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig(t), calendar.Unavailable(calendar.ErrUnauthorized), nil)

	_, err := a.RunSync(ctx)
	if !errors.Is(err, calendar.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}

	last, err := a.LastCycle(ctx)
	if err != nil || last == nil {
		t.Fatalf("Expected a recorded cycle, got %v (%v)", last, err)
	}
	if !strings.Contains(last.Fatal, "no valid token") {
		t.Errorf("Expected the fatal error to be recorded, got %q", last.Fatal)
	}

	days, err := a.DailyActivity(ctx, 7)
	if err != nil || len(days) != 1 || days[0].Aborted != 1 {
		t.Errorf("Unexpected daily activity %+v (%v)", days, err)
	}
}

func TestRunSyncThroughScheduler(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig(t), &memCalendar{}, nil)

	outcomes := make(chan calsync.Outcome, 1)
	if err := a.StartScheduler(ctx, func(o calsync.Outcome) { outcomes <- o }); err != nil {
		t.Fatalf("StartScheduler failed: %v", err)
	}

	// The consumer goroutine may not be waiting yet.
	var (
		report calsync.CycleReport
		err    error
	)
	deadline := time.Now().Add(2 * time.Second)
	for {
		report, err = a.RunSync(ctx)
		if !errors.Is(err, calsync.ErrSyncInProgress) || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}

	select {
	case o := <-outcomes:
		if o.Trigger != calsync.TriggerManual || o.Report.CycleID != report.CycleID {
			t.Errorf("Unexpected outcome %+v", o)
		}
	case <-time.After(time.Second):
		t.Fatal("Observer was not notified")
	}
}
