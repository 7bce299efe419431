package acceptance_tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"meal-planner/internal/app"
	"meal-planner/internal/calendar"
	"meal-planner/internal/config"
	"meal-planner/internal/database"
	"meal-planner/internal/ghost"
	"meal-planner/internal/meal"

	"google.golang.org/api/option"
)

// --- Fake Google Calendar ---
type fakeGoogleCalendar struct {
	mu      sync.Mutex
	events  map[string]map[string]any
	order   []string
	nextID  int
	deleted []string
}

func newFakeGoogleCalendar() *fakeGoogleCalendar {
	return &fakeGoogleCalendar{events: map[string]map[string]any{}}
}

func (f *fakeGoogleCalendar) seed(summary, date string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(map[string]any{"summary": summary, "start": map[string]any{"date": date}})
}

func (f *fakeGoogleCalendar) insert(ev map[string]any) string {
	f.nextID++
	id := fmt.Sprintf("gcal%d", f.nextID)
	ev["id"] = id
	ev["status"] = "confirmed"
	ev["updated"] = time.Now().UTC().Format(time.RFC3339)
	f.events[id] = ev
	f.order = append(f.order, id)
	return id
}

func (f *fakeGoogleCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/calendars/primary/events"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && id == "":
		var items []map[string]any
		for _, eid := range f.order {
			if ev, ok := f.events[eid]; ok {
				items = append(items, ev)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	case r.Method == http.MethodPost && id == "":
		var ev map[string]any
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.insert(ev)
		json.NewEncoder(w).Encode(ev)
	case r.Method == http.MethodDelete && id != "":
		if _, ok := f.events[id]; !ok {
			w.WriteHeader(http.StatusGone)
			return
		}
		delete(f.events, id)
		f.deleted = append(f.deleted, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeGoogleCalendar) summaries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, id := range f.order {
		if ev, ok := f.events[id]; ok {
			out = append(out, ev["summary"].(string))
		}
	}
	return out
}

func (f *fakeGoogleCalendar) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// --- Mock Ghost Client ---
type mockGhostClient struct {
	fetchRecipesCalls int
	created           []string
}

func (m *mockGhostClient) FetchRecipes(ctx context.Context) ([]ghost.Post, error) {
	m.fetchRecipesCalls++
	return []ghost.Post{
		{ID: "r1", Title: "Spaghetti Carbonara", URL: "https://blog/carbonara/", UpdatedAt: "2024-01-01T10:00:00Z",
			HTML: "<p>Serves 4</p><h2>Ingredients</h2><ul><li>400 g spaghetti</li><li>4 eggs</li><li>Pecorino</li></ul>"},
		{ID: "r2", Title: "Chicken Curry", URL: "https://blog/curry/", UpdatedAt: "2024-01-01T10:00:00Z",
			HTML: "<h2>Ingredients</h2><ul><li>1 chicken</li></ul>"},
		{ID: "r3", Title: "Tomato Soup", URL: "https://blog/soup/", UpdatedAt: "2024-01-01T10:00:00Z",
			HTML: "<ul><li>1 kg tomatoes</li></ul>"},
	}, nil
}

func (m *mockGhostClient) CreatePost(ctx context.Context, title, html string, publish bool) (*ghost.Post, error) {
	m.created = append(m.created, title)
	return &ghost.Post{ID: fmt.Sprintf("new%d", len(m.created)), Title: title, URL: "https://blog/new/", UpdatedAt: "2024-06-01T10:00:00Z"}, nil
}

func day(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format(meal.DateLayout)
}

func TestSyncCycleAcceptance(t *testing.T) {
	ctx := context.Background()

	fake := newFakeGoogleCalendar()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cal, err := calendar.NewGoogleClient(ctx, "primary", option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("Failed to create calendar client: %v", err)
	}

	settings := config.DefaultSyncSettings()
	settings.Household = []string{"ana", "rui"}
	settings.Schedule = "@every 1h"
	settings.InitialDelay = -1
	cfg := &config.Config{
		DatabasePath: filepath.Join(t.TempDir(), "acceptance.db"),
		Timezone:     "UTC",
		AppBaseURL:   "https://meals.example",
		Sync:         settings,
	}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	ghostClient := &mockGhostClient{}
	application := app.NewApp(cfg, db, cal, ghostClient)
	defer application.Close()

	if _, err := application.SyncCatalog(ctx); err != nil {
		t.Fatalf("Catalog sync failed: %v", err)
	}

	fake.seed("Lunch: Spaghetti Carbonara", day(0))
	fake.seed("dinner: chicken curry", day(1))
	fake.seed("Dinner: Spagheti Carbonara", day(2))
	fake.seed("Breakfast: Grandma's Pancakes", day(3))
	fake.seed("Team meeting", day(0))
	fake.seed("Lunch: Tomato Soup", day(60))

	planned, err := application.PlanMeal(ctx, day(4), meal.Lunch, "r3", nil)
	if err != nil {
		t.Fatalf("PlanMeal failed: %v", err)
	}

	// First cycle: three meals imported (one fuzzy), one unmatched, one exported.
	report, err := application.RunSync(ctx)
	if err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	if report.Created != 3 || report.Unmatched != 1 || report.Exported != 1 || report.Failed != 0 {
		t.Fatalf("Unexpected first cycle: %s", report.Summary())
	}

	found := false
	for _, s := range fake.summaries() {
		if s == "* Lunch: Tomato Soup" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected the planned meal on the calendar, got %v", fake.summaries())
	}

	// Second cycle changes nothing.
	report, err = application.RunSync(ctx)
	if err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if report.Created != 0 || report.Unmatched != 0 || report.Exported != 0 {
		t.Errorf("Expected an idempotent second cycle, got %s", report.Summary())
	}

	// The unmatched breakfast becomes a new recipe.
	pending, err := application.PendingUnmatched(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("Expected 1 pending event, got %d (%v)", len(pending), err)
	}
	if pending[0].ExtractedRecipeName != "Grandma's Pancakes" {
		t.Errorf("Unexpected extracted name %q", pending[0].ExtractedRecipeName)
	}
	m, err := application.ResolveWithNewRecipe(ctx, pending[0].ID)
	if err != nil {
		t.Fatalf("ResolveWithNewRecipe failed: %v", err)
	}
	if m.RecipeID != "new1" || len(ghostClient.created) != 1 {
		t.Errorf("Expected a new recipe post, got meal %+v", m)
	}

	meals, err := application.Meals(ctx)
	if err != nil {
		t.Fatalf("Meals failed: %v", err)
	}
	if len(meals) != 5 {
		t.Errorf("Expected 5 meals, got %d", len(meals))
	}
	for _, ml := range meals {
		if !ml.Linked() {
			t.Errorf("Meal %d on %s is not linked", ml.ID, ml.Date)
		}
	}

	// Deleting the planned meal removes its remote event too.
	if err := application.DeleteMeal(ctx, planned.ID); err != nil {
		t.Fatalf("DeleteMeal failed: %v", err)
	}
	if deleted := fake.deletedIDs(); len(deleted) != 1 {
		t.Errorf("Expected 1 remote delete, got %v", deleted)
	}

	activity, err := application.RecentActivity(ctx, 50)
	if err != nil || len(activity) == 0 {
		t.Fatalf("Expected sync activity, got %d (%v)", len(activity), err)
	}
	days, err := application.DailyActivity(ctx, 1)
	if err != nil || len(days) == 0 || days[0].Cycles != 2 {
		t.Errorf("Unexpected daily activity %+v (%v)", days, err)
	}
}
