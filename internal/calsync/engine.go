// Package calsync keeps planned meals and the remote calendar in step.
//
// A sync cycle imports remote meal events into local meals (or parks them as
// unmatched events when no recipe fits), then exports local meals that have
// no remote event yet. Every step is recorded in the sync log. Per-item
// failures never abort a cycle; only a missing calendar token or a cycle
// already in flight do.
package calsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"meal-planner/internal/calendar"
	"meal-planner/internal/config"
	"meal-planner/internal/matcher"
	"meal-planner/internal/meal"
	"meal-planner/internal/mealevent"
	"meal-planner/internal/metrics"
	"meal-planner/internal/recipe"
	"meal-planner/internal/synclog"
	"meal-planner/internal/unmatched"

	"github.com/google/uuid"
)

var (
	// ErrSyncInProgress is returned when a cycle is requested while another runs.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrRecipeNotFound is returned when a meal or resolution names an unknown recipe.
	ErrRecipeNotFound = errors.New("recipe not found")
	// ErrRecipeCreationUnavailable is returned by ResolveWithNewRecipe when no
	// recipe creator is configured.
	ErrRecipeCreationUnavailable = errors.New("recipe creation is not configured")
)

// MealStore is the local meal store.
type MealStore interface {
	Create(ctx context.Context, m *meal.Meal) error
	Get(ctx context.Context, id int64) (*meal.Meal, error)
	FindBySlot(ctx context.Context, date string, mealType meal.Type) (*meal.Meal, error)
	FindByExternalID(ctx context.Context, externalEventID string) (*meal.Meal, error)
	ListUnlinked(ctx context.Context, start, end string) ([]meal.Meal, error)
	Link(ctx context.Context, id int64, externalEventID string, syncedAt time.Time) error
	Delete(ctx context.Context, id int64) error
}

// RecipeCatalog reads the recipe catalog.
type RecipeCatalog interface {
	List(ctx context.Context) ([]recipe.Recipe, error)
	Get(ctx context.Context, id string) (*recipe.Recipe, error)
}

// RecipeCreator adds a recipe to the catalog.
type RecipeCreator interface {
	CreateRecipe(ctx context.Context, title string) (*recipe.Recipe, error)
}

// UnmatchedStore holds events no recipe matched.
type UnmatchedStore interface {
	InsertIfAbsent(ctx context.Context, e *unmatched.Event) (bool, error)
	Get(ctx context.Context, id string) (*unmatched.Event, error)
	GetByExternalID(ctx context.Context, externalEventID string) (*unmatched.Event, error)
	ListPending(ctx context.Context) ([]unmatched.Event, error)
	MarkMatched(ctx context.Context, id, recipeID string, at time.Time) error
	MarkIgnored(ctx context.Context, id, notes string, at time.Time) error
}

// SyncLog is the audit trail of sync attempts.
type SyncLog interface {
	Append(ctx context.Context, e synclog.Entry) error
	Recent(ctx context.Context, limit int) ([]synclog.Entry, error)
}

// ShoppingExpander turns a meal's recipe into shopping list lines.
type ShoppingExpander interface {
	Expand(ctx context.Context, m meal.Meal, r recipe.Recipe) ([]string, error)
}

// ShoppingCleaner removes the shopping lines of a deleted meal.
type ShoppingCleaner interface {
	DeleteByMeal(ctx context.Context, mealID int64) error
}

// CycleRecorder stores per-cycle metrics.
type CycleRecorder interface {
	Record(ctx context.Context, m metrics.CycleMetric) error
}

// Deps are the collaborators of an Engine. Shopping, ShoppingItems,
// Creator and Cycles are optional.
type Deps struct {
	Calendar      calendar.Client
	Meals         MealStore
	Recipes       RecipeCatalog
	Unmatched     UnmatchedStore
	Log           SyncLog
	Shopping      ShoppingExpander
	ShoppingItems ShoppingCleaner
	Creator       RecipeCreator
	Cycles        CycleRecorder
}

// Options configure an Engine.
type Options struct {
	Settings   config.SyncSettings
	Location   *time.Location
	AppBaseURL string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine runs sync cycles and the unmatched event workflow.
type Engine struct {
	cal           calendar.Client
	meals         MealStore
	recipes       RecipeCatalog
	unmatched     UnmatchedStore
	syncLog       SyncLog
	shopping      ShoppingExpander
	shoppingItems ShoppingCleaner
	creator       RecipeCreator
	cycles        CycleRecorder

	parser     *mealevent.Parser
	matcher    *matcher.Matcher
	settings   config.SyncSettings
	loc        *time.Location
	appBaseURL string
	now        func() time.Time

	running atomic.Bool
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, opts Options) *Engine {
	settings := opts.Settings
	settings.Normalize()

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		cal:           deps.Calendar,
		meals:         deps.Meals,
		recipes:       deps.Recipes,
		unmatched:     deps.Unmatched,
		syncLog:       deps.Log,
		shopping:      deps.Shopping,
		shoppingItems: deps.ShoppingItems,
		creator:       deps.Creator,
		cycles:        deps.Cycles,
		parser:        mealevent.NewParser(settings.EmphasisMarker),
		matcher: matcher.New(matcher.Options{
			FuzzyThreshold:      settings.Matching.FuzzyThreshold,
			AcceptanceThreshold: settings.Matching.AcceptanceThreshold,
			SuggestionThreshold: settings.Matching.SuggestionThreshold,
		}),
		settings:   settings,
		loc:        loc,
		appBaseURL: strings.TrimRight(opts.AppBaseURL, "/"),
		now:        now,
	}
}

// Running reports whether a cycle is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Window returns the default sync window around today, as YYYY-MM-DD dates.
func (e *Engine) Window() (start, end string) {
	today := e.now().In(e.loc)
	start = today.AddDate(0, 0, -e.settings.Window.PastDays).Format(meal.DateLayout)
	end = today.AddDate(0, 0, e.settings.Window.FutureDays).Format(meal.DateLayout)
	return start, end
}

// PerformSync runs one full cycle over the default window: import, then
// export. It returns ErrSyncInProgress without doing anything when another
// cycle holds the guard. The returned error is non-nil only for cycle-fatal
// failures; item failures are in the report.
func (e *Engine) PerformSync(ctx context.Context, trigger Trigger) (CycleReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.appendLog(ctx, synclog.Entry{
			Direction:    synclog.FromRemote,
			Status:       synclog.Failed,
			ErrorMessage: ErrSyncInProgress.Error(),
			Metadata:     map[string]any{"trigger": string(trigger), "reason": "sync_in_progress"},
		})
		return CycleReport{}, ErrSyncInProgress
	}
	defer e.running.Store(false)

	report := CycleReport{
		CycleID:   uuid.NewString(),
		Trigger:   trigger,
		StartedAt: e.now(),
	}
	start, end := e.Window()
	report.WindowStart, report.WindowEnd = start, end

	fatal := e.runImport(ctx, &report, start, end)
	if fatal == nil {
		fatal = e.runExport(ctx, &report, start, end)
	}

	report.Duration = e.now().Sub(report.StartedAt)
	if fatal != nil {
		report.Fatal = fatal.Error()
		e.appendLog(ctx, synclog.Entry{
			Direction:    synclog.FromRemote,
			Status:       synclog.Failed,
			ErrorMessage: fatal.Error(),
			Metadata:     map[string]any{"trigger": string(trigger), "cycle_id": report.CycleID, "reason": "cycle_aborted"},
		})
	}

	if e.cycles != nil {
		if err := e.cycles.Record(ctx, report.Metric()); err != nil {
			log.Printf("Failed to record sync cycle metrics: %v", err)
		}
	}
	log.Printf("Sync cycle %s (%s) finished in %s: %s", report.CycleID, trigger, report.Duration.Round(time.Millisecond), report.Summary())

	return report, fatal
}

func (e *Engine) runImport(ctx context.Context, report *CycleReport, start, end string) error {
	preview, err := e.ImportFromRemote(ctx, start, end)
	if err != nil {
		if errors.Is(err, calendar.ErrUnauthorized) {
			return err
		}
		log.Printf("Import failed, continuing with export: %v", err)
		report.addFailure(ItemFailure{Stage: StageImport, Err: err})
		e.appendLog(ctx, synclog.Entry{
			Direction:    synclog.FromRemote,
			Status:       synclog.Failed,
			ErrorMessage: err.Error(),
			Metadata:     map[string]any{"cycle_id": report.CycleID, "stage": string(StageImport)},
		})
		return nil
	}
	report.ParseErrors = len(preview.ParseErrors)
	for _, pe := range preview.ParseErrors {
		e.appendLog(ctx, synclog.Entry{
			ExternalEventID: pe.ExternalEventID,
			Direction:       synclog.FromRemote,
			Status:          synclog.Failed,
			ErrorMessage:    strings.Join(pe.Errors, "; "),
			Metadata:        map[string]any{"title": pe.Title, "reason": "validation", "cycle_id": report.CycleID},
		})
	}

	created := e.CreateMealsFromEvents(ctx, preview.Matched)
	report.Created = len(created.Created)
	report.Skipped = len(created.Skipped)
	report.addFailures(created.Failed)

	stored := e.StoreUnmatchedEvents(ctx, preview.Unmatched)
	report.Unmatched = len(stored.Stored)
	report.Skipped += len(stored.Skipped)
	report.addFailures(stored.Failed)
	return nil
}

func (e *Engine) runExport(ctx context.Context, report *CycleReport, start, end string) error {
	exported, err := e.ExportUnsyncedMeals(ctx, start, end)
	report.Exported = len(exported.Exported)
	report.addFailures(exported.Failed)
	if err != nil {
		if errors.Is(err, calendar.ErrUnauthorized) {
			return err
		}
		log.Printf("Export failed: %v", err)
		report.addFailure(ItemFailure{Stage: StageExport, Err: err})
	}
	return nil
}

func (e *Engine) appendLog(ctx context.Context, entry synclog.Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.now()
	}
	if err := e.syncLog.Append(ctx, entry); err != nil {
		log.Printf("Failed to append sync log entry for %q: %v", entry.ExternalEventID, err)
	}
}

func (e *Engine) loadCatalog(ctx context.Context) ([]recipe.Recipe, error) {
	catalog, err := e.recipes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe catalog: %w", err)
	}
	return catalog, nil
}

func (e *Engine) expandShopping(ctx context.Context, m meal.Meal, r recipe.Recipe) {
	if e.shopping == nil || len(r.Ingredients) == 0 {
		return
	}
	if _, err := e.shopping.Expand(ctx, m, r); err != nil {
		log.Printf("Failed to expand shopping list for meal %d: %v", m.ID, err)
	}
}

func mealIDPtr(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
