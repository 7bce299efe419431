package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"meal-planner/internal/calendar"
	"meal-planner/internal/calsync"
	"meal-planner/internal/config"
	"meal-planner/internal/database"
	"meal-planner/internal/ghost"
	"meal-planner/internal/matcher"
	"meal-planner/internal/meal"
	"meal-planner/internal/metrics"
	"meal-planner/internal/recipe"
	"meal-planner/internal/shopping"
	"meal-planner/internal/synclog"
	"meal-planner/internal/unmatched"
)

// ErrCatalogUnavailable is returned by catalog operations when Ghost is not configured.
var ErrCatalogUnavailable = errors.New("recipe catalog source is not configured")

// App holds the application's dependencies.
type App struct {
	cfg *config.Config
	db  *database.DB

	meals        *meal.Repository
	recipeRepo   *recipe.Repository
	unmatched    *unmatched.Repository
	syncLog      *synclog.Store
	shoppingRepo *shopping.Repository
	metricsStore *metrics.Store
	importer     *recipe.Importer

	engine    *calsync.Engine
	scheduler *calsync.Scheduler
}

// Open connects to the database and the remote calendar described by cfg.
// A calendar that cannot be authorized does not prevent startup: every
// cycle then aborts with calendar.ErrUnauthorized until a token is provided.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var cal calendar.Client
	gc, err := calendar.NewGoogleClientFromFiles(ctx, cfg.GoogleCredentialsFile, cfg.GoogleTokenFile, cfg.GoogleCalendarID)
	if err != nil {
		log.Printf("Warning: Google Calendar unavailable: %v", err)
		cal = calendar.Unavailable(err)
	} else {
		cal = gc
	}

	var ghostClient ghost.Client
	if cfg.HasGhost() {
		ghostClient = ghost.NewClient(cfg)
	}

	return NewApp(cfg, db, cal, ghostClient), nil
}

// NewApp wires an App over an open database. ghostClient may be nil, in
// which case catalog import and recipe creation are disabled.
func NewApp(cfg *config.Config, db *database.DB, cal calendar.Client, ghostClient ghost.Client) *App {
	a := &App{
		cfg:          cfg,
		db:           db,
		meals:        meal.NewRepository(db.SQL),
		recipeRepo:   recipe.NewRepository(db.SQL),
		unmatched:    unmatched.NewRepository(db.SQL),
		syncLog:      synclog.NewStore(db.SQL),
		shoppingRepo: shopping.NewRepository(db.SQL),
		metricsStore: metrics.NewStore(db.SQL),
	}

	deps := calsync.Deps{
		Calendar:      cal,
		Meals:         a.meals,
		Recipes:       a.recipeRepo,
		Unmatched:     a.unmatched,
		Log:           a.syncLog,
		Shopping:      shopping.NewExpander(a.shoppingRepo),
		ShoppingItems: a.shoppingRepo,
		Cycles:        a.metricsStore,
	}
	if ghostClient != nil {
		a.importer = recipe.NewImporter(ghostClient, a.recipeRepo)
		deps.Creator = a.importer
	}

	a.engine = calsync.NewEngine(deps, calsync.Options{
		Settings:   cfg.Sync,
		Location:   cfg.Location(),
		AppBaseURL: cfg.AppBaseURL,
	})
	return a
}

// StartScheduler starts periodic sync cycles. Outcomes are passed to every
// observer.
func (a *App) StartScheduler(ctx context.Context, observers ...func(calsync.Outcome)) error {
	if a.scheduler != nil {
		return nil
	}
	s, err := calsync.NewScheduler(a.engine, a.cfg.Sync.Schedule, a.cfg.Sync.InitialDelay, a.cfg.Location())
	if err != nil {
		return err
	}
	s.OnOutcome(func(o calsync.Outcome) {
		if o.Err == nil {
			log.Printf("Sync cycle (%s) done: %s", o.Trigger, o.Report.Summary())
		}
	})
	for _, fn := range observers {
		s.OnOutcome(fn)
	}
	s.Start(ctx)
	a.scheduler = s
	log.Printf("Sync scheduler started (%s)", a.cfg.Sync.Schedule)
	return nil
}

// Close stops the scheduler, waiting for a running cycle, then closes the database.
func (a *App) Close() error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	return a.db.Close()
}

// RunSync runs a manual cycle. With a running scheduler the cycle goes
// through it so it never overlaps a scheduled one.
func (a *App) RunSync(ctx context.Context) (calsync.CycleReport, error) {
	if a.scheduler != nil {
		return a.scheduler.RunNow(ctx)
	}
	return a.engine.PerformSync(ctx, calsync.TriggerManual)
}

// Preview reports what an import over the sync window would do. No meals
// or unmatched events are written and nothing is logged.
func (a *App) Preview(ctx context.Context) (calsync.ImportPreview, error) {
	start, end := a.engine.Window()
	return a.engine.ImportFromRemote(ctx, start, end)
}

// Export pushes unlinked meals in the sync window to the calendar.
func (a *App) Export(ctx context.Context) (calsync.ExportResult, error) {
	start, end := a.engine.Window()
	return a.engine.ExportUnsyncedMeals(ctx, start, end)
}

// PlanMeal adds a local meal for recipeID. Without people the default
// assignees are used. The meal is exported by the next cycle.
func (a *App) PlanMeal(ctx context.Context, date string, mealType meal.Type, recipeID string, people []string) (*meal.Meal, error) {
	if _, err := time.Parse(meal.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if !mealType.Valid() {
		return nil, fmt.Errorf("unknown meal type %q", mealType)
	}
	r, err := a.recipeRepo.Get(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, calsync.ErrRecipeNotFound
	}
	if len(people) == 0 {
		people = a.cfg.Sync.Assignees()
	}

	m := &meal.Meal{
		Date:           date,
		MealType:       mealType,
		RecipeID:       r.ID,
		PeopleAssigned: people,
		SyncSource:     meal.LocalOnly,
	}
	if err := a.meals.Create(ctx, m); err != nil {
		return nil, err
	}
	if _, err := shopping.NewExpander(a.shoppingRepo).Expand(ctx, *m, *r); err != nil {
		log.Printf("Failed to expand shopping list for meal %d: %v", m.ID, err)
	}
	return m, nil
}

// Meals lists the meals in the sync window.
func (a *App) Meals(ctx context.Context) ([]meal.Meal, error) {
	start, end := a.engine.Window()
	return a.meals.ListRange(ctx, start, end)
}

// ShoppingList returns the shopping lines of a meal.
func (a *App) ShoppingList(ctx context.Context, mealID int64) ([]shopping.Item, error) {
	return a.shoppingRepo.ListByMeal(ctx, mealID)
}

// DeleteMeal removes a meal locally and from the calendar.
func (a *App) DeleteMeal(ctx context.Context, mealID int64) error {
	return a.engine.DeleteMeal(ctx, mealID)
}

// SyncCatalog refreshes the recipe catalog from Ghost.
func (a *App) SyncCatalog(ctx context.Context) (recipe.ImportStats, error) {
	if a.importer == nil {
		return recipe.ImportStats{}, ErrCatalogUnavailable
	}
	return a.importer.SyncCatalog(ctx)
}

// Recipes lists the catalog.
func (a *App) Recipes(ctx context.Context) ([]recipe.Recipe, error) {
	return a.recipeRepo.List(ctx)
}

// PendingUnmatched lists unmatched events awaiting a decision.
func (a *App) PendingUnmatched(ctx context.Context) ([]unmatched.Event, error) {
	return a.engine.GetPendingUnmatchedEvents(ctx)
}

// Suggestions lists candidate recipes for an unmatched event.
func (a *App) Suggestions(ctx context.Context, id string, limit int) ([]matcher.Candidate, error) {
	return a.engine.Suggestions(ctx, id, limit)
}

// Resolve links an unmatched event to a recipe.
func (a *App) Resolve(ctx context.Context, id, recipeID string) (*meal.Meal, error) {
	return a.engine.ResolveUnmatchedEvent(ctx, id, recipeID)
}

// ResolveWithNewRecipe creates a recipe named after the event and links it.
func (a *App) ResolveWithNewRecipe(ctx context.Context, id string) (*meal.Meal, error) {
	return a.engine.ResolveWithNewRecipe(ctx, id)
}

// Ignore dismisses an unmatched event.
func (a *App) Ignore(ctx context.Context, id, notes string) error {
	return a.engine.IgnoreUnmatchedEvent(ctx, id, notes)
}

// RecentActivity returns the latest sync log entries.
func (a *App) RecentActivity(ctx context.Context, limit int) ([]synclog.Entry, error) {
	return a.engine.GetRecentSyncActivity(ctx, limit)
}

// DailyActivity aggregates cycle metrics per day.
func (a *App) DailyActivity(ctx context.Context, days int) ([]metrics.DailyActivity, error) {
	return a.metricsStore.GetDailyActivity(ctx, days)
}

// LastCycle returns the most recent recorded cycle, or nil.
func (a *App) LastCycle(ctx context.Context) (*metrics.CycleMetric, error) {
	return a.metricsStore.LastCycle(ctx)
}

// CleanupMetrics removes cycle metrics older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	return a.metricsStore.Cleanup(ctx, days)
}
