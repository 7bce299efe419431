package calsync

import (
	"context"
	"errors"
	"fmt"
	"log"

	"meal-planner/internal/matcher"
	"meal-planner/internal/meal"
	"meal-planner/internal/mealevent"
	"meal-planner/internal/synclog"
	"meal-planner/internal/unmatched"
)

// ResolveUnmatchedEvent links a pending unmatched event to a recipe. It
// creates the meal the import would have created, under the same duplicate
// guards, then marks the event Matched. When a later import already linked
// the event to a meal, that meal is kept and returned and the event is marked
// Matched to its recipe. A resolved event cannot be resolved again.
func (e *Engine) ResolveUnmatchedEvent(ctx context.Context, id, recipeID string) (*meal.Meal, error) {
	ev, err := e.pendingEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	rec, err := e.recipes.Get(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe %s: %w", recipeID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecipeNotFound, recipeID)
	}

	me := mealevent.MealEvent{
		ExternalEventID: ev.ExternalEventID,
		MealType:        ev.MealType,
		RecipeName:      ev.ExtractedRecipeName,
		Date:            ev.Date,
		OriginalTitle:   ev.OriginalTitle,
	}
	m, skip, err := e.createMeal(ctx, me, *rec)
	if err != nil {
		return nil, fmt.Errorf("failed to create meal: %w", err)
	}
	if skip != nil {
		if skip.Reason == ReasonAlreadyLinked {
			return e.resolveLinked(ctx, ev)
		}
		return nil, meal.ErrSlotTaken
	}

	if err := e.unmatched.MarkMatched(ctx, ev.ID, rec.ID, e.now()); err != nil {
		// Another resolution won the race; its meal already owns the event.
		if derr := e.meals.Delete(ctx, m.ID); derr != nil && !errors.Is(derr, meal.ErrNotFound) {
			return nil, fmt.Errorf("failed to roll back meal %d: %w", m.ID, derr)
		}
		return nil, err
	}

	e.appendLog(ctx, synclog.Entry{
		ExternalEventID: ev.ExternalEventID,
		MealID:          mealIDPtr(m.ID),
		Direction:       synclog.FromRemote,
		Status:          synclog.Success,
		Metadata: map[string]any{
			"title":        ev.OriginalTitle,
			"recipe_id":    rec.ID,
			"resolution":   "manual",
			"unmatched_id": ev.ID,
		},
	})
	e.expandShopping(ctx, *m, *rec)
	return m, nil
}

// ResolveWithNewRecipe creates a recipe named after the event and resolves
// the event to it.
func (e *Engine) ResolveWithNewRecipe(ctx context.Context, id string) (*meal.Meal, error) {
	if e.creator == nil {
		return nil, ErrRecipeCreationUnavailable
	}
	ev, err := e.pendingEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := e.creator.CreateRecipe(ctx, ev.ExtractedRecipeName)
	if err != nil {
		return nil, fmt.Errorf("failed to create recipe %q: %w", ev.ExtractedRecipeName, err)
	}
	return e.ResolveUnmatchedEvent(ctx, id, rec.ID)
}

// IgnoreUnmatchedEvent dismisses a pending unmatched event. No meal is
// created; the notes are kept.
func (e *Engine) IgnoreUnmatchedEvent(ctx context.Context, id, notes string) error {
	return e.unmatched.MarkIgnored(ctx, id, notes, e.now())
}

// GetPendingUnmatchedEvents lists the events waiting for a human.
func (e *Engine) GetPendingUnmatchedEvents(ctx context.Context) ([]unmatched.Event, error) {
	return e.unmatched.ListPending(ctx)
}

// GetRecentSyncActivity returns the newest sync log entries.
func (e *Engine) GetRecentSyncActivity(ctx context.Context, limit int) ([]synclog.Entry, error) {
	return e.syncLog.Recent(ctx, limit)
}

// Suggestions proposes catalog recipes for a pending unmatched event.
func (e *Engine) Suggestions(ctx context.Context, id string, limit int) ([]matcher.Candidate, error) {
	ev, err := e.unmatched.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	catalog, err := e.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return e.matcher.GetSuggestions(ev.ExtractedRecipeName, catalog, limit), nil
}

func (e *Engine) resolveLinked(ctx context.Context, ev *unmatched.Event) (*meal.Meal, error) {
	linked, err := e.meals.FindByExternalID(ctx, ev.ExternalEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked meal: %w", err)
	}
	if linked == nil {
		return nil, meal.ErrAlreadyLinked
	}
	if err := e.unmatched.MarkMatched(ctx, ev.ID, linked.RecipeID, e.now()); err != nil {
		return nil, err
	}
	e.appendLog(ctx, synclog.Entry{
		ExternalEventID: ev.ExternalEventID,
		MealID:          mealIDPtr(linked.ID),
		Direction:       synclog.FromRemote,
		Status:          synclog.Success,
		Metadata: map[string]any{
			"title":        ev.OriginalTitle,
			"recipe_id":    linked.RecipeID,
			"resolution":   "already_linked",
			"unmatched_id": ev.ID,
		},
	})
	return linked, nil
}

// settleUnmatched marks the pending unmatched row of a now linked event as
// Matched to the meal's recipe.
func (e *Engine) settleUnmatched(ctx context.Context, m meal.Meal) {
	ev, err := e.unmatched.GetByExternalID(ctx, m.ExternalEventID)
	if err != nil {
		log.Printf("Failed to look up unmatched event for %s: %v", m.ExternalEventID, err)
		return
	}
	if ev == nil || ev.Status != unmatched.Pending {
		return
	}
	if err := e.unmatched.MarkMatched(ctx, ev.ID, m.RecipeID, e.now()); err != nil {
		if !errors.Is(err, unmatched.ErrAlreadyResolved) {
			log.Printf("Failed to mark unmatched event %s as matched: %v", ev.ID, err)
		}
		return
	}
	e.appendLog(ctx, synclog.Entry{
		ExternalEventID: m.ExternalEventID,
		MealID:          mealIDPtr(m.ID),
		Direction:       synclog.FromRemote,
		Status:          synclog.Success,
		Metadata: map[string]any{
			"title":        ev.OriginalTitle,
			"recipe_id":    m.RecipeID,
			"resolution":   "auto",
			"unmatched_id": ev.ID,
		},
	})
}

func (e *Engine) pendingEvent(ctx context.Context, id string) (*unmatched.Event, error) {
	ev, err := e.unmatched.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.Status != unmatched.Pending {
		return nil, unmatched.ErrAlreadyResolved
	}
	return ev, nil
}
