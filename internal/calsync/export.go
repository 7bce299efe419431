package calsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"meal-planner/internal/calendar"
	"meal-planner/internal/meal"
	"meal-planner/internal/recipe"
	"meal-planner/internal/synclog"
)

// ExportResult is the outcome of ExportUnsyncedMeals.
type ExportResult struct {
	Exported []meal.Meal
	Failed   []ItemFailure
}

// ExportUnsyncedMeals creates a remote all-day event for every unlinked meal
// in [startDate, endDate] and links the meal to it. Linked meals are never
// exported again. A missing token aborts the export with
// calendar.ErrUnauthorized; any other failure only affects its meal.
func (e *Engine) ExportUnsyncedMeals(ctx context.Context, startDate, endDate string) (ExportResult, error) {
	var res ExportResult

	meals, err := e.meals.ListUnlinked(ctx, startDate, endDate)
	if err != nil {
		return res, fmt.Errorf("failed to list unsynced meals: %w", err)
	}

	recipes := make(map[string]*recipe.Recipe)
	for _, m := range meals {
		if m.Linked() {
			continue
		}

		rec, ok := recipes[m.RecipeID]
		if !ok {
			rec, err = e.recipes.Get(ctx, m.RecipeID)
			if err != nil {
				res.Failed = append(res.Failed, e.exportFailure(ctx, m, StageExport, err))
				continue
			}
			recipes[m.RecipeID] = rec
		}
		if rec == nil {
			res.Failed = append(res.Failed, e.exportFailure(ctx, m, StageExport, fmt.Errorf("%w: %s", ErrRecipeNotFound, m.RecipeID)))
			continue
		}

		title := e.parser.Title(m.MealType, rec.Title, e.emphasized(m.MealType))
		eventID, err := e.cal.CreateEvent(ctx, calendar.NewEvent{
			Summary:     title,
			Description: e.describe(m, *rec),
			Date:        m.Date,
		})
		if err != nil {
			res.Failed = append(res.Failed, e.exportFailure(ctx, m, StageExport, err))
			if errors.Is(err, calendar.ErrUnauthorized) {
				return res, err
			}
			continue
		}

		now := e.now()
		if err := e.meals.Link(ctx, m.ID, eventID, now); err != nil {
			// The meal changed under us; do not leave an orphan behind.
			if derr := e.cal.DeleteEvent(ctx, eventID); derr != nil {
				log.Printf("Failed to remove orphaned event %s: %v", eventID, derr)
			}
			res.Failed = append(res.Failed, e.exportFailure(ctx, m, StageLink, err))
			continue
		}

		m.ExternalEventID = eventID
		m.LastSyncedAt = &now
		res.Exported = append(res.Exported, m)
		e.appendLog(ctx, synclog.Entry{
			ExternalEventID: eventID,
			MealID:          mealIDPtr(m.ID),
			Direction:       synclog.ToRemote,
			Status:          synclog.Success,
			Metadata:        map[string]any{"title": title, "recipe_id": m.RecipeID, "date": m.Date},
		})
	}
	return res, nil
}

func (e *Engine) exportFailure(ctx context.Context, m meal.Meal, stage Stage, err error) ItemFailure {
	log.Printf("Failed to export meal %d (%s %s): %v", m.ID, m.Date, m.MealType, err)
	e.appendLog(ctx, synclog.Entry{
		MealID:       mealIDPtr(m.ID),
		Direction:    synclog.ToRemote,
		Status:       synclog.Failed,
		ErrorMessage: err.Error(),
		Metadata:     map[string]any{"recipe_id": m.RecipeID, "date": m.Date, "stage": string(stage)},
	})
	return ItemFailure{MealID: m.ID, Stage: stage, Err: err}
}

func (e *Engine) emphasized(t meal.Type) bool {
	for _, s := range e.settings.EmphasizedMealTypes {
		if strings.EqualFold(s, string(t)) {
			return true
		}
	}
	return false
}

func (e *Engine) describe(m meal.Meal, r recipe.Recipe) string {
	lines := []string{"Recipe: " + r.Title}
	if len(m.PeopleAssigned) > 0 {
		lines = append(lines, "For: "+strings.Join(m.PeopleAssigned, ", "))
	}
	if link := e.RecipeLink(r); link != "" {
		lines = append(lines, link)
	}
	return strings.Join(lines, "\n")
}

// RecipeLink is the deep link to a recipe: the app's recipe view when a base
// URL is configured, otherwise the recipe's own URL.
func (e *Engine) RecipeLink(r recipe.Recipe) string {
	if e.appBaseURL != "" {
		return e.appBaseURL + "/recipes/" + url.PathEscape(r.ID)
	}
	return r.URL
}

// DeleteMeal removes a meal, its shopping lines and, best effort, its remote
// event. A remote event that is already gone counts as deleted.
func (e *Engine) DeleteMeal(ctx context.Context, mealID int64) error {
	m, err := e.meals.Get(ctx, mealID)
	if err != nil {
		return err
	}

	if m.Linked() {
		entry := synclog.Entry{
			ExternalEventID: m.ExternalEventID,
			MealID:          mealIDPtr(m.ID),
			Direction:       synclog.ToRemote,
			Status:          synclog.Success,
			Metadata:        map[string]any{"action": "delete", "date": m.Date, "meal_type": string(m.MealType)},
		}
		if err := e.cal.DeleteEvent(ctx, m.ExternalEventID); err != nil {
			log.Printf("Failed to delete remote event %s for meal %d: %v", m.ExternalEventID, m.ID, err)
			entry.Status = synclog.Failed
			entry.ErrorMessage = err.Error()
		}
		e.appendLog(ctx, entry)
	}

	if e.shoppingItems != nil {
		if err := e.shoppingItems.DeleteByMeal(ctx, m.ID); err != nil {
			log.Printf("Failed to delete shopping items for meal %d: %v", m.ID, err)
		}
	}

	if err := e.meals.Delete(ctx, m.ID); err != nil {
		return fmt.Errorf("failed to delete meal %d: %w", m.ID, err)
	}
	return nil
}
