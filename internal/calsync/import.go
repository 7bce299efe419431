package calsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"meal-planner/internal/matcher"
	"meal-planner/internal/meal"
	"meal-planner/internal/mealevent"
	"meal-planner/internal/recipe"
	"meal-planner/internal/synclog"
	"meal-planner/internal/unmatched"
)

// Skip reasons recorded in the sync log metadata.
const (
	ReasonSlotOccupied  = "slot_occupied"
	ReasonAlreadyLinked = "already_linked"
	ReasonNoMatch       = "no_match"
)

// MatchedEvent is a meal event with the recipe it matched.
type MatchedEvent struct {
	Event         mealevent.MealEvent
	Recipe        recipe.Recipe
	Kind          matcher.Kind
	Score         float64
	Tier          matcher.Tier
	RemoteUpdated time.Time
}

// ParseError is a meal event that parsed but failed validation.
type ParseError struct {
	ExternalEventID string
	Title           string
	Date            string
	Errors          []string
}

// ImportPreview is what an import would do. Building it writes nothing.
type ImportPreview struct {
	Matched     []MatchedEvent
	Unmatched   []mealevent.MealEvent
	ParseErrors []ParseError
	// NotMeals counts calendar items whose title is not a meal.
	NotMeals int
}

// Skip is an event left alone by a duplicate guard.
type Skip struct {
	ExternalEventID string
	Date            string
	MealType        meal.Type
	Reason          string
	// MealID is the meal already holding the slot or the event.
	MealID int64
}

// CreateResult is the outcome of CreateMealsFromEvents.
type CreateResult struct {
	Created []meal.Meal
	Skipped []Skip
	Failed  []ItemFailure
}

// StoreResult is the outcome of StoreUnmatchedEvents.
type StoreResult struct {
	Stored []unmatched.Event
	// Existing counts events already parked by an earlier cycle.
	Existing int
	Skipped  []Skip
	Failed   []ItemFailure
}

// ImportFromRemote reads the remote events starting within [startDate,
// endDate] and sorts them into matched, unmatched and invalid meal events.
// The recipe catalog is read once.
func (e *Engine) ImportFromRemote(ctx context.Context, startDate, endDate string) (ImportPreview, error) {
	from, err := time.ParseInLocation(meal.DateLayout, startDate, e.loc)
	if err != nil {
		return ImportPreview{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	to, err := time.ParseInLocation(meal.DateLayout, endDate, e.loc)
	if err != nil {
		return ImportPreview{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	events, err := e.cal.ListEvents(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return ImportPreview{}, fmt.Errorf("failed to list remote events: %w", err)
	}

	catalog, err := e.loadCatalog(ctx)
	if err != nil {
		return ImportPreview{}, err
	}

	var preview ImportPreview
	for _, ev := range events {
		date := ev.LocalDate(e.loc)
		if date != "" && (date < startDate || date > endDate) {
			continue
		}

		me := e.parser.Parse(ev.Summary)
		if me == nil {
			preview.NotMeals++
			continue
		}
		me.ExternalEventID = ev.ID
		me.Date = date

		if res := mealevent.Validate(*me); !res.Valid {
			preview.ParseErrors = append(preview.ParseErrors, ParseError{
				ExternalEventID: ev.ID,
				Title:           ev.Summary,
				Date:            date,
				Errors:          res.Errors,
			})
			continue
		}

		best, res := e.matcher.FindBestMatch(me.RecipeName, catalog)
		if best == nil {
			preview.Unmatched = append(preview.Unmatched, *me)
			continue
		}
		m := MatchedEvent{Event: *me, Recipe: *best, Kind: res.Kind, Score: res.Score, Tier: res.Tier, RemoteUpdated: ev.Updated}
		if res.Kind == matcher.Fuzzy && res.Score < e.matcher.Options().AcceptanceThreshold {
			// Below acceptance the fallback is the first partial hit.
			m.Kind = matcher.Partial
			m.Score = res.Partials[0].Score
			m.Tier = matcher.TierFor(m.Score)
		}
		preview.Matched = append(preview.Matched, m)
	}

	return preview, nil
}

// CreateMealsFromEvents creates a meal for each matched event. An event is
// skipped when its id is already linked to a meal or its slot is taken;
// existing meals are never overwritten. One failure does not stop the rest.
// A pending unmatched row for an event that ends up linked is marked Matched.
func (e *Engine) CreateMealsFromEvents(ctx context.Context, matched []MatchedEvent) CreateResult {
	var res CreateResult
	for _, me := range matched {
		meta := map[string]any{
			"title":      me.Event.OriginalTitle,
			"recipe_id":  me.Recipe.ID,
			"match_kind": string(me.Kind),
			"score":      me.Score,
			"tier":       string(me.Tier),
		}
		if !me.RemoteUpdated.IsZero() {
			meta["remote_updated"] = me.RemoteUpdated.Format(time.RFC3339)
		}

		m, skip, err := e.createMeal(ctx, me.Event, me.Recipe)
		switch {
		case err != nil:
			log.Printf("Failed to create meal for event %s: %v", me.Event.ExternalEventID, err)
			res.Failed = append(res.Failed, ItemFailure{ExternalEventID: me.Event.ExternalEventID, Stage: StageCreate, Err: err})
			e.appendLog(ctx, synclog.Entry{
				ExternalEventID: me.Event.ExternalEventID,
				Direction:       synclog.FromRemote,
				Status:          synclog.Failed,
				ErrorMessage:    err.Error(),
				Metadata:        meta,
			})
		case skip != nil:
			res.Skipped = append(res.Skipped, *skip)
			meta["reason"] = skip.Reason
			e.appendLog(ctx, synclog.Entry{
				ExternalEventID: me.Event.ExternalEventID,
				MealID:          mealIDPtr(skip.MealID),
				Direction:       synclog.FromRemote,
				Status:          synclog.Conflict,
				Metadata:        meta,
			})
			if skip.Reason == ReasonAlreadyLinked {
				if linked, err := e.meals.FindByExternalID(ctx, me.Event.ExternalEventID); err == nil && linked != nil {
					e.settleUnmatched(ctx, *linked)
				}
			}
		default:
			res.Created = append(res.Created, *m)
			e.appendLog(ctx, synclog.Entry{
				ExternalEventID: me.Event.ExternalEventID,
				MealID:          mealIDPtr(m.ID),
				Direction:       synclog.FromRemote,
				Status:          synclog.Success,
				Metadata:        meta,
			})
			e.expandShopping(ctx, *m, me.Recipe)
			e.settleUnmatched(ctx, *m)
		}
	}
	return res
}

// createMeal applies the duplicate guards and inserts a remote-sourced meal.
// Exactly one of the results is non-nil.
func (e *Engine) createMeal(ctx context.Context, ev mealevent.MealEvent, r recipe.Recipe) (*meal.Meal, *Skip, error) {
	skip := func(reason string, mealID int64) *Skip {
		return &Skip{ExternalEventID: ev.ExternalEventID, Date: ev.Date, MealType: ev.MealType, Reason: reason, MealID: mealID}
	}

	linked, err := e.meals.FindByExternalID(ctx, ev.ExternalEventID)
	if err != nil {
		return nil, nil, err
	}
	if linked != nil {
		return nil, skip(ReasonAlreadyLinked, linked.ID), nil
	}

	occupant, err := e.meals.FindBySlot(ctx, ev.Date, ev.MealType)
	if err != nil {
		return nil, nil, err
	}
	if occupant != nil {
		return nil, skip(ReasonSlotOccupied, occupant.ID), nil
	}

	now := e.now()
	m := &meal.Meal{
		Date:            ev.Date,
		MealType:        ev.MealType,
		RecipeID:        r.ID,
		PeopleAssigned:  e.settings.Assignees(),
		ExternalEventID: ev.ExternalEventID,
		LastSyncedAt:    &now,
		SyncSource:      meal.FromRemote,
	}
	switch err := e.meals.Create(ctx, m); {
	case errors.Is(err, meal.ErrSlotTaken):
		return nil, skip(ReasonSlotOccupied, 0), nil
	case errors.Is(err, meal.ErrAlreadyLinked):
		return nil, skip(ReasonAlreadyLinked, 0), nil
	case err != nil:
		return nil, nil, err
	}
	return m, nil, nil
}

// StoreUnmatchedEvents parks events no recipe matched. Re-importing an event
// leaves its stored row untouched, whatever its status. Events already linked
// to a meal are skipped and their pending row, if any, is marked Matched.
func (e *Engine) StoreUnmatchedEvents(ctx context.Context, events []mealevent.MealEvent) StoreResult {
	var res StoreResult
	for _, ev := range events {
		linked, err := e.meals.FindByExternalID(ctx, ev.ExternalEventID)
		if err == nil && linked != nil {
			res.Skipped = append(res.Skipped, Skip{
				ExternalEventID: ev.ExternalEventID,
				Date:            ev.Date,
				MealType:        ev.MealType,
				Reason:          ReasonAlreadyLinked,
				MealID:          linked.ID,
			})
			e.settleUnmatched(ctx, *linked)
			continue
		}

		u := &unmatched.Event{
			ExternalEventID:     ev.ExternalEventID,
			OriginalTitle:       ev.OriginalTitle,
			Date:                ev.Date,
			MealType:            ev.MealType,
			ExtractedRecipeName: ev.RecipeName,
		}
		inserted, err := e.unmatched.InsertIfAbsent(ctx, u)
		if err != nil {
			log.Printf("Failed to store unmatched event %s: %v", ev.ExternalEventID, err)
			res.Failed = append(res.Failed, ItemFailure{ExternalEventID: ev.ExternalEventID, Stage: StageUnmatched, Err: err})
			e.appendLog(ctx, synclog.Entry{
				ExternalEventID: ev.ExternalEventID,
				Direction:       synclog.FromRemote,
				Status:          synclog.Failed,
				ErrorMessage:    err.Error(),
				Metadata:        map[string]any{"title": ev.OriginalTitle, "stage": string(StageUnmatched)},
			})
			continue
		}
		if !inserted {
			res.Existing++
			continue
		}

		res.Stored = append(res.Stored, *u)
		e.appendLog(ctx, synclog.Entry{
			ExternalEventID: ev.ExternalEventID,
			Direction:       synclog.FromRemote,
			Status:          synclog.Conflict,
			Metadata: map[string]any{
				"title":        ev.OriginalTitle,
				"reason":       ReasonNoMatch,
				"unmatched_id": u.ID,
				"recipe_name":  ev.RecipeName,
			},
		})
	}
	return res
}
