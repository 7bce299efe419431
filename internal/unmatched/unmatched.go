// Package unmatched stores calendar meal events whose recipe could not be
// matched, until someone links, creates or dismisses them.
package unmatched

import (
	"errors"
	"time"

	"meal-planner/internal/meal"
)

// Status is the resolution state of an unmatched event.
type Status string

const (
	Pending Status = "pending"
	Matched Status = "matched"
	Ignored Status = "ignored"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Matched || s == Ignored
}

var (
	// ErrNotFound is returned when the unmatched event does not exist.
	ErrNotFound = errors.New("unmatched event not found")
	// ErrAlreadyResolved is returned when the event is no longer pending.
	ErrAlreadyResolved = errors.New("unmatched event already resolved")
)

// Event is a parsed calendar meal event that matched no recipe.
type Event struct {
	ID                  string
	ExternalEventID     string
	OriginalTitle       string
	Date                string
	MealType            meal.Type
	ExtractedRecipeName string
	Status              Status
	Notes               string
	CreatedAt           time.Time
	ResolvedAt          *time.Time
	ResolvedRecipeID    string
}
