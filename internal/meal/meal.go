// Package meal holds planned meals and their calendar linkage.
package meal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of a meal date.
const DateLayout = "2006-01-02"

// Type is the meal slot within a day.
type Type string

const (
	Breakfast Type = "Breakfast"
	Lunch     Type = "Lunch"
	Dinner    Type = "Dinner"
)

// Types lists the recognized meal types in day order.
var Types = []Type{Breakfast, Lunch, Dinner}

// ParseType maps a case-insensitive token to a Type.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown meal type %q", s)
}

// Valid reports whether t is one of the recognized meal types.
func (t Type) Valid() bool {
	for _, v := range Types {
		if t == v {
			return true
		}
	}
	return false
}

// SyncSource records where a meal came from.
type SyncSource string

const (
	LocalOnly  SyncSource = "local_only"
	FromRemote SyncSource = "from_remote"
)

var (
	// ErrSlotTaken is returned when a meal already occupies the (date, type) slot.
	ErrSlotTaken = errors.New("meal slot already taken")
	// ErrAlreadyLinked is returned when another meal carries the external event id.
	ErrAlreadyLinked = errors.New("external event already linked to a meal")
	// ErrNotFound is returned when a meal does not exist.
	ErrNotFound = errors.New("meal not found")
)

// Meal is a planned meal. A meal with a non-empty ExternalEventID is linked
// to an event of the remote calendar.
type Meal struct {
	ID              int64
	Date            string
	MealType        Type
	RecipeID        string
	PeopleAssigned  []string
	ExternalEventID string
	LastSyncedAt    *time.Time
	SyncSource      SyncSource
	CreatedAt       time.Time
}

// Linked reports whether the meal is linked to a remote calendar event.
func (m Meal) Linked() bool {
	return m.ExternalEventID != ""
}
