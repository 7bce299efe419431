package shopping

import (
	"context"
	"fmt"
	"strings"

	"meal-planner/internal/meal"
	"meal-planner/internal/recipe"
)

// ItemStore persists the expanded lines of a meal.
type ItemStore interface {
	ReplaceForMeal(ctx context.Context, mealID int64, recipeID string, lines []string) error
}

// Expander turns a meal's recipe into shopping list lines.
type Expander struct {
	store ItemStore
}

// NewExpander creates an Expander writing to store.
func NewExpander(store ItemStore) *Expander {
	return &Expander{store: store}
}

// Ratio is the servings multiplier for a meal: assigned people over recipe
// servings, or 1 when nobody is assigned.
func Ratio(m meal.Meal, r recipe.Recipe) float64 {
	if len(m.PeopleAssigned) == 0 {
		return 1
	}
	return float64(len(m.PeopleAssigned)) / float64(r.ServingsCount())
}

// Expand writes the scaled ingredients of r as the shopping items of m and
// returns them. A recipe without ingredients writes nothing.
func (e *Expander) Expand(ctx context.Context, m meal.Meal, r recipe.Recipe) ([]string, error) {
	if len(r.Ingredients) == 0 {
		return nil, nil
	}

	ratio := Ratio(m, r)
	lines := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		ing = strings.TrimSpace(ing)
		if ing == "" {
			continue
		}
		lines = append(lines, ScaleLine(ing, ratio))
	}

	if err := e.store.ReplaceForMeal(ctx, m.ID, r.ID, lines); err != nil {
		return nil, fmt.Errorf("failed to store shopping items for meal %d: %w", m.ID, err)
	}
	return lines, nil
}
