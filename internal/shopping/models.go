package shopping

import "time"

// Item is one line of the shopping list, derived from a meal's recipe.
type Item struct {
	ID        int64     `json:"id"`
	MealID    int64     `json:"meal_id"`
	RecipeID  string    `json:"recipe_id"`
	Item      string    `json:"item"`
	CreatedAt time.Time `json:"created_at"`
}
