package recipe

import (
	"regexp"
	"strconv"
)

// DefaultServings is assumed when a recipe does not state how many it serves.
const DefaultServings = 4

// Recipe is an entry of the recipe catalog.
type Recipe struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	URL         string   `json:"url,omitempty"`
	Ingredients []string `json:"ingredients"`
	Servings    string   `json:"servings,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

var leadingNumber = regexp.MustCompile(`\d+`)

// ServingsCount returns the first number found in Servings ("4 people" -> 4).
func (r Recipe) ServingsCount() int {
	m := leadingNumber.FindString(r.Servings)
	if m == "" {
		return DefaultServings
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return DefaultServings
	}
	return n
}
