// Package mealevent recognizes meal entries among calendar event titles.
//
// A meal title looks like "Dinner: Spaghetti Carbonara", optionally prefixed
// by an emphasis marker ("* Lunch: Pizza"). Anything else is not a meal and
// is ignored by the sync engine.
package mealevent

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"meal-planner/internal/meal"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultEmphasisMarker is the prefix that flags an emphasized meal.
const DefaultEmphasisMarker = "*"

// MealEvent is a remote calendar item recognized as a meal.
type MealEvent struct {
	ExternalEventID string
	MealType        meal.Type
	RecipeName      string
	Date            string
	// Emphasis only affects display ordering.
	Emphasis      bool
	OriginalTitle string
}

// Parser turns event titles into meal events.
type Parser struct {
	marker  string
	pattern *regexp.Regexp
}

// NewParser creates a Parser for the given emphasis marker. An empty marker
// selects DefaultEmphasisMarker.
func NewParser(marker string) *Parser {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		marker = DefaultEmphasisMarker
	}
	pattern := regexp.MustCompile(`^(` + regexp.QuoteMeta(marker) + `\s*)?(?i:(breakfast|lunch|dinner)):\s*(.+)$`)
	return &Parser{
		marker:  marker,
		pattern: pattern,
	}
}

// Marker returns the emphasis marker.
func (p *Parser) Marker() string {
	return p.marker
}

// Parse recognizes a meal title. It returns nil when the title is not a
// meal; that is not an error. The returned event has no id or date yet.
func (p *Parser) Parse(title string) *MealEvent {
	m := p.pattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return nil
	}
	mealType, err := meal.ParseType(cases.Title(language.English).String(m[2]))
	if err != nil {
		return nil
	}
	return &MealEvent{
		MealType:      mealType,
		RecipeName:    strings.TrimSpace(m[3]),
		Emphasis:      m[1] != "",
		OriginalTitle: title,
	}
}

// Title renders the calendar title for a meal, the inverse of Parse.
func (p *Parser) Title(mealType meal.Type, recipeTitle string, emphasis bool) string {
	t := fmt.Sprintf("%s: %s", mealType, strings.TrimSpace(recipeTitle))
	if emphasis {
		return p.marker + " " + t
	}
	return t
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidationResult lists the problems found in a meal event.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks a parsed event before it is persisted.
func Validate(e MealEvent) ValidationResult {
	var errs []string
	if !e.MealType.Valid() {
		errs = append(errs, fmt.Sprintf("invalid meal type %q", e.MealType))
	}
	if strings.TrimSpace(e.RecipeName) == "" {
		errs = append(errs, "recipe name is empty")
	}
	if !datePattern.MatchString(e.Date) {
		errs = append(errs, fmt.Sprintf("date %q is not YYYY-MM-DD", e.Date))
	} else if _, err := time.Parse(meal.DateLayout, e.Date); err != nil {
		errs = append(errs, fmt.Sprintf("date %q is not a calendar date", e.Date))
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// NormalizeForMatching folds a recipe name for equality checks: accents and
// case are dropped, apostrophes removed, other punctuation turned into
// spaces, and whitespace collapsed. The result is never persisted.
func NormalizeForMatching(name string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
