// Package matcher links free-text recipe names to catalog recipes.
package matcher

import (
	"sort"
	"strings"

	"meal-planner/internal/mealevent"
	"meal-planner/internal/recipe"
)

// Kind is the strength of a match.
type Kind string

const (
	None    Kind = "none"
	Exact   Kind = "exact"
	Fuzzy   Kind = "fuzzy"
	Partial Kind = "partial"
)

// Tier is the confidence bucket of a fuzzy score.
type Tier string

const (
	High   Tier = "high"
	Medium Tier = "medium"
	Low    Tier = "low"
)

// TierFor maps a similarity score to its confidence tier.
func TierFor(score float64) Tier {
	switch {
	case score >= 0.9:
		return High
	case score >= 0.8:
		return Medium
	default:
		return Low
	}
}

// PartialKind tells which side of a substring match contains the other.
type PartialKind string

const (
	TitleContainsName PartialKind = "title_contains_name"
	NameContainsTitle PartialKind = "name_contains_title"
)

// Candidate is a scored catalog entry.
type Candidate struct {
	Recipe recipe.Recipe
	Score  float64
	Tier   Tier
}

// PartialMatch is a substring hit between a name and a catalog title.
type PartialMatch struct {
	Recipe recipe.Recipe
	Kind   PartialKind
	Score  float64
}

// Result is the outcome of Match. Recipe is nil only for None.
type Result struct {
	Kind        Kind
	Recipe      *recipe.Recipe
	Score       float64
	Tier        Tier
	PartialKind PartialKind
	// Candidates holds every entry above the fuzzy threshold, best first.
	Candidates []Candidate
	// Partials holds whole-word substring hits in catalog order.
	Partials []PartialMatch
}

// Options holds the matcher thresholds.
type Options struct {
	FuzzyThreshold      float64
	AcceptanceThreshold float64
	SuggestionThreshold float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold:      0.8,
		AcceptanceThreshold: 0.85,
		SuggestionThreshold: 0.5,
	}
}

// DefaultSuggestionLimit caps GetSuggestions when no limit is given.
const DefaultSuggestionLimit = 5

// Matcher scores recipe names against a catalog. It holds no state besides
// its thresholds and is safe for concurrent use.
type Matcher struct {
	opts Options
}

// New creates a Matcher. Zero thresholds fall back to DefaultOptions.
func New(opts Options) *Matcher {
	def := DefaultOptions()
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = def.FuzzyThreshold
	}
	if opts.AcceptanceThreshold <= 0 {
		opts.AcceptanceThreshold = def.AcceptanceThreshold
	}
	if opts.SuggestionThreshold <= 0 {
		opts.SuggestionThreshold = def.SuggestionThreshold
	}
	return &Matcher{opts: opts}
}

// Options returns the thresholds in use.
func (m *Matcher) Options() Options {
	return m.opts
}

type entry struct {
	recipe     recipe.Recipe
	normalized string
}

func normalizeCatalog(catalog []recipe.Recipe) []entry {
	entries := make([]entry, 0, len(catalog))
	for _, r := range catalog {
		n := mealevent.NormalizeForMatching(r.Title)
		if n == "" {
			continue
		}
		entries = append(entries, entry{recipe: r, normalized: n})
	}
	return entries
}

// Match finds the best catalog entry for name. An exact match wins
// outright. Otherwise the best fuzzy candidate is returned, then the first
// partial match, then None.
func (m *Matcher) Match(name string, catalog []recipe.Recipe) Result {
	target := mealevent.NormalizeForMatching(name)
	if target == "" || len(catalog) == 0 {
		return Result{Kind: None}
	}

	entries := normalizeCatalog(catalog)
	for _, e := range entries {
		if e.normalized == target {
			r := e.recipe
			return Result{Kind: Exact, Recipe: &r, Score: 1, Tier: High}
		}
	}

	candidates := scoreAbove(target, entries, m.opts.FuzzyThreshold)
	partials := findPartials(target, entries)

	res := Result{Kind: None, Candidates: candidates, Partials: partials}
	switch {
	case len(candidates) > 0:
		top := candidates[0]
		res.Kind = Fuzzy
		res.Recipe = &top.Recipe
		res.Score = top.Score
		res.Tier = top.Tier
	case len(partials) > 0:
		p := partials[0]
		res.Kind = Partial
		res.Recipe = &p.Recipe
		res.Score = p.Score
		res.Tier = TierFor(p.Score)
		res.PartialKind = p.Kind
	}
	return res
}

// FindBestMatch collapses Match into a single recipe, or nil. Fuzzy hits
// must clear the acceptance threshold; below it the first partial hit is
// used as a fallback.
func (m *Matcher) FindBestMatch(name string, catalog []recipe.Recipe) (*recipe.Recipe, Result) {
	res := m.Match(name, catalog)
	switch res.Kind {
	case Exact, Partial:
		return res.Recipe, res
	case Fuzzy:
		if res.Score >= m.opts.AcceptanceThreshold {
			return res.Recipe, res
		}
		if len(res.Partials) > 0 {
			r := res.Partials[0].Recipe
			return &r, res
		}
	}
	return nil, res
}

// GetSuggestions returns up to limit recipes resembling name, scored with
// the lower suggestion threshold. Substring hits are included even when
// their score is below it.
func (m *Matcher) GetSuggestions(name string, catalog []recipe.Recipe, limit int) []Candidate {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	target := mealevent.NormalizeForMatching(name)
	if target == "" || len(catalog) == 0 {
		return nil
	}

	entries := normalizeCatalog(catalog)
	type scored struct {
		Candidate
		normalized string
	}
	var all []scored
	for _, e := range entries {
		s := Similarity(target, e.normalized)
		if s >= m.opts.SuggestionThreshold || isPartial(target, e.normalized) {
			all = append(all, scored{
				Candidate:  Candidate{Recipe: e.recipe, Score: s, Tier: TierFor(s)},
				normalized: e.normalized,
			})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].normalized < all[j].normalized
	})

	out := make([]Candidate, 0, limit)
	for _, s := range all {
		if len(out) == limit {
			break
		}
		out = append(out, s.Candidate)
	}
	return out
}

// scoreAbove returns the entries whose similarity clears threshold, ordered
// by score, then normalized title, then catalog position.
func scoreAbove(target string, entries []entry, threshold float64) []Candidate {
	type scored struct {
		c          Candidate
		normalized string
	}
	var hits []scored
	for _, e := range entries {
		s := Similarity(target, e.normalized)
		if s >= threshold {
			hits = append(hits, scored{c: Candidate{Recipe: e.recipe, Score: s, Tier: TierFor(s)}, normalized: e.normalized})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].c.Score != hits[j].c.Score {
			return hits[i].c.Score > hits[j].c.Score
		}
		return hits[i].normalized < hits[j].normalized
	})

	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out
}

func findPartials(target string, entries []entry) []PartialMatch {
	var out []PartialMatch
	for _, e := range entries {
		var kind PartialKind
		switch {
		case containsWords(e.normalized, target):
			kind = TitleContainsName
		case containsWords(target, e.normalized):
			kind = NameContainsTitle
		default:
			continue
		}
		out = append(out, PartialMatch{Recipe: e.recipe, Kind: kind, Score: Similarity(target, e.normalized)})
	}
	return out
}

// containsWords reports whether the normalized words of sub appear as a
// run of whole words in s.
func containsWords(s, sub string) bool {
	return strings.Contains(" "+s+" ", " "+sub+" ")
}

func isPartial(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}
