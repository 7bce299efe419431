package matcher

import (
	"testing"

	"meal-planner/internal/recipe"

	"github.com/agnivade/levenshtein"
)

func catalog() []recipe.Recipe {
	return []recipe.Recipe{
		{ID: "1", Title: "Spaghetti Carbonara"},
		{ID: "2", Title: "Chicken Curry"},
		{ID: "3", Title: "Tomato Soup"},
	}
}

// Similarity relies on unit costs counted in runes.
func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"crème", "creme", 1},
	}
	for _, tt := range tests {
		if got := levenshtein.ComputeDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("ComputeDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	if Similarity("", "") != 1 {
		t.Error("Expected empty strings to be identical")
	}
	if s := Similarity("abcd", "abce"); s != 0.75 {
		t.Errorf("Expected 0.75, got %f", s)
	}
}

func TestTierFor(t *testing.T) {
	tests := map[float64]Tier{1: High, 0.9: High, 0.89: Medium, 0.8: Medium, 0.79: Low, 0: Low}
	for score, want := range tests {
		if got := TierFor(score); got != want {
			t.Errorf("TierFor(%v) = %s, want %s", score, got, want)
		}
	}
}

func TestMatch(t *testing.T) {
	m := New(DefaultOptions())

	t.Run("Exact", func(t *testing.T) {
		res := m.Match("spaghetti carbonara", catalog())
		if res.Kind != Exact || res.Recipe.ID != "1" {
			t.Fatalf("Expected exact match on 1, got %+v", res)
		}
	})

	t.Run("ExactIgnoresPunctuationAndAccents", func(t *testing.T) {
		res := m.Match("  TOMATÖ soup!! ", catalog())
		if res.Kind != Exact || res.Recipe.ID != "3" {
			t.Fatalf("Expected exact match on 3, got %+v", res)
		}
	})

	t.Run("Fuzzy", func(t *testing.T) {
		res := m.Match("Spaghetti Carbona", catalog())
		if res.Kind != Fuzzy || res.Recipe.ID != "1" {
			t.Fatalf("Expected fuzzy match on 1, got %+v", res)
		}
		if res.Score < 0.8 {
			t.Errorf("Expected score >= 0.8, got %f", res.Score)
		}
		if res.Tier != TierFor(res.Score) {
			t.Errorf("Tier %s does not follow score %f", res.Tier, res.Score)
		}
	})

	t.Run("Partial", func(t *testing.T) {
		res := m.Match("Curry", catalog())
		if res.Kind != Partial || res.Recipe.ID != "2" || res.PartialKind != TitleContainsName {
			t.Fatalf("Expected partial match on 2, got %+v", res)
		}

		res = m.Match("Grandmas Tomato Soup with basil", catalog())
		if res.Kind != Partial || res.Recipe.ID != "3" || res.PartialKind != NameContainsTitle {
			t.Fatalf("Expected partial match on 3, got %+v", res)
		}
	})

	t.Run("PartialNeedsWholeWords", func(t *testing.T) {
		steak := []recipe.Recipe{{ID: "s", Title: "Steak Frites"}}
		res := m.Match("Tea", steak)
		if res.Kind != None || len(res.Partials) != 0 {
			t.Fatalf("Expected no match inside a word, got %+v", res)
		}
		if r, _ := m.FindBestMatch("Tea", steak); r != nil {
			t.Errorf("Expected Tea to stay unmatched, got %+v", r)
		}
	})

	t.Run("None", func(t *testing.T) {
		res := m.Match("Unrelated Dish Name", catalog())
		if res.Kind != None || res.Recipe != nil {
			t.Fatalf("Expected no match, got %+v", res)
		}
	})

	t.Run("EmptyInputs", func(t *testing.T) {
		if res := m.Match("", catalog()); res.Kind != None {
			t.Errorf("Expected None for empty name, got %s", res.Kind)
		}
		if res := m.Match("!!!", catalog()); res.Kind != None {
			t.Errorf("Expected None for punctuation-only name, got %s", res.Kind)
		}
		if res := m.Match("Soup", nil); res.Kind != None {
			t.Errorf("Expected None for empty catalog, got %s", res.Kind)
		}
	})

	t.Run("TiesBreakByTitle", func(t *testing.T) {
		ties := []recipe.Recipe{
			{ID: "b", Title: "Pastx"},
			{ID: "a", Title: "Pasty"},
			{ID: "c", Title: "Pastx"},
		}
		res := New(Options{FuzzyThreshold: 0.5}).Match("Pasta", ties)
		if res.Kind != Fuzzy {
			t.Fatalf("Expected fuzzy match, got %s", res.Kind)
		}
		got := []string{}
		for _, c := range res.Candidates {
			got = append(got, c.Recipe.ID)
		}
		if len(got) != 3 || got[0] != "b" || got[1] != "c" || got[2] != "a" {
			t.Errorf("Expected order [b c a], got %v", got)
		}
	})
}

func TestFindBestMatch(t *testing.T) {
	m := New(DefaultOptions())

	r, _ := m.FindBestMatch("Spaghetti Carbona", catalog())
	if r == nil || r.ID != "1" {
		t.Fatalf("Expected recipe 1, got %+v", r)
	}

	// 0.818 clears the fuzzy threshold but not acceptance.
	below := []recipe.Recipe{{ID: "x", Title: "Lemon Tarts"}}
	r, res := m.FindBestMatch("Lemn Tarte", below)
	if res.Kind != Fuzzy {
		t.Fatalf("Expected fuzzy result, got %+v", res)
	}
	if r != nil {
		t.Errorf("Expected no accepted match below acceptance threshold, got %+v", r)
	}

	r, _ = m.FindBestMatch("Unrelated Dish Name", catalog())
	if r != nil {
		t.Errorf("Expected nil, got %+v", r)
	}
}

func TestGetSuggestions(t *testing.T) {
	m := New(DefaultOptions())

	got := m.GetSuggestions("Tomato Soupe", catalog(), 0)
	if len(got) == 0 || got[0].Recipe.ID != "3" {
		t.Fatalf("Expected recipe 3 first, got %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("Suggestions not sorted by score: %+v", got)
		}
	}

	got = m.GetSuggestions("Curry", catalog(), 1)
	if len(got) != 1 || got[0].Recipe.ID != "2" {
		t.Errorf("Expected the partial hit on 2, got %+v", got)
	}

	if got := m.GetSuggestions("", catalog(), 3); got != nil {
		t.Errorf("Expected no suggestions for empty name, got %+v", got)
	}
}
