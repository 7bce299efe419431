package recipe

import (
	"fmt"
	"regexp"
	"strings"

	"meal-planner/internal/ghost"

	"github.com/PuerkitoBio/goquery"
)

var servingsPattern = regexp.MustCompile(`(?i)\b(?:serves|servings|yield|makes)\s*:?\s*(\d+(?:\s*(?:-|to)\s*\d+)?(?:\s+[a-z]+)?)`)

// ParsePost turns a Ghost recipe post into a catalog Recipe. Ingredients are
// the list items following an "Ingredients" heading; when there is no such
// heading the first list of the post is used.
func ParsePost(post ghost.Post) (Recipe, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(post.HTML))
	if err != nil {
		return Recipe{}, fmt.Errorf("failed to parse post HTML: %w", err)
	}

	rec := Recipe{
		ID:        post.ID,
		Title:     strings.TrimSpace(post.Title),
		URL:       post.URL,
		UpdatedAt: post.UpdatedAt,
	}

	list := ingredientList(doc)
	list.Find("li").Each(func(_ int, s *goquery.Selection) {
		item := collapseSpaces(s.Text())
		if item != "" {
			rec.Ingredients = append(rec.Ingredients, item)
		}
	})

	if m := servingsPattern.FindStringSubmatch(collapseSpaces(doc.Text())); m != nil {
		rec.Servings = m[1]
	}

	return rec, nil
}

func ingredientList(doc *goquery.Document) *goquery.Selection {
	var list *goquery.Selection
	doc.Find("h1, h2, h3, h4, p strong").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(heading.Text()), "ingredient") {
			return true
		}
		anchor := heading
		if goquery.NodeName(heading) == "strong" {
			anchor = heading.Parent()
		}
		next := anchor.NextAllFiltered("ul, ol").First()
		if next.Length() > 0 {
			list = next
			return false
		}
		return true
	})
	if list != nil {
		return list
	}
	return doc.Find("ul, ol").First()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
