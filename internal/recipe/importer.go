package recipe

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	"meal-planner/internal/ghost"
)

// ImportStats summarizes a catalog import run.
type ImportStats struct {
	Fetched   int
	Saved     int
	Unchanged int
	Failed    int
}

// Importer keeps the local recipe catalog in step with the Ghost blog.
type Importer struct {
	ghostClient ghost.Client
	repo        *Repository
}

// NewImporter creates a new Importer.
func NewImporter(ghostClient ghost.Client, repo *Repository) *Importer {
	return &Importer{ghostClient: ghostClient, repo: repo}
}

// SyncCatalog fetches every recipe post and upserts the changed ones.
// A post that fails to parse or save is logged and skipped.
func (i *Importer) SyncCatalog(ctx context.Context) (ImportStats, error) {
	var stats ImportStats

	posts, err := i.ghostClient.FetchRecipes(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch recipes from ghost: %w", err)
	}
	stats.Fetched = len(posts)

	for _, post := range posts {
		existing, err := i.repo.Get(ctx, post.ID)
		if err != nil {
			log.Printf("Failed to look up recipe '%s': %v", post.Title, err)
			stats.Failed++
			continue
		}
		if existing != nil && existing.UpdatedAt == post.UpdatedAt && post.UpdatedAt != "" {
			stats.Unchanged++
			continue
		}

		rec, err := ParsePost(post)
		if err != nil {
			log.Printf("Failed to parse '%s': %v", post.Title, err)
			stats.Failed++
			continue
		}

		if err := i.repo.Save(ctx, rec); err != nil {
			log.Printf("Failed to save recipe '%s': %v", post.Title, err)
			stats.Failed++
			continue
		}
		stats.Saved++
	}

	log.Printf("Catalog sync complete: fetched=%d saved=%d unchanged=%d failed=%d",
		stats.Fetched, stats.Saved, stats.Unchanged, stats.Failed)
	return stats, nil
}

// CreateRecipe creates a draft recipe post for title and adds it to the
// catalog, so a calendar entry naming an unknown dish can be linked to it.
func (i *Importer) CreateRecipe(ctx context.Context, title string) (*Recipe, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("recipe title is required")
	}

	body := fmt.Sprintf("<p><i>Added from the family calendar: %s</i></p><h2>Ingredients</h2><ul></ul>", html.EscapeString(title))
	post, err := i.ghostClient.CreatePost(ctx, title, body, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create recipe post: %w", err)
	}

	rec := Recipe{
		ID:        post.ID,
		Title:     title,
		URL:       post.URL,
		UpdatedAt: post.UpdatedAt,
	}
	if err := i.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save new recipe: %w", err)
	}
	return &rec, nil
}
