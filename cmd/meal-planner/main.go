package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"meal-planner/internal/app"
	"meal-planner/internal/calsync"
	"meal-planner/internal/config"
	"meal-planner/internal/logging"
	"meal-planner/internal/meal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var application *app.App

var rootCmd = &cobra.Command{
	Use:           "meal-planner",
	Short:         "Keep the meal plan and the family calendar in step",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to load .env: %v", err)
		}
		cfg, err := config.NewFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logging.Setup(cfg.LogFile)

		application, err = app.Open(cmd.Context(), cfg)
		return err
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle: import from the calendar, then export unsynced meals",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := application.RunSync(cmd.Context())
		printReport(report)
		return err
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show what an import would do without creating meals",
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, err := application.Preview(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range preview.Matched {
			fmt.Printf("match     %s %-9s %s -> %s (%s %.2f)\n", m.Event.Date, m.Event.MealType, m.Event.RecipeName, m.Recipe.Title, m.Kind, m.Score)
		}
		for _, ev := range preview.Unmatched {
			fmt.Printf("unmatched %s %-9s %s\n", ev.Date, ev.MealType, ev.RecipeName)
		}
		for _, pe := range preview.ParseErrors {
			fmt.Printf("invalid   %s: %s\n", pe.Title, strings.Join(pe.Errors, "; "))
		}
		fmt.Printf("%d not meal events ignored.\n", preview.NotMeals)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Push local meals without a calendar event",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := application.Export(cmd.Context())
		fmt.Printf("Exported %d meals, %d failed.\n", len(res.Exported), len(res.Failed))
		for _, f := range res.Failed {
			fmt.Printf("  %v\n", f)
		}
		return err
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Refresh the recipe catalog from Ghost",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := application.SyncCatalog(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %d posts: %d saved, %d unchanged, %d failed.\n", stats.Fetched, stats.Saved, stats.Unchanged, stats.Failed)
		return nil
	},
}

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "List the recipe catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		recipes, err := application.Recipes(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range recipes {
			fmt.Printf("%-26s %s\n", r.ID, r.Title)
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <date> <meal-type> <recipe-id> [people...]",
	Short: "Plan a meal locally; the next sync exports it",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		mealType, err := meal.ParseType(args[1])
		if err != nil {
			return err
		}
		m, err := application.PlanMeal(cmd.Context(), args[0], mealType, args[2], args[3:])
		if err != nil {
			return err
		}
		fmt.Printf("Planned meal %d: %s %s for %s.\n", m.ID, m.Date, m.MealType, strings.Join(m.PeopleAssigned, ", "))
		return nil
	},
}

var mealsCmd = &cobra.Command{
	Use:   "meals",
	Short: "List meals in the sync window",
	RunE: func(cmd *cobra.Command, args []string) error {
		meals, err := application.Meals(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range meals {
			remote := "-"
			if m.Linked() {
				remote = m.ExternalEventID
			}
			fmt.Printf("%-5d %s %-9s %-26s %-11s %s\n", m.ID, m.Date, m.MealType, m.RecipeID, m.SyncSource, remote)
		}
		return nil
	},
}

var shoppingCmd = &cobra.Command{
	Use:   "shopping <meal-id>",
	Short: "Show the shopping list of a meal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid meal id %q: %w", args[0], err)
		}
		items, err := application.ShoppingList(cmd.Context(), id)
		if err != nil {
			return err
		}
		for _, it := range items {
			fmt.Printf("- %s\n", it.Item)
		}
		return nil
	},
}

var unmatchedCmd = &cobra.Command{
	Use:   "unmatched",
	Short: "List calendar events no recipe matched, with suggestions",
	RunE: func(cmd *cobra.Command, args []string) error {
		pending, err := application.PendingUnmatched(cmd.Context())
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No unmatched events.")
			return nil
		}
		for _, ev := range pending {
			fmt.Printf("%s  %s %-9s %q\n", ev.ID, ev.Date, ev.MealType, ev.ExtractedRecipeName)
			suggestions, err := application.Suggestions(cmd.Context(), ev.ID, 3)
			if err != nil {
				log.Printf("Failed to get suggestions for %s: %v", ev.ID, err)
				continue
			}
			for _, s := range suggestions {
				fmt.Printf("    %-26s %s (%.2f, %s)\n", s.Recipe.ID, s.Recipe.Title, s.Score, s.Tier)
			}
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <event-id> <recipe-id>",
	Short: "Link an unmatched event to a recipe",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := application.Resolve(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Created meal %d: %s %s.\n", m.ID, m.Date, m.MealType)
		return nil
	},
}

var newRecipeCmd = &cobra.Command{
	Use:   "new-recipe <event-id>",
	Short: "Create a recipe named after an unmatched event and link it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := application.ResolveWithNewRecipe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created recipe %s and meal %d.\n", m.RecipeID, m.ID)
		return nil
	},
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore <event-id> [notes...]",
	Short: "Dismiss an unmatched event",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Ignore(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Println("Event ignored.")
		return nil
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the latest sync log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := application.RecentActivity(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s %-11s %-8s %-24s %v", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Direction, e.Status, e.ExternalEventID, e.Metadata)
			if e.ErrorMessage != "" {
				fmt.Printf(" error=%q", e.ErrorMessage)
			}
			fmt.Println()
		}
		return nil
	},
}

var deleteMealCmd = &cobra.Command{
	Use:   "delete-meal <meal-id>",
	Short: "Delete a meal locally and from the calendar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid meal id %q: %w", args[0], err)
		}
		if err := application.DeleteMeal(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Deleted meal %d.\n", id)
		return nil
	},
}

var metricsCleanupCmd = &cobra.Command{
	Use:   "metrics-cleanup",
	Short: "Remove old sync cycle records",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		affected, err := application.CleanupMetrics(cmd.Context(), days)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled sync cycles until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := application.StartScheduler(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		log.Println("Stopping scheduler...")
		return nil
	},
}

func init() {
	activityCmd.Flags().Int("limit", 20, "Number of entries to show")
	metricsCleanupCmd.Flags().Int("days", 30, "Keep records for the last N days")

	rootCmd.AddCommand(
		syncCmd, previewCmd, exportCmd, catalogCmd, recipesCmd, planCmd, mealsCmd, shoppingCmd,
		unmatchedCmd, resolveCmd, newRecipeCmd, ignoreCmd, activityCmd, deleteMealCmd,
		metricsCleanupCmd, serveCmd,
	)
}

func printReport(r calsync.CycleReport) {
	if r.CycleID == "" {
		return
	}
	fmt.Printf("Cycle %s (%s..%s): %s\n", r.CycleID, r.WindowStart, r.WindowEnd, r.Summary())
	for _, f := range r.Failures {
		fmt.Printf("  %v\n", f)
	}
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if application != nil {
		if cerr := application.Close(); cerr != nil {
			log.Printf("Failed to close application: %v", cerr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
