package telegram

import (
	"errors"
	"fmt"
	"strings"

	"meal-planner/internal/calsync"
	"meal-planner/internal/matcher"
	"meal-planner/internal/meal"
	"meal-planner/internal/metrics"
	"meal-planner/internal/synclog"
	"meal-planner/internal/unmatched"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback actions. Telegram limits callback data to 64 bytes, so they are
// single letters: "r|<event>|<recipe>", "n|<event>", "i|<event>".
const (
	actionResolve   = "r"
	actionNewRecipe = "n"
	actionIgnore    = "i"
)

const callbackDataLimit = 64

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}

func formatRollup(r calsync.CycleReport, err error, includeError bool) string {
	var sb strings.Builder
	switch {
	case errors.Is(err, calsync.ErrSyncInProgress):
		return "⏳ A sync is already running."
	case err != nil:
		sb.WriteString("❌ *Sync aborted*\n")
	default:
		sb.WriteString("✅ *Sync complete*\n")
	}

	sb.WriteString(fmt.Sprintf("• Created: %d\n", r.Created))
	sb.WriteString(fmt.Sprintf("• Skipped: %d\n", r.Skipped))
	sb.WriteString(fmt.Sprintf("• Unmatched: %d\n", r.Unmatched))
	sb.WriteString(fmt.Sprintf("• Failed: %d\n", r.Failed+r.ParseErrors))
	sb.WriteString(fmt.Sprintf("• Exported: %d\n", r.Exported))

	if err != nil && includeError {
		safeErr := strings.ReplaceAll(err.Error(), "`", "'")
		sb.WriteString(fmt.Sprintf("```\n%s\n```", safeErr))
	}
	if r.Unmatched > 0 {
		sb.WriteString("\nUse /unmatched to review new events.")
	}
	return sb.String()
}

func formatPreview(p calsync.ImportPreview) string {
	var sb strings.Builder
	sb.WriteString("🔎 *Import preview*\n\n")

	if len(p.Matched) == 0 && len(p.Unmatched) == 0 && len(p.ParseErrors) == 0 {
		sb.WriteString("_No meal events in the sync window_\n")
		return sb.String()
	}

	for _, m := range p.Matched {
		sb.WriteString(fmt.Sprintf("✅ %s %s: %s → %s (%s", m.Event.Date, m.Event.MealType, escape(m.Event.RecipeName), escape(m.Recipe.Title), m.Kind))
		if m.Kind == matcher.Fuzzy || m.Kind == matcher.Partial {
			sb.WriteString(fmt.Sprintf(", %.0f%%", m.Score*100))
		}
		sb.WriteString(")\n")
	}
	for _, ev := range p.Unmatched {
		sb.WriteString(fmt.Sprintf("❓ %s %s: %s\n", ev.Date, ev.MealType, escape(ev.RecipeName)))
	}
	for _, pe := range p.ParseErrors {
		sb.WriteString(fmt.Sprintf("⚠️ %s: %s\n", escape(pe.Title), escape(strings.Join(pe.Errors, "; "))))
	}
	return sb.String()
}

func formatUnmatched(ev unmatched.Event, suggestions []matcher.Candidate) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("❓ *%s* (%s %s)\n", escape(ev.ExtractedRecipeName), ev.Date, ev.MealType))
	sb.WriteString(fmt.Sprintf("ID: `%s`\n", ev.ID))
	if len(suggestions) == 0 {
		sb.WriteString("_No similar recipes_\n")
		return sb.String()
	}
	sb.WriteString("Did you mean:\n")
	for _, s := range suggestions {
		sb.WriteString(fmt.Sprintf("• %s (%.0f%%)\n", escape(s.Recipe.Title), s.Score*100))
	}
	return sb.String()
}

func unmatchedKeyboard(ev unmatched.Event, suggestions []matcher.Candidate) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range suggestions {
		data := strings.Join([]string{actionResolve, ev.ID, s.Recipe.ID}, "|")
		if len(data) > callbackDataLimit {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🍽 "+s.Recipe.Title, data),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➕ New recipe", actionNewRecipe+"|"+ev.ID),
		tgbotapi.NewInlineKeyboardButtonData("🙈 Ignore", actionIgnore+"|"+ev.ID),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func parseCallback(data string) (action, id, recipeID string, ok bool) {
	parts := strings.Split(data, "|")
	if len(parts) < 2 || parts[1] == "" {
		return "", "", "", false
	}
	switch parts[0] {
	case actionResolve:
		if len(parts) != 3 || parts[2] == "" {
			return "", "", "", false
		}
		return actionResolve, parts[1], parts[2], true
	case actionNewRecipe, actionIgnore:
		return parts[0], parts[1], "", true
	}
	return "", "", "", false
}

func formatResolution(m *meal.Meal, err error) string {
	switch {
	case errors.Is(err, unmatched.ErrAlreadyResolved):
		return "ℹ️ This event was already resolved."
	case errors.Is(err, unmatched.ErrNotFound):
		return "❓ Unknown event."
	case errors.Is(err, meal.ErrSlotTaken):
		return "⚠️ That slot already has a meal."
	case errors.Is(err, calsync.ErrRecipeNotFound):
		return "❓ Unknown recipe."
	case err != nil:
		return formatError("Could not resolve event", err)
	}
	return fmt.Sprintf("✅ *%s* on %s is planned.", m.MealType, m.Date)
}

func formatError(prefix string, err error) string {
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	return fmt.Sprintf("❌ *%s:*\n```\n%s\n```", prefix, safeErr)
}

func formatActivity(entries []synclog.Entry) string {
	var sb strings.Builder
	sb.WriteString("📜 *Recent sync activity*\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, e := range entries {
		icon := "✅"
		switch e.Status {
		case synclog.Failed:
			icon = "❌"
		case synclog.Conflict:
			icon = "⚠️"
		}
		arrow := "⬇️"
		if e.Direction == synclog.ToRemote {
			arrow = "⬆️"
		}
		sb.WriteString(fmt.Sprintf("%s %s %s", icon, arrow, e.Timestamp.Format("01-02 15:04")))
		if title, ok := e.Metadata["title"].(string); ok && title != "" {
			sb.WriteString(" " + escape(title))
		}
		if reason, ok := e.Metadata["reason"].(string); ok && reason != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", escape(reason)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatMetrics(days []metrics.DailyActivity, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Sync & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Sync Activity*\n")
	if len(days) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range days {
		sb.WriteString(fmt.Sprintf("• *%s*: %d cycles, %d created, %d exported, %d unmatched, %d failed",
			d.Date, d.Cycles, d.Created, d.Exported, d.Unmatched, d.Failed))
		if d.Aborted > 0 {
			sb.WriteString(fmt.Sprintf(", %d aborted", d.Aborted))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", health.Uptime))
	sb.WriteString(fmt.Sprintf("• Database: %s\n", health.DatabaseSize))
	return sb.String()
}
