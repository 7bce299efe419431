package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meal-planner/internal/calsync"
	"meal-planner/internal/config"
	"meal-planner/internal/matcher"
	"meal-planner/internal/meal"
	"meal-planner/internal/metrics"
	"meal-planner/internal/synclog"
	"meal-planner/internal/unmatched"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	suggestionsPerEvent = 3
	commandTimeout      = 2 * time.Minute
)

// Service is what the bot needs from the application.
type Service interface {
	RunSync(ctx context.Context) (calsync.CycleReport, error)
	Preview(ctx context.Context) (calsync.ImportPreview, error)
	PendingUnmatched(ctx context.Context) ([]unmatched.Event, error)
	Suggestions(ctx context.Context, id string, limit int) ([]matcher.Candidate, error)
	Resolve(ctx context.Context, id, recipeID string) (*meal.Meal, error)
	ResolveWithNewRecipe(ctx context.Context, id string) (*meal.Meal, error)
	Ignore(ctx context.Context, id, notes string) error
	RecentActivity(ctx context.Context, limit int) ([]synclog.Entry, error)
	DailyActivity(ctx context.Context, days int) ([]metrics.DailyActivity, error)
}

// Bot wraps the Telegram API and the sync service.
type Bot struct {
	api *tgbotapi.BotAPI
	svc Service
	cfg *config.Config
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, svc Service) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	webhookURL := cfg.TelegramWebhookURL
	wh, _ := tgbotapi.NewWebhook(webhookURL)
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	return &Bot{api: bot, svc: svc, cfg: cfg}, nil
}

// RegisterHandlers registers the webhook and health handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		log.Printf("Error parsing update: %v", err)
		return
	}

	if update.CallbackQuery != nil {
		if b.allowed(update.CallbackQuery.From) {
			go b.handleCallbackQuery(update.CallbackQuery)
		}
		return
	}

	if update.Message == nil || !b.allowed(update.Message.From) {
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) allowed(from *tgbotapi.User) bool {
	if from == nil {
		return false
	}
	for _, id := range b.cfg.TelegramAllowedUserIDs {
		if from.ID == id {
			return true
		}
	}
	log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", from.ID, from.UserName)
	return false
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	args := strings.Fields(msg.CommandArguments())
	switch msg.Command() {
	case "sync":
		b.handleSync(ctx, msg.Chat.ID)
	case "preview":
		b.handlePreview(ctx, msg.Chat.ID)
	case "unmatched":
		b.handleUnmatched(ctx, msg.Chat.ID)
	case "resolve":
		if len(args) != 2 {
			b.reply(msg.Chat.ID, "Usage: `/resolve <event-id> <recipe-id>`")
			return
		}
		m, err := b.svc.Resolve(ctx, args[0], args[1])
		b.reply(msg.Chat.ID, formatResolution(m, err))
	case "newrecipe":
		if len(args) != 1 {
			b.reply(msg.Chat.ID, "Usage: `/newrecipe <event-id>`")
			return
		}
		m, err := b.svc.ResolveWithNewRecipe(ctx, args[0])
		b.reply(msg.Chat.ID, formatResolution(m, err))
	case "ignore":
		if len(args) < 1 {
			b.reply(msg.Chat.ID, "Usage: `/ignore <event-id> [notes]`")
			return
		}
		notes := strings.TrimSpace(strings.TrimPrefix(msg.CommandArguments(), args[0]))
		if err := b.svc.Ignore(ctx, args[0], notes); err != nil {
			b.reply(msg.Chat.ID, formatError("Could not ignore event", err))
			return
		}
		b.reply(msg.Chat.ID, "🙈 Event ignored.")
	case "activity":
		limit := 10
		if len(args) == 1 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				limit = n
			}
		}
		entries, err := b.svc.RecentActivity(ctx, limit)
		if err != nil {
			b.reply(msg.Chat.ID, formatError("Error fetching activity", err))
			return
		}
		b.reply(msg.Chat.ID, formatActivity(entries))
	case "metrics":
		b.handleMetricsRequest(ctx, msg)
	default:
		b.reply(msg.Chat.ID, helpText)
	}
}

const helpText = `🗓 *Meal calendar sync*

/sync - sync the calendar now
/preview - show what an import would do
/unmatched - list events without a recipe
/resolve <event-id> <recipe-id> - link an event to a recipe
/newrecipe <event-id> - create a recipe from the event
/ignore <event-id> [notes] - dismiss an event
/activity [n] - recent sync log`

func (b *Bot) handleSync(ctx context.Context, chatID int64) {
	sent, err := b.api.Send(markdown(chatID, "🔄 *Syncing calendar...*"))
	if err != nil {
		log.Printf("Failed to send initial reply: %v", err)
		return
	}

	report, err := b.svc.RunSync(ctx)
	edit := tgbotapi.NewEditMessageText(chatID, sent.MessageID, formatRollup(report, err, true))
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.api.Send(edit)
}

func (b *Bot) handlePreview(ctx context.Context, chatID int64) {
	preview, err := b.svc.Preview(ctx)
	if err != nil {
		b.reply(chatID, formatError("Error building preview", err))
		return
	}
	b.reply(chatID, formatPreview(preview))
}

func (b *Bot) handleUnmatched(ctx context.Context, chatID int64) {
	pending, err := b.svc.PendingUnmatched(ctx)
	if err != nil {
		b.reply(chatID, formatError("Error fetching unmatched events", err))
		return
	}
	if len(pending) == 0 {
		b.reply(chatID, "✅ No unmatched events.")
		return
	}

	for _, ev := range pending {
		suggestions, err := b.svc.Suggestions(ctx, ev.ID, suggestionsPerEvent)
		if err != nil {
			log.Printf("Failed to get suggestions for %s: %v", ev.ID, err)
		}
		msg := markdown(chatID, formatUnmatched(ev, suggestions))
		keyboard := unmatchedKeyboard(ev, suggestions)
		msg.ReplyMarkup = keyboard
		b.api.Send(msg)
	}
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	// Answer callback to remove spinner
	b.api.Request(tgbotapi.NewCallback(query.ID, ""))
	if query.Message == nil {
		return
	}

	action, id, recipeID, ok := parseCallback(query.Data)
	if !ok {
		return
	}

	var text string
	switch action {
	case actionResolve:
		m, err := b.svc.Resolve(ctx, id, recipeID)
		text = formatResolution(m, err)
	case actionNewRecipe:
		m, err := b.svc.ResolveWithNewRecipe(ctx, id)
		text = formatResolution(m, err)
	case actionIgnore:
		text = "🙈 Event ignored."
		if err := b.svc.Ignore(ctx, id, "ignored from telegram"); err != nil {
			text = formatError("Could not ignore event", err)
		}
	}

	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.api.Send(edit)
}

func (b *Bot) handleMetricsRequest(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.AdminTelegramID {
		b.api.Send(markdown(msg.Chat.ID, "⛔ *Access Denied*: Admin only."))
		return
	}

	days, err := b.svc.DailyActivity(ctx, 7)
	if err != nil {
		b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, "❌ Error fetching metrics."))
		return
	}
	b.reply(msg.Chat.ID, formatMetrics(days, metrics.GetSysHealth(b.cfg.DatabasePath)))
}

// NotifyOutcome sends the rollup of a background cycle to the admin chat.
// Error text is never included; manual cycles answer in their own chat.
func (b *Bot) NotifyOutcome(o calsync.Outcome) {
	if !o.Trigger.Background() {
		return
	}
	if errors.Is(o.Err, calsync.ErrSyncInProgress) {
		return
	}
	r := o.Report
	if o.Err == nil && r.Created == 0 && r.Unmatched == 0 && r.Failed == 0 && r.ParseErrors == 0 && r.Exported == 0 {
		return
	}
	b.sendAdminAlert(formatRollup(r, o.Err, false))
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(markdown(chatID, text)); err != nil {
		log.Printf("Failed to send reply: %v", err)
	}
}

func (b *Bot) sendAdminAlert(text string) {
	if b.cfg.AdminTelegramID == 0 {
		return
	}
	b.api.Send(markdown(b.cfg.AdminTelegramID, text))
}

func markdown(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}
