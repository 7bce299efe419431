package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the application.
type Config struct {
	DatabasePath string
	AppBaseURL   string
	Timezone     string
	LogFile      string

	// Google Calendar
	GoogleCredentialsFile string
	GoogleTokenFile       string
	GoogleCalendarID      string

	// Ghost is the recipe catalog source. Optional for sync-only use.
	GhostURL        string
	GhostContentKey string
	GhostAdminKey   string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64

	Sync SyncSettings
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	googleTokenFile := os.Getenv("GOOGLE_TOKEN_FILE")
	if googleTokenFile == "" {
		return nil, fmt.Errorf("GOOGLE_TOKEN_FILE environment variable not set")
	}

	calendarID := os.Getenv("GOOGLE_CALENDAR_ID")
	if calendarID == "" {
		calendarID = "primary"
	}

	databasePath := os.Getenv("DATABASE_PATH")
	if databasePath == "" {
		databasePath = "data/meal-planner.db"
	}

	timezone := os.Getenv("TIMEZONE")
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", timezone, err)
	}

	ghostContentKey := os.Getenv("GHOST_CONTENT_API_KEY")
	ghostAdminKey := os.Getenv("GHOST_ADMIN_API_KEY")
	if ghostAdminKey == "" {
		// Fallback to content key if only one is provided
		ghostAdminKey = ghostContentKey
	}

	allowedIDs, err := parseIDList(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	var adminID int64
	if raw := os.Getenv("ADMIN_TELEGRAM_ID"); raw != "" {
		adminID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	settings := DefaultSyncSettings()
	if path := os.Getenv("SYNC_CONFIG_FILE"); path != "" {
		loaded, err := LoadSyncSettings(path)
		if err != nil {
			return nil, err
		}
		settings = *loaded
	}

	return &Config{
		DatabasePath:           databasePath,
		AppBaseURL:             strings.TrimRight(os.Getenv("APP_BASE_URL"), "/"),
		Timezone:               timezone,
		LogFile:                os.Getenv("LOG_FILE"),
		GoogleCredentialsFile:  os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		GoogleTokenFile:        googleTokenFile,
		GoogleCalendarID:       calendarID,
		GhostURL:               strings.TrimRight(os.Getenv("GHOST_API_URL"), "/"),
		GhostContentKey:        ghostContentKey,
		GhostAdminKey:          ghostAdminKey,
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowedIDs,
		AdminTelegramID:        adminID,
		Sync:                   settings,
	}, nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasGhost reports whether the Ghost catalog source is configured.
func (c *Config) HasGhost() bool {
	return c.GhostURL != "" && c.GhostContentKey != ""
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
