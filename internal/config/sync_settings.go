package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AssignAll assigns every household member to remote-imported meals.
const AssignAll = "all"

// MatchingSettings holds the recipe matcher thresholds.
type MatchingSettings struct {
	FuzzyThreshold      float64 `yaml:"fuzzy_threshold"`
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"`
	SuggestionThreshold float64 `yaml:"suggestion_threshold"`
}

// WindowSettings is the sync window relative to today.
type WindowSettings struct {
	PastDays   int `yaml:"past_days"`
	FutureDays int `yaml:"future_days"`
}

// SyncSettings tunes the calendar sync engine. It is loaded from an optional
// YAML file; every field has a default.
type SyncSettings struct {
	// Household lists the people who can be assigned to meals.
	Household []string `yaml:"household"`

	// DefaultAssignees is used when a remote event carries no attendee
	// information. The single value "all" means the whole household.
	DefaultAssignees []string `yaml:"default_assignees"`

	Matching MatchingSettings `yaml:"matching"`
	Window   WindowSettings   `yaml:"window"`

	// EmphasisMarker prefixes titles of emphasized meals, e.g. "* Lunch: Pizza".
	EmphasisMarker string `yaml:"emphasis_marker"`

	// EmphasizedMealTypes get the marker when exported.
	EmphasizedMealTypes []string `yaml:"emphasized_meal_types"`

	// Schedule is a robfig/cron spec, e.g. "@every 10m" or "*/10 * * * *".
	Schedule string `yaml:"schedule"`

	// InitialDelay postpones the first automatic cycle after startup. A
	// negative delay skips that cycle; the schedule alone drives syncing.
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// DefaultSyncSettings returns the built-in sync settings.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		Household:        []string{},
		DefaultAssignees: []string{AssignAll},
		Matching: MatchingSettings{
			FuzzyThreshold:      0.8,
			AcceptanceThreshold: 0.85,
			SuggestionThreshold: 0.5,
		},
		Window: WindowSettings{
			PastDays:   7,
			FutureDays: 14,
		},
		EmphasisMarker:      "*",
		EmphasizedMealTypes: []string{"Lunch"},
		Schedule:            "@every 10m",
		InitialDelay:        10 * time.Second,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled files still behave.
func (s *SyncSettings) Normalize() {
	def := DefaultSyncSettings()
	if s.Household == nil {
		s.Household = def.Household
	}
	if len(s.DefaultAssignees) == 0 {
		s.DefaultAssignees = def.DefaultAssignees
	}
	if s.Matching.FuzzyThreshold <= 0 || s.Matching.FuzzyThreshold > 1 {
		s.Matching.FuzzyThreshold = def.Matching.FuzzyThreshold
	}
	if s.Matching.AcceptanceThreshold <= 0 || s.Matching.AcceptanceThreshold > 1 {
		s.Matching.AcceptanceThreshold = def.Matching.AcceptanceThreshold
	}
	if s.Matching.SuggestionThreshold <= 0 || s.Matching.SuggestionThreshold > 1 {
		s.Matching.SuggestionThreshold = def.Matching.SuggestionThreshold
	}
	if s.Window.PastDays < 0 {
		s.Window.PastDays = def.Window.PastDays
	}
	if s.Window.FutureDays <= 0 {
		s.Window.FutureDays = def.Window.FutureDays
	}
	if strings.TrimSpace(s.EmphasisMarker) == "" {
		s.EmphasisMarker = def.EmphasisMarker
	}
	if s.EmphasizedMealTypes == nil {
		s.EmphasizedMealTypes = def.EmphasizedMealTypes
	}
	if strings.TrimSpace(s.Schedule) == "" {
		s.Schedule = def.Schedule
	}
}

// Assignees resolves the default assignee policy against the household.
func (s SyncSettings) Assignees() []string {
	if len(s.DefaultAssignees) == 1 && strings.EqualFold(s.DefaultAssignees[0], AssignAll) {
		return append([]string(nil), s.Household...)
	}
	return append([]string(nil), s.DefaultAssignees...)
}

// LoadSyncSettings reads sync settings from a YAML file. A missing file
// yields the defaults.
func LoadSyncSettings(path string) (*SyncSettings, error) {
	settings := DefaultSyncSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &settings, nil
		}
		return nil, fmt.Errorf("failed to read sync settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse sync settings %s: %w", path, err)
	}
	settings.Normalize()
	return &settings, nil
}
