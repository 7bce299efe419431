// Package calendar talks to the remote calendar that mirrors the meal plan.
package calendar

import (
	"context"
	"errors"
	"time"
)

const dateLayout = "2006-01-02"

var (
	// ErrUnauthorized means there is no usable token. It is fatal for a sync
	// cycle and must be shown to the user.
	ErrUnauthorized = errors.New("calendar: no valid token")
	// ErrNotFound means the event does not exist on the remote calendar.
	ErrNotFound = errors.New("calendar: event not found")
)

// EventTime is the start of an event: Date for all-day events, DateTime
// otherwise.
type EventTime struct {
	Date     string
	DateTime time.Time
}

// Event is an item read from the remote calendar.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       EventTime
	Updated     time.Time
}

// LocalDate returns the calendar date the event starts on, as seen in loc.
// It returns "" when the event carries no start.
func (e Event) LocalDate(loc *time.Location) string {
	if e.Start.Date != "" {
		return e.Start.Date
	}
	if e.Start.DateTime.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return e.Start.DateTime.In(loc).Format(dateLayout)
}

// NewEvent describes an all-day event to create.
type NewEvent struct {
	Summary     string
	Description string
	// Date is the YYYY-MM-DD day of the event.
	Date string
}

// Client is the subset of the remote calendar the sync engine uses. A
// Client is bound to a single calendar.
type Client interface {
	ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, ev NewEvent) (string, error)
	// DeleteEvent treats an event that is already gone as deleted.
	DeleteEvent(ctx context.Context, eventID string) error
}

type unavailableClient struct {
	err error
}

// Unavailable returns a Client whose calls all fail with err. It stands in
// when credentials could not be loaded, so every cycle reports the problem
// instead of the process refusing to start.
func Unavailable(err error) Client {
	return unavailableClient{err: err}
}

func (c unavailableClient) ListEvents(context.Context, time.Time, time.Time) ([]Event, error) {
	return nil, c.err
}

func (c unavailableClient) CreateEvent(context.Context, NewEvent) (string, error) {
	return "", c.err
}

func (c unavailableClient) DeleteEvent(context.Context, string) error {
	return c.err
}
