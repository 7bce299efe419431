package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const listPageSize = 250

// GoogleClient is a Client backed by the Google Calendar API.
type GoogleClient struct {
	svc        *gcal.Service
	calendarID string
}

// NewGoogleClient creates a client for calendarID. Authentication comes
// from opts (usually option.WithHTTPClient).
func NewGoogleClient(ctx context.Context, calendarID string, opts ...option.ClientOption) (*GoogleClient, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleClient{svc: svc, calendarID: calendarID}, nil
}

// NewGoogleClientFromFiles builds a client from a stored OAuth token. With
// an OAuth client credentials file the token is refreshed automatically;
// without one it is used as is until it expires.
func NewGoogleClientFromFiles(ctx context.Context, credentialsFile, tokenFile, calendarID string) (*GoogleClient, error) {
	httpClient, err := oauthHTTPClient(ctx, credentialsFile, tokenFile)
	if err != nil {
		return nil, err
	}
	return NewGoogleClient(ctx, calendarID, option.WithHTTPClient(httpClient))
}

func oauthHTTPClient(ctx context.Context, credentialsFile, tokenFile string) (*http.Client, error) {
	tok, err := loadToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if credentialsFile == "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)), nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return cfg.Client(ctx, tok), nil
}

func loadToken(path string) (*oauth2.Token, error) {
	if path == "" {
		return nil, errors.New("no token file configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file holds no token")
	}
	return tok, nil
}

// ListEvents returns the non-cancelled events overlapping [timeMin, timeMax),
// with recurring events expanded into single instances.
func (c *GoogleClient) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error) {
	var events []Event
	call := c.svc.Events.List(c.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		MaxResults(listPageSize)

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev, err := fromGoogle(item)
			if err != nil {
				log.Printf("Skipping calendar event %s: %v", item.Id, err)
				continue
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", mapError(err))
	}
	return events, nil
}

// CreateEvent inserts an all-day event and returns its id.
func (c *GoogleClient) CreateEvent(ctx context.Context, ev NewEvent) (string, error) {
	day, err := time.Parse(dateLayout, ev.Date)
	if err != nil {
		return "", fmt.Errorf("invalid event date %q: %w", ev.Date, err)
	}

	created, err := c.svc.Events.Insert(c.calendarID, &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{Date: ev.Date},
		End:         &gcal.EventDateTime{Date: day.AddDate(0, 0, 1).Format(dateLayout)},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", mapError(err))
	}
	return created.Id, nil
}

// DeleteEvent removes an event. 404 and 410 count as success.
func (c *GoogleClient) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	err = mapError(err)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return fmt.Errorf("failed to delete event %s: %w", eventID, err)
}

func fromGoogle(item *gcal.Event) (Event, error) {
	ev := Event{ID: item.Id, Summary: item.Summary, Description: item.Description}
	if item.Start != nil {
		ev.Start.Date = item.Start.Date
		if item.Start.Date == "" && item.Start.DateTime != "" {
			t, err := time.Parse(time.RFC3339, item.Start.DateTime)
			if err != nil {
				return Event{}, fmt.Errorf("invalid start %q: %w", item.Start.DateTime, err)
			}
			ev.Start.DateTime = t
		}
	}
	if item.Updated != "" {
		if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			ev.Updated = t
		}
	}
	return ev, nil
}

// mapError turns auth and not-found failures into the package sentinels.
func mapError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	return err
}
