package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"reservd/pkg/client"
)

// Event is the wire shape of a mirrored calendar entry.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

// Client speaks the external calendar HTTP API. It knows nothing about
// reservations; the adapter does the mapping.
type Client struct {
	http       *client.HttpClient
	calendarID string
}

func NewClient(baseURL, calendarID, apiToken string, timeout time.Duration) *Client {
	httpClient := client.NewHttpClient(baseURL, timeout)
	if apiToken != "" {
		httpClient.Headers = map[string]string{
			"Authorization": "Bearer " + apiToken,
		}
	}
	return &Client{
		http:       httpClient,
		calendarID: calendarID,
	}
}

func (c *Client) CreateEvent(ctx context.Context, event *Event) (string, error) {
	resp, err := c.http.POST(ctx, fmt.Sprintf("/calendars/%s/events", c.calendarID), event)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode}
	}

	var created Event
	if err := resp.DecodeJSON(&created); err != nil {
		return "", fmt.Errorf("failed to decode calendar event: %w", err)
	}

	return created.ID, nil
}

func (c *Client) UpdateEvent(ctx context.Context, eventID string, event *Event) error {
	resp, err := c.http.PATCH(ctx, fmt.Sprintf("/calendars/%s/events/%s", c.calendarID, eventID), event)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	return nil
}

func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	resp, err := c.http.DELETE(ctx, fmt.Sprintf("/calendars/%s/events/%s", c.calendarID, eventID))
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	return nil
}

// StatusError carries a non-success HTTP status from the calendar API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("calendar API returned status %d", e.StatusCode)
}
