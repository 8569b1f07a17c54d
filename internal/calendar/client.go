package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resaflow/platform/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// TokenProvider supplies a valid bearer credential per call. Refresh is the
// host's concern.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed credential.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("calendar: missing bearer token")
	}
	return string(t), nil
}

// Client talks to a Google-style calendar REST API: a freeBusy query
// endpoint plus per-calendar event creation and deletion.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	logger     *logging.Logger
}

// NewClient creates a calendar API client.
func NewClient(baseURL string, tokens TokenProvider, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		tokens:     tokens,
		logger:     logger,
	}
}

type freeBusyRequest struct {
	TimeMin  string             `json:"timeMin"`
	TimeMax  string             `json:"timeMax"`
	TimeZone string             `json:"timeZone"`
	Items    []freeBusyCalendar `json:"items"`
}

type freeBusyCalendar struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"busy"`
	} `json:"calendars"`
}

// FreeBusy queries occupied intervals for one calendar in [timeMin, timeMax].
func (c *Client) FreeBusy(ctx context.Context, calendarID string, timeMin, timeMax time.Time, timeZone string) ([]BusyInterval, error) {
	payload := freeBusyRequest{
		TimeMin:  timeMin.UTC().Format(time.RFC3339),
		TimeMax:  timeMax.UTC().Format(time.RFC3339),
		TimeZone: timeZone,
		Items:    []freeBusyCalendar{{ID: calendarID}},
	}

	var out freeBusyResponse
	if err := c.do(ctx, http.MethodPost, "/freeBusy", payload, &out); err != nil {
		return nil, err
	}

	cal, ok := out.Calendars[calendarID]
	if !ok {
		return nil, nil
	}
	intervals := make([]BusyInterval, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		intervals = append(intervals, BusyInterval{Start: b.Start.UTC(), End: b.End.UTC()})
	}
	return intervals, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventRequestJSON struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
}

type eventResponseJSON struct {
	ID       string `json:"id"`
	HTMLLink string `json:"htmlLink"`
}

// CreateEvent creates an event on the given calendar.
func (c *Client) CreateEvent(ctx context.Context, req EventRequest) (*Event, error) {
	if req.CalendarID == "" {
		return nil, fmt.Errorf("calendar: create event: missing calendar id")
	}
	end := req.Start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	payload := eventRequestJSON{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       eventTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: req.TimeZone},
		End:         eventTime{DateTime: end.Format(time.RFC3339), TimeZone: req.TimeZone},
	}

	var out eventResponseJSON
	path := "/calendars/" + url.PathEscape(req.CalendarID) + "/events"
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("calendar: create event returned empty id")
	}
	return &Event{
		ID:         out.ID,
		HTMLLink:   out.HTMLLink,
		CalendarID: req.CalendarID,
		TimeZone:   req.TimeZone,
	}, nil
}

// DeleteEvent removes an event; deleting an already-gone event is not an
// error.
func (c *Client) DeleteEvent(ctx context.Context, eventID, calendarID string) error {
	path := "/calendars/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil && strings.Contains(err.Error(), "status 404") {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("calendar: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("calendar: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calendar: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("calendar: decode response: %w", err)
	}
	return nil
}
