// Package calendar resolves free time slots against an external calendar and
// manages the calendar events backing reservations.
package calendar

import (
	"context"
	"time"
)

// BusyInterval is an externally reported occupied range, in UTC.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the half-open slot [start, end) touches the
// interval.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// EventRequest describes a calendar event to create.
type EventRequest struct {
	CalendarID      string
	Summary         string
	Description     string
	Start           time.Time
	DurationMinutes int
	TimeZone        string
}

// Event is the provider's record of a created event.
type Event struct {
	ID         string
	HTMLLink   string
	CalendarID string
	TimeZone   string
}

// Provider is the external calendar surface the core depends on. Credential
// acquisition is the caller's concern; every call carries a context with the
// caller's deadline.
type Provider interface {
	FreeBusy(ctx context.Context, calendarID string, timeMin, timeMax time.Time, timeZone string) ([]BusyInterval, error)
	CreateEvent(ctx context.Context, req EventRequest) (*Event, error)
	DeleteEvent(ctx context.Context, eventID, calendarID string) error
}
