// Package reservations persists bookings and orchestrates their creation
// against the external calendar.
package reservations

import (
	"time"

	"github.com/google/uuid"
)

// Status is the reservation lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Reservation is one booked visit. ExternalEventID and ExternalCalendarID
// are empty for local-only bookings made while the calendar integration was
// degraded.
type Reservation struct {
	ID              uuid.UUID
	AccountID       string
	ConversationID  string
	ContactID       string
	GuestName       string
	Date            string // ISO YYYY-MM-DD
	Time            string // HH:MM, 24h
	GuestCount      int
	Phone           string
	Email           string
	SpecialRequests string
	Status          Status

	ExternalEventID    string
	ExternalCalendarID string
	ExternalTimeZone   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VisitAt resolves the visit instant in the given location.
func (r *Reservation) VisitAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", r.Date+" "+r.Time, loc)
}
