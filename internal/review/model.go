// Package review schedules and dispatches post-visit review requests. One
// request exists per reservation; its status gates re-dispatch across
// repeated sweeps.
package review

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus tracks the lifecycle of a review request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusSent      RequestStatus = "sent"
	StatusRated     RequestStatus = "rated"
	StatusCancelled RequestStatus = "cancelled"
)

// Request is one scheduled review outreach, due after the visit time plus
// the account's configured delay.
type Request struct {
	ID             uuid.UUID     `json:"id"`
	AccountID      string        `json:"account_id"`
	ReservationID  uuid.UUID     `json:"reservation_id"`
	ConversationID string        `json:"conversation_id"`
	ContactID      string        `json:"contact_id"`
	GuestName      string        `json:"guest_name"`
	DueAt          time.Time     `json:"due_at"`
	Status         RequestStatus `json:"status"`
	Rating         *int          `json:"rating,omitempty"`
	SentAt         *time.Time    `json:"sent_at,omitempty"`
	RatedAt        *time.Time    `json:"rated_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
