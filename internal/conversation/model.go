// Package conversation advances chat conversations through flow graphs one
// turn at a time and extracts typed booking fields along the way.
package conversation

import (
	"math"
	"strings"
	"time"
)

// Status is the conversation lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Field names collected by flows. Flows may collect additional free-form
// fields; these are the ones the booking pipeline understands.
const (
	FieldName       = "name"
	FieldDate       = "date"
	FieldTime       = "time"
	FieldGuestCount = "guestCount"
	FieldPhone      = "phone"
	FieldEmail      = "email"
	FieldRequests   = "specialRequests"
	FieldReviewLink = "reviewLink"
)

// Variables is the accumulated extracted data of one conversation. Values
// are strings or numbers (float64 after a JSON round trip).
type Variables map[string]any

// Clone returns a shallow copy, so a turn can stage changes without touching
// the committed state.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Present reports whether the field holds a usable value: set, non-empty,
// and not NaN.
func (v Variables) Present(field string) bool {
	val, ok := v[field]
	if !ok || val == nil {
		return false
	}
	switch typed := val.(type) {
	case string:
		return strings.TrimSpace(typed) != ""
	case float64:
		return !math.IsNaN(typed)
	default:
		return true
	}
}

// String returns the field as a string, empty when unset or not a string.
func (v Variables) String(field string) string {
	s, _ := v[field].(string)
	return s
}

// Int returns the field as an int, handling the float64 shape JSON decoding
// produces.
func (v Variables) Int(field string) (int, bool) {
	switch typed := v[field].(type) {
	case int:
		return typed, true
	case float64:
		if math.IsNaN(typed) {
			return 0, false
		}
		return int(typed), true
	default:
		return 0, false
	}
}

// Conversation is the interpreter's durable state: a program counter into a
// flow graph plus accumulated variables.
type Conversation struct {
	ID        string
	AccountID string
	SenderID  string
	Status    Status

	FlowID    string
	NodeID    string
	Variables Variables

	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
