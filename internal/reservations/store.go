package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrAlreadyBooked reports that a reservation already exists for the
// conversation. The conditional insert is the storage-level dedup guard: two
// racing completion turns cannot both win.
var ErrAlreadyBooked = errors.New("reservations: conversation already has a reservation")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides reservation persistence.
type Store struct {
	db DB
}

// NewStore creates a reservation store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const reservationColumns = `id, account_id, conversation_id, contact_id, guest_name, visit_date, visit_time,
	guest_count, phone, email, special_requests, status,
	external_event_id, external_calendar_id, external_time_zone, created_at, updated_at`

// Create inserts the reservation. If the conversation already has one, no
// row is written and ErrAlreadyBooked is returned.
func (s *Store) Create(ctx context.Context, r *Reservation) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusPending
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (conversation_id) DO NOTHING`,
		r.ID, r.AccountID, r.ConversationID, r.ContactID, r.GuestName, r.Date, r.Time,
		r.GuestCount, r.Phone, r.Email, r.SpecialRequests, string(r.Status),
		r.ExternalEventID, r.ExternalCalendarID, r.ExternalTimeZone, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("reservations: create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyBooked
	}
	return nil
}

// Get loads one reservation by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("reservations: get: %w", err)
	}
	defer rows.Close()
	return one(rows)
}

// GetByConversation returns the reservation booked from a conversation, or
// nil when none exists.
func (s *Store) GetByConversation(ctx context.Context, conversationID string) (*Reservation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("reservations: get by conversation: %w", err)
	}
	defer rows.Close()
	return one(rows)
}

// ListByAccount returns an account's reservations, newest first.
func (s *Store) ListByAccount(ctx context.Context, accountID string, limit int) ([]Reservation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE account_id = $1
		ORDER BY created_at DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("reservations: list by account: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

// UpdateStatus transitions a reservation's status.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE reservations SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reservations: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservations: update status: no reservation with id %s", id)
	}
	return nil
}

// Delete removes a reservation row, used only to unwind a failed create.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reservations: delete: %w", err)
	}
	return nil
}

func one(rows pgx.Rows) (*Reservation, error) {
	list, err := scanReservations(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func scanReservations(rows pgx.Rows) ([]Reservation, error) {
	var result []Reservation
	for rows.Next() {
		var r Reservation
		var status string
		err := rows.Scan(
			&r.ID, &r.AccountID, &r.ConversationID, &r.ContactID, &r.GuestName, &r.Date, &r.Time,
			&r.GuestCount, &r.Phone, &r.Email, &r.SpecialRequests, &status,
			&r.ExternalEventID, &r.ExternalCalendarID, &r.ExternalTimeZone, &r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("reservations: scan: %w", err)
		}
		r.Status = Status(status)
		result = append(result, r)
	}
	return result, rows.Err()
}
