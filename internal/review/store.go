package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const requestColumns = `id, account_id, reservation_id, conversation_id, contact_id, guest_name, due_at, status, rating, sent_at, rated_at, created_at, updated_at`

// Store provides CRUD operations for review_requests.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create inserts a review request. A reservation gets at most one request;
// a second insert for the same reservation is a silent no-op so schedulers
// can run repeatedly.
func (s *Store) Create(ctx context.Context, r *Request) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusPending
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO review_requests (id, account_id, reservation_id, conversation_id, contact_id, guest_name, due_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (reservation_id) DO NOTHING`,
		r.ID, r.AccountID, r.ReservationID, r.ConversationID, r.ContactID,
		r.GuestName, r.DueAt, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("review: create request: %w", err)
	}
	return nil
}

// ListDue returns pending requests whose due time has passed, oldest first.
func (s *Store) ListDue(ctx context.Context, asOf time.Time, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM review_requests
		WHERE status = 'pending' AND due_at <= $1
		ORDER BY due_at ASC
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("review: list due: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// GetByReservation returns the request for a reservation, nil when absent.
func (s *Store) GetByReservation(ctx context.Context, reservationID uuid.UUID) (*Request, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM review_requests
		WHERE reservation_id = $1`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("review: get by reservation: %w", err)
	}
	defer rows.Close()
	requests, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return &requests[0], nil
}

// FindSentByContact returns the most recent sent request for a contact, for
// attributing an inbound rating.
func (s *Store) FindSentByContact(ctx context.Context, accountID, contactID string) (*Request, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM review_requests
		WHERE account_id = $1 AND contact_id = $2 AND status = 'sent'
		ORDER BY sent_at DESC
		LIMIT 1`, accountID, contactID)
	if err != nil {
		return nil, fmt.Errorf("review: find sent by contact: %w", err)
	}
	defer rows.Close()
	requests, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return &requests[0], nil
}

// MarkSent transitions pending to sent. The status guard makes concurrent
// sweeps dispatch each request at most once.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE review_requests SET status = 'sent', sent_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending'`, now, id)
	if err != nil {
		return fmt.Errorf("review: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("review: mark sent: no pending request with id %s", id)
	}
	return nil
}

// MarkRated records the guest's rating on a sent request.
func (s *Store) MarkRated(ctx context.Context, id uuid.UUID, rating int) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE review_requests SET status = 'rated', rating = $1, rated_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'sent'`, rating, now, id)
	if err != nil {
		return fmt.Errorf("review: mark rated: %w", err)
	}
	return nil
}

// Cancel withdraws a request that should never go out, for example after
// the reservation was cancelled.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE review_requests SET status = 'cancelled', updated_at = $1
		WHERE id = $2 AND status IN ('pending', 'sent')`, now, id)
	if err != nil {
		return fmt.Errorf("review: cancel: %w", err)
	}
	return nil
}

func scanRequests(rows pgx.Rows) ([]Request, error) {
	var result []Request
	for rows.Next() {
		var r Request
		var status string
		err := rows.Scan(
			&r.ID, &r.AccountID, &r.ReservationID, &r.ConversationID,
			&r.ContactID, &r.GuestName, &r.DueAt, &status, &r.Rating,
			&r.SentAt, &r.RatedAt, &r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("review: scan request: %w", err)
		}
		r.Status = RequestStatus(status)
		result = append(result, r)
	}
	return result, rows.Err()
}
