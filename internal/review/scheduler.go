package review

import (
	"context"
	"fmt"
	"time"

	"github.com/resaflow/platform/internal/accounts"
	"github.com/resaflow/platform/internal/reservations"
	"github.com/resaflow/platform/pkg/logging"
)

// Scheduler queues a review request when a reservation is booked. It
// implements the booking pipeline's ReviewScheduler hook.
type Scheduler struct {
	store  *Store
	logger *logging.Logger
}

func NewScheduler(store *Store, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{store: store, logger: logger}
}

// ScheduleForReservation creates a pending request due the configured
// number of hours after the visit. Accounts without a review flow get no
// request.
func (s *Scheduler) ScheduleForReservation(ctx context.Context, r *reservations.Reservation, settings *accounts.Settings) error {
	if settings == nil || settings.ReviewFlowID == "" {
		s.logger.Debug("review scheduling skipped, no review flow configured", "account_id", r.AccountID)
		return nil
	}
	visit, err := r.VisitAt(settings.Calendar.Location())
	if err != nil {
		return fmt.Errorf("review: resolve visit time: %w", err)
	}

	request := &Request{
		AccountID:      r.AccountID,
		ReservationID:  r.ID,
		ConversationID: r.ConversationID,
		ContactID:      r.ContactID,
		GuestName:      r.GuestName,
		DueAt:          visit.Add(time.Duration(settings.ReviewDelayHours) * time.Hour).UTC(),
		Status:         StatusPending,
	}
	if err := s.store.Create(ctx, request); err != nil {
		return err
	}

	s.logger.Info("review request scheduled",
		"id", request.ID,
		"account_id", r.AccountID,
		"reservation_id", r.ID,
		"due_at", request.DueAt.Format(time.RFC3339),
	)
	return nil
}
