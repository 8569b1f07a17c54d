package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/resaflow/platform/internal/accounts"
	"github.com/resaflow/platform/internal/conversation"
	"github.com/resaflow/platform/internal/flow"
	"github.com/resaflow/platform/internal/observability/metrics"
	"github.com/resaflow/platform/internal/reservations"
	"github.com/resaflow/platform/pkg/logging"
)

// ReservationSource looks up the reservation a request belongs to.
type ReservationSource interface {
	Get(ctx context.Context, id uuid.UUID) (*reservations.Reservation, error)
}

// SettingsSource loads per-account configuration.
type SettingsSource interface {
	Get(ctx context.Context, accountID string) (*accounts.Settings, error)
}

// FlowLauncher starts the account's review flow for a contact.
type FlowLauncher interface {
	StartFlow(ctx context.Context, accountID, senderID, flowID string, seed conversation.Variables) (*conversation.Response, error)
}

// Dispatcher sweeps due review requests and launches the review flow for
// each. Sweeps are idempotent: the pending-to-sent transition gates
// re-dispatch, and cancelled or no-show reservations drop their request.
type Dispatcher struct {
	store        *Store
	reservations ReservationSource
	settings     SettingsSource
	launcher     FlowLauncher
	sender       conversation.ReplySender
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
}

func NewDispatcher(store *Store, res ReservationSource, settings SettingsSource, launcher FlowLauncher, sender conversation.ReplySender, m *metrics.BookingMetrics, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:        store,
		reservations: res,
		settings:     settings,
		launcher:     launcher,
		sender:       sender,
		metrics:      m,
		logger:       logger,
	}
}

// ProcessDue dispatches every due pending request once. Returns the number
// of requests sent; individual failures are logged and left pending for the
// next sweep.
func (d *Dispatcher) ProcessDue(ctx context.Context) (int, error) {
	due, err := d.store.ListDue(ctx, time.Now().UTC(), 0)
	if err != nil {
		d.metrics.ObserveReviewSweep("error")
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}
	d.logger.Info("processing due review requests", "count", len(due))

	sent := 0
	for i := range due {
		r := &due[i]
		switch err := d.processOne(ctx, r); {
		case err == nil:
			sent++
			d.metrics.ObserveReviewSweep("sent")
		case err == errSkipped:
			d.metrics.ObserveReviewSweep("skipped")
		default:
			d.logger.Error("review dispatch failed", "id", r.ID, "error", err)
			d.metrics.ObserveReviewSweep("error")
		}
	}
	return sent, nil
}

var errSkipped = errors.New("review: request skipped")

func (d *Dispatcher) processOne(ctx context.Context, r *Request) error {
	reservation, err := d.reservations.Get(ctx, r.ReservationID)
	if err != nil {
		return fmt.Errorf("load reservation: %w", err)
	}
	if reservation == nil || reservation.Status == reservations.StatusCancelled || reservation.Status == reservations.StatusNoShow {
		if err := d.store.Cancel(ctx, r.ID); err != nil {
			return err
		}
		d.logger.Info("review request withdrawn", "id", r.ID, "reservation_id", r.ReservationID)
		return errSkipped
	}

	settings, err := d.settings.Get(ctx, r.AccountID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings == nil || settings.ReviewFlowID == "" {
		if err := d.store.Cancel(ctx, r.ID); err != nil {
			return err
		}
		d.logger.Info("review request withdrawn, no review flow configured", "id", r.ID, "account_id", r.AccountID)
		return errSkipped
	}

	seed := conversation.Variables{
		conversation.FieldName:       r.GuestName,
		conversation.FieldReviewLink: settings.ReviewLink,
	}
	resp, err := d.launcher.StartFlow(ctx, r.AccountID, r.ContactID, settings.ReviewFlowID, seed)
	if err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			if cerr := d.store.Cancel(ctx, r.ID); cerr != nil {
				return cerr
			}
			d.logger.Info("review request withdrawn, review flow deleted", "id", r.ID, "flow_id", settings.ReviewFlowID)
			return errSkipped
		}
		return fmt.Errorf("start review flow: %w", err)
	}
	if d.sender != nil {
		if err := d.sender.SendReply(ctx, r.AccountID, r.ContactID, resp.Reply); err != nil {
			return fmt.Errorf("send review message: %w", err)
		}
	}
	if err := d.store.MarkSent(ctx, r.ID); err != nil {
		return err
	}

	d.logger.Info("review request sent",
		"id", r.ID,
		"account_id", r.AccountID,
		"contact_id", r.ContactID,
		"conversation_id", resp.ConversationID,
	)
	return nil
}

// RecordRating attributes an inbound rating to the contact's most recent
// sent request. Unattributable ratings are dropped silently.
func (d *Dispatcher) RecordRating(ctx context.Context, accountID, contactID string, rating int) error {
	request, err := d.store.FindSentByContact(ctx, accountID, contactID)
	if err != nil {
		return err
	}
	if request == nil {
		return nil
	}
	if err := d.store.MarkRated(ctx, request.ID, rating); err != nil {
		return err
	}
	d.logger.Info("review rating recorded", "id", request.ID, "rating", rating)
	return nil
}

// Run sweeps on the given interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.ProcessDue(ctx); err != nil {
				d.logger.Error("review sweep failed", "error", err)
			}
		}
	}
}
