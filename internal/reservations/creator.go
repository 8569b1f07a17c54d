package reservations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/resaflow/platform/internal/accounts"
	"github.com/resaflow/platform/internal/calendar"
	"github.com/resaflow/platform/internal/observability/metrics"
	"github.com/resaflow/platform/pkg/logging"
)

var reservationsTracer = otel.Tracer("resaflow.internal.reservations")

// CreateStatus classifies the outcome of a booking attempt.
type CreateStatus string

const (
	CreateBooked        CreateStatus = "booked"
	CreateBookedLocal   CreateStatus = "booked_local"
	CreateUnavailable   CreateStatus = "unavailable"
	CreateAlreadyBooked CreateStatus = "already_booked"
)

// Request carries the completed, normalized booking fields.
type Request struct {
	AccountID       string
	ConversationID  string
	ContactID       string
	GuestName       string
	Date            string
	Time            string
	GuestCount      int
	Phone           string
	Email           string
	SpecialRequests string
	Settings        *accounts.Settings
}

// Result is the outcome of Creator.Create.
type Result struct {
	Status      CreateStatus
	Reservation *Reservation
	Suggestions []calendar.Slot
	Warning     string
}

// Persister is the slice of Store the creator needs.
type Persister interface {
	Create(ctx context.Context, r *Reservation) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Notifier tells the business about a new booking, best effort.
type Notifier interface {
	ReservationCreated(ctx context.Context, r *Reservation, settings *accounts.Settings)
}

// ReviewScheduler queues post-visit review outreach for a booking.
type ReviewScheduler interface {
	ScheduleForReservation(ctx context.Context, r *Reservation, settings *accounts.Settings) error
}

// Creator books a reservation: availability re-check, external calendar
// event, durable row. A calendar outage degrades to a local-only booking; a
// persistence failure after the event was created rolls the event back.
type Creator struct {
	resolver *calendar.Resolver
	provider calendar.Provider
	store    Persister
	notifier Notifier
	reviews  ReviewScheduler
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// NewCreator constructs a reservation creator. Notifier and reviews may be
// nil.
func NewCreator(resolver *calendar.Resolver, provider calendar.Provider, store Persister, notifier Notifier, reviews ReviewScheduler, m *metrics.BookingMetrics, logger *logging.Logger) *Creator {
	if resolver == nil {
		panic("reservations: resolver required")
	}
	if store == nil {
		panic("reservations: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Creator{
		resolver: resolver,
		provider: provider,
		store:    store,
		notifier: notifier,
		reviews:  reviews,
		metrics:  m,
		logger:   logger,
	}
}

// Create runs the booking pipeline for a completed variable set. Callers
// must have normalized date and time; verbatim leftovers surface as
// calendar.ErrInvalidSlot.
func (c *Creator) Create(ctx context.Context, req Request) (*Result, error) {
	ctx, span := reservationsTracer.Start(ctx, "reservations.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("resaflow.account_id", req.AccountID),
		attribute.String("resaflow.conversation_id", req.ConversationID),
	)

	settings := req.Settings.Normalized()
	calSettings := settings.Calendar

	avail, err := c.resolver.Check(ctx, req.AccountID, req.Date, req.Time, calSettings)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !avail.Available {
		return &Result{Status: CreateUnavailable, Suggestions: avail.Suggestions}, nil
	}

	reservation := &Reservation{
		AccountID:       req.AccountID,
		ConversationID:  req.ConversationID,
		ContactID:       req.ContactID,
		GuestName:       req.GuestName,
		Date:            req.Date,
		Time:            req.Time,
		GuestCount:      req.GuestCount,
		Phone:           req.Phone,
		Email:           req.Email,
		SpecialRequests: req.SpecialRequests,
		Status:          StatusPending,
	}
	if reservation.GuestCount <= 0 {
		reservation.GuestCount = settings.DefaultGuestCount
	}

	var warning string
	event, err := c.createEvent(ctx, reservation, calSettings)
	if err != nil {
		// Provider outage: the business still gets the booking.
		c.logger.Warn("calendar event creation failed, booking local-only",
			"account_id", req.AccountID, "conversation_id", req.ConversationID, "error", err)
		warning = "calendar event not created"
	} else if event != nil {
		reservation.ExternalEventID = event.ID
		reservation.ExternalCalendarID = event.CalendarID
		reservation.ExternalTimeZone = event.TimeZone
	}

	if err := c.store.Create(ctx, reservation); err != nil {
		if event != nil {
			c.rollbackEvent(ctx, event)
		}
		if errors.Is(err, ErrAlreadyBooked) {
			return &Result{Status: CreateAlreadyBooked}, nil
		}
		span.RecordError(err)
		return nil, err
	}

	status := CreateBooked
	mode := "calendar"
	if reservation.ExternalEventID == "" {
		status = CreateBookedLocal
		mode = "local_only"
	}
	c.metrics.ObserveReservation(mode)
	c.logger.Info("reservation created",
		"account_id", req.AccountID, "reservation_id", reservation.ID,
		"date", reservation.Date, "time", reservation.Time, "mode", mode)

	if c.reviews != nil {
		if err := c.reviews.ScheduleForReservation(ctx, reservation, settings); err != nil {
			c.logger.Error("review scheduling failed", "reservation_id", reservation.ID, "error", err)
		}
	}
	if c.notifier != nil {
		c.notifier.ReservationCreated(ctx, reservation, settings)
	}

	return &Result{Status: status, Reservation: reservation, Warning: warning}, nil
}

func (c *Creator) createEvent(ctx context.Context, r *Reservation, calSettings calendar.Settings) (*calendar.Event, error) {
	if c.provider == nil || calSettings.CalendarID == "" {
		return nil, nil
	}
	start, err := calendar.SlotStart(r.Date, r.Time, calSettings)
	if err != nil {
		return nil, err
	}
	return c.provider.CreateEvent(ctx, calendar.EventRequest{
		CalendarID:      calSettings.CalendarID,
		Summary:         fmt.Sprintf("Reservierung %s (%d Personen)", r.GuestName, r.GuestCount),
		Description:     r.SpecialRequests,
		Start:           start,
		DurationMinutes: calSettings.SlotDurationMinutes,
		TimeZone:        calSettings.TimeZone,
	})
}

// rollbackEvent deletes an event whose reservation row could not be written.
// An orphaned event with no matching row is a leaked side effect.
func (c *Creator) rollbackEvent(ctx context.Context, event *calendar.Event) {
	if err := c.provider.DeleteEvent(ctx, event.ID, event.CalendarID); err != nil {
		c.logger.Error("calendar event rollback failed, manual cleanup needed",
			"event_id", event.ID, "calendar_id", event.CalendarID, "error", err)
	}
}
