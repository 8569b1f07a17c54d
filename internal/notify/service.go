package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/resaflow/platform/internal/accounts"
	"github.com/resaflow/platform/internal/reservations"
	"github.com/resaflow/platform/pkg/logging"
)

// Service emails the business when a booking lands. Notification failures
// never fail the booking; they are logged and dropped.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// ReservationCreated sends the new-booking email to the account's
// configured notification address.
func (s *Service) ReservationCreated(ctx context.Context, r *reservations.Reservation, settings *accounts.Settings) {
	if s == nil || s.email == nil {
		return
	}
	if settings == nil || settings.NotifyEmail == "" {
		s.logger.Debug("booking notification skipped, no notify email configured", "account_id", r.AccountID)
		return
	}

	msg := EmailMessage{
		To:      settings.NotifyEmail,
		ToName:  settings.NotifyEmailName,
		Subject: fmt.Sprintf("Neue Reservierung: %s, %s %s Uhr", r.GuestName, germanDate(r.Date), r.Time),
		Body:    bookingBody(r, settings),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("booking notification failed", "error", err, "reservation_id", r.ID, "account_id", r.AccountID)
		return
	}
	s.logger.Info("booking notification sent", "reservation_id", r.ID, "to", settings.NotifyEmail)
}

func bookingBody(r *reservations.Reservation, settings *accounts.Settings) string {
	var b strings.Builder
	name := settings.BusinessName
	if name == "" {
		name = "Ihr Restaurant"
	}
	fmt.Fprintf(&b, "Neue Reservierung für %s\n\n", name)
	fmt.Fprintf(&b, "Name: %s\n", r.GuestName)
	fmt.Fprintf(&b, "Datum: %s\n", germanDate(r.Date))
	fmt.Fprintf(&b, "Uhrzeit: %s Uhr\n", r.Time)
	fmt.Fprintf(&b, "Personen: %d\n", r.GuestCount)
	if r.Phone != "" {
		fmt.Fprintf(&b, "Telefon: %s\n", r.Phone)
	}
	if r.Email != "" {
		fmt.Fprintf(&b, "E-Mail: %s\n", r.Email)
	}
	if r.SpecialRequests != "" {
		fmt.Fprintf(&b, "Anmerkungen: %s\n", r.SpecialRequests)
	}
	if r.ExternalEventID == "" {
		b.WriteString("\nHinweis: Der Kalendereintrag konnte nicht angelegt werden. Bitte tragen Sie den Termin manuell ein.\n")
	}
	return b.String()
}

func germanDate(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return t.Format("02.01.2006")
}
