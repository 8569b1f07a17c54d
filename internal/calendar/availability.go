package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/resaflow/platform/internal/observability/metrics"
	"github.com/resaflow/platform/pkg/logging"
)

// ErrAvailability marks a failed free/busy lookup. Callers must not present
// it as "no slots"; the calendar answer is unknown, not negative.
var ErrAvailability = errors.New("calendar: availability lookup failed")

// ErrInvalidSlot marks a candidate date/time that is not in the strict
// ISO/HH:MM shape, i.e. extraction stored the raw text verbatim.
var ErrInvalidSlot = errors.New("calendar: candidate slot is not a valid date/time")

const (
	maxSuggestions       = 3
	suggestionWindowDays = 7
)

// Slot is a proposed alternative booking time.
type Slot struct {
	Date  string    `json:"date"`
	Time  string    `json:"time"`
	Start time.Time `json:"start"`
}

// Availability is the outcome of a slot check.
type Availability struct {
	Available   bool
	Suggestions []Slot
}

// Resolver computes slot availability against the external calendar through
// the busy-interval cache.
type Resolver struct {
	provider Provider
	cache    *BusyCache
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// NewResolver creates an availability resolver.
func NewResolver(provider Provider, cache *BusyCache, m *metrics.BookingMetrics, logger *logging.Logger) *Resolver {
	if provider == nil {
		panic("calendar: provider required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{provider: provider, cache: cache, metrics: m, logger: logger}
}

// SlotStart resolves a normalized (date, time) pair to a wall-clock instant
// in the settings' zone. time.Date re-resolves the zone offset at the
// composed instant, so slots across DST transitions land on the correct UTC
// time.
func SlotStart(date, clock string, settings Settings) (time.Time, error) {
	loc := settings.Location()
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidSlot, date)
	}
	minutes, err := parseClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q", ErrInvalidSlot, clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}

// Check reports whether the candidate slot is free and, when it is not,
// proposes up to three chronologically later alternatives inside the
// account's open hours.
func (r *Resolver) Check(ctx context.Context, accountID, date, clock string, settings Settings) (*Availability, error) {
	settings = settings.Normalized()
	loc := settings.Location()

	requested, err := SlotStart(date, clock, settings)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(settings.SlotDurationMinutes) * time.Minute
	requestedEnd := requested.Add(duration)

	day := time.Date(requested.Year(), requested.Month(), requested.Day(), 0, 0, 0, 0, loc)
	windowDays := settings.BookingWindowDays
	if windowDays > suggestionWindowDays {
		windowDays = suggestionWindowDays
	}
	windowStart := day
	last := day.AddDate(0, 0, windowDays)
	windowEnd := time.Date(last.Year(), last.Month(), last.Day(), 23, 59, 0, 0, loc)

	busy, err := r.busyIntervals(ctx, accountID, settings, windowStart.UTC(), windowEnd.UTC())
	if err != nil {
		return nil, err
	}

	if !anyOverlap(busy, requested, requestedEnd) {
		return &Availability{Available: true}, nil
	}

	return &Availability{
		Available:   false,
		Suggestions: r.suggest(day, requested, windowDays, duration, busy, settings, loc),
	}, nil
}

func (r *Resolver) busyIntervals(ctx context.Context, accountID string, settings Settings, timeMin, timeMax time.Time) ([]BusyInterval, error) {
	cached, ok, err := r.cache.Get(ctx, accountID, settings.CalendarID, timeMin, timeMax, settings.TimeZone)
	if err != nil {
		r.logger.Warn("busy cache read failed", "account_id", accountID, "error", err)
	}
	if ok {
		r.metrics.ObserveBusyCache("hit")
		return cached, nil
	}
	r.metrics.ObserveBusyCache("miss")

	busy, err := r.provider.FreeBusy(ctx, settings.CalendarID, timeMin, timeMax, settings.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAvailability, err)
	}

	if err := r.cache.Set(ctx, accountID, settings.CalendarID, timeMin, timeMax, settings.TimeZone, busy); err != nil {
		r.logger.Warn("busy cache write failed", "account_id", accountID, "error", err)
	}
	return busy, nil
}

// suggest scans forward day by day through the window, walking each day's
// open ranges in slot-duration increments. Same-day candidates must be
// strictly after the requested time; every result must clear the busy list.
func (r *Resolver) suggest(day, requested time.Time, windowDays int, duration time.Duration, busy []BusyInterval, settings Settings, loc *time.Location) []Slot {
	var suggestions []Slot

	for offset := 0; offset <= windowDays && len(suggestions) < maxSuggestions; offset++ {
		d := day.AddDate(0, 0, offset)
		for _, tr := range settings.HoursFor(d.Weekday()) {
			openMin, err := parseClock(tr.Open)
			if err != nil {
				continue
			}
			closeMin, err := parseClock(tr.Close)
			if err != nil {
				continue
			}
			step := int(duration / time.Minute)
			for m := openMin; m+step <= closeMin && len(suggestions) < maxSuggestions; m += step {
				start := time.Date(d.Year(), d.Month(), d.Day(), m/60, m%60, 0, 0, loc)
				if offset == 0 && !start.After(requested) {
					continue
				}
				if anyOverlap(busy, start, start.Add(duration)) {
					continue
				}
				suggestions = append(suggestions, Slot{
					Date:  start.Format("2006-01-02"),
					Time:  start.Format("15:04"),
					Start: start.UTC(),
				})
			}
		}
	}
	return suggestions
}

func anyOverlap(busy []BusyInterval, start, end time.Time) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
