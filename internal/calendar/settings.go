package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	minSlotDuration   = 15
	maxSlotDuration   = 240
	minBookingWindow  = 1
	maxBookingWindow  = 90
	defaultTimeZone   = "Europe/Berlin"
	defaultDuration   = 60
	defaultWindowDays = 14
)

// TimeRange is one open-hours span within a day, "HH:MM" 24h.
type TimeRange struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Settings is the per-account booking calendar configuration.
type Settings struct {
	CalendarID          string                       `json:"calendar_id"`
	TimeZone            string                       `json:"time_zone"`
	BookingWindowDays   int                          `json:"booking_window_days"`
	SlotDurationMinutes int                          `json:"slot_duration_minutes"`
	Hours               map[time.Weekday][]TimeRange `json:"hours"`
}

// DefaultSettings returns an every-day 11:00-22:00 calendar, the common case
// for walk-in restaurants.
func DefaultSettings() Settings {
	hours := make(map[time.Weekday][]TimeRange, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		hours[d] = []TimeRange{{Open: "11:00", Close: "22:00"}}
	}
	return Settings{
		TimeZone:            defaultTimeZone,
		BookingWindowDays:   defaultWindowDays,
		SlotDurationMinutes: defaultDuration,
		Hours:               hours,
	}
}

// Normalized returns a copy with out-of-range values clamped and empty
// fields defaulted.
func (s Settings) Normalized() Settings {
	out := s
	if out.TimeZone == "" {
		out.TimeZone = defaultTimeZone
	}
	if out.SlotDurationMinutes == 0 {
		out.SlotDurationMinutes = defaultDuration
	}
	if out.SlotDurationMinutes < minSlotDuration {
		out.SlotDurationMinutes = minSlotDuration
	}
	if out.SlotDurationMinutes > maxSlotDuration {
		out.SlotDurationMinutes = maxSlotDuration
	}
	if out.BookingWindowDays == 0 {
		out.BookingWindowDays = defaultWindowDays
	}
	if out.BookingWindowDays < minBookingWindow {
		out.BookingWindowDays = minBookingWindow
	}
	if out.BookingWindowDays > maxBookingWindow {
		out.BookingWindowDays = maxBookingWindow
	}
	if len(out.Hours) == 0 {
		out.Hours = DefaultSettings().Hours
	}
	return out
}

// Location resolves the configured time zone, falling back to UTC when the
// zone is invalid or empty.
func (s Settings) Location() *time.Location {
	if s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HoursFor returns the open ranges for a weekday; nil means closed.
func (s Settings) HoursFor(day time.Weekday) []TimeRange {
	return s.Hours[day]
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("calendar: bad clock value %q", value)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("calendar: bad clock value %q", value)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("calendar: bad clock value %q", value)
	}
	return hh*60 + mm, nil
}
