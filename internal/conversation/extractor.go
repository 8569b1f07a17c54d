package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date inputs arrive in the formats German guests actually type. Anything
// unrecognized is kept verbatim so the availability check can surface a
// clear error instead of silently dropping the turn.
var (
	dateDotted = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{2,4})$`)
	dateSlash  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
	dateDashed = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	dateISO    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

	clockColon = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	clockDot   = regexp.MustCompile(`^(\d{1,2})\.(\d{2})$`)
	clockUhr   = regexp.MustCompile(`(?i)^(\d{1,2})\s*uhr$`)

	guestNumber = regexp.MustCompile(`\d+`)
)

// NormalizeDate converts a typed date to ISO YYYY-MM-DD. Two-digit years
// are taken as 20xx. Input that matches no known shape is returned
// verbatim, trimmed.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if m := dateISO.FindStringSubmatch(s); m != nil {
		return s
	}
	var day, month, year string
	switch {
	case dateDotted.MatchString(s):
		m := dateDotted.FindStringSubmatch(s)
		day, month, year = m[1], m[2], m[3]
	case dateSlash.MatchString(s):
		m := dateSlash.FindStringSubmatch(s)
		day, month, year = m[1], m[2], m[3]
	case dateDashed.MatchString(s):
		m := dateDashed.FindStringSubmatch(s)
		day, month, year = m[1], m[2], m[3]
	default:
		return s
	}
	if len(year) == 2 {
		year = "20" + year
	}
	d, errD := strconv.Atoi(day)
	mo, errM := strconv.Atoi(month)
	y, errY := strconv.Atoi(year)
	if errD != nil || errM != nil || errY != nil {
		return s
	}
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return s
	}
	// Rejects 31.02. and friends without a hand-rolled day table.
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != time.Month(mo) {
		return s
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, mo, d)
}

// NormalizeTime converts a typed time to HH:MM. Accepts "19:30", "19.30"
// and the spoken "19 Uhr" form. Unrecognized input is returned verbatim.
func NormalizeTime(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	var hour, minute string
	switch {
	case clockColon.MatchString(s):
		m := clockColon.FindStringSubmatch(s)
		hour, minute = m[1], m[2]
	case clockDot.MatchString(s):
		m := clockDot.FindStringSubmatch(s)
		hour, minute = m[1], m[2]
	case clockUhr.MatchString(s):
		m := clockUhr.FindStringSubmatch(s)
		hour, minute = m[1], "00"
	default:
		return s
	}
	h, errH := strconv.Atoi(hour)
	mi, errM := strconv.Atoi(minute)
	if errH != nil || errM != nil || h > 23 || mi > 59 {
		return s
	}
	return fmt.Sprintf("%02d:%02d", h, mi)
}

// NormalizeGuestCount pulls the first number out of free text ("4", "für 4
// Personen"). Returns false for no number or a non-positive count.
func NormalizeGuestCount(raw string) (int, bool) {
	match := guestNumber.FindString(raw)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ExtractField normalizes one raw message into the typed value stored under
// the given field. The second return is false when the input yields no
// usable value for the field.
func ExtractField(field, raw string) (any, bool) {
	switch field {
	case FieldDate:
		v := NormalizeDate(raw)
		return v, v != ""
	case FieldTime:
		v := NormalizeTime(raw)
		return v, v != ""
	case FieldGuestCount:
		n, ok := NormalizeGuestCount(raw)
		if !ok {
			return nil, false
		}
		return n, true
	default:
		v := strings.TrimSpace(raw)
		return v, v != ""
	}
}

// Missing lists the required fields the variables do not yet hold a usable
// value for, in the order required names them.
func Missing(vars Variables, required []string) []string {
	var out []string
	for _, f := range required {
		if !vars.Present(f) {
			out = append(out, f)
		}
	}
	return out
}
