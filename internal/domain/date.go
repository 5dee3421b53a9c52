package domain

import "time"

// DateOf returns the calendar day of t as midnight UTC. All loan dates are
// stored this way so that day arithmetic ignores clocks and zones.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// Clock returns the current time. Services take one so tests can pin "today".
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// ParseDate reads a calendar day written as YYYY-MM-DD. A full RFC 3339
// timestamp is also accepted and reduced to its day.
func ParseDate(field, s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return time.Time{}, Invalid("%s %q is not a date (YYYY-MM-DD)", field, s)
}
