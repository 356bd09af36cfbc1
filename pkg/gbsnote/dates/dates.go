package dates

import (
	"time"
)

// Layout is the wire format for all dates in the API (HTML date inputs,
// query parameters, CSV columns).
const Layout = "2006-01-02"

// Normalize truncates a time to its date at UTC midnight. Every date stored
// or compared by the services goes through this so that interval queries
// never depend on the time-of-day component.
func Normalize(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Parse parses a YYYY-MM-DD date string into a normalized date.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Normalize(t), nil
}

// Format renders a normalized date back into YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// IsSunday reports whether the given date falls on a Sunday.
func IsSunday(t time.Time) bool {
	return t.Weekday() == time.Sunday
}

// SundayOnOrBefore returns the Sunday on or before the given date. A date
// already on a Sunday is returned unchanged (normalized).
func SundayOnOrBefore(t time.Time) time.Time {
	d := Normalize(t)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// SameDay reports whether two times fall on the same UTC date.
func SameDay(a, b time.Time) bool {
	return Normalize(a).Equal(Normalize(b))
}
