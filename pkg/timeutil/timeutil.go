// Package timeutil provides time zone aware calendar helpers.
// Streaks are counted in each user's own time zone, so every helper takes
// the location explicitly instead of assuming a server zone.
// No external dependencies - uses only standard library.
package timeutil

import (
	"strings"
	"time"

	// User zones must resolve even on hosts without a zoneinfo database.
	_ "time/tzdata"
)

// DefaultZone is used when a user has no valid time zone on record.
const DefaultZone = "UTC"

// FormatDate is the wire format for civil dates.
const FormatDate = "2006-01-02"

// LoadLocation resolves an IANA zone name, falling back to UTC.
// The boolean reports whether the name was valid.
func LoadLocation(name string) (*time.Location, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// ValidZone reports whether name is a loadable IANA zone.
func ValidZone(name string) bool {
	_, ok := LoadLocation(name)
	return ok
}

// CivilDate returns the calendar date of t as seen in loc, encoded as
// midnight UTC. Two CivilDates compare with Equal/Before and differ by
// exact multiples of 24h, which keeps day arithmetic free of DST effects.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Normalize truncates an already civil date (possibly loaded from storage
// with a zone attached) back to midnight UTC of the same calendar day.
func Normalize(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b.
// Both arguments must be civil dates.
func DaysBetween(a, b time.Time) int {
	return int(Normalize(b).Sub(Normalize(a)).Hours() / 24)
}

// IsSameDay checks if two instants fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return CivilDate(t1, loc).Equal(CivilDate(t2, loc))
}

// FormatCivil formats a civil date.
func FormatCivil(d time.Time) string {
	return Normalize(d).Format(FormatDate)
}

// ParseCivil parses a civil date produced by FormatCivil.
func ParseCivil(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}
