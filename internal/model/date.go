package model

import "time"

// ISODate is a calendar day as a "YYYY-MM-DD" string. The format sorts
// lexicographically in date order, so ISODates are used directly as
// ordered map keys throughout the planner.
type ISODate string

// NoDate is the sentinel returned when temporal resolution finds no
// template key at or before the requested date.
const NoDate ISODate = ""

const isoLayout = "2006-01-02"

// FormatDate renders t as an ISODate in t's own location.
func FormatDate(t time.Time) ISODate {
	return ISODate(t.Format(isoLayout))
}

// ParseDate parses an ISODate into a midnight time.Time in loc. A nil
// loc means time.Local.
func ParseDate(d ISODate, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(isoLayout, string(d), loc)
}

// AddDays shifts an ISODate by n days (n may be negative). Invalid
// input is returned unchanged.
func (d ISODate) AddDays(n int) ISODate {
	t, err := ParseDate(d, time.UTC)
	if err != nil {
		return d
	}
	return FormatDate(t.AddDate(0, 0, n))
}

// Valid reports whether d parses as a calendar day.
func (d ISODate) Valid() bool {
	_, err := ParseDate(d, time.UTC)
	return err == nil
}

// DatesBetween enumerates every day from first through last inclusive.
// It returns nil when either bound is invalid or last precedes first.
func DatesBetween(first, last ISODate) []ISODate {
	start, err := ParseDate(first, time.UTC)
	if err != nil {
		return nil
	}
	end, err := ParseDate(last, time.UTC)
	if err != nil {
		return nil
	}
	if end.Before(start) {
		return nil
	}

	out := make([]ISODate, 0, int(end.Sub(start).Hours()/24)+1)
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		out = append(out, FormatDate(t))
	}
	return out
}
