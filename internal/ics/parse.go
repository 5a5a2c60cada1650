// Package ics turns raw iCalendar feed text into normalized planner
// events: parsing, recurrence expansion bounded to a date window, a
// date index for freezing events into the grid, and label rendering.
package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "uplanner/internal/log"
	"uplanner/internal/model"
)

// parsedEvent is the intermediate per-VEVENT form before recurrence
// expansion. RRULE/EXDATE/RECURRENCE-ID are recorded raw here and
// resolved in expand.go.
type parsedEvent struct {
	UID string
	Seq int

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID when this VEVENT overrides an instance
	IsOverride bool
}

// parseCalendar parses one ICS payload into parsedEvents. Individual
// malformed VEVENTs are logged and skipped so one broken entry does not
// take down the whole feed.
func parseCalendar(body []byte, calendarID model.ItemID) ([]parsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]parsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "calendar", calendarID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "calendar", calendarID, "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	// The library's helpers carry VTIMEZONE/TZID handling. Date-only
	// values fail the timed accessors and need the all-day variants.
	start, err := ve.GetStartAt()
	if err != nil {
		start, _ = ve.GetAllDayStartAt()
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end, _ = ve.GetAllDayEndAt()
	}
	out.Start = start
	out.End = end

	// All-day iff DTSTART carries no time-of-day component: either
	// VALUE=DATE or a bare YYYYMMDD value.
	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.AllDay = true
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			out.AllDay = true
		}
	}

	if out.AllDay && !out.End.After(out.Start) {
		// DTEND is optional for all-day events; default to one day.
		out.End = out.Start.Add(24 * time.Hour)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTime(ridProp.Value); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseICSTime parses the basic DATE / DATE-TIME / UTC forms that occur
// in EXDATE and RECURRENCE-ID values.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}
	return time.ParseInLocation("20060102", v, time.Local)
}
