package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "uplanner/internal/log"
	"uplanner/internal/model"
)

// maxOccurrencesPerEvent caps recurrence expansion so a malformed or
// adversarial RRULE cannot loop unbounded.
const maxOccurrencesPerEvent = 5000

// ParseBetween parses feed text and expands single and recurring
// entries into normalized events that intersect the half-open window
// [after, before). Events are returned sorted by start time then ID.
func ParseBetween(body []byte, calendarID model.ItemID, after, before time.Time) ([]model.NormalizedEvent, error) {
	if before.Before(after) {
		return nil, errors.New("ics: window end precedes window start")
	}

	parsed, err := parseCalendar(body, calendarID)
	if err != nil {
		return nil, err
	}

	// Split base events from RECURRENCE-ID overrides; overrides replace
	// the matching expanded instance of their series.
	overridesByUID := make(map[string][]parsedEvent)
	bases := make([]parsedEvent, 0, len(parsed))
	for _, ev := range parsed {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			bases = append(bases, ev)
		}
	}

	out := make([]model.NormalizedEvent, 0, len(bases))
	for _, ev := range bases {
		if ev.RawRRule == "" {
			if n, ok := expandSingle(ev, calendarID, after, before); ok {
				out = append(out, n)
			}
			continue
		}
		out = append(out, expandRecurring(ev, overridesByUID[ev.UID], calendarID, after, before)...)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func expandSingle(ev parsedEvent, calendarID model.ItemID, after, before time.Time) (model.NormalizedEvent, bool) {
	if !intersectsWindow(ev.Start, ev.End, after, before) {
		return model.NormalizedEvent{}, false
	}
	return model.NormalizedEvent{
		ID:          ev.UID,
		Start:       ev.Start,
		End:         ev.End,
		AllDay:      ev.AllDay,
		Summary:     ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		CalendarID:  calendarID,
	}, true
}

func expandRecurring(ev parsedEvent, overrides []parsedEvent, calendarID model.ItemID, after, before time.Time) []model.NormalizedEvent {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between is inclusive on both ends; trim to [after, before) below.
	occTimes := set.Between(after.In(ev.Start.Location()), before.In(ev.Start.Location()), true)
	if len(occTimes) > maxOccurrencesPerEvent {
		appLog.Warn("ics: recurrence expansion truncated", "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	duration := ev.End.Sub(ev.Start)
	out := make([]model.NormalizedEvent, 0, len(occTimes))

	for _, occStart := range occTimes {
		if occStart.Before(after) || !occStart.Before(before) {
			continue
		}

		var occEnd time.Time
		if ev.AllDay {
			day := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = day
			occEnd = day.Add(24 * time.Hour)
		} else {
			occEnd = occStart.Add(duration)
		}

		recurrence := occStart
		inst := ev
		start, end := occStart, occEnd
		if o, ok := findOverride(overrides, occStart); ok {
			inst = o
			start, end = o.Start, o.End
		}

		out = append(out, model.NormalizedEvent{
			ID:           inst.UID + "/" + recurrence.UTC().Format(time.RFC3339),
			RecurrenceID: &recurrence,
			Start:        start,
			End:          end,
			AllDay:       inst.AllDay,
			Summary:      inst.Summary,
			Location:     inst.Location,
			Description:  inst.Description,
			CalendarID:   calendarID,
		})
	}

	return out
}

// findOverride matches an override's RECURRENCE-ID against a base
// occurrence start with exact time equality.
func findOverride(overrides []parsedEvent, occStart time.Time) (parsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(occStart.Location()).Equal(occStart) {
			return ov, true
		}
	}
	return parsedEvent{}, false
}

// intersectsWindow reports whether [start, end) overlaps [after, before).
// Zero-length events count when their start lies inside the window.
func intersectsWindow(start, end, after, before time.Time) bool {
	if !end.After(start) {
		return !start.Before(after) && start.Before(before)
	}
	return start.Before(before) && end.After(after)
}
