package ics

import (
	"fmt"
	"sort"
	"strings"

	"uplanner/internal/model"
)

// RenderLabels renders a day's events into the text frozen into a grid
// cell, one line per event, ordered by start time. All-day events show
// the summary alone; timed events append the start time and duration:
//
//	Trip
//	Standup @ 13:00 (30 min)
//	Workshop @ 14:00 (2 hr)
func RenderLabels(events []model.NormalizedEvent) string {
	sorted := append([]model.NormalizedEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].AllDay != sorted[j].AllDay {
			return sorted[i].AllDay
		}
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].Summary < sorted[j].Summary
	})

	lines := make([]string, 0, len(sorted))
	for _, e := range sorted {
		if e.AllDay {
			lines = append(lines, e.Summary)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s @ %s (%s)", e.Summary, e.Start.Format("15:04"), durationString(e)))
	}
	return strings.Join(lines, "\n")
}

// durationString renders the event length in minutes, re-expressed in
// hours when evenly divisible by 60.
func durationString(e model.NormalizedEvent) string {
	mins := int(e.End.Sub(e.Start).Minutes())
	unit := "min"
	if mins != 0 && mins%60 == 0 {
		mins /= 60
		unit = "hr"
	}
	return fmt.Sprintf("%d %s", mins, unit)
}
