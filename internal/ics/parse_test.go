package ics

import (
	"strings"
	"testing"
	"time"

	"uplanner/internal/model"
)

func feed(lines ...string) []byte {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//uplanner//test//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func utcDate(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestParseBetweenSingleEvent(t *testing.T) {
	body := feed(
		"BEGIN:VEVENT",
		"UID:standup-1",
		"DTSTAMP:20250101T000000Z",
		"DTSTART:20250310T130000Z",
		"DTEND:20250310T133000Z",
		"SUMMARY:Standup",
		"LOCATION:Room 2",
		"DESCRIPTION:Daily sync",
		"END:VEVENT",
	)

	events, err := ParseBetween(body, "cal-1", utcDate(2025, 3, 1, 0, 0), utcDate(2025, 4, 1, 0, 0))
	if err != nil {
		t.Fatalf("ParseBetween: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	e := events[0]
	if e.ID != "standup-1" {
		t.Errorf("ID = %q, want standup-1", e.ID)
	}
	if e.RecurrenceID != nil {
		t.Error("single event has RecurrenceID set")
	}
	if e.AllDay {
		t.Error("timed event flagged all-day")
	}
	if e.Summary != "Standup" || e.Location != "Room 2" || e.Description != "Daily sync" {
		t.Errorf("fields = %q/%q/%q", e.Summary, e.Location, e.Description)
	}
	if !e.Start.Equal(utcDate(2025, 3, 10, 13, 0)) || !e.End.Equal(utcDate(2025, 3, 10, 13, 30)) {
		t.Errorf("times = %v .. %v", e.Start, e.End)
	}
	if e.CalendarID != "cal-1" {
		t.Errorf("CalendarID = %q", e.CalendarID)
	}
}

func TestParseBetweenExcludesOutsideWindow(t *testing.T) {
	body := feed(
		"BEGIN:VEVENT",
		"UID:later",
		"DTSTART:20250510T130000Z",
		"DTEND:20250510T140000Z",
		"SUMMARY:Out of window",
		"END:VEVENT",
	)

	events, err := ParseBetween(body, "cal-1", utcDate(2025, 3, 1, 0, 0), utcDate(2025, 4, 1, 0, 0))
	if err != nil {
		t.Fatalf("ParseBetween: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events, want 0", len(events))
	}
}

func TestParseBetweenAllDay(t *testing.T) {
	body := feed(
		"BEGIN:VEVENT",
		"UID:trip-1",
		"DTSTART;VALUE=DATE:20250315",
		"SUMMARY:Trip",
		"END:VEVENT",
	)

	events, err := ParseBetween(body, "cal-1", utcDate(2025, 3, 14, 0, 0), utcDate(2025, 3, 17, 0, 0))
	if err != nil {
		t.Fatalf("ParseBetween: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	e := events[0]
	if !e.AllDay {
		t.Error("date-only event not flagged all-day")
	}
	if got := model.FormatDate(e.Start); got != "2025-03-15" {
		t.Errorf("start date = %s, want 2025-03-15", got)
	}
}

func TestParseBetweenRecurring(t *testing.T) {
	body := feed(
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"DTSTART:20250303T090000Z",
		"DTEND:20250303T093000Z",
		"RRULE:FREQ=WEEKLY;COUNT=10",
		"SUMMARY:Weekly sync",
		"END:VEVENT",
	)

	events, err := ParseBetween(body, "cal-1", utcDate(2025, 3, 1, 0, 0), utcDate(2025, 3, 18, 0, 0))
	if err != nil {
		t.Fatalf("ParseBetween: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (Mar 3, 10, 17)", len(events))
	}

	seen := make(map[string]bool)
	for i, e := range events {
		if e.RecurrenceID == nil {
			t.Errorf("event %d missing RecurrenceID", i)
		}
		if seen[e.ID] {
			t.Errorf("duplicate instance ID %q", e.ID)
		}
		seen[e.ID] = true
		if got := e.End.Sub(e.Start); got != 30*time.Minute {
			t.Errorf("event %d duration = %v, want 30m", i, got)
		}
	}

	wantDates := []model.ISODate{"2025-03-03", "2025-03-10", "2025-03-17"}
	for i, e := range events {
		if got := model.FormatDate(e.Start); got != wantDates[i] {
			t.Errorf("event %d date = %s, want %s", i, got, wantDates[i])
		}
	}
}

func TestParseBetweenRecurringExdate(t *testing.T) {
	body := feed(
		"BEGIN:VEVENT",
		"UID:weekly-2",
		"DTSTART:20250303T090000Z",
		"DTEND:20250303T093000Z",
		"RRULE:FREQ=WEEKLY;COUNT=10",
		"EXDATE:20250310T090000Z",
		"SUMMARY:Weekly sync",
		"END:VEVENT",
	)

	events, err := ParseBetween(body, "cal-1", utcDate(2025, 3, 1, 0, 0), utcDate(2025, 3, 18, 0, 0))
	if err != nil {
		t.Fatalf("ParseBetween: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 after EXDATE", len(events))
	}
	for _, e := range events {
		if model.FormatDate(e.Start) == "2025-03-10" {
			t.Error("excluded instance still present")
		}
	}
}

func TestParseBetweenMalformedBody(t *testing.T) {
	if _, err := ParseBetween([]byte("not a calendar"), "cal-1", utcDate(2025, 3, 1, 0, 0), utcDate(2025, 4, 1, 0, 0)); err == nil {
		t.Error("ParseBetween on garbage = nil error, want error")
	}
	if _, err := ParseBetween(nil, "cal-1", utcDate(2025, 3, 1, 0, 0), utcDate(2025, 4, 1, 0, 0)); err == nil {
		t.Error("ParseBetween on empty body = nil error, want error")
	}
}

func TestParseBetweenInvalidWindow(t *testing.T) {
	if _, err := ParseBetween(feed(), "cal-1", utcDate(2025, 4, 1, 0, 0), utcDate(2025, 3, 1, 0, 0)); err == nil {
		t.Error("inverted window accepted, want error")
	}
}
