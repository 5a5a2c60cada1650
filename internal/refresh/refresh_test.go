package refresh

import (
	"context"
	"strings"
	"testing"
	"time"

	"uplanner/internal/fetch"
	"uplanner/internal/model"
	"uplanner/internal/planner"
)

type stubFetcher struct {
	calls int
	body  []byte
}

func (s *stubFetcher) Fetch(_ context.Context, _, _, _ string) (fetch.Response, error) {
	s.calls++
	return fetch.Response{StatusCode: 200, Body: s.body}, nil
}

func TestWindowAnchorsAtMidnight(t *testing.T) {
	s := NewScheduler(nil, 7, 60, time.UTC, nil)

	now := time.Date(2025, 3, 10, 15, 42, 11, 0, time.UTC)
	after, before := s.Window(now)

	if want := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC); !after.Equal(want) {
		t.Errorf("after = %v, want %v", after, want)
	}
	if want := time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC); !before.Equal(want) {
		t.Errorf("before = %v, want %v", before, want)
	}
}

func TestWindowRespectsLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := NewScheduler(nil, 1, 1, loc, nil)

	// 23:30 UTC on Mar 10 is already Mar 11 in Berlin.
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC).In(loc)
	after, _ := s.Window(now)

	if want := time.Date(2025, 3, 10, 0, 0, 0, 0, loc); !after.Equal(want) {
		t.Errorf("after = %v, want %v", after, want)
	}
}

func TestRunOnceFetchesEveryTarget(t *testing.T) {
	fetcher := &stubFetcher{body: []byte(minimalFeed())}
	svc := planner.NewService(180, fetcher)

	id := svc.NewItem("2025-01-01", model.KindCalendar, "Work", "", "https://example.com/work.ics")

	s := NewScheduler(svc, 7, 60, time.UTC, func() []Target {
		return []Target{{TemplateKey: "2025-01-01", CalendarID: id}}
	})
	s.RunOnce(context.Background())

	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil, 7, 60, time.UTC, func() []Target { return nil })
	if err := s.Start(context.Background(), "not a cron spec"); err == nil {
		t.Error("Start accepted invalid cron expression")
	}
}

func minimalFeed() string {
	return strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//uplanner//test//EN",
		"END:VCALENDAR",
	}, "\r\n") + "\r\n"
}
