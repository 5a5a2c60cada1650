// Package refresh periodically re-triggers calendar synchronization on
// a cron schedule. A tick while a fetch is already running is simply
// dropped by the pipeline, so overlapping schedules are harmless.
package refresh

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	appLog "uplanner/internal/log"
	"uplanner/internal/model"
	"uplanner/internal/planner"
)

// Target names one calendar to keep fresh.
type Target struct {
	TemplateKey model.ISODate
	CalendarID  model.ItemID
}

// Scheduler drives periodic fetches for a set of calendars.
type Scheduler struct {
	svc  *planner.Service
	cron *cron.Cron

	graceDays     int
	lookaheadDays int
	loc           *time.Location

	targets func() []Target
}

// NewScheduler builds a scheduler. targets is re-evaluated on every
// tick so calendars added or removed at runtime are picked up. A nil
// loc means time.Local.
func NewScheduler(svc *planner.Service, graceDays, lookaheadDays int, loc *time.Location, targets func() []Target) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		svc:           svc,
		cron:          cron.New(cron.WithLocation(loc)),
		graceDays:     graceDays,
		lookaheadDays: lookaheadDays,
		loc:           loc,
		targets:       targets,
	}
}

// Window returns the [after, before) fetch window anchored at now:
// graceDays into the past through lookaheadDays ahead, aligned to
// midnight in the scheduler's location.
func (s *Scheduler) Window(now time.Time) (after, before time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return day.AddDate(0, 0, -s.graceDays), day.AddDate(0, 0, s.lookaheadDays)
}

// Start registers the cron entry and begins ticking. It returns an
// error only for an invalid cron expression.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() { s.RunOnce(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	appLog.Info("refresh scheduler started", "spec", spec)
	return nil
}

// RunOnce triggers a fetch for every current target.
func (s *Scheduler) RunOnce(ctx context.Context) {
	after, before := s.Window(time.Now().In(s.loc))
	for _, t := range s.targets() {
		s.svc.FetchInGracePeriod(ctx, t.TemplateKey, t.CalendarID, after, before)
	}
}

// Stop halts the cron loop, waiting for a running tick to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	appLog.Info("refresh scheduler stopped")
}
