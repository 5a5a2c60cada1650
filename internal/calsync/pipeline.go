// Package calsync orchestrates remote calendar synchronization: the
// conditional fetch, change detection against a cached fingerprint, and
// freezing expanded events into the cell grid. Overlapping fetches are
// resolved by a monotonic fetch-generation token plus a URL identity
// check, so a slow obsolete response can never overwrite a newer one.
package calsync

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"uplanner/internal/fetch"
	"uplanner/internal/ics"
	appLog "uplanner/internal/log"
	"uplanner/internal/model"
)

// Fetcher is the transport collaborator. *fetch.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url, etag, lastModified string) (fetch.Response, error)
}

// DataStore is the slice of the host data layer the pipeline touches:
// calendar metadata (URL plus cached fingerprint) and cell writes.
type DataStore interface {
	ItemMeta(key model.ISODate, id model.ItemID) (model.ItemMeta, bool)
	UpdateItemMeta(key model.ISODate, id model.ItemID, u model.ItemMetaUpdate) bool
	SetCell(date model.ISODate, id model.ItemID, text string)
}

// Pipeline runs calendar sync invocations. The status flag is advisory,
// for UI consumption: two rapid triggers can both observe a non-fetching
// status before either sets it. The fetch token is the authoritative
// guard; it is incremented synchronously before any network work, so
// whichever invocation started last wins.
type Pipeline struct {
	store   DataStore
	fetcher Fetcher

	token atomic.Int64

	mu    sync.Mutex
	state model.CalendarState

	notify  func(string)
	onState func(model.CalendarState)

	now func() time.Time

	// Test seam: runs between the advisory status check and the status
	// set, where a second invocation can slip in.
	hookAfterStatusCheck func()
}

func NewPipeline(store DataStore, fetcher Fetcher) *Pipeline {
	return &Pipeline{
		store:   store,
		fetcher: fetcher,
		state:   model.CalendarState{Status: model.StatusIdle},
		now:     time.Now,
	}
}

// SetNoticeFunc registers the callback for user-visible notices (fetch
// errors and the URL-changed race). Stale-fetch aborts never notify.
func (p *Pipeline) SetNoticeFunc(f func(string)) {
	p.notify = f
}

// OnStateChange registers a callback invoked after every state
// transition, replacing any previously registered one.
func (p *Pipeline) OnStateChange(f func(model.CalendarState)) {
	p.onState = f
}

// State returns the current calendar sync state.
func (p *Pipeline) State() model.CalendarState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s model.CalendarState) {
	p.mu.Lock()
	p.state = s
	cb := p.onState
	p.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// resolveStale finalizes a superseded invocation. The status moves to
// unchanged only while it still reads fetching: when a newer invocation
// already finished, its outcome stays, so a stale completion never
// overwrites a fresher one.
func (p *Pipeline) resolveStale() {
	p.mu.Lock()
	var cb func(model.CalendarState)
	var s model.CalendarState
	if p.state.Status == model.StatusFetching {
		p.state = model.CalendarState{Status: model.StatusUnchanged}
		s = p.state
		cb = p.onState
	}
	p.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (p *Pipeline) notice(msg string) {
	if p.notify != nil {
		p.notify(msg)
	}
}

// fail finalizes an invocation at the pipeline boundary: error status
// with the message, a user-visible notice, nothing propagated.
func (p *Pipeline) fail(err error, id model.ItemID) {
	appLog.Error("sync failed", err, "calendar", id)
	p.setState(model.CalendarState{Status: model.StatusError, LastError: err.Error()})
	p.notice("An error occurred while fetching the calendar: " + err.Error())
}

// FetchInGracePeriod runs one sync invocation for the calendar item
// stored under templateKey, freezing events that intersect the
// half-open window [after, before) into the grid.
//
// A trigger while a fetch already appears to be running is dropped, not
// queued. All failures are absorbed here; callers observe the outcome
// through State and the registered callbacks.
func (p *Pipeline) FetchInGracePeriod(ctx context.Context, templateKey model.ISODate, calendarID model.ItemID, after, before time.Time) {
	if p.State().Status == model.StatusFetching {
		appLog.Debug("sync trigger dropped, already fetching", "calendar", calendarID)
		return
	}
	if p.hookAfterStatusCheck != nil {
		p.hookAfterStatusCheck()
	}

	meta, ok := p.store.ItemMeta(templateKey, calendarID)
	if !ok || meta.Kind != model.KindCalendar {
		appLog.Warn("sync trigger for unknown calendar", "template_key", templateKey, "calendar", calendarID)
		return
	}

	p.setState(model.CalendarState{Status: model.StatusFetching})

	// The token must advance before any suspension so a later
	// invocation always observes a higher generation.
	myToken := p.token.Add(1)
	startURL := meta.URL

	resp, fetchErr := p.fetcher.Fetch(ctx, startURL, meta.Cache.ETag, meta.Cache.LastModified)

	// Record the attempt regardless of outcome.
	attemptedAt := p.now()
	p.store.UpdateItemMeta(templateKey, calendarID, model.ItemMetaUpdate{LastFetched: &attemptedAt})

	if fetchErr != nil {
		p.fail(fetchErr, calendarID)
		return
	}

	// Staleness guard: a newer invocation started while this one was in
	// flight. Expected concurrency, not a failure; abort silently.
	if p.token.Load() != myToken {
		appLog.Warn("sync: stale fetch discarded", "calendar", calendarID, "token", myToken)
		p.resolveStale()
		return
	}

	// Identity guard: the URL was edited while the fetch was in flight,
	// so this response no longer describes the configured calendar.
	if cur, ok := p.store.ItemMeta(templateKey, calendarID); !ok || cur.URL != startURL {
		appLog.Warn("sync: calendar URL changed during fetch", "calendar", calendarID)
		p.notice("Calendar URL changed during fetch. Trigger the fetch again to refresh.")
		p.setState(model.CalendarState{Status: model.StatusUnchanged})
		return
	}

	// 304 carries no body; the cached content is current by definition.
	if resp.NotModified {
		p.setState(model.CalendarState{Status: model.StatusUnchanged})
		return
	}

	events, err := ics.ParseBetween(resp.Body, calendarID, after, before)
	if err != nil {
		p.fail(err, calendarID)
		return
	}

	hash := ics.Fingerprint(events)
	if hash == meta.Cache.ContentHash {
		p.setState(model.CalendarState{Status: model.StatusUnchanged})
		return
	}

	p.store.UpdateItemMeta(templateKey, calendarID, model.ItemMetaUpdate{
		ETag:         &resp.ETag,
		LastModified: &resp.LastModified,
		ContentHash:  &hash,
	})

	p.freeze(calendarID, events)

	appLog.Info("sync updated", "calendar", calendarID, "events", len(events))
	p.setState(model.CalendarState{Status: model.StatusUpdated})
}

// freeze renders each date bucket's events into a label string and
// writes it into the grid at (date, calendarID).
func (p *Pipeline) freeze(calendarID model.ItemID, events []model.NormalizedEvent) {
	index, byID := ics.BuildIndex(events)

	dates := make([]model.ISODate, 0, len(index))
	for date := range index {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })

	for _, date := range dates {
		bucket := make([]model.NormalizedEvent, 0, len(index[date]))
		for _, id := range index[date] {
			bucket = append(bucket, byID[id])
		}
		p.store.SetCell(date, calendarID, ics.RenderLabels(bucket))
	}
}
