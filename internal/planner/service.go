// Package planner wires the template resolver, cell grid, and calendar
// sync pipeline into the single service the host embeds. All mutation
// flows through here so the host can observe changes through explicit
// callbacks instead of ambient shared state.
package planner

import (
	"context"
	"sync"
	"time"

	"uplanner/internal/calsync"
	"uplanner/internal/grid"
	appLog "uplanner/internal/log"
	"uplanner/internal/model"
	"uplanner/internal/template"
)

// ID prefixes by item kind, kept stable because they end up in
// persisted snapshots.
const (
	actionIDPrefix   = "ai-"
	calendarIDPrefix = "cal-"
)

// Service owns the planner core state.
type Service struct {
	resolver *template.Resolver
	grid     *grid.Store
	pipeline *calsync.Pipeline

	mu       sync.Mutex
	onChange []func()
}

// NewService builds a service with the given retention horizon (days a
// trailing template governs when no later revision exists) and the
// transport used for calendar fetches.
func NewService(retentionDays int, fetcher calsync.Fetcher) *Service {
	s := &Service{}
	s.resolver = template.NewResolver()
	s.grid = grid.NewStore(s.resolver, retentionDays)
	s.pipeline = calsync.NewPipeline(s, fetcher)
	return s
}

// OnChange registers a callback invoked after every data mutation. The
// host hangs its debounced save off this.
func (s *Service) OnChange(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, f)
}

// SetNoticeFunc registers the user-visible notice callback, forwarded
// to the sync pipeline.
func (s *Service) SetNoticeFunc(f func(string)) {
	s.pipeline.SetNoticeFunc(f)
}

// OnSyncStateChange registers a callback for calendar sync state
// transitions.
func (s *Service) OnSyncStateChange(f func(model.CalendarState)) {
	s.pipeline.OnStateChange(f)
}

func (s *Service) changed() {
	s.mu.Lock()
	cbs := append([]func(){}, s.onChange...)
	s.mu.Unlock()
	for _, f := range cbs {
		f()
	}
}

// ResolveTemplateDate returns the template key in effect on date, or
// model.NoDate when the date precedes every revision.
func (s *Service) ResolveTemplateDate(date model.ISODate) model.ISODate {
	return s.resolver.Resolve(date)
}

// EffectiveTemplate returns a copy of the template governing date.
func (s *Service) EffectiveTemplate(date model.ISODate) model.Template {
	return s.resolver.EffectiveTemplate(date)
}

// NewItem creates a row effective from date: the template in effect is
// copied, the row appended, and the copy stored as a new revision at
// date. The URL is only meaningful for calendar rows.
func (s *Service) NewItem(date model.ISODate, kind model.ItemKind, label, color, url string) model.ItemID {
	prefix := actionIDPrefix
	if kind == model.KindCalendar {
		prefix = calendarIDPrefix
	}
	id := model.NewItemID(prefix)

	tmpl := s.resolver.EffectiveTemplate(date)
	meta := model.ItemMeta{
		Kind:  kind,
		Label: label,
		Color: color,
		Order: len(tmpl),
	}
	if kind == model.KindCalendar {
		meta.URL = url
	}
	tmpl[id] = meta
	s.resolver.SetTemplate(date, tmpl)

	appLog.Info("planner: item created", "id", id, "kind", kind, "effective_from", date)
	s.changed()
	return id
}

// RemoveItem drops id from the revision at templateKey and prunes its
// cells across the governed date range. When no revision references the
// item anymore its remaining cells are removed everywhere; that cleanup
// is best-effort, not a strict invariant.
func (s *Service) RemoveItem(templateKey model.ISODate, id model.ItemID) bool {
	if !s.resolver.RemoveFromTemplate(templateKey, id) {
		return false
	}
	s.grid.RemoveItemFromTemplateRange(templateKey, id)

	if !s.resolver.IsItemReferenced(id) {
		s.grid.RemoveItem(id)
		appLog.Debug("planner: dangling item pruned", "id", id)
	}

	s.changed()
	return true
}

// RemoveTemplate deletes the revision at key together with every cell
// in the date range it governed.
func (s *Service) RemoveTemplate(key model.ISODate) bool {
	if !s.grid.RemoveTemplateRange(key) {
		return false
	}
	s.changed()
	return true
}

// SwapItem reorders id within the revision at templateKey by swapping
// display positions with the row `distance` places away.
func (s *Service) SwapItem(templateKey model.ISODate, id model.ItemID, distance int) bool {
	if !s.resolver.SwapItem(templateKey, id, distance) {
		return false
	}
	s.changed()
	return true
}

// ItemFromLabel looks up a row in the revision at key by display label,
// case-insensitively.
func (s *Service) ItemFromLabel(key model.ISODate, label string) (model.ItemID, bool) {
	return s.resolver.ItemIDByLabel(key, label)
}

// ItemMeta implements calsync.DataStore.
func (s *Service) ItemMeta(key model.ISODate, id model.ItemID) (model.ItemMeta, bool) {
	return s.resolver.ItemMeta(key, id)
}

// UpdateItemMeta implements calsync.DataStore and the item-edit surface.
func (s *Service) UpdateItemMeta(key model.ISODate, id model.ItemID, u model.ItemMetaUpdate) bool {
	if !s.resolver.UpdateItemMeta(key, id, u) {
		return false
	}
	s.changed()
	return true
}

// SetCell implements calsync.DataStore and direct cell edits.
func (s *Service) SetCell(date model.ISODate, id model.ItemID, text string) {
	s.grid.SetCell(date, id, text)
	s.changed()
}

// Cell returns the text at (date, id); absent cells read as "".
func (s *Service) Cell(date model.ISODate, id model.ItemID) string {
	return s.grid.Cell(date, id)
}

// FetchInGracePeriod triggers one calendar sync for the window
// [after, before). Outcomes surface via CalendarState and callbacks.
func (s *Service) FetchInGracePeriod(ctx context.Context, templateKey model.ISODate, calendarID model.ItemID, after, before time.Time) {
	s.pipeline.FetchInGracePeriod(ctx, templateKey, calendarID, after, before)
}

// CalendarState returns the sync pipeline's current state.
func (s *Service) CalendarState() model.CalendarState {
	return s.pipeline.State()
}

// Snapshot exports the persisted shape. Settings are host-owned and
// left empty here.
func (s *Service) Snapshot() model.Snapshot {
	return model.Snapshot{
		Version: model.SnapshotVersion,
		Planner: model.PlannerData{
			DayData:   s.grid.Export(),
			Templates: s.resolver.Export(),
		},
	}
}

// Restore replaces the in-memory state with a previously exported
// snapshot. Sync state and the fetch token are ephemeral and not part
// of the snapshot.
func (s *Service) Restore(snap model.Snapshot) {
	s.resolver.Restore(snap.Planner.Templates)
	s.grid.Restore(snap.Planner.DayData)
	appLog.Info("planner: snapshot restored",
		"version", snap.Version,
		"templates", len(snap.Planner.Templates),
		"days", len(snap.Planner.DayData),
	)
}
