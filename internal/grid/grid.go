// Package grid stores the per-date, per-item text payloads behind the
// planner surface. A cell exists only once written; reading an absent
// cell yields the empty string.
package grid

import (
	"sync"

	"uplanner/internal/log"
	"uplanner/internal/model"
)

// TemplateSource is the slice of the template resolver the grid needs
// to turn a template key into the date range it governs.
type TemplateSource interface {
	Template(key model.ISODate) (model.Template, bool)
	NextKeyAfter(key model.ISODate) model.ISODate
	RemoveTemplate(key model.ISODate) bool
}

// Store is the cell grid. Mutations are serialized behind one mutex so
// the store stays consistent if the host runs it from multiple
// goroutines.
type Store struct {
	mu    sync.Mutex
	cells map[model.ISODate]map[model.ItemID]string

	templates TemplateSource
	// retentionDays bounds the governed range of the latest template,
	// which otherwise extends forever.
	retentionDays int
}

func NewStore(templates TemplateSource, retentionDays int) *Store {
	if retentionDays <= 0 {
		retentionDays = 180
	}
	return &Store{
		cells:         make(map[model.ISODate]map[model.ItemID]string),
		templates:     templates,
		retentionDays: retentionDays,
	}
}

// SetCell writes the text payload for one item on one date. An empty
// text still creates the cell; use RemoveItem to delete.
func (s *Store) SetCell(date model.ISODate, id model.ItemID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.cells[date]
	if !ok {
		day = make(map[model.ItemID]string)
		s.cells[date] = day
	}
	day[id] = text
}

// Cell returns the payload at (date, id); absent cells read as "".
func (s *Store) Cell(date model.ISODate, id model.ItemID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells[date][id]
}

// RemoveItem deletes every cell belonging to id across all dates,
// pruning dates that become empty.
func (s *Store) RemoveItem(id model.ItemID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for date, day := range s.cells {
		if _, ok := day[id]; !ok {
			continue
		}
		delete(day, id)
		if len(day) == 0 {
			delete(s.cells, date)
		}
	}
}

// governedRange computes the inclusive date span ruled by templateKey:
// from the key to the day before the next revision, or to the retention
// horizon when no later revision exists.
func (s *Store) governedRange(templateKey model.ISODate) (first, last model.ISODate) {
	next := s.templates.NextKeyAfter(templateKey)
	if next == model.NoDate {
		return templateKey, templateKey.AddDays(s.retentionDays)
	}
	return templateKey, next.AddDays(-1)
}

// RemoveItemFromTemplateRange deletes id's cells across every date
// governed by templateKey, pruning dates that become empty. It reports
// false without side effects when templateKey has no template.
//
// This walks the whole governed range, O(days); keep it off hot paths.
func (s *Store) RemoveItemFromTemplateRange(templateKey model.ISODate, id model.ItemID) bool {
	if _, ok := s.templates.Template(templateKey); !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first, last := s.governedRange(templateKey)
	removed := 0
	for _, date := range model.DatesBetween(first, last) {
		day, ok := s.cells[date]
		if !ok {
			continue
		}
		if _, ok := day[id]; !ok {
			continue
		}
		delete(day, id)
		removed++
		if len(day) == 0 {
			delete(s.cells, date)
		}
	}

	log.Debug("grid: pruned item range", "template_key", templateKey, "item", id, "cells_removed", removed)
	return true
}

// RemoveTemplateRange deletes every cell in the range governed by
// templateKey, regardless of item, then removes the template revision
// itself. It reports false without side effects when templateKey has
// no template.
//
// Like RemoveItemFromTemplateRange this is O(days in range).
func (s *Store) RemoveTemplateRange(templateKey model.ISODate) bool {
	if _, ok := s.templates.Template(templateKey); !ok {
		return false
	}

	s.mu.Lock()
	first, last := s.governedRange(templateKey)
	for _, date := range model.DatesBetween(first, last) {
		delete(s.cells, date)
	}
	s.mu.Unlock()

	return s.templates.RemoveTemplate(templateKey)
}

// Export returns a deep copy of the grid for snapshotting.
func (s *Store) Export() map[model.ISODate]map[model.ItemID]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[model.ISODate]map[model.ItemID]string, len(s.cells))
	for date, day := range s.cells {
		copied := make(map[model.ItemID]string, len(day))
		for id, text := range day {
			copied[id] = text
		}
		out[date] = copied
	}
	return out
}

// Restore replaces the grid contents with the given cell map.
func (s *Store) Restore(cells map[model.ISODate]map[model.ItemID]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cells = make(map[model.ISODate]map[model.ItemID]string, len(cells))
	for date, day := range cells {
		copied := make(map[model.ItemID]string, len(day))
		for id, text := range day {
			copied[id] = text
		}
		s.cells[date] = copied
	}
}
