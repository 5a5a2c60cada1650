// Package template implements effective-dated resolution of planner row
// layouts. A template revision stored under date key K governs every day
// from K until the next revision; resolving a date means finding the
// greatest key at or before it.
package template

import (
	"sort"
	"strings"
	"sync"

	"uplanner/internal/model"
)

// Resolver owns the template revisions and their sorted key set. The
// key slice is kept sorted incrementally on every add and remove so
// Resolve stays a plain binary search.
//
// All methods are safe for concurrent use; mutations are serialized
// behind a single mutex since none of them are designed to interleave.
type Resolver struct {
	mu        sync.Mutex
	keys      []model.ISODate // sorted ascending
	templates map[model.ISODate]model.Template
}

func NewResolver() *Resolver {
	return &Resolver{
		templates: make(map[model.ISODate]model.Template),
	}
}

// Resolve returns the greatest template key at or before date, or
// model.NoDate when no revision exists that early. Resolving a date
// exactly equal to a key returns that key.
func (r *Resolver) Resolve(date model.ISODate) model.ISODate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(date)
}

func (r *Resolver) resolveLocked(date model.ISODate) model.ISODate {
	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] > date })
	if idx == 0 {
		return model.NoDate
	}
	return r.keys[idx-1]
}

// Template returns a copy of the revision stored exactly at key.
func (r *Resolver) Template(key model.ISODate) (model.Template, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[key]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// EffectiveTemplate resolves date and returns a copy of the governing
// revision, or an empty template when resolution yields no key.
func (r *Resolver) EffectiveTemplate(date model.ISODate) model.Template {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.resolveLocked(date)
	if key == model.NoDate {
		return model.Template{}
	}
	return r.templates[key].Clone()
}

// SetTemplate stores a revision at key, inserting the key into the
// sorted set if it is new.
func (r *Resolver) SetTemplate(key model.ISODate, t model.Template) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.insertKeyLocked(key)
	r.templates[key] = t.Clone()
}

func (r *Resolver) insertKeyLocked(key model.ISODate) {
	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= key })
	if idx < len(r.keys) && r.keys[idx] == key {
		return
	}
	r.keys = append(r.keys, "")
	copy(r.keys[idx+1:], r.keys[idx:])
	r.keys[idx] = key
}

// RemoveTemplate deletes the revision at key. It reports false when no
// revision exists there.
func (r *Resolver) RemoveTemplate(key model.ISODate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[key]; !ok {
		return false
	}
	delete(r.templates, key)

	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= key })
	if idx < len(r.keys) && r.keys[idx] == key {
		r.keys = append(r.keys[:idx], r.keys[idx+1:]...)
	}
	return true
}

// ItemMeta returns the metadata for id in the revision stored at key.
func (r *Resolver) ItemMeta(key model.ISODate, id model.ItemID) (model.ItemMeta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[key]
	if !ok {
		return model.ItemMeta{}, false
	}
	meta, ok := t[id]
	return meta, ok
}

// UpdateItemMeta applies a partial update to the item stored at key.
// It reports false when key has no revision or the item is absent.
func (r *Resolver) UpdateItemMeta(key model.ISODate, id model.ItemID, u model.ItemMetaUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[key]
	if !ok {
		return false
	}
	meta, ok := t[id]
	if !ok {
		return false
	}
	meta.Apply(u)
	t[id] = meta
	return true
}

// AddToTemplate adds id to the revision at key. When key has no
// revision yet, one is seeded from the template in effect at key, so
// "extend from this day forward" creates the boundary it needs. It
// reports false if the revision already contains id.
func (r *Resolver) AddToTemplate(key model.ISODate, id model.ItemID, meta model.ItemMeta) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[key]
	if !ok {
		effective := r.resolveLocked(key)
		if effective == model.NoDate {
			t = model.Template{}
		} else {
			t = r.templates[effective].Clone()
		}
		r.insertKeyLocked(key)
		r.templates[key] = t
	}
	if _, exists := t[id]; exists {
		return false
	}
	if meta.Order == 0 {
		meta.Order = len(t)
	}
	t[id] = meta
	return true
}

// RemoveFromTemplate removes id from the revision stored exactly at
// key. It reports false when key has no revision or id is absent.
func (r *Resolver) RemoveFromTemplate(key model.ISODate, id model.ItemID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[key]
	if !ok {
		return false
	}
	if _, exists := t[id]; !exists {
		return false
	}
	delete(t, id)
	return true
}

// NextKeyAfter returns the smallest key strictly after key, or
// model.NoDate.
func (r *Resolver) NextKeyAfter(key model.ISODate) model.ISODate {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] > key })
	if idx == len(r.keys) {
		return model.NoDate
	}
	return r.keys[idx]
}

// PrevKeyBefore returns the greatest key strictly before key, or
// model.NoDate.
func (r *Resolver) PrevKeyBefore(key model.ISODate) model.ISODate {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= key })
	if idx == 0 {
		return model.NoDate
	}
	return r.keys[idx-1]
}

// Keys returns a copy of the sorted key set.
func (r *Resolver) Keys() []model.ISODate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ISODate(nil), r.keys...)
}

// KeysOnOrAfter returns every key at or after date, ascending.
func (r *Resolver) KeysOnOrAfter(date model.ISODate) []model.ISODate {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= date })
	return append([]model.ISODate(nil), r.keys[idx:]...)
}

// ItemIDByLabel finds an item in the revision at key by display label,
// case-insensitively. Hosts use this to map user-facing text back to a
// row identifier.
func (r *Resolver) ItemIDByLabel(key model.ISODate, label string) (model.ItemID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[key]
	if !ok {
		return "", false
	}
	for id, meta := range t {
		if strings.EqualFold(meta.Label, label) {
			return id, true
		}
	}
	return "", false
}

// SwapItem reorders id within the revision at key by exchanging Order
// values with the item `distance` positions away (negative moves up).
// It reports false when key has no revision, id is absent, or no item
// sits at the target position.
func (r *Resolver) SwapItem(key model.ISODate, id model.ItemID, distance int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[key]
	if !ok {
		return false
	}
	meta, ok := t[id]
	if !ok {
		return false
	}

	target := meta.Order + distance
	for otherID, other := range t {
		if otherID == id || other.Order != target {
			continue
		}
		other.Order, meta.Order = meta.Order, other.Order
		t[otherID] = other
		t[id] = meta
		return true
	}
	return false
}

// IsItemReferenced reports whether any revision still contains id.
// Callers use it for best-effort pruning of dangling metadata; absence
// of a reference is reliable, presence may be transient.
func (r *Resolver) IsItemReferenced(id model.ItemID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.templates {
		if _, ok := t[id]; ok {
			return true
		}
	}
	return false
}

// Export returns a deep copy of all revisions for snapshotting.
func (r *Resolver) Export() map[model.ISODate]model.Template {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[model.ISODate]model.Template, len(r.templates))
	for key, t := range r.templates {
		out[key] = t.Clone()
	}
	return out
}

// Restore replaces all revisions with the given set, rebuilding the
// sorted key slice.
func (r *Resolver) Restore(templates map[model.ISODate]model.Template) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.templates = make(map[model.ISODate]model.Template, len(templates))
	r.keys = r.keys[:0]
	for key, t := range templates {
		r.templates[key] = t.Clone()
		r.keys = append(r.keys, key)
	}
	sort.Slice(r.keys, func(i, j int) bool { return r.keys[i] < r.keys[j] })
}
