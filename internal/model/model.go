package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ItemID is the stable identifier of a planner row: either a recurring
// action item or a remote calendar subscription.
type ItemID string

// ItemKind discriminates the two row variants. Every site that treats
// actions and calendars differently must switch on this field.
type ItemKind string

const (
	KindAction   ItemKind = "action"
	KindCalendar ItemKind = "calendar"
)

// CalendarCache holds the change-detection fingerprint for one calendar
// subscription. It is the only part of ItemMeta the sync pipeline writes.
type CalendarCache struct {
	ETag         string    `json:"etag,omitempty" yaml:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	LastFetched  time.Time `json:"last_fetched,omitzero" yaml:"last_fetched,omitempty"`
}

// ItemMeta describes one row of the planner grid. Kind selects the
// variant: calendar rows additionally carry URL and Cache, action rows
// leave them zero.
type ItemMeta struct {
	Kind  ItemKind `json:"kind" yaml:"kind"`
	Label string   `json:"label" yaml:"label"`
	Color string   `json:"color,omitempty" yaml:"color,omitempty"`
	// Order fixes the row's display position within its template.
	Order int `json:"order" yaml:"order"`

	URL   string        `json:"url,omitempty" yaml:"url,omitempty"`
	Cache CalendarCache `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// ItemMetaUpdate is a partial update applied to an ItemMeta. Nil fields
// are left untouched. The calendar cache sub-fields are individually
// addressable so the sync pipeline can record a fetch attempt without
// clobbering the rest of the fingerprint.
type ItemMetaUpdate struct {
	Label *string
	Color *string
	Order *int
	URL   *string

	ETag         *string
	LastModified *string
	ContentHash  *string
	LastFetched  *time.Time
}

// Apply merges the update into m.
func (m *ItemMeta) Apply(u ItemMetaUpdate) {
	if u.Label != nil {
		m.Label = *u.Label
	}
	if u.Color != nil {
		m.Color = *u.Color
	}
	if u.Order != nil {
		m.Order = *u.Order
	}
	if u.URL != nil {
		m.URL = *u.URL
	}
	if u.ETag != nil {
		m.Cache.ETag = *u.ETag
	}
	if u.LastModified != nil {
		m.Cache.LastModified = *u.LastModified
	}
	if u.ContentHash != nil {
		m.Cache.ContentHash = *u.ContentHash
	}
	if u.LastFetched != nil {
		m.Cache.LastFetched = *u.LastFetched
	}
}

// Template is the set of rows in effect from some date forward until
// superseded by a later revision.
type Template map[ItemID]ItemMeta

// Clone returns a copy of the template.
func (t Template) Clone() Template {
	out := make(Template, len(t))
	for id, meta := range t {
		out[id] = meta
	}
	return out
}

// NewItemID returns a fresh random identifier with the given prefix,
// e.g. "ai-3f62c09a1b4d8e07".
func NewItemID(prefix string) ItemID {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand should never fail; keep IDs unique enough to
		// proceed anyway.
		return ItemID(prefix + time.Now().UTC().Format("20060102150405.000000000"))
	}
	return ItemID(prefix + hex.EncodeToString(buf[:]))
}

// CalendarStatus is the sync pipeline's advisory state flag.
type CalendarStatus string

const (
	StatusIdle      CalendarStatus = "idle"
	StatusFetching  CalendarStatus = "fetching"
	StatusUnchanged CalendarStatus = "unchanged"
	StatusUpdated   CalendarStatus = "updated"
	StatusError     CalendarStatus = "error"
)

// CalendarState pairs the status flag with the last pipeline error, if
// any. It is ephemeral and reset to idle at process start.
type CalendarState struct {
	Status    CalendarStatus `json:"status"`
	LastError string         `json:"last_error,omitempty"`
}

// NormalizedEvent is the uniform representation of one calendar event
// instance after parsing and recurrence expansion. Volatile per-fetch
// feed fields (DTSTAMP and friends) never enter this type, so hashing a
// slice of NormalizedEvents yields a stable content fingerprint.
type NormalizedEvent struct {
	// ID uniquely identifies the instance. Single events use the feed
	// UID as-is; expanded recurrence instances suffix the occurrence
	// start so two instances of one series never collide.
	ID string `json:"id"`
	// RecurrenceID is the occurrence start within the base series for
	// expanded instances, nil for single events.
	RecurrenceID *time.Time `json:"recurrence_id,omitempty"`

	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`

	Summary     string `json:"summary"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`

	CalendarID ItemID `json:"calendar_id"`
}
