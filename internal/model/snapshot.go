package model

import "encoding/json"

// SnapshotVersion is the current persisted-shape version. Version 4
// matches the first layout that keyed item metadata by ItemID.
const SnapshotVersion = 4

// PlannerData is the in-memory state this core owns: the cell grid and
// the effective-dated template revisions.
type PlannerData struct {
	DayData   map[ISODate]map[ItemID]string `json:"dayData"`
	Templates map[ISODate]Template          `json:"templates"`
}

// Snapshot is the durable shape the host persists. The core fills in
// Planner; Settings is host-owned and passed through opaquely.
type Snapshot struct {
	Version  int             `json:"version"`
	Settings json.RawMessage `json:"settings,omitempty"`
	Planner  PlannerData     `json:"planner"`
}
