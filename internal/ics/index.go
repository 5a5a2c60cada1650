package ics

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"

	"uplanner/internal/model"
)

// BuildIndex buckets event IDs by the event's start date and builds a
// direct ID lookup table. Both are O(n).
func BuildIndex(events []model.NormalizedEvent) (map[model.ISODate][]string, map[string]model.NormalizedEvent) {
	index := make(map[model.ISODate][]string)
	byID := make(map[string]model.NormalizedEvent, len(events))

	for _, e := range events {
		date := model.FormatDate(e.Start)
		index[date] = append(index[date], e.ID)
		byID[e.ID] = e
	}
	return index, byID
}

// Fingerprint hashes the serialization-stable representation of the
// normalized events. The events are sorted before hashing so feed-side
// reordering does not change the result; volatile feed fields never
// reach NormalizedEvent, so semantically identical feeds hash
// identically across fetches.
func Fingerprint(events []model.NormalizedEvent) string {
	sorted := append([]model.NormalizedEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].ID < sorted[j].ID
	})

	data, err := json.Marshal(sorted)
	if err != nil {
		// Marshal of plain structs cannot fail; guard anyway.
		return ""
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
