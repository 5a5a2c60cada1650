package template

import (
	"testing"

	"uplanner/internal/model"
)

func newTestResolver(keys ...model.ISODate) *Resolver {
	r := NewResolver()
	for _, k := range keys {
		r.SetTemplate(k, model.Template{})
	}
	return r
}

func TestResolveVersionedLookup(t *testing.T) {
	r := newTestResolver("2025-01-01", "2025-03-01")

	if got := r.Resolve("2025-02-15"); got != "2025-01-01" {
		t.Errorf("Resolve(2025-02-15) = %q, want 2025-01-01", got)
	}
}

func TestResolveExactKey(t *testing.T) {
	r := newTestResolver("2025-01-01", "2025-03-01")

	if got := r.Resolve("2025-03-01"); got != "2025-03-01" {
		t.Errorf("Resolve(2025-03-01) = %q, want 2025-03-01", got)
	}
}

func TestResolveBeforeEarliestKey(t *testing.T) {
	r := newTestResolver("2025-01-01")

	if got := r.Resolve("2024-12-31"); got != model.NoDate {
		t.Errorf("Resolve(2024-12-31) = %q, want NoDate", got)
	}
}

func TestResolveEmpty(t *testing.T) {
	r := NewResolver()

	if got := r.Resolve("2025-06-01"); got != model.NoDate {
		t.Errorf("Resolve on empty resolver = %q, want NoDate", got)
	}
}

func TestResolveMonotonicBetweenKeys(t *testing.T) {
	r := newTestResolver("2025-01-01", "2025-04-01")

	// No key in (d1, d2] means resolve(d1) == resolve(d2).
	dates := []model.ISODate{"2025-01-01", "2025-01-15", "2025-02-28", "2025-03-31"}
	for _, d := range dates {
		if got := r.Resolve(d); got != "2025-01-01" {
			t.Errorf("Resolve(%s) = %q, want 2025-01-01", d, got)
		}
	}
}

func TestResolveAfterRemoval(t *testing.T) {
	r := newTestResolver("2025-01-01", "2025-03-01", "2025-06-01")

	if !r.RemoveTemplate("2025-03-01") {
		t.Fatal("RemoveTemplate(2025-03-01) = false, want true")
	}
	if got := r.Resolve("2025-04-15"); got != "2025-01-01" {
		t.Errorf("Resolve(2025-04-15) after removal = %q, want 2025-01-01", got)
	}
	if r.RemoveTemplate("2025-03-01") {
		t.Error("second RemoveTemplate(2025-03-01) = true, want false")
	}
}

func TestNextAndPrevKeys(t *testing.T) {
	r := newTestResolver("2025-01-01", "2025-03-01", "2025-06-01")

	tests := []struct {
		name string
		got  model.ISODate
		want model.ISODate
	}{
		{"next after middle", r.NextKeyAfter("2025-03-01"), "2025-06-01"},
		{"next after last", r.NextKeyAfter("2025-06-01"), model.NoDate},
		{"next after non-key", r.NextKeyAfter("2025-02-10"), "2025-03-01"},
		{"prev before middle", r.PrevKeyBefore("2025-03-01"), "2025-01-01"},
		{"prev before first", r.PrevKeyBefore("2025-01-01"), model.NoDate},
		{"prev before non-key", r.PrevKeyBefore("2025-04-10"), "2025-03-01"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestItemMetaLifecycle(t *testing.T) {
	r := NewResolver()
	r.SetTemplate("2025-01-01", model.Template{})

	meta := model.ItemMeta{Kind: model.KindAction, Label: "Fitness", Order: 0}
	if !r.AddToTemplate("2025-01-01", "ai-1", meta) {
		t.Fatal("AddToTemplate = false, want true")
	}
	if r.AddToTemplate("2025-01-01", "ai-1", meta) {
		t.Error("duplicate AddToTemplate = true, want false")
	}

	label := "Fitness+"
	if !r.UpdateItemMeta("2025-01-01", "ai-1", model.ItemMetaUpdate{Label: &label}) {
		t.Fatal("UpdateItemMeta = false, want true")
	}
	got, ok := r.ItemMeta("2025-01-01", "ai-1")
	if !ok || got.Label != "Fitness+" {
		t.Errorf("ItemMeta after update = %+v (ok=%v), want Label Fitness+", got, ok)
	}

	if r.UpdateItemMeta("2024-01-01", "ai-1", model.ItemMetaUpdate{Label: &label}) {
		t.Error("UpdateItemMeta on missing key = true, want false")
	}

	if !r.RemoveFromTemplate("2025-01-01", "ai-1") {
		t.Fatal("RemoveFromTemplate = false, want true")
	}
	if r.RemoveFromTemplate("2025-01-01", "ai-1") {
		t.Error("second RemoveFromTemplate = true, want false")
	}
}

func TestAddToTemplateSeedsFromEffective(t *testing.T) {
	r := NewResolver()
	r.SetTemplate("2025-01-01", model.Template{
		"ai-1": {Kind: model.KindAction, Label: "Fitness", Order: 0},
	})

	// Adding at a date with no revision copies the governing template
	// so earlier rows survive past the new boundary.
	if !r.AddToTemplate("2025-02-01", "ai-2", model.ItemMeta{Kind: model.KindAction, Label: "Reading"}) {
		t.Fatal("AddToTemplate at new key = false, want true")
	}

	tmpl, ok := r.Template("2025-02-01")
	if !ok {
		t.Fatal("expected revision at 2025-02-01")
	}
	if _, ok := tmpl["ai-1"]; !ok {
		t.Error("seeded revision lost ai-1 from the governing template")
	}
	if _, ok := tmpl["ai-2"]; !ok {
		t.Error("seeded revision missing newly added ai-2")
	}
}

func TestItemIDByLabel(t *testing.T) {
	r := NewResolver()
	r.SetTemplate("2025-01-01", model.Template{
		"ai-1": {Kind: model.KindAction, Label: "Fitness", Order: 0},
	})

	id, ok := r.ItemIDByLabel("2025-01-01", "fItNeSs")
	if !ok || id != "ai-1" {
		t.Errorf("ItemIDByLabel = %q (ok=%v), want ai-1", id, ok)
	}
	if _, ok := r.ItemIDByLabel("2025-01-01", "missing"); ok {
		t.Error("ItemIDByLabel for unknown label = true, want false")
	}
}

func TestSwapItem(t *testing.T) {
	r := NewResolver()
	r.SetTemplate("2025-01-01", model.Template{
		"ai-1": {Kind: model.KindAction, Label: "A", Order: 0},
		"ai-2": {Kind: model.KindAction, Label: "B", Order: 1},
		"ai-3": {Kind: model.KindAction, Label: "C", Order: 2},
	})

	if !r.SwapItem("2025-01-01", "ai-1", 1) {
		t.Fatal("SwapItem down = false, want true")
	}
	a, _ := r.ItemMeta("2025-01-01", "ai-1")
	b, _ := r.ItemMeta("2025-01-01", "ai-2")
	if a.Order != 1 || b.Order != 0 {
		t.Errorf("orders after swap: ai-1=%d ai-2=%d, want 1 and 0", a.Order, b.Order)
	}

	// ai-3 sits at order 2; no row at order 3.
	if r.SwapItem("2025-01-01", "ai-3", 1) {
		t.Error("SwapItem beyond end = true, want false")
	}
	if r.SwapItem("2025-01-01", "missing", 1) {
		t.Error("SwapItem for unknown item = true, want false")
	}
}

func TestIsItemReferenced(t *testing.T) {
	r := NewResolver()
	r.SetTemplate("2025-01-01", model.Template{
		"ai-1": {Kind: model.KindAction, Label: "A", Order: 0},
	})
	r.SetTemplate("2025-03-01", model.Template{})

	if !r.IsItemReferenced("ai-1") {
		t.Error("IsItemReferenced(ai-1) = false, want true")
	}
	r.RemoveFromTemplate("2025-01-01", "ai-1")
	if r.IsItemReferenced("ai-1") {
		t.Error("IsItemReferenced after removal = true, want false")
	}
}

func TestExportRestoreRoundTrip(t *testing.T) {
	r := NewResolver()
	r.SetTemplate("2025-01-01", model.Template{
		"ai-1": {Kind: model.KindAction, Label: "A", Order: 0},
	})
	r.SetTemplate("2025-03-01", model.Template{})

	other := NewResolver()
	other.Restore(r.Export())

	if got := other.Resolve("2025-02-01"); got != "2025-01-01" {
		t.Errorf("Resolve after restore = %q, want 2025-01-01", got)
	}
	if _, ok := other.ItemMeta("2025-01-01", "ai-1"); !ok {
		t.Error("item missing after restore")
	}
}
