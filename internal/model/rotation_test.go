package model

import (
	"fmt"
	"testing"
)

func TestDrawAtCoversFullCrossProduct(t *testing.T) {
	pools := RotationPools{Outfits: 2, Locations: 2, Accessories: 2}
	total := pools.Combinations()
	if total != 8 {
		t.Fatalf("expected 8 combinations, got %d", total)
	}

	seen := make(map[string]int64)
	for n := int64(0); n < total; n++ {
		d := pools.DrawAt(n)
		key := fmt.Sprintf("%d/%d/%d", d.OutfitIndex, d.LocationIndex, d.AccessoryIndex)
		if prev, ok := seen[key]; ok {
			t.Fatalf("draw %d repeats combination %s first seen at draw %d", n, key, prev)
		}
		seen[key] = n
	}
	if int64(len(seen)) != total {
		t.Fatalf("expected %d distinct combinations, got %d", total, len(seen))
	}

	// The draw after a full cycle repeats the first one.
	first := pools.DrawAt(0)
	wrapped := pools.DrawAt(total)
	if wrapped.OutfitIndex != first.OutfitIndex ||
		wrapped.LocationIndex != first.LocationIndex ||
		wrapped.AccessoryIndex != first.AccessoryIndex {
		t.Fatalf("draw %d should repeat draw 0: got %+v, want %+v", total, wrapped, first)
	}
}

func TestDrawAtNonCoprimePools(t *testing.T) {
	// Equal pool sizes are the degenerate case for naive per-index
	// advancement; the odometer must still cover everything.
	pools := RotationPools{Outfits: 3, Locations: 3, Accessories: 3}
	seen := make(map[RotationDraw]bool)
	for n := int64(0); n < pools.Combinations(); n++ {
		d := pools.DrawAt(n)
		d.TotalGenerations = 0 // compare indices only
		seen[d] = true
	}
	if int64(len(seen)) != pools.Combinations() {
		t.Fatalf("expected %d distinct combinations, got %d", pools.Combinations(), len(seen))
	}
}

func TestDrawAtIndicesStayInRange(t *testing.T) {
	pools := RotationPools{Outfits: 4, Locations: 2, Accessories: 5}
	for n := int64(0); n < 3*pools.Combinations(); n++ {
		d := pools.DrawAt(n)
		if d.OutfitIndex < 0 || d.OutfitIndex >= pools.Outfits {
			t.Fatalf("draw %d outfit index %d out of range", n, d.OutfitIndex)
		}
		if d.LocationIndex < 0 || d.LocationIndex >= pools.Locations {
			t.Fatalf("draw %d location index %d out of range", n, d.LocationIndex)
		}
		if d.AccessoryIndex < 0 || d.AccessoryIndex >= pools.Accessories {
			t.Fatalf("draw %d accessory index %d out of range", n, d.AccessoryIndex)
		}
	}
}

func TestDrawAtSinglePoolSizes(t *testing.T) {
	pools := RotationPools{Outfits: 1, Locations: 1, Accessories: 1}
	for n := int64(0); n < 3; n++ {
		d := pools.DrawAt(n)
		if d.OutfitIndex != 0 || d.LocationIndex != 0 || d.AccessoryIndex != 0 {
			t.Fatalf("pool size 1 must always draw 0, got %+v at draw %d", d, n)
		}
	}
}
