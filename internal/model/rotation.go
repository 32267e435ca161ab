package model

import "time"

// RotationPools holds the sizes of the template pools a rotation cursor
// cycles through. All sizes must be at least 1.
type RotationPools struct {
	Outfits     int
	Locations   int
	Accessories int
}

// Combinations is the size of the full cross product.
func (p RotationPools) Combinations() int64 {
	return int64(p.Outfits) * int64(p.Locations) * int64(p.Accessories)
}

// RotationState is the persisted round-robin cursor for one
// (user, vibe, style) key. The index columns record the most recent draw;
// TotalGenerations counts completed draws and drives the cursor.
type RotationState struct {
	UserID           string    `db:"user_id" json:"user_id"`
	Vibe             string    `db:"vibe" json:"vibe"`
	Style            string    `db:"style" json:"style"`
	OutfitIndex      int       `db:"outfit_index" json:"outfit_index"`
	LocationIndex    int       `db:"location_index" json:"location_index"`
	AccessoryIndex   int       `db:"accessory_index" json:"accessory_index"`
	TotalGenerations int64     `db:"total_generations" json:"total_generations"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// RotationDraw is the template index triple selected for one generation.
type RotationDraw struct {
	OutfitIndex      int   `json:"outfit_index"`
	LocationIndex    int   `json:"location_index"`
	AccessoryIndex   int   `json:"accessory_index"`
	TotalGenerations int64 `json:"total_generations"`
}

// DrawAt returns the index triple for the n-th draw (zero-based) on a key.
// The cursor walks the cross product odometer-style, accessory fastest,
// so all Combinations() triples appear before any repeats. The SQL in the
// rotation repository advances the same sequence atomically server-side.
func (p RotationPools) DrawAt(n int64) RotationDraw {
	c := int64(p.Accessories)
	b := int64(p.Locations)
	a := int64(p.Outfits)
	return RotationDraw{
		AccessoryIndex:   int(n % c),
		LocationIndex:    int((n / c) % b),
		OutfitIndex:      int((n / (b * c)) % a),
		TotalGenerations: n + 1,
	}
}
