package repository

import (
	"context"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RotationRepository holds the per-(user, vibe, style) round-robin cursors
// used to vary generation templates.
type RotationRepository interface {
	// AdvanceIndices draws the next template index triple for the key and
	// advances the cursor, as one atomic upsert. The cursor walks the full
	// outfit x location x accessory cross product, accessory fastest, so
	// every combination appears once before any repeats.
	AdvanceIndices(ctx context.Context, userID, vibe, style string, pools model.RotationPools) (*model.RotationDraw, error)
}

type rotationRepo struct {
	pool *pgxpool.Pool
}

// NewRotationRepo creates a new RotationRepository.
func NewRotationRepo(pool *pgxpool.Pool) RotationRepository {
	return &rotationRepo{pool: pool}
}

func (r *rotationRepo) AdvanceIndices(ctx context.Context, userID, vibe, style string, pools model.RotationPools) (*model.RotationDraw, error) {
	if pools.Outfits < 1 || pools.Locations < 1 || pools.Accessories < 1 {
		return nil, fmt.Errorf("rotation pool sizes must be at least 1, got %+v", pools)
	}
	// One statement so two dispatches racing on the same key cannot lose an
	// update. The SET expressions read the pre-update total_generations, so
	// RETURNING yields the indices drawn by this call; a fresh key inserts
	// the zero draw. Mirrors model.RotationPools.DrawAt.
	const q = `
		INSERT INTO rotation_state AS rs
			(user_id, vibe, style, outfit_index, location_index, accessory_index, total_generations, updated_at)
		VALUES ($1, $2, $3, 0, 0, 0, 1, NOW())
		ON CONFLICT (user_id, vibe, style) DO UPDATE SET
			accessory_index   = (rs.total_generations % $6)::int,
			location_index    = ((rs.total_generations / $6) % $5)::int,
			outfit_index      = ((rs.total_generations / ($5::bigint * $6)) % $4)::int,
			total_generations = rs.total_generations + 1,
			updated_at        = NOW()
		RETURNING outfit_index, location_index, accessory_index, total_generations
	`
	var draw model.RotationDraw
	err := r.pool.QueryRow(ctx, q, userID, vibe, style, pools.Outfits, pools.Locations, pools.Accessories).
		Scan(&draw.OutfitIndex, &draw.LocationIndex, &draw.AccessoryIndex, &draw.TotalGenerations)
	if err != nil {
		return nil, fmt.Errorf("advancing rotation for user %s (%s/%s): %w", userID, vibe, style, err)
	}
	return &draw, nil
}
