package service

import (
	"context"
	"fmt"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// RotationService draws non-repeating template index triples for payload
// composition. Pool sizes are deploy-time configuration; the cursor itself
// lives in the store and is advanced atomically there.
type RotationService interface {
	NextIndices(ctx context.Context, userID, vibe, style string) (*model.RotationDraw, error)
	Pools() model.RotationPools
}

type rotationService struct {
	repo   repository.RotationRepository
	pools  model.RotationPools
	logger zerolog.Logger
}

// NewRotationService creates a new RotationService.
func NewRotationService(repo repository.RotationRepository, cfg *config.Config, logger zerolog.Logger) RotationService {
	return &rotationService{
		repo: repo,
		pools: model.RotationPools{
			Outfits:     cfg.OutfitPoolSize,
			Locations:   cfg.LocationPoolSize,
			Accessories: cfg.AccessoryPoolSize,
		},
		logger: logger.With().Str("service", "RotationService").Logger(),
	}
}

func (s *rotationService) Pools() model.RotationPools {
	return s.pools
}

func (s *rotationService) NextIndices(ctx context.Context, userID, vibe, style string) (*model.RotationDraw, error) {
	if vibe == "" || style == "" {
		return nil, fmt.Errorf("vibe and style are required for rotation")
	}
	draw, err := s.repo.AdvanceIndices(ctx, userID, vibe, style, s.pools)
	if err != nil {
		return nil, fmt.Errorf("drawing rotation indices: %w", err)
	}
	s.logger.Debug().
		Str("user_id", userID).
		Str("vibe", vibe).
		Str("style", style).
		Int("outfit", draw.OutfitIndex).
		Int("location", draw.LocationIndex).
		Int("accessory", draw.AccessoryIndex).
		Msg("Rotation indices drawn")
	return draw, nil
}
