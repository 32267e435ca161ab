package service

import (
	"context"
	"errors"
	"testing"

	"app/internal/config"
	"app/internal/model"

	"github.com/rs/zerolog"
)

type stubRotationRepo struct {
	draw  model.RotationDraw
	err   error
	calls int
}

func (r *stubRotationRepo) AdvanceIndices(_ context.Context, _, _, _ string, _ model.RotationPools) (*model.RotationDraw, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	cp := r.draw
	return &cp, nil
}

func rotationTestConfig() *config.Config {
	return &config.Config{OutfitPoolSize: 20, LocationPoolSize: 15, AccessoryPoolSize: 10}
}

func TestNextIndicesRequiresVibeAndStyle(t *testing.T) {
	repo := &stubRotationRepo{}
	svc := NewRotationService(repo, rotationTestConfig(), zerolog.Nop())

	if _, err := svc.NextIndices(context.Background(), "user-a", "", "editorial"); err == nil {
		t.Fatal("empty vibe must be rejected")
	}
	if _, err := svc.NextIndices(context.Background(), "user-a", "summer", ""); err == nil {
		t.Fatal("empty style must be rejected")
	}
	if repo.calls != 0 {
		t.Fatal("invalid input must not advance the cursor")
	}
}

func TestNextIndicesReturnsRepoDraw(t *testing.T) {
	repo := &stubRotationRepo{draw: model.RotationDraw{OutfitIndex: 3, LocationIndex: 7, AccessoryIndex: 9, TotalGenerations: 1140}}
	svc := NewRotationService(repo, rotationTestConfig(), zerolog.Nop())

	draw, err := svc.NextIndices(context.Background(), "user-a", "summer", "editorial")
	if err != nil {
		t.Fatalf("NextIndices returned error: %v", err)
	}
	if draw.OutfitIndex != 3 || draw.LocationIndex != 7 || draw.AccessoryIndex != 9 {
		t.Fatalf("unexpected draw %+v", draw)
	}
}

func TestNextIndicesPropagatesRepoError(t *testing.T) {
	repo := &stubRotationRepo{err: errors.New("connection reset")}
	svc := NewRotationService(repo, rotationTestConfig(), zerolog.Nop())

	if _, err := svc.NextIndices(context.Background(), "user-a", "summer", "editorial"); err == nil {
		t.Fatal("repo error must propagate")
	}
}

func TestPoolsComeFromConfig(t *testing.T) {
	svc := NewRotationService(&stubRotationRepo{}, rotationTestConfig(), zerolog.Nop())
	pools := svc.Pools()
	if pools.Outfits != 20 || pools.Locations != 15 || pools.Accessories != 10 {
		t.Fatalf("unexpected pools %+v", pools)
	}
	if pools.Combinations() != 3000 {
		t.Fatalf("expected 3000 combinations, got %d", pools.Combinations())
	}
}
