package repository

import (
	"context"
	"testing"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
)

func TestJobLifecycle(t *testing.T) {
	pool := integrationPool(t)
	repo := NewJobRepo(pool)
	ctx := context.Background()
	userID := uuid.NewString()

	created, err := repo.CreateJob(ctx, &model.GenerationJob{ID: uuid.NewString(), UserID: userID})
	if err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}
	if created.Status != model.JobStatusPending {
		t.Fatalf("new job status = %s, want pending", created.Status)
	}
	if created.ExternalHandle != nil || created.ResultURL != nil {
		t.Fatalf("new job must have no handle or result, got %+v", created)
	}

	if err := repo.SetExternalHandle(ctx, created.ID, "pred-42"); err != nil {
		t.Fatalf("SetExternalHandle returned error: %v", err)
	}

	won, err := repo.MarkSucceeded(ctx, created.ID, "https://cdn.example.com/bucket/results/pred-42.png")
	if err != nil {
		t.Fatalf("MarkSucceeded returned error: %v", err)
	}
	if !won {
		t.Fatal("first terminal transition must win")
	}

	// Terminal rows never transition again.
	won, err = repo.MarkSucceeded(ctx, created.ID, "https://cdn.example.com/other.png")
	if err != nil {
		t.Fatalf("second MarkSucceeded returned error: %v", err)
	}
	if won {
		t.Fatal("second terminal transition must lose")
	}
	won, err = repo.MarkFailed(ctx, created.ID, "late failure")
	if err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}
	if won {
		t.Fatal("failed transition on a succeeded job must lose")
	}

	job, err := repo.GetJobByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetJobByID returned error: %v", err)
	}
	if job.Status != model.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", job.Status)
	}
	if job.ExternalHandle == nil || *job.ExternalHandle != "pred-42" {
		t.Fatalf("handle = %v, want pred-42", job.ExternalHandle)
	}
	if job.ResultURL == nil || *job.ResultURL != "https://cdn.example.com/bucket/results/pred-42.png" {
		t.Fatalf("result URL = %v", job.ResultURL)
	}
}

func TestGetJobByIDMissing(t *testing.T) {
	repo := NewJobRepo(integrationPool(t))
	job, err := repo.GetJobByID(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("GetJobByID returned error: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for missing job, got %+v", job)
	}
}

func TestMarkFailedClearsPendingOnly(t *testing.T) {
	repo := NewJobRepo(integrationPool(t))
	ctx := context.Background()

	created, err := repo.CreateJob(ctx, &model.GenerationJob{ID: uuid.NewString(), UserID: uuid.NewString()})
	if err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}
	won, err := repo.MarkFailed(ctx, created.ID, "NSFW content detected")
	if err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}
	if !won {
		t.Fatal("pending job must accept the failed transition")
	}
	job, _ := repo.GetJobByID(ctx, created.ID)
	if job.Status != model.JobStatusFailed || job.ErrorReason == nil || *job.ErrorReason != "NSFW content detected" {
		t.Fatalf("unexpected job state %+v", job)
	}
}

func TestListJobsByUserID(t *testing.T) {
	repo := NewJobRepo(integrationPool(t))
	ctx := context.Background()
	userID := uuid.NewString()

	for i := 0; i < 3; i++ {
		if _, err := repo.CreateJob(ctx, &model.GenerationJob{ID: uuid.NewString(), UserID: userID}); err != nil {
			t.Fatalf("CreateJob returned error: %v", err)
		}
	}

	jobs, err := repo.ListJobsByUserID(ctx, userID, 2, 0)
	if err != nil {
		t.Fatalf("ListJobsByUserID returned error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs with limit 2, got %d", len(jobs))
	}
	rest, err := repo.ListJobsByUserID(ctx, userID, 2, 2)
	if err != nil {
		t.Fatalf("ListJobsByUserID returned error: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 job at offset 2, got %d", len(rest))
	}

	other, err := repo.ListJobsByUserID(ctx, uuid.NewString(), 10, 0)
	if err != nil {
		t.Fatalf("ListJobsByUserID returned error: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("other user must see no jobs, got %d", len(other))
	}
}

func TestFailStalePending(t *testing.T) {
	pool := integrationPool(t)
	repo := NewJobRepo(pool)
	ctx := context.Background()
	userID := uuid.NewString()

	stale, err := repo.CreateJob(ctx, &model.GenerationJob{ID: uuid.NewString(), UserID: userID})
	if err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}
	fresh, err := repo.CreateJob(ctx, &model.GenerationJob{ID: uuid.NewString(), UserID: userID})
	if err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}

	// Backdate one job past the cutoff.
	if _, err := pool.Exec(ctx,
		`UPDATE generation_jobs SET created_at = NOW() - INTERVAL '2 hours' WHERE id = $1`, stale.ID); err != nil {
		t.Fatalf("backdating job: %v", err)
	}

	count, err := repo.FailStalePending(ctx, time.Now().Add(-time.Hour), "timed out waiting for provider")
	if err != nil {
		t.Fatalf("FailStalePending returned error: %v", err)
	}
	if count < 1 {
		t.Fatalf("expected at least 1 swept job, got %d", count)
	}

	sweptJob, _ := repo.GetJobByID(ctx, stale.ID)
	if sweptJob.Status != model.JobStatusFailed {
		t.Fatalf("stale job status = %s, want failed", sweptJob.Status)
	}
	freshJob, _ := repo.GetJobByID(ctx, fresh.ID)
	if freshJob.Status != model.JobStatusPending {
		t.Fatalf("fresh job status = %s, want pending", freshJob.Status)
	}
}
