package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrJobNotFound covers both genuinely missing jobs and jobs owned by a
// different user, so existence is never leaked to non-owners.
var ErrJobNotFound = errors.New("job_not_found")

// JobRepository persists generation jobs. Terminal transitions are
// conditional on the row still being pending, which is what makes repeated
// and concurrent polls materialize a result exactly once.
type JobRepository interface {
	CreateJob(ctx context.Context, job *model.GenerationJob) (*model.GenerationJob, error)
	// GetJobByID returns nil, nil when no such job exists.
	GetJobByID(ctx context.Context, jobID string) (*model.GenerationJob, error)
	ListJobsByUserID(ctx context.Context, userID string, limit, offset int) ([]model.GenerationJob, error)
	SetExternalHandle(ctx context.Context, jobID, handle string) error
	// MarkSucceeded flips a pending job to succeeded with its result URL.
	// Returns false without error when the job was already terminal, i.e.
	// another poll won the race.
	MarkSucceeded(ctx context.Context, jobID, resultURL string) (bool, error)
	// MarkFailed flips a pending job to failed. Same race semantics.
	MarkFailed(ctx context.Context, jobID, reason string) (bool, error)
	// FailStalePending fails every job still pending since before cutoff
	// and returns how many rows were affected.
	FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

type jobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo creates a new JobRepository.
func NewJobRepo(pool *pgxpool.Pool) JobRepository {
	return &jobRepo{pool: pool}
}

func (r *jobRepo) CreateJob(ctx context.Context, job *model.GenerationJob) (*model.GenerationJob, error) {
	const q = `
		INSERT INTO generation_jobs (id, user_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING id, user_id, external_handle, status, result_url, error_reason, created_at, updated_at
	`
	created, err := scanJob(r.pool.QueryRow(ctx, q, job.ID, job.UserID))
	if err != nil {
		return nil, fmt.Errorf("creating job for user %s: %w", job.UserID, err)
	}
	return created, nil
}

func (r *jobRepo) GetJobByID(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	const q = `
		SELECT id, user_id, external_handle, status, result_url, error_reason, created_at, updated_at
		FROM generation_jobs
		WHERE id = $1
	`
	job, err := scanJob(r.pool.QueryRow(ctx, q, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching job %s: %w", jobID, err)
	}
	return job, nil
}

func (r *jobRepo) ListJobsByUserID(ctx context.Context, userID string, limit, offset int) ([]model.GenerationJob, error) {
	const q = `
		SELECT id, user_id, external_handle, status, result_url, error_reason, created_at, updated_at
		FROM generation_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying jobs for user %s: %w", userID, err)
	}
	defer rows.Close()

	var jobs []model.GenerationJob
	for rows.Next() {
		var j model.GenerationJob
		if err := rows.Scan(&j.ID, &j.UserID, &j.ExternalHandle, &j.Status, &j.ResultURL, &j.ErrorReason, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job row iteration: %w", err)
	}
	return jobs, nil
}

func (r *jobRepo) SetExternalHandle(ctx context.Context, jobID, handle string) error {
	const q = `UPDATE generation_jobs SET external_handle = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, jobID, handle); err != nil {
		return fmt.Errorf("storing handle for job %s: %w", jobID, err)
	}
	return nil
}

func (r *jobRepo) MarkSucceeded(ctx context.Context, jobID, resultURL string) (bool, error) {
	const q = `
		UPDATE generation_jobs
		SET status = 'succeeded', result_url = $2, error_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.pool.Exec(ctx, q, jobID, resultURL)
	if err != nil {
		return false, fmt.Errorf("marking job %s succeeded: %w", jobID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *jobRepo) MarkFailed(ctx context.Context, jobID, reason string) (bool, error) {
	const q = `
		UPDATE generation_jobs
		SET status = 'failed', error_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.pool.Exec(ctx, q, jobID, reason)
	if err != nil {
		return false, fmt.Errorf("marking job %s failed: %w", jobID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *jobRepo) FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	const q = `
		UPDATE generation_jobs
		SET status = 'failed', error_reason = $2, updated_at = NOW()
		WHERE status = 'pending' AND created_at < $1
	`
	tag, err := r.pool.Exec(ctx, q, cutoff, reason)
	if err != nil {
		return 0, fmt.Errorf("failing stale pending jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*model.GenerationJob, error) {
	var j model.GenerationJob
	if err := row.Scan(&j.ID, &j.UserID, &j.ExternalHandle, &j.Status, &j.ResultURL, &j.ErrorReason, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}
