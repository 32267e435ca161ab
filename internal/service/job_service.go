package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"app/internal/clients/prediction"
	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DispatchRequest is the validated input for one generation dispatch.
type DispatchRequest struct {
	Class         OperationClass
	Prompt        string
	Vibe          string
	Style         string
	InputImageURL string
}

// JobService tracks the lifecycle of generation jobs: dispatch to the
// external prediction provider, client-driven polling with idempotent
// result materialization, and best-effort cancellation.
//
// There is no background worker: every transition happens inside a request
// handler, and clients poll on an interval. Multiple tabs, devices and
// client retries mean the same poll arrives repeatedly and concurrently;
// the conditional terminal update in the job repository plus handle-derived
// blob paths make that safe. A worker-plus-queue design would remove the
// duplicate-poll race but adds an operational component.
type JobService interface {
	Dispatch(ctx context.Context, userID string, req DispatchRequest) (*model.GenerationJob, error)
	// Poll refreshes the job from the provider. Jobs not owned by userID
	// surface as repository.ErrJobNotFound; existence is never leaked.
	Poll(ctx context.Context, userID, jobID string) (*model.GenerationJob, error)
	Cancel(ctx context.Context, userID, jobID string) (*model.GenerationJob, error)
	ListJobs(ctx context.Context, userID string, limit, offset int) ([]model.GenerationJob, error)
	// SweepStale fails jobs stuck pending since before now-staleAfter.
	// Invoked by an external scheduler, not by the tracker itself.
	SweepStale(ctx context.Context, staleAfter time.Duration) (int64, error)
}

type jobService struct {
	jobs      repository.JobRepository
	credits   repository.CreditRepository
	rotation  RotationService
	admission AdmissionService
	provider  prediction.Client
	blobs     storage.BlobStore
	publisher pubsub.Publisher
	topic     string
	jobLogger zerolog.Logger
}

// NewJobService creates a new JobService.
func NewJobService(
	jobs repository.JobRepository,
	credits repository.CreditRepository,
	rotation RotationService,
	admission AdmissionService,
	provider prediction.Client,
	blobs storage.BlobStore,
	publisher pubsub.Publisher,
	topic string,
	logger zerolog.Logger,
) JobService {
	return &jobService{
		jobs:      jobs,
		credits:   credits,
		rotation:  rotation,
		admission: admission,
		provider:  provider,
		blobs:     blobs,
		publisher: publisher,
		topic:     topic,
		jobLogger: logger.With().Str("service", "JobService").Logger(),
	}
}

// Dispatch creates a pending job record, submits it to the provider and
// debits the class cost exactly once, keyed by the job ID. A failed
// submission returns the record already marked failed with the error and
// debits nothing; retrying is the caller's concern.
func (s *jobService) Dispatch(ctx context.Context, userID string, req DispatchRequest) (*model.GenerationJob, error) {
	draw, err := s.rotation.NextIndices(ctx, userID, req.Vibe, req.Style)
	if err != nil {
		return nil, fmt.Errorf("dispatch rotation draw: %w", err)
	}

	job := &model.GenerationJob{ID: uuid.NewString(), UserID: userID}
	created, err := s.jobs.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("creating job record: %w", err)
	}

	handle, err := s.provider.Submit(ctx, buildPredictionInput(req, draw))
	if err != nil {
		s.jobLogger.Error().Err(err).Str("job_id", created.ID).Msg("Prediction submission failed")
		return s.finishFailed(ctx, created, fmt.Sprintf("submission failed: %v", err))
	}
	if err := s.jobs.SetExternalHandle(ctx, created.ID, handle); err != nil {
		// The provider is already running the prediction; without the
		// handle the job can never be resolved, so give up on it.
		s.cancelProvider(ctx, handle)
		return s.finishFailed(ctx, created, "failed to record provider handle")
	}

	policy, ok := s.admission.PolicyFor(req.Class)
	if !ok {
		s.cancelProvider(ctx, handle)
		return s.finishFailed(ctx, created, fmt.Sprintf("unknown operation class %q", req.Class))
	}
	if policy.CostCredits > 0 {
		if _, err := s.credits.Debit(ctx, userID, policy.CostCredits, "generation:"+created.ID); err != nil {
			// The admission check was only a pre-flight estimate; the
			// balance may have been drained since. Fail closed.
			s.jobLogger.Warn().Err(err).Str("job_id", created.ID).Msg("Post-dispatch debit failed, abandoning job")
			s.cancelProvider(ctx, handle)
			return s.finishFailed(ctx, created, "credit debit failed")
		}
	}

	s.publishEvent(ctx, "job.dispatched", created.ID, userID, model.JobStatusPending, "")

	dispatched, err := s.jobs.GetJobByID(ctx, created.ID)
	if err != nil || dispatched == nil {
		// The row exists; treat a read hiccup as non-fatal and report what
		// we know.
		created.ExternalHandle = &handle
		return created, nil
	}
	return dispatched, nil
}

// Poll maps the provider's view of the job onto the local record. Terminal
// local state short-circuits without touching the provider, non-terminal
// provider state mutates nothing, and success materializes the result
// idempotently: the blob path derives from the provider handle and only
// the first poll to flip the pending row persists, so N concurrent polls
// end with one artifact row and the same URL.
func (s *jobService) Poll(ctx context.Context, userID, jobID string) (*model.GenerationJob, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		return job, nil
	}
	if job.ExternalHandle == nil {
		// Submission never completed; nothing to ask the provider yet.
		return job, nil
	}

	p, err := s.provider.Get(ctx, *job.ExternalHandle)
	if err != nil {
		// Transient provider failure: leave the row pending, the next poll
		// will retry.
		return nil, fmt.Errorf("querying provider for job %s: %w", jobID, err)
	}

	switch p.Status {
	case prediction.StatusStarting, prediction.StatusProcessing:
		return job, nil
	case prediction.StatusFailed, prediction.StatusCanceled:
		reason := p.Error
		if reason == "" {
			reason = "prediction failed"
		}
		return s.finishFailed(ctx, job, reason)
	case prediction.StatusSucceeded:
		return s.materialize(ctx, job, p)
	default:
		return nil, fmt.Errorf("provider returned unknown status %q for job %s", p.Status, jobID)
	}
}

func (s *jobService) materialize(ctx context.Context, job *model.GenerationJob, p *prediction.Prediction) (*model.GenerationJob, error) {
	outputURL := p.FirstOutputURL()
	if outputURL == "" {
		return s.finishFailed(ctx, job, "provider reported success without output")
	}

	data, err := s.provider.FetchOutput(ctx, outputURL)
	if err != nil {
		return nil, fmt.Errorf("fetching output for job %s: %w", job.ID, err)
	}
	blobPath := resultBlobPath(*job.ExternalHandle, outputURL)
	publicURL, err := s.blobs.Put(ctx, blobPath, data, contentTypeFor(blobPath))
	if err != nil {
		return nil, fmt.Errorf("storing output for job %s: %w", job.ID, err)
	}

	won, err := s.jobs.MarkSucceeded(ctx, job.ID, publicURL)
	if err != nil {
		return nil, fmt.Errorf("persisting result for job %s: %w", job.ID, err)
	}
	if won {
		s.publishEvent(ctx, "job.succeeded", job.ID, job.UserID, model.JobStatusSucceeded, "")
	}
	return s.reload(ctx, job.ID)
}

// Cancel forwards a best-effort cancel to the provider and marks the job
// failed locally regardless of provider acknowledgment; local state is
// authoritative for the user-facing view. Already-terminal jobs are
// returned unchanged.
func (s *jobService) Cancel(ctx context.Context, userID, jobID string) (*model.GenerationJob, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		return job, nil
	}

	if job.ExternalHandle != nil {
		s.cancelProvider(ctx, *job.ExternalHandle)
	}
	return s.finishFailed(ctx, job, model.CancelReason)
}

func (s *jobService) ListJobs(ctx context.Context, userID string, limit, offset int) ([]model.GenerationJob, error) {
	return s.jobs.ListJobsByUserID(ctx, userID, limit, offset)
}

func (s *jobService) SweepStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleAfter)
	count, err := s.jobs.FailStalePending(ctx, cutoff, "timed out waiting for provider")
	if err != nil {
		return 0, fmt.Errorf("sweeping stale jobs: %w", err)
	}
	if count > 0 {
		s.jobLogger.Info().Int64("failed_count", count).Time("cutoff", cutoff).Msg("Swept stale pending jobs")
	}
	return count, nil
}

func (s *jobService) ownedJob(ctx context.Context, userID, jobID string) (*model.GenerationJob, error) {
	job, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if job == nil || job.UserID != userID {
		return nil, repository.ErrJobNotFound
	}
	return job, nil
}

func (s *jobService) finishFailed(ctx context.Context, job *model.GenerationJob, reason string) (*model.GenerationJob, error) {
	won, err := s.jobs.MarkFailed(ctx, job.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("marking job %s failed: %w", job.ID, err)
	}
	if won {
		s.publishEvent(ctx, "job.failed", job.ID, job.UserID, model.JobStatusFailed, reason)
	}
	return s.reload(ctx, job.ID)
}

func (s *jobService) reload(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	job, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("reloading job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, repository.ErrJobNotFound
	}
	return job, nil
}

func (s *jobService) cancelProvider(ctx context.Context, handle string) {
	if err := s.provider.Cancel(ctx, handle); err != nil {
		s.jobLogger.Warn().Err(err).Str("handle", handle).Msg("Best-effort provider cancel failed")
	}
}

func (s *jobService) publishEvent(ctx context.Context, event, jobID, userID string, status model.JobStatus, reason string) {
	_, err := pubsub.PublishJobEvent(ctx, s.publisher, s.topic, pubsub.JobEvent{
		Event:       event,
		JobID:       jobID,
		UserID:      userID,
		Status:      status,
		ErrorReason: reason,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		s.jobLogger.Error().Err(err).Str("job_id", jobID).Str("event", event).Msg("Failed to publish job event")
	}
}

// buildPredictionInput composes the provider payload from the request and
// the rotation draw. Prompt composition proper lives upstream; this only
// threads the variety indices through.
func buildPredictionInput(req DispatchRequest, draw *model.RotationDraw) map[string]interface{} {
	return map[string]interface{}{
		"prompt":          req.Prompt,
		"vibe":            req.Vibe,
		"style":           req.Style,
		"image":           req.InputImageURL,
		"outfit_index":    draw.OutfitIndex,
		"location_index":  draw.LocationIndex,
		"accessory_index": draw.AccessoryIndex,
	}
}

// resultBlobPath derives the storage path from the provider handle so that
// concurrent polls of the same job write the same object.
func resultBlobPath(handle, outputURL string) string {
	ext := path.Ext(strings.SplitN(path.Base(outputURL), "?", 2)[0])
	if ext == "" {
		ext = ".png"
	}
	return "results/" + handle + ext
}

func contentTypeFor(blobPath string) string {
	switch strings.ToLower(path.Ext(blobPath)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
