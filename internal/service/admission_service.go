package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/config"
	"app/internal/ratelimit"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// OperationClass groups requests that share a rate-limit window and cost.
type OperationClass string

const (
	OpImageGeneration    OperationClass = "image_generation"
	OpVideoGeneration    OperationClass = "video_generation"
	OpTrainingSubmission OperationClass = "training_submission"
	OpChat               OperationClass = "chat"
	OpBatchFeed          OperationClass = "batch_feed"
)

// Policy is the admission configuration for one operation class.
type Policy struct {
	Window      time.Duration
	MaxCount    int
	CostCredits int64
}

// Admission decisions. Rejections are decisions, not errors.
const (
	DecisionProceed            = "proceed"
	DecisionRateLimited        = "rate_limited"
	DecisionInsufficientCredit = "insufficient_credit"
)

// AdmissionResult carries the decision plus enough structure to render an
// actionable message: remaining quota and reset time for rate limiting,
// required balance for credit rejection.
type AdmissionResult struct {
	Decision        string
	Remaining       int
	ResetAt         time.Time
	RequiredBalance int64
	Balance         int64
}

// AdmissionService decides whether a request may proceed. It checks the
// rate limiter first (cheap, shields the ledger from abusive bursts), then
// the credit balance against the class's estimated cost. It never debits:
// the actual debit is performed once by the dispatcher after the provider
// accepts the job, so a failed dispatch never consumes credits.
type AdmissionService interface {
	Authorize(ctx context.Context, userID string, class OperationClass) (*AdmissionResult, error)
	PolicyFor(class OperationClass) (Policy, bool)
}

type admissionService struct {
	limiter  ratelimit.Limiter
	credits  repository.CreditRepository
	policies map[OperationClass]Policy
	logger   zerolog.Logger
}

// NewAdmissionService creates a new AdmissionService.
func NewAdmissionService(
	limiter ratelimit.Limiter,
	credits repository.CreditRepository,
	policies map[OperationClass]Policy,
	logger zerolog.Logger,
) AdmissionService {
	return &admissionService{
		limiter:  limiter,
		credits:  credits,
		policies: policies,
		logger:   logger.With().Str("service", "AdmissionService").Logger(),
	}
}

// PoliciesFromConfig builds the per-class admission policies.
func PoliciesFromConfig(cfg *config.Config) map[OperationClass]Policy {
	return map[OperationClass]Policy{
		OpImageGeneration:    {Window: time.Duration(cfg.ImageGenWindowSec) * time.Second, MaxCount: cfg.ImageGenMaxCount, CostCredits: cfg.ImageGenCost},
		OpVideoGeneration:    {Window: time.Duration(cfg.VideoGenWindowSec) * time.Second, MaxCount: cfg.VideoGenMaxCount, CostCredits: cfg.VideoGenCost},
		OpTrainingSubmission: {Window: time.Duration(cfg.TrainingWindowSec) * time.Second, MaxCount: cfg.TrainingMaxCount, CostCredits: cfg.TrainingCost},
		OpChat:               {Window: time.Duration(cfg.ChatWindowSec) * time.Second, MaxCount: cfg.ChatMaxCount, CostCredits: cfg.ChatCost},
		OpBatchFeed:          {Window: time.Duration(cfg.BatchFeedWindowSec) * time.Second, MaxCount: cfg.BatchFeedMaxCount, CostCredits: cfg.BatchFeedCost},
	}
}

func (s *admissionService) PolicyFor(class OperationClass) (Policy, bool) {
	p, ok := s.policies[class]
	return p, ok
}

func (s *admissionService) Authorize(ctx context.Context, userID string, class OperationClass) (*AdmissionResult, error) {
	policy, ok := s.policies[class]
	if !ok {
		return nil, fmt.Errorf("unknown operation class %q", class)
	}

	decision, err := s.limiter.Check(ctx, ratelimit.KeyFor(string(class), userID), policy.Window, policy.MaxCount)
	if err != nil {
		// The limiter already failed open; record that admission proceeded
		// without rate-limit protection.
		s.logger.Warn().Err(err).Str("user_id", userID).Str("class", string(class)).
			Msg("Rate limiter unavailable, admitting without limit check")
	}
	if !decision.Allowed {
		return &AdmissionResult{
			Decision:  DecisionRateLimited,
			Remaining: decision.Remaining,
			ResetAt:   decision.ResetAt,
		}, nil
	}

	// Ledger failures fail closed: financial correctness over availability.
	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("admission balance check for user %s: %w", userID, err)
	}
	if balance < policy.CostCredits {
		return &AdmissionResult{
			Decision:        DecisionInsufficientCredit,
			Remaining:       decision.Remaining,
			ResetAt:         decision.ResetAt,
			RequiredBalance: policy.CostCredits,
			Balance:         balance,
		}, nil
	}

	return &AdmissionResult{
		Decision:        DecisionProceed,
		Remaining:       decision.Remaining,
		ResetAt:         decision.ResetAt,
		RequiredBalance: policy.CostCredits,
		Balance:         balance,
	}, nil
}
