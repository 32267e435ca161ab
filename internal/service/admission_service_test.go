package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/model"
	"app/internal/ratelimit"

	"github.com/rs/zerolog"
)

type stubLimiter struct {
	decision ratelimit.Decision
	err      error
	lastKey  string
	calls    int
}

func (l *stubLimiter) Check(_ context.Context, key string, window time.Duration, maxCount int) (ratelimit.Decision, error) {
	l.calls++
	l.lastKey = key
	return l.decision, l.err
}

type stubLedger struct {
	balance      int64
	err          error
	balanceCalls int
}

func (l *stubLedger) Debit(context.Context, string, int64, string) (*model.CreditTransaction, error) {
	return nil, errors.New("admission must not debit")
}

func (l *stubLedger) Credit(context.Context, string, int64, string) (*model.CreditTransaction, error) {
	return nil, errors.New("admission must not credit")
}

func (l *stubLedger) GetBalance(context.Context, string) (int64, error) {
	l.balanceCalls++
	return l.balance, l.err
}

func (l *stubLedger) SumTransactions(context.Context, string) (int64, error) {
	return l.balance, nil
}

func (l *stubLedger) ListTransactions(context.Context, string, int) ([]model.CreditTransaction, error) {
	return nil, nil
}

func testPolicies() map[OperationClass]Policy {
	return map[OperationClass]Policy{
		OpImageGeneration: {Window: time.Minute, MaxCount: 10, CostCredits: 5},
		OpChat:            {Window: time.Minute, MaxCount: 60, CostCredits: 0},
	}
}

func TestAuthorizeProceed(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 7, ResetAt: time.Now().Add(time.Minute)}}
	ledger := &stubLedger{balance: 20}
	svc := NewAdmissionService(limiter, ledger, testPolicies(), zerolog.Nop())

	res, err := svc.Authorize(context.Background(), "user-a", OpImageGeneration)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if res.Decision != DecisionProceed {
		t.Fatalf("expected proceed, got %s", res.Decision)
	}
	if res.Remaining != 7 {
		t.Fatalf("expected remaining 7, got %d", res.Remaining)
	}
	if res.Balance != 20 || res.RequiredBalance != 5 {
		t.Fatalf("expected balance 20 / required 5, got %d / %d", res.Balance, res.RequiredBalance)
	}
	if limiter.lastKey != "image_generation:user-a" {
		t.Fatalf("limiter key %q, want image_generation:user-a", limiter.lastKey)
	}
}

func TestAuthorizeRateLimitedSkipsLedger(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Second)
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}}
	ledger := &stubLedger{balance: 100}
	svc := NewAdmissionService(limiter, ledger, testPolicies(), zerolog.Nop())

	res, err := svc.Authorize(context.Background(), "user-a", OpImageGeneration)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if res.Decision != DecisionRateLimited {
		t.Fatalf("expected rate_limited, got %s", res.Decision)
	}
	if !res.ResetAt.Equal(resetAt) {
		t.Fatalf("expected reset at %v, got %v", resetAt, res.ResetAt)
	}
	if ledger.balanceCalls != 0 {
		t.Fatal("rate-limited request must not touch the ledger")
	}
}

func TestAuthorizeInsufficientCredit(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 9}}
	ledger := &stubLedger{balance: 3}
	svc := NewAdmissionService(limiter, ledger, testPolicies(), zerolog.Nop())

	res, err := svc.Authorize(context.Background(), "user-a", OpImageGeneration)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if res.Decision != DecisionInsufficientCredit {
		t.Fatalf("expected insufficient_credit, got %s", res.Decision)
	}
	if res.Balance != 3 || res.RequiredBalance != 5 {
		t.Fatalf("expected balance 3 / required 5, got %d / %d", res.Balance, res.RequiredBalance)
	}
}

func TestAuthorizeZeroCostClassWithEmptyAccount(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 59}}
	ledger := &stubLedger{balance: 0}
	svc := NewAdmissionService(limiter, ledger, testPolicies(), zerolog.Nop())

	res, err := svc.Authorize(context.Background(), "user-a", OpChat)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if res.Decision != DecisionProceed {
		t.Fatalf("zero-cost class must proceed at zero balance, got %s", res.Decision)
	}
}

func TestAuthorizeLimiterFailureFailsOpen(t *testing.T) {
	// The limiter contract: on store failure it returns an allowing
	// decision plus the error. Admission proceeds to the credit check.
	limiter := &stubLimiter{
		decision: ratelimit.Decision{Allowed: true, Remaining: 9, ResetAt: time.Now().Add(time.Minute)},
		err:      errors.New("redis: connection refused"),
	}
	ledger := &stubLedger{balance: 20}
	svc := NewAdmissionService(limiter, ledger, testPolicies(), zerolog.Nop())

	res, err := svc.Authorize(context.Background(), "user-a", OpImageGeneration)
	if err != nil {
		t.Fatalf("limiter failure must not fail the request: %v", err)
	}
	if res.Decision != DecisionProceed {
		t.Fatalf("expected proceed, got %s", res.Decision)
	}
	if ledger.balanceCalls != 1 {
		t.Fatal("credit check must still run when the limiter fails open")
	}
}

func TestAuthorizeLedgerFailureFailsClosed(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 9}}
	ledger := &stubLedger{err: errors.New("connection reset")}
	svc := NewAdmissionService(limiter, ledger, testPolicies(), zerolog.Nop())

	if _, err := svc.Authorize(context.Background(), "user-a", OpImageGeneration); err == nil {
		t.Fatal("ledger failure must surface as an error")
	}
}

func TestAuthorizeUnknownClass(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true}}
	svc := NewAdmissionService(limiter, &stubLedger{}, testPolicies(), zerolog.Nop())

	if _, err := svc.Authorize(context.Background(), "user-a", OperationClass("mystery")); err == nil {
		t.Fatal("unknown class must be rejected")
	}
	if limiter.calls != 0 {
		t.Fatal("unknown class must not reach the limiter")
	}
}
