package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientBalance is returned when a debit would take the balance negative.
var ErrInsufficientBalance = errors.New("insufficient_balance")

// CreditRepository is the per-user credit ledger: a materialized balance
// plus an append-only transaction log. Every balance mutation happens in a
// single SQL statement together with its transaction row, so the service
// tier never does read-modify-write on balances.
type CreditRepository interface {
	// Debit atomically decrements the balance and appends the matching
	// transaction row. Returns ErrInsufficientBalance when the account is
	// missing or holds fewer credits than amount; nothing is written then.
	Debit(ctx context.Context, userID string, amount int64, description string) (*model.CreditTransaction, error)
	// Credit atomically increments the balance (creating the account on
	// first use) and appends the matching transaction row.
	Credit(ctx context.Context, userID string, amount int64, description string) (*model.CreditTransaction, error)
	// GetBalance reads the materialized balance. Missing accounts read as 0.
	GetBalance(ctx context.Context, userID string) (int64, error)
	// SumTransactions recomputes the balance from the ledger for auditing.
	SumTransactions(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error)
}

type creditRepo struct {
	pool *pgxpool.Pool
}

// NewCreditRepo creates a new CreditRepository.
func NewCreditRepo(pool *pgxpool.Pool) CreditRepository {
	return &creditRepo{pool: pool}
}

func (r *creditRepo) Debit(ctx context.Context, userID string, amount int64, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	// The balance guard lives in the UPDATE's WHERE clause: two concurrent
	// debits cannot both pass it, and a failed guard writes nothing.
	const q = `
		WITH debited AS (
			UPDATE credit_accounts
			SET balance = balance - $2, updated_at = NOW()
			WHERE user_id = $1 AND balance >= $2
			RETURNING balance
		)
		INSERT INTO credit_transactions (user_id, amount, type, description, balance_after)
		SELECT $1, -$2, 'debit', $3, balance FROM debited
		RETURNING id, user_id, amount, type, description, balance_after, created_at
	`
	tx, err := r.scanTransaction(r.pool.QueryRow(ctx, q, userID, amount, description))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("debiting %d credits from user %s: %w", amount, userID, err)
	}
	return tx, nil
}

func (r *creditRepo) Credit(ctx context.Context, userID string, amount int64, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	const q = `
		WITH credited AS (
			INSERT INTO credit_accounts (user_id, balance, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_id) DO UPDATE
			SET balance = credit_accounts.balance + $2, updated_at = NOW()
			RETURNING balance
		)
		INSERT INTO credit_transactions (user_id, amount, type, description, balance_after)
		SELECT $1, $2, 'credit', $3, balance FROM credited
		RETURNING id, user_id, amount, type, description, balance_after, created_at
	`
	tx, err := r.scanTransaction(r.pool.QueryRow(ctx, q, userID, amount, description))
	if err != nil {
		return nil, fmt.Errorf("crediting %d credits to user %s: %w", amount, userID, err)
	}
	return tx, nil
}

func (r *creditRepo) GetBalance(ctx context.Context, userID string) (int64, error) {
	const q = `SELECT balance FROM credit_accounts WHERE user_id = $1`
	var balance int64
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading balance for user %s: %w", userID, err)
	}
	return balance, nil
}

func (r *creditRepo) SumTransactions(ctx context.Context, userID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1`
	var sum int64
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing transactions for user %s: %w", userID, err)
	}
	return sum, nil
}

func (r *creditRepo) ListTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	const q = `
		SELECT id, user_id, amount, type, description, balance_after, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transactions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var txs []model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transaction row iteration: %w", err)
	}
	return txs, nil
}

func (r *creditRepo) scanTransaction(row pgx.Row) (*model.CreditTransaction, error) {
	var t model.CreditTransaction
	if err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.BalanceAfter, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
