package model

import "time"

// Transaction types recorded in the credit ledger.
const (
	TxTypeDebit  = "debit"
	TxTypeCredit = "credit"
)

// CreditAccount holds a user's materialized credit balance.
// The balance is only ever mutated together with a matching
// CreditTransaction row and is never negative.
type CreditAccount struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CreditTransaction is a single append-only ledger entry. BalanceAfter
// carries the account balance that resulted from applying this entry, so
// the full history can be audited against the materialized balance.
type CreditTransaction struct {
	ID           int64     `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Amount       int64     `db:"amount" json:"amount"`
	Type         string    `db:"type" json:"type"`
	Description  string    `db:"description" json:"description"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
