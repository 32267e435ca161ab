package dto

import "time"

// CreditTransactionDTO is one ledger entry in API responses
type CreditTransactionDTO struct {
	ID           int64     `json:"id"`
	Amount       int64     `json:"amount"`
	Type         string    `json:"type"`
	Description  string    `json:"description"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreditBalanceResponseDTO is returned by the credits endpoint
type CreditBalanceResponseDTO struct {
	Balance      int64                  `json:"balance"`
	Transactions []CreditTransactionDTO `json:"transactions"`
}
