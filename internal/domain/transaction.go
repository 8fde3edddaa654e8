package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType constants
const (
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
	TxInvestment = "investment"
)

// TransactionStatus constants. Pending is the only non-terminal status.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Transaction is a funds movement request with its own lifecycle
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	Address         string          `json:"address,omitempty"`
	PlanID          string          `json:"plan_id,omitempty"`
	InvestmentID    *uuid.UUID      `json:"investment_id,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewTransaction creates a pending transaction
func NewTransaction(userID uuid.UUID, txType string, amount decimal.Decimal, now time.Time) *Transaction {
	now = now.UTC().Truncate(time.Microsecond)
	return &Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      txType,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether status can never change again
func IsTerminal(status string) bool {
	return status == StatusConfirmed || status == StatusRejected || status == StatusCancelled
}

// Reserves reports whether the transaction holds funds while pending
func (t *Transaction) Reserves() bool {
	return t.Type == TxWithdrawal || t.Type == TxInvestment
}

// Transition moves a pending transaction into a terminal status
func (t *Transaction) Transition(to string, now time.Time) error {
	if t.Status != StatusPending || !IsTerminal(to) {
		return NewTransitionError("transaction", t.Status, to)
	}
	at := now.UTC().Truncate(time.Microsecond)
	t.Status = to
	t.UpdatedAt = at
	if to == StatusConfirmed {
		t.ConfirmedAt = &at
	}
	return nil
}
