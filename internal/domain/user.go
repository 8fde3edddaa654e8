package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents a platform account and its ledger balance
type User struct {
	ID              uuid.UUID       `json:"id"`
	Username        string          `json:"username"`
	PasswordHash    string          `json:"-"`
	WalletAddress   string          `json:"wallet_address"`
	Balance         decimal.Decimal `json:"balance"`
	ReservedBalance decimal.Decimal `json:"reserved_balance"`
	IsAdmin         bool            `json:"is_admin"`
	IsSupportAdmin  bool            `json:"is_support_admin"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Available returns the balance not held by pending withdrawals or investments
func (u *User) Available() decimal.Decimal {
	return u.Balance.Sub(u.ReservedBalance)
}

// CanManage reports whether the user may run admin mutations
func (u *User) CanManage() bool {
	return u.IsAdmin
}

// CanReview reports whether the user may read admin views
func (u *User) CanReview() bool {
	return u.IsAdmin || u.IsSupportAdmin
}

// ApplyDelta credits (positive) or debits (negative) the balance.
// A debit may never eat into reserved funds.
func (u *User) ApplyDelta(delta decimal.Decimal) error {
	next := u.Balance.Add(delta)
	if next.IsNegative() || next.LessThan(u.ReservedBalance) {
		return NewInsufficientFundsError(delta.Neg(), u.Available())
	}
	u.Balance = RoundMoney(next)
	return nil
}

// Reserve holds amount against a pending request
func (u *User) Reserve(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError("reservation must be positive")
	}
	if amount.GreaterThan(u.Available()) {
		return NewInsufficientFundsError(amount, u.Available())
	}
	u.ReservedBalance = u.ReservedBalance.Add(amount)
	return nil
}

// Release returns a previously reserved amount to the available balance
func (u *User) Release(amount decimal.Decimal) error {
	if amount.IsNegative() || amount.GreaterThan(u.ReservedBalance) {
		return NewValidationError("cannot release %s, only %s reserved", amount, u.ReservedBalance)
	}
	u.ReservedBalance = u.ReservedBalance.Sub(amount)
	return nil
}

// CheckInvariants verifies 0 <= reserved <= balance
func (u *User) CheckInvariants() error {
	if u.Balance.IsNegative() {
		return NewValidationError("user %s has negative balance %s", u.ID, u.Balance)
	}
	if u.ReservedBalance.IsNegative() || u.ReservedBalance.GreaterThan(u.Balance) {
		return NewValidationError("user %s reserves %s of %s", u.ID, u.ReservedBalance, u.Balance)
	}
	return nil
}
