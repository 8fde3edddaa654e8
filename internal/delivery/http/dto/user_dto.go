package dto

import (
	"github.com/shopspring/decimal"

	"yieldvault/internal/domain"
)

// UserOutput represents user details in API responses
type UserOutput struct {
	ID               string          `json:"id"`
	Username         string          `json:"username"`
	WalletAddress    string          `json:"wallet_address,omitempty"`
	Balance          decimal.Decimal `json:"balance"`
	ReservedBalance  decimal.Decimal `json:"reserved_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	IsAdmin          bool            `json:"is_admin"`
	IsSupportAdmin   bool            `json:"is_support_admin"`
}

// NewUserOutput converts a domain user for API responses
func NewUserOutput(u *domain.User) *UserOutput {
	return &UserOutput{
		ID:               u.ID.String(),
		Username:         u.Username,
		WalletAddress:    u.WalletAddress,
		Balance:          u.Balance,
		ReservedBalance:  u.ReservedBalance,
		AvailableBalance: u.Available(),
		IsAdmin:          u.IsAdmin,
		IsSupportAdmin:   u.IsSupportAdmin,
	}
}

// DepositRequest reports funds sent to the platform deposit address
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	TxHash string          `json:"tx_hash"`
}

// WithdrawalRequest asks for funds to be paid out to an address
type WithdrawalRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Address string          `json:"address" validate:"required"`
}

// InvestmentRequest opens an investment in a plan
type InvestmentRequest struct {
	PlanID string          `json:"plan_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// UnreadCountOutput is the badge count for the notification bell
type UnreadCountOutput struct {
	Unread int `json:"unread"`
}

// AffectedOutput reports how many rows a bulk action touched
type AffectedOutput struct {
	Affected int64 `json:"affected"`
}
