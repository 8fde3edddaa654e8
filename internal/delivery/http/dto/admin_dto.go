package dto

import (
	"github.com/shopspring/decimal"
)

// RejectRequest carries the reason shown to the user
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// PauseRequest carries the reason an investment is frozen
type PauseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// BalanceAdjustRequest is a manual credit (positive) or debit (negative)
type BalanceAdjustRequest struct {
	Delta decimal.Decimal `json:"delta"`
	Note  string          `json:"note" validate:"required,max=500"`
}

// SettingRequest updates one platform setting
type SettingRequest struct {
	Key   string `json:"key" validate:"required,oneof=deposit_address vault_address free_plan_rate"`
	Value string `json:"value" validate:"required"`
}

// PlanRequest creates or edits a plan; the id comes from the path
type PlanRequest struct {
	Name                     string          `json:"name" validate:"required,max=64"`
	DailyReturnRate          decimal.Decimal `json:"daily_return_rate"`
	RoiPercentage            decimal.Decimal `json:"roi_percentage"`
	DurationDays             int             `json:"duration_days" validate:"gt=0"`
	PerformanceFeePercentage decimal.Decimal `json:"performance_fee_percentage"`
	MinAmount                decimal.Decimal `json:"min_amount"`
	MaxAmount                decimal.Decimal `json:"max_amount"`
	IsActive                 bool            `json:"is_active"`
}

// BackupRequest registers a backup target
type BackupRequest struct {
	Name   string `json:"name" validate:"required,max=64"`
	Kind   string `json:"kind" validate:"required,oneof=postgres sqlite"`
	Target string `json:"connection_target" validate:"required"`
}
