package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FreePlanID is the plan whose rate follows the free_plan_rate setting
const FreePlanID = "free"

// InvestmentPlan holds the terms offered for new investments.
// Terms are copied into each Investment at creation.
type InvestmentPlan struct {
	ID                       string          `json:"id" yaml:"id"`
	Name                     string          `json:"name" yaml:"name"`
	DailyReturnRate          decimal.Decimal `json:"daily_return_rate" yaml:"daily_return_rate"`
	RoiPercentage            decimal.Decimal `json:"roi_percentage" yaml:"roi_percentage"`
	DurationDays             int             `json:"duration_days" yaml:"duration_days"`
	PerformanceFeePercentage decimal.Decimal `json:"performance_fee_percentage" yaml:"performance_fee_percentage"`
	MinAmount                decimal.Decimal `json:"min_amount" yaml:"min_amount"`
	MaxAmount                decimal.Decimal `json:"max_amount" yaml:"max_amount"` // zero means no upper bound
	IsActive                 bool            `json:"is_active" yaml:"is_active"`
	UpdatedAt                time.Time       `json:"updated_at" yaml:"-"`
}

var hundred = decimal.NewFromInt(100)

// Validate checks the plan terms
func (p *InvestmentPlan) Validate() error {
	if p.ID == "" || p.Name == "" {
		return NewValidationError("plan id and name are required")
	}
	if p.DailyReturnRate.IsNegative() {
		return NewValidationError("daily return rate must not be negative")
	}
	if p.DurationDays <= 0 {
		return NewValidationError("duration must be at least one day")
	}
	if p.PerformanceFeePercentage.IsNegative() || p.PerformanceFeePercentage.GreaterThan(hundred) {
		return NewValidationError("performance fee must be between 0 and 100")
	}
	if p.MinAmount.IsNegative() || p.MaxAmount.IsNegative() {
		return NewValidationError("plan limits must not be negative")
	}
	if p.MaxAmount.IsPositive() && p.MaxAmount.LessThan(p.MinAmount) {
		return NewValidationError("max amount is below min amount")
	}
	return nil
}

// CheckAmount verifies the principal fits the plan limits
func (p *InvestmentPlan) CheckAmount(amount decimal.Decimal) error {
	if !p.IsActive {
		return NewValidationError("plan %s is not available", p.ID)
	}
	if amount.LessThan(p.MinAmount) {
		return NewValidationError("minimum investment for %s is %s", p.Name, p.MinAmount)
	}
	if p.MaxAmount.IsPositive() && amount.GreaterThan(p.MaxAmount) {
		return NewValidationError("maximum investment for %s is %s", p.Name, p.MaxAmount)
	}
	return nil
}
