package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccrualDay is the period a daily return rate refers to
const AccrualDay = 24 * time.Hour

// Investment is a user's position in a plan.
// Rate, fee and duration are snapshotted from the plan when the investment is created.
type Investment struct {
	ID                       uuid.UUID       `json:"id"`
	UserID                   uuid.UUID       `json:"user_id"`
	PlanID                   string          `json:"plan_id"`
	Amount                   decimal.Decimal `json:"amount"`
	CurrentProfit            decimal.Decimal `json:"current_profit"`
	DailyReturnRate          decimal.Decimal `json:"daily_return_rate"`
	PerformanceFeePercentage decimal.Decimal `json:"performance_fee_percentage"`
	DurationDays             int             `json:"duration_days"`
	StartDate                time.Time       `json:"start_date"`
	EndDate                  time.Time       `json:"end_date"`
	LastAccruedAt            time.Time       `json:"last_accrued_at"`
	ActiveNanos              int64           `json:"active_nanos"`
	IsActive                 bool            `json:"is_active"`
	IsPaused                 bool            `json:"is_paused"`
	PauseReason              string          `json:"pause_reason,omitempty"`
	CompletedAt              *time.Time      `json:"completed_at,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// NewInvestment opens a position on plan starting at now
func NewInvestment(userID uuid.UUID, plan *InvestmentPlan, amount decimal.Decimal, now time.Time) *Investment {
	now = now.UTC().Truncate(time.Microsecond)
	return &Investment{
		ID:                       uuid.New(),
		UserID:                   userID,
		PlanID:                   plan.ID,
		Amount:                   amount,
		CurrentProfit:            decimal.Zero,
		DailyReturnRate:          plan.DailyReturnRate,
		PerformanceFeePercentage: plan.PerformanceFeePercentage,
		DurationDays:             plan.DurationDays,
		StartDate:                now,
		EndDate:                  now.AddDate(0, 0, plan.DurationDays),
		LastAccruedAt:            now,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

// GrossProfit is principal × rate × (active / 1 day)
func GrossProfit(principal, dailyRate decimal.Decimal, active time.Duration) decimal.Decimal {
	return principal.
		Mul(dailyRate).
		Mul(decimal.NewFromInt(int64(active))).
		Div(decimal.NewFromInt(int64(AccrualDay)))
}

// PerformanceFee is the platform's cut of gross profit, never of principal
func PerformanceFee(gross, feePercentage decimal.Decimal) decimal.Decimal {
	return gross.Mul(feePercentage).Div(hundred)
}

// NetProfit is gross minus the performance fee, rounded to the money scale
func NetProfit(principal, dailyRate, feePercentage decimal.Decimal, active time.Duration) decimal.Decimal {
	gross := GrossProfit(principal, dailyRate, active)
	return RoundMoney(gross.Sub(PerformanceFee(gross, feePercentage)))
}

// Accrue credits active time up to min(now, EndDate) and recomputes CurrentProfit.
// Returns true when CurrentProfit changed.
func (inv *Investment) Accrue(now time.Time) bool {
	if !inv.IsActive || inv.IsPaused {
		return false
	}
	upto := now.UTC().Truncate(time.Microsecond)
	if upto.After(inv.EndDate) {
		upto = inv.EndDate
	}
	if !upto.After(inv.LastAccruedAt) {
		return false
	}

	inv.ActiveNanos += int64(upto.Sub(inv.LastAccruedAt))
	inv.LastAccruedAt = upto

	prev := inv.CurrentProfit
	inv.CurrentProfit = NetProfit(inv.Amount, inv.DailyReturnRate, inv.PerformanceFeePercentage, time.Duration(inv.ActiveNanos))
	inv.UpdatedAt = upto
	return !prev.Equal(inv.CurrentProfit)
}

// Matured reports whether a running investment has reached its end date
func (inv *Investment) Matured(now time.Time) bool {
	return inv.IsActive && !inv.IsPaused && !now.Before(inv.EndDate)
}

// Complete closes a matured investment and returns the payout (principal + net profit)
func (inv *Investment) Complete(now time.Time) (decimal.Decimal, error) {
	if !inv.Matured(now) {
		return decimal.Zero, NewTransitionError("investment", inv.State(), "completed")
	}
	inv.Accrue(now)
	at := now.UTC().Truncate(time.Microsecond)
	inv.IsActive = false
	inv.CompletedAt = &at
	inv.UpdatedAt = at
	return inv.TotalValue(), nil
}

// Pause freezes accrual after crediting time up to now
func (inv *Investment) Pause(now time.Time, reason string) error {
	if reason == "" {
		return NewValidationError("pause reason is required")
	}
	if !inv.IsActive || inv.IsPaused {
		return NewTransitionError("investment", inv.State(), "paused")
	}
	inv.Accrue(now)
	inv.IsPaused = true
	inv.PauseReason = reason
	inv.UpdatedAt = now.UTC().Truncate(time.Microsecond)
	return nil
}

// Resume restarts accrual from now. The paused span is never credited and EndDate stays put.
func (inv *Investment) Resume(now time.Time) error {
	if !inv.IsActive || !inv.IsPaused {
		return NewTransitionError("investment", inv.State(), "active")
	}
	at := now.UTC().Truncate(time.Microsecond)
	inv.IsPaused = false
	inv.PauseReason = ""
	if at.After(inv.LastAccruedAt) {
		inv.LastAccruedAt = at
	}
	inv.UpdatedAt = at
	return nil
}

// TotalValue is principal plus net profit
func (inv *Investment) TotalValue() decimal.Decimal {
	return inv.Amount.Add(inv.CurrentProfit)
}

// State is a readable label for the lifecycle flags
func (inv *Investment) State() string {
	switch {
	case !inv.IsActive:
		return "completed"
	case inv.IsPaused:
		return "paused"
	default:
		return "active"
	}
}
