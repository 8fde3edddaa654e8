package domain

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept for currency amounts (NUMERIC(28,8))
const MoneyScale = 8

// RoundMoney rounds an amount to the persisted scale
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ParseAmount parses a positive currency amount from user input
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError("invalid amount %q", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, NewValidationError("amount must be greater than zero")
	}
	if d.Exponent() < -MoneyScale {
		return decimal.Zero, NewValidationError("amount supports at most %d decimal places", MoneyScale)
	}
	return d, nil
}
