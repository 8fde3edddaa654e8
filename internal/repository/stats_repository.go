package repository

import (
	"context"
	"fmt"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// StatsRepositoryImpl aggregates the admin dashboard figures
type StatsRepositoryImpl struct {
	db *infra.PoolRouter
}

// NewStatsRepository creates a new StatsRepository
func NewStatsRepository(db *infra.PoolRouter) domain.StatsRepository {
	return &StatsRepositoryImpl{db: db}
}

// GetStatistics computes platform totals in a single round trip
func (r *StatsRepositoryImpl) GetStatistics(ctx context.Context) (*domain.PlatformStats, error) {
	var s domain.PlatformStats
	err := r.db.Pool().QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM transactions WHERE status = 'pending'),
			(SELECT COUNT(*) FROM investments WHERE is_active AND NOT is_paused),
			(SELECT COUNT(*) FROM investments WHERE is_active AND is_paused),
			(SELECT COALESCE(SUM(balance), 0) FROM users),
			(SELECT COALESCE(SUM(reserved_balance), 0) FROM users),
			(SELECT COALESCE(SUM(amount), 0) FROM investments WHERE is_active),
			(SELECT COALESCE(SUM(current_profit), 0) FROM investments)
	`).Scan(
		&s.Users,
		&s.PendingTransactions,
		&s.ActiveInvestments,
		&s.PausedInvestments,
		&s.TotalBalance,
		&s.TotalReserved,
		&s.TotalInvested,
		&s.TotalProfit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return &s, nil
}
