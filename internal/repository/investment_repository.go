package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// InvestmentRepositoryImpl implements the InvestmentRepository interface
type InvestmentRepositoryImpl struct {
	db *infra.PoolRouter
}

// NewInvestmentRepository creates a new InvestmentRepository
func NewInvestmentRepository(db *infra.PoolRouter) domain.InvestmentRepository {
	return &InvestmentRepositoryImpl{db: db}
}

// GetByID retrieves an investment by ID
func (r *InvestmentRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.Investment, error) {
	inv, err := scanInvestment(r.db.Pool().QueryRow(ctx,
		`SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "investment", id)
	}
	return inv, nil
}

// GetByUserID retrieves all investments for a user, newest first
func (r *InvestmentRepositoryImpl) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Investment, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	var investments []*domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investments: %w", err)
	}

	return investments, nil
}

// GetActiveIDs lists every investment that has not completed, paused ones included
func (r *InvestmentRepositoryImpl) GetActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id FROM investments WHERE is_active ORDER BY end_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active investments: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan investment id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
