package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// PlanRepositoryImpl implements the PlanRepository interface
type PlanRepositoryImpl struct {
	db *infra.PoolRouter
}

// NewPlanRepository creates a new PlanRepository
func NewPlanRepository(db *infra.PoolRouter) domain.PlanRepository {
	return &PlanRepositoryImpl{db: db}
}

// GetAll retrieves the catalog ordered by minimum amount
func (r *PlanRepositoryImpl) GetAll(ctx context.Context, activeOnly bool) ([]*domain.InvestmentPlan, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+planColumns+`
		FROM investment_plans
		WHERE is_active OR NOT $1
		ORDER BY min_amount ASC, id ASC
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []*domain.InvestmentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}

	return plans, rows.Err()
}

// GetByID retrieves a plan by ID
func (r *PlanRepositoryImpl) GetByID(ctx context.Context, id string) (*domain.InvestmentPlan, error) {
	p, err := scanPlan(r.db.Pool().QueryRow(ctx, `SELECT `+planColumns+` FROM investment_plans WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "plan", id)
	}
	return p, nil
}

// Upsert writes a plan and its audit entry in one transaction
func (r *PlanRepositoryImpl) Upsert(ctx context.Context, plan *domain.InvestmentPlan, audit *domain.AuditEntry) error {
	return r.db.Write(func(pool *pgxpool.Pool) error {
		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if err := upsertPlan(ctx, tx, plan); err != nil {
				return err
			}
			if audit != nil {
				return insertAudit(ctx, tx, audit)
			}
			return nil
		})
	})
}

func upsertPlan(ctx context.Context, q querier, p *domain.InvestmentPlan) error {
	_, err := q.Exec(ctx, `
		INSERT INTO investment_plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			daily_return_rate = EXCLUDED.daily_return_rate,
			roi_percentage = EXCLUDED.roi_percentage,
			duration_days = EXCLUDED.duration_days,
			performance_fee_percentage = EXCLUDED.performance_fee_percentage,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`,
		p.ID,
		p.Name,
		p.DailyReturnRate,
		p.RoiPercentage,
		p.DurationDays,
		p.PerformanceFeePercentage,
		p.MinAmount,
		p.MaxAmount,
		p.IsActive,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plan %s: %w", p.ID, err)
	}
	return nil
}
