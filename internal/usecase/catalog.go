package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"yieldvault/internal/domain"
	"yieldvault/internal/utils"
)

// SeedPlans inserts catalog plans that do not exist yet. Plans already in the
// database are left alone so admin edits survive restarts.
func SeedPlans(
	ctx context.Context,
	repo domain.PlanRepository,
	seed []*domain.InvestmentPlan,
	clock utils.Clock,
	logger *slog.Logger,
) (int, error) {
	created := 0
	for _, p := range seed {
		_, err := repo.GetByID(ctx, p.ID)
		if err == nil {
			continue
		}
		if domain.KindOf(err) != domain.KindNotFound {
			return created, err
		}

		now := clock.Now()
		p.UpdatedAt = now
		if err := repo.Upsert(ctx, p, domain.NewAuditEntry(uuid.Nil, "plan.seed", p.ID, p.Name, now)); err != nil {
			return created, err
		}
		created++
		logger.Info("seeded plan", "plan_id", p.ID, "rate", p.DailyReturnRate, "days", p.DurationDays)
	}
	return created, nil
}
