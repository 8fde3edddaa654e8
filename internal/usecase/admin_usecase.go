package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"yieldvault/internal/domain"
	"yieldvault/internal/service"
	"yieldvault/internal/utils"
)

// AdminUsecase holds the privileged overrides. Each call re-checks the actor's
// capabilities against the stored user and writes an audit row with the change.
type AdminUsecase struct {
	ledger       domain.LedgerStore
	users        domain.UserRepository
	plans        domain.PlanRepository
	settings     domain.SettingsRepository
	stats        domain.StatsRepository
	transactions *TransactionUsecase
	events       domain.EventPublisher
	clock        utils.Clock
	logger       *slog.Logger
}

// NewAdminUsecase creates a new AdminUsecase
func NewAdminUsecase(
	ledger domain.LedgerStore,
	users domain.UserRepository,
	plans domain.PlanRepository,
	settings domain.SettingsRepository,
	stats domain.StatsRepository,
	transactions *TransactionUsecase,
	events domain.EventPublisher,
	clock utils.Clock,
	logger *slog.Logger,
) *AdminUsecase {
	return &AdminUsecase{
		ledger:       ledger,
		users:        users,
		plans:        plans,
		settings:     settings,
		stats:        stats,
		transactions: transactions,
		events:       events,
		clock:        clock,
		logger:       logger.With("component", "admin"),
	}
}

// Authorize loads the actor and checks the capability. manage=false only needs read access.
func (a *AdminUsecase) Authorize(ctx context.Context, actorID uuid.UUID, manage bool) (*domain.User, error) {
	actor, err := a.users.GetByID(ctx, actorID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.ErrForbidden
		}
		return nil, err
	}
	if manage && !actor.CanManage() {
		return nil, domain.ErrForbidden
	}
	if !manage && !actor.CanReview() {
		return nil, domain.ErrForbidden
	}
	return actor, nil
}

// ConfirmTransaction settles a pending transaction
func (a *AdminUsecase) ConfirmTransaction(ctx context.Context, actorID, transactionID uuid.UUID) (*domain.Transaction, error) {
	if _, err := a.Authorize(ctx, actorID, true); err != nil {
		return nil, err
	}
	return a.transactions.Confirm(ctx, actorID, transactionID)
}

// RejectTransaction refuses a pending transaction with a reason shown to the user
func (a *AdminUsecase) RejectTransaction(ctx context.Context, actorID, transactionID uuid.UUID, reason string) (*domain.Transaction, error) {
	if _, err := a.Authorize(ctx, actorID, true); err != nil {
		return nil, err
	}
	return a.transactions.Reject(ctx, actorID, transactionID, reason)
}

// PendingTransactions lists the review queue
func (a *AdminUsecase) PendingTransactions(ctx context.Context, actorID uuid.UUID, status string, limit int) ([]*domain.Transaction, error) {
	if _, err := a.Authorize(ctx, actorID, false); err != nil {
		return nil, err
	}
	return a.transactions.ListByStatus(ctx, status, limit)
}

// PauseInvestment freezes accrual. Profit up to now is kept; the paused span is never credited.
func (a *AdminUsecase) PauseInvestment(ctx context.Context, actorID, investmentID uuid.UUID, reason string) (*domain.Investment, error) {
	if _, err := a.Authorize(ctx, actorID, true); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("pause reason is required")
	}

	return a.changeInvestment(ctx, investmentID, func(ctx context.Context, tx domain.LedgerTx, inv *domain.Investment) (*domain.Notification, error) {
		now := a.clock.Now()
		if err := inv.Pause(now, reason); err != nil {
			return nil, err
		}
		if err := tx.Audit(ctx, domain.NewAuditEntry(actorID, "investment.pause", inv.ID.String(), reason, now)); err != nil {
			return nil, err
		}
		return domain.NewNotification(inv.UserID, domain.NotifyWarning, "Investment paused",
			fmt.Sprintf("Your %s investment was paused: %s", inv.PlanID, reason), now), nil
	})
}

// ResumeInvestment restarts accrual from now. The end date does not move.
func (a *AdminUsecase) ResumeInvestment(ctx context.Context, actorID, investmentID uuid.UUID) (*domain.Investment, error) {
	if _, err := a.Authorize(ctx, actorID, true); err != nil {
		return nil, err
	}

	return a.changeInvestment(ctx, investmentID, func(ctx context.Context, tx domain.LedgerTx, inv *domain.Investment) (*domain.Notification, error) {
		now := a.clock.Now()
		if err := inv.Resume(now); err != nil {
			return nil, err
		}
		if err := tx.Audit(ctx, domain.NewAuditEntry(actorID, "investment.resume", inv.ID.String(), "", now)); err != nil {
			return nil, err
		}
		return domain.NewNotification(inv.UserID, domain.NotifyInfo, "Investment resumed",
			fmt.Sprintf("Your %s investment is accruing again.", inv.PlanID), now), nil
	})
}

func (a *AdminUsecase) changeInvestment(
	ctx context.Context,
	investmentID uuid.UUID,
	fn func(ctx context.Context, tx domain.LedgerTx, inv *domain.Investment) (*domain.Notification, error),
) (*domain.Investment, error) {
	var (
		result domain.Investment
		n      *domain.Notification
	)
	err := a.ledger.UpdateInvestment(ctx, investmentID, func(ctx context.Context, tx domain.LedgerTx, inv *domain.Investment) error {
		var err error
		n, err = fn(ctx, tx, inv)
		if err != nil {
			return err
		}
		if err := tx.Notify(ctx, n); err != nil {
			return err
		}
		result = *inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	at := a.clock.Now()
	a.events.Publish(ctx, domain.Event{
		Kind:    domain.EventInvestmentStatusChange,
		UserID:  result.UserID,
		Payload: service.InvestmentView(&result),
		At:      at,
	})
	a.events.Publish(ctx, domain.Event{Kind: domain.EventNotification, UserID: n.UserID, Payload: n, At: at})
	a.logger.Info("investment state changed", "investment_id", result.ID, "state", result.State())
	return &result, nil
}

// AdjustBalance credits or debits a user's balance by hand. A debit can never
// take the balance below zero or below funds reserved for pending requests.
func (a *AdminUsecase) AdjustBalance(ctx context.Context, actorID, userID uuid.UUID, delta decimal.Decimal, note string) (*domain.User, error) {
	if _, err := a.Authorize(ctx, actorID, true); err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, domain.NewValidationError("a note is required for manual balance changes")
	}
	if delta.IsZero() {
		return nil, domain.NewValidationError("balance change must not be zero")
	}
	if !domain.RoundMoney(delta).Equal(delta) {
		return nil, domain.NewValidationError("amount has more than %d decimal places", domain.MoneyScale)
	}

	var (
		result domain.User
		n      *domain.Notification
	)
	err := a.ledger.Update(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		now := a.clock.Now()
		if err := tx.AdjustBalance(ctx, delta); err != nil {
			return err
		}
		detail := fmt.Sprintf("%s (%s)", delta.String(), note)
		if err := tx.Audit(ctx, domain.NewAuditEntry(actorID, "user.balance_adjust", userID.String(), detail, now)); err != nil {
			return err
		}
		n = domain.NewNotification(userID, domain.NotifyInfo, "Balance adjusted",
			fmt.Sprintf("Your balance was adjusted by %s: %s", delta.StringFixed(2), note), now)
		if err := tx.Notify(ctx, n); err != nil {
			return err
		}
		result = *tx.User()
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.events.Publish(ctx, domain.Event{Kind: domain.EventNotification, UserID: userID, Payload: n, At: n.CreatedAt})
	a.logger.Warn("manual balance adjustment", "actor_id", actorID, "user_id", userID, "delta", delta)
	return &result, nil
}

// Settings lists the platform settings
func (a *AdminUsecase) Settings(ctx context.Context, actorID uuid.UUID) ([]*domain.PlatformSetting, error) {
	if _, err := a.Authorize(ctx, actorID, false); err != nil {
		return nil, err
	}
	return a.settings.GetAll(ctx)
}

// UpdateSetting changes a platform setting. free_plan_rate also reprices the
// free plan for investments created afterwards.
func (a *AdminUsecase) UpdateSetting(ctx context.Context, actorID uuid.UUID, key, value string) (*domain.PlatformSetting, error) {
	if _, err := a.Authorize(ctx, actorID, true); err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if err := domain.ValidateSetting(key, value); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	setting := &domain.PlatformSetting{Key: key, Value: value, UpdatedBy: &actorID, UpdatedAt: now}
	audit := domain.NewAuditEntry(actorID, "settings.update", key, value, now)
	if err := a.settings.Set(ctx, setting, audit); err != nil {
		return nil, err
	}
	a.logger.Info("setting updated", "actor_id", actorID, "key", key)
	return setting, nil
}

// UpsertPlan creates or edits a plan. Running investments keep the terms they were opened with.
func (a *AdminUsecase) UpsertPlan(ctx context.Context, actorID uuid.UUID, plan *domain.InvestmentPlan) (*domain.InvestmentPlan, error) {
	if _, err := a.Authorize(ctx, actorID, true); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	plan.UpdatedAt = now
	detail := fmt.Sprintf("rate=%s fee=%s days=%d active=%t", plan.DailyReturnRate, plan.PerformanceFeePercentage, plan.DurationDays, plan.IsActive)
	if err := a.plans.Upsert(ctx, plan, domain.NewAuditEntry(actorID, "plan.upsert", plan.ID, detail, now)); err != nil {
		return nil, err
	}
	a.logger.Info("plan saved", "actor_id", actorID, "plan_id", plan.ID)
	return plan, nil
}

// Statistics returns the dashboard aggregates
func (a *AdminUsecase) Statistics(ctx context.Context, actorID uuid.UUID) (*domain.PlatformStats, error) {
	if _, err := a.Authorize(ctx, actorID, false); err != nil {
		return nil, err
	}
	return a.stats.GetStatistics(ctx)
}

// Users lists accounts page by page
func (a *AdminUsecase) Users(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*domain.User, error) {
	if _, err := a.Authorize(ctx, actorID, false); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	return a.users.GetAll(ctx, clampLimit(limit), offset)
}
