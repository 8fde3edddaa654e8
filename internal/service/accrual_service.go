package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	"yieldvault/internal/utils"
)

// AccrualService advances simulated profit on running investments and pays out matured ones
type AccrualService struct {
	ledger      domain.LedgerStore
	investments domain.InvestmentRepository
	events      domain.EventPublisher
	clock       utils.Clock
	metrics     *infra.Metrics
	logger      *slog.Logger
}

// NewAccrualService creates a new AccrualService
func NewAccrualService(
	ledger domain.LedgerStore,
	investments domain.InvestmentRepository,
	events domain.EventPublisher,
	clock utils.Clock,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *AccrualService {
	return &AccrualService{
		ledger:      ledger,
		investments: investments,
		events:      events,
		clock:       clock,
		metrics:     metrics,
		logger:      logger.With("component", "accrual"),
	}
}

// TickResult summarizes one accrual pass
type TickResult struct {
	Visited   int
	Accrued   int
	Completed int
	Failed    int
}

// RunTick visits every active investment once. A failing investment is logged
// and retried on the next tick; it never stops the others.
func (s *AccrualService) RunTick(ctx context.Context) (TickResult, error) {
	started := time.Now()
	s.metrics.AccrualRuns.Inc()
	defer func() { s.metrics.AccrualDuration.Observe(time.Since(started).Seconds()) }()

	var res TickResult
	ids, err := s.investments.GetActiveIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list active investments: %w", err)
	}
	if len(ids) == 0 {
		return res, nil
	}

	now := s.clock.Now()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Visited++

		outcome, err := s.accrue(ctx, id, now)
		if err != nil {
			res.Failed++
			s.metrics.AccrualFailures.Inc()
			if domain.KindOf(err) == domain.KindConcurrencyConflict {
				s.metrics.LedgerConflicts.Inc()
			}
			s.logger.Error("accrual failed", "investment_id", id, "error", err)
			continue
		}
		if outcome.accrued {
			res.Accrued++
			s.metrics.InvestmentsAccrued.Inc()
		}
		if outcome.completed {
			res.Completed++
			s.metrics.InvestmentsComplete.Inc()
		}
		s.publish(ctx, outcome)
	}

	s.logger.Info("accrual tick finished",
		"visited", res.Visited, "accrued", res.Accrued, "completed", res.Completed, "failed", res.Failed)
	return res, nil
}

// Run is the scheduler entry point
func (s *AccrualService) Run(ctx context.Context) error {
	res, err := s.RunTick(ctx)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d investments failed to accrue", res.Failed, res.Visited)
	}
	return nil
}

type accrualOutcome struct {
	investment   domain.Investment
	notification *domain.Notification
	accrued      bool
	completed    bool
}

func (s *AccrualService) accrue(ctx context.Context, id uuid.UUID, now time.Time) (*accrualOutcome, error) {
	out := &accrualOutcome{}
	err := s.ledger.UpdateInvestment(ctx, id, func(ctx context.Context, tx domain.LedgerTx, inv *domain.Investment) error {
		*out = accrualOutcome{}
		out.accrued = inv.Accrue(now)

		if inv.Matured(now) {
			payout, err := inv.Complete(now)
			if err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, payout); err != nil {
				return fmt.Errorf("failed to credit payout: %w", err)
			}
			n := domain.NewNotification(inv.UserID, domain.NotifySuccess, "Investment completed",
				fmt.Sprintf("Your %s investment of %s completed. %s (profit %s) was credited to your balance.",
					inv.PlanID, inv.Amount.StringFixed(2), payout.StringFixed(2), inv.CurrentProfit.StringFixed(2)),
				now)
			if err := tx.Notify(ctx, n); err != nil {
				return err
			}
			out.notification = n
			out.completed = true
		}

		out.investment = *inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// publish pushes events for a committed accrual
func (s *AccrualService) publish(ctx context.Context, o *accrualOutcome) {
	inv := o.investment
	at := s.clock.Now()
	if o.accrued {
		s.events.Publish(ctx, domain.Event{
			Kind:    domain.EventInvestmentUpdate,
			UserID:  inv.UserID,
			Payload: InvestmentView(&inv),
			At:      at,
		})
	}
	if o.completed {
		s.events.Publish(ctx, domain.Event{
			Kind:    domain.EventInvestmentStatusChange,
			UserID:  inv.UserID,
			Payload: InvestmentView(&inv),
			At:      at,
		})
		s.events.Publish(ctx, domain.Event{
			Kind:    domain.EventNotification,
			UserID:  inv.UserID,
			Payload: o.notification,
			At:      at,
		})
	}
}

// InvestmentPayload is the pushed and polled representation of an investment
type InvestmentPayload struct {
	*domain.Investment
	State         string  `json:"state"`
	TotalValue    string  `json:"total_value"`
	ProgressRatio float64 `json:"progress"`
}

// InvestmentView decorates inv with derived fields for clients
func InvestmentView(inv *domain.Investment) InvestmentPayload {
	progress := 1.0
	if inv.IsActive {
		total := inv.EndDate.Sub(inv.StartDate)
		if total > 0 {
			progress = float64(time.Duration(inv.ActiveNanos)) / float64(total)
		}
		if progress > 1 {
			progress = 1
		}
	}
	return InvestmentPayload{
		Investment:    inv,
		State:         inv.State(),
		TotalValue:    inv.TotalValue().StringFixed(8),
		ProgressRatio: progress,
	}
}
