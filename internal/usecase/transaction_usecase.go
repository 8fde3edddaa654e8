package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	"yieldvault/internal/service"
	"yieldvault/internal/utils"
)

// TransactionConfig holds the submission limits
type TransactionConfig struct {
	MinDeposit             decimal.Decimal
	MinWithdrawal          decimal.Decimal
	AutoConfirmInvestments bool
}

// TransactionUsecase drives deposits, withdrawals and investment requests from
// pending to a terminal status. Every step runs under the owner's ledger lock.
type TransactionUsecase struct {
	ledger       domain.LedgerStore
	plans        domain.PlanRepository
	transactions domain.TransactionRepository
	investments  domain.InvestmentRepository
	users        domain.UserRepository
	events       domain.EventPublisher
	clock        utils.Clock
	metrics      *infra.Metrics
	logger       *slog.Logger
	cfg          TransactionConfig
}

// NewTransactionUsecase creates a new TransactionUsecase
func NewTransactionUsecase(
	ledger domain.LedgerStore,
	plans domain.PlanRepository,
	transactions domain.TransactionRepository,
	investments domain.InvestmentRepository,
	users domain.UserRepository,
	events domain.EventPublisher,
	clock utils.Clock,
	metrics *infra.Metrics,
	logger *slog.Logger,
	cfg TransactionConfig,
) *TransactionUsecase {
	return &TransactionUsecase{
		ledger:       ledger,
		plans:        plans,
		transactions: transactions,
		investments:  investments,
		users:        users,
		events:       events,
		clock:        clock,
		metrics:      metrics,
		logger:       logger.With("component", "transactions"),
		cfg:          cfg,
	}
}

// SubmitDeposit records a pending deposit awaiting admin confirmation
func (u *TransactionUsecase) SubmitDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txHash string) (*domain.Transaction, error) {
	if err := checkAmount(amount, u.cfg.MinDeposit, "deposit"); err != nil {
		return nil, err
	}
	txHash = strings.TrimSpace(txHash)
	if err := domain.ValidateTxHash(txHash); err != nil {
		return nil, err
	}

	now := u.clock.Now()
	t := domain.NewTransaction(userID, domain.TxDeposit, amount, now)
	t.TransactionHash = txHash
	n := domain.NewNotification(userID, domain.NotifyInfo, "Deposit submitted",
		fmt.Sprintf("Your deposit of %s is awaiting confirmation.", amount.StringFixed(2)), now)

	err := u.ledger.Update(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return err
		}
		return tx.Notify(ctx, n)
	})
	if err != nil {
		return nil, u.observe(err)
	}

	u.metrics.TransactionsSubmitted.WithLabelValues(domain.TxDeposit).Inc()
	u.publishNotification(ctx, n)
	u.logger.Info("deposit submitted", "transaction_id", t.ID, "user_id", userID, "amount", amount)
	return t, nil
}

// SubmitWithdrawal reserves funds for a pending withdrawal. Withdrawals are refused
// while the user still has an investment running.
func (u *TransactionUsecase) SubmitWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, address string) (*domain.Transaction, error) {
	if err := checkAmount(amount, u.cfg.MinWithdrawal, "withdrawal"); err != nil {
		return nil, err
	}
	address = strings.TrimSpace(address)
	if err := domain.ValidateAddress(address); err != nil {
		return nil, err
	}

	now := u.clock.Now()
	t := domain.NewTransaction(userID, domain.TxWithdrawal, amount, now)
	t.Address = address
	n := domain.NewNotification(userID, domain.NotifyInfo, "Withdrawal requested",
		fmt.Sprintf("Your withdrawal of %s to %s is awaiting approval.", amount.StringFixed(2), address), now)

	err := u.ledger.Update(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		active, err := tx.CountActiveInvestments(ctx)
		if err != nil {
			return err
		}
		if active > 0 {
			return domain.ErrActiveInvestment
		}
		if err := tx.Reserve(ctx, amount); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return err
		}
		return tx.Notify(ctx, n)
	})
	if err != nil {
		return nil, u.observe(err)
	}

	u.metrics.TransactionsSubmitted.WithLabelValues(domain.TxWithdrawal).Inc()
	u.publishNotification(ctx, n)
	u.logger.Info("withdrawal submitted", "transaction_id", t.ID, "user_id", userID, "amount", amount)
	return t, nil
}

// SubmitInvestment reserves the principal for a plan. With auto confirmation on,
// the investment starts immediately through the regular confirm path.
func (u *TransactionUsecase) SubmitInvestment(ctx context.Context, userID uuid.UUID, planID string, amount decimal.Decimal) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("investment amount must be positive")
	}
	if !domain.RoundMoney(amount).Equal(amount) {
		return nil, domain.NewValidationError("amount has more than %d decimal places", domain.MoneyScale)
	}
	plan, err := u.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := plan.CheckAmount(amount); err != nil {
		return nil, err
	}

	now := u.clock.Now()
	t := domain.NewTransaction(userID, domain.TxInvestment, amount, now)
	t.PlanID = plan.ID

	// auto confirmation notifies from Confirm
	var n *domain.Notification
	if !u.cfg.AutoConfirmInvestments {
		n = domain.NewNotification(userID, domain.NotifyInfo, "Investment requested",
			fmt.Sprintf("Your investment of %s in %s is awaiting approval.", amount.StringFixed(2), plan.Name), now)
	}

	err = u.ledger.Update(ctx, userID, func(ctx context.Context, tx domain.LedgerTx) error {
		if err := tx.Reserve(ctx, amount); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return err
		}
		if n != nil {
			return tx.Notify(ctx, n)
		}
		return nil
	})
	if err != nil {
		return nil, u.observe(err)
	}
	u.metrics.TransactionsSubmitted.WithLabelValues(domain.TxInvestment).Inc()
	u.logger.Info("investment submitted", "transaction_id", t.ID, "user_id", userID, "plan_id", plan.ID, "amount", amount)

	if n != nil {
		u.publishNotification(ctx, n)
		return t, nil
	}
	return u.Confirm(ctx, uuid.Nil, t.ID)
}

// Confirm settles a pending transaction. actorID is uuid.Nil for automatic confirmation.
func (u *TransactionUsecase) Confirm(ctx context.Context, actorID, transactionID uuid.UUID) (*domain.Transaction, error) {
	var (
		result  domain.Transaction
		created *domain.Investment
		n       *domain.Notification
	)

	err := u.ledger.UpdateTransaction(ctx, transactionID, func(ctx context.Context, tx domain.LedgerTx, t *domain.Transaction) error {
		created, n = nil, nil
		now := u.clock.Now()
		if err := t.Transition(domain.StatusConfirmed, now); err != nil {
			return err
		}

		switch t.Type {
		case domain.TxDeposit:
			if err := tx.AdjustBalance(ctx, t.Amount); err != nil {
				return err
			}
			n = domain.NewNotification(t.UserID, domain.NotifySuccess, "Deposit confirmed",
				fmt.Sprintf("%s has been credited to your balance.", t.Amount.StringFixed(2)), now)

		case domain.TxWithdrawal:
			if err := tx.Release(ctx, t.Amount); err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, t.Amount.Neg()); err != nil {
				return err
			}
			n = domain.NewNotification(t.UserID, domain.NotifySuccess, "Withdrawal approved",
				fmt.Sprintf("Your withdrawal of %s to %s has been sent.", t.Amount.StringFixed(2), t.Address), now)

		case domain.TxInvestment:
			plan, err := u.plans.GetByID(ctx, t.PlanID)
			if err != nil {
				return err
			}
			if err := tx.Release(ctx, t.Amount); err != nil {
				return err
			}
			if err := tx.AdjustBalance(ctx, t.Amount.Neg()); err != nil {
				return err
			}
			inv := domain.NewInvestment(t.UserID, plan, t.Amount, now)
			if err := tx.CreateInvestment(ctx, inv); err != nil {
				return err
			}
			t.InvestmentID = &inv.ID
			created = inv
			n = domain.NewNotification(t.UserID, domain.NotifySuccess, "Investment started",
				fmt.Sprintf("Your %s investment of %s is now active for %d days.", plan.Name, t.Amount.StringFixed(2), plan.DurationDays), now)

		default:
			return domain.NewValidationError("unknown transaction type %q", t.Type)
		}

		if err := tx.Notify(ctx, n); err != nil {
			return err
		}
		if actorID != uuid.Nil {
			audit := domain.NewAuditEntry(actorID, "transaction.confirm", t.ID.String(), t.Type+" "+t.Amount.String(), now)
			if err := tx.Audit(ctx, audit); err != nil {
				return err
			}
		}
		result = *t
		return nil
	})
	if err != nil {
		return nil, u.observe(err)
	}

	u.metrics.TransactionsSettled.WithLabelValues(result.Type, domain.StatusConfirmed).Inc()
	u.publishNotification(ctx, n)
	if created != nil {
		u.events.Publish(ctx, domain.Event{
			Kind:    domain.EventInvestmentStatusChange,
			UserID:  created.UserID,
			Payload: service.InvestmentView(created),
			At:      u.clock.Now(),
		})
	}
	u.logger.Info("transaction confirmed", "transaction_id", result.ID, "type", result.Type, "actor_id", actorID)
	return &result, nil
}

// Reject closes a pending transaction without moving funds. Any reservation is released.
func (u *TransactionUsecase) Reject(ctx context.Context, actorID, transactionID uuid.UUID, reason string) (*domain.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("rejection reason is required")
	}

	var (
		result domain.Transaction
		n      *domain.Notification
	)
	err := u.ledger.UpdateTransaction(ctx, transactionID, func(ctx context.Context, tx domain.LedgerTx, t *domain.Transaction) error {
		now := u.clock.Now()
		if err := t.Transition(domain.StatusRejected, now); err != nil {
			return err
		}
		if t.Reserves() {
			if err := tx.Release(ctx, t.Amount); err != nil {
				return err
			}
		}
		t.Notes = reason

		n = domain.NewNotification(t.UserID, domain.NotifyError, titleCase(t.Type)+" rejected",
			fmt.Sprintf("Your %s of %s was rejected: %s", t.Type, t.Amount.StringFixed(2), reason), now)
		if err := tx.Notify(ctx, n); err != nil {
			return err
		}
		audit := domain.NewAuditEntry(actorID, "transaction.reject", t.ID.String(), reason, now)
		if err := tx.Audit(ctx, audit); err != nil {
			return err
		}
		result = *t
		return nil
	})
	if err != nil {
		return nil, u.observe(err)
	}

	u.metrics.TransactionsSettled.WithLabelValues(result.Type, domain.StatusRejected).Inc()
	u.publishNotification(ctx, n)
	u.logger.Info("transaction rejected", "transaction_id", result.ID, "actor_id", actorID, "reason", reason)
	return &result, nil
}

// Cancel withdraws the user's own request. It succeeds only if the request is
// still pending when the lock is taken.
func (u *TransactionUsecase) Cancel(ctx context.Context, userID, transactionID uuid.UUID) (*domain.Transaction, error) {
	var (
		result domain.Transaction
		n      *domain.Notification
	)
	err := u.ledger.UpdateTransaction(ctx, transactionID, func(ctx context.Context, tx domain.LedgerTx, t *domain.Transaction) error {
		if t.UserID != userID {
			return domain.NewNotFoundError("transaction", transactionID)
		}
		now := u.clock.Now()
		if err := t.Transition(domain.StatusCancelled, now); err != nil {
			return err
		}
		if t.Reserves() {
			if err := tx.Release(ctx, t.Amount); err != nil {
				return err
			}
		}
		n = domain.NewNotification(t.UserID, domain.NotifyInfo, titleCase(t.Type)+" cancelled",
			fmt.Sprintf("Your %s of %s was cancelled.", t.Type, t.Amount.StringFixed(2)), now)
		if err := tx.Notify(ctx, n); err != nil {
			return err
		}
		result = *t
		return nil
	})
	if err != nil {
		return nil, u.observe(err)
	}

	u.metrics.TransactionsSettled.WithLabelValues(result.Type, domain.StatusCancelled).Inc()
	u.publishNotification(ctx, n)
	return &result, nil
}

// ListForUser returns the user's transactions, newest first
func (u *TransactionUsecase) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	return u.transactions.GetByUserID(ctx, userID, clampLimit(limit))
}

// ListByStatus returns the admin queue; an empty status lists everything
func (u *TransactionUsecase) ListByStatus(ctx context.Context, status string, limit int) ([]*domain.Transaction, error) {
	if status != "" && status != domain.StatusPending && !domain.IsTerminal(status) {
		return nil, domain.NewValidationError("unknown status %q", status)
	}
	return u.transactions.GetByStatus(ctx, status, clampLimit(limit))
}

// Portfolio is the user's balance together with their running positions
type Portfolio struct {
	User        *domain.User                `json:"user"`
	Available   decimal.Decimal             `json:"available_balance"`
	Invested    decimal.Decimal             `json:"invested"`
	Profit      decimal.Decimal             `json:"profit"`
	TotalValue  decimal.Decimal             `json:"total_value"`
	Investments []service.InvestmentPayload `json:"investments"`
}

// Portfolio reports balance plus principal and net profit of active investments
func (u *TransactionUsecase) Portfolio(ctx context.Context, userID uuid.UUID) (*Portfolio, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	investments, err := u.investments.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		User:        user,
		Available:   user.Available(),
		Invested:    decimal.Zero,
		Profit:      decimal.Zero,
		Investments: make([]service.InvestmentPayload, 0, len(investments)),
	}
	for _, inv := range investments {
		p.Investments = append(p.Investments, service.InvestmentView(inv))
		if !inv.IsActive {
			continue
		}
		p.Invested = p.Invested.Add(inv.Amount)
		p.Profit = p.Profit.Add(inv.CurrentProfit)
	}
	p.TotalValue = user.Balance.Add(p.Invested).Add(p.Profit)
	return p, nil
}

func (u *TransactionUsecase) publishNotification(ctx context.Context, n *domain.Notification) {
	if n == nil {
		return
	}
	u.events.Publish(ctx, domain.Event{
		Kind:    domain.EventNotification,
		UserID:  n.UserID,
		Payload: n,
		At:      n.CreatedAt,
	})
}

func (u *TransactionUsecase) observe(err error) error {
	if domain.KindOf(err) == domain.KindConcurrencyConflict {
		u.metrics.LedgerConflicts.Inc()
	}
	return err
}

func checkAmount(amount, minimum decimal.Decimal, what string) error {
	if !amount.IsPositive() {
		return domain.NewValidationError("%s amount must be positive", what)
	}
	if !domain.RoundMoney(amount).Equal(amount) {
		return domain.NewValidationError("amount has more than %d decimal places", domain.MoneyScale)
	}
	if amount.LessThan(minimum) {
		return domain.NewValidationError("minimum %s is %s", what, minimum.String())
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
