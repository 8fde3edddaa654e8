package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"yieldvault/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, username, password_hash, wallet_address, balance, reserved_balance,
	is_admin, is_support_admin, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.WalletAddress,
		&u.Balance,
		&u.ReservedBalance,
		&u.IsAdmin,
		&u.IsSupportAdmin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

const investmentColumns = `id, user_id, plan_id, amount, current_profit, daily_return_rate,
	performance_fee_percentage, duration_days, start_date, end_date, last_accrued_at, active_nanos,
	is_active, is_paused, pause_reason, completed_at, created_at, updated_at`

func scanInvestment(row pgx.Row) (*domain.Investment, error) {
	inv := &domain.Investment{}
	err := row.Scan(
		&inv.ID,
		&inv.UserID,
		&inv.PlanID,
		&inv.Amount,
		&inv.CurrentProfit,
		&inv.DailyReturnRate,
		&inv.PerformanceFeePercentage,
		&inv.DurationDays,
		&inv.StartDate,
		&inv.EndDate,
		&inv.LastAccruedAt,
		&inv.ActiveNanos,
		&inv.IsActive,
		&inv.IsPaused,
		&inv.PauseReason,
		&inv.CompletedAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	return inv, err
}

const transactionColumns = `id, user_id, type, amount, status, transaction_hash, address, plan_id,
	investment_id, notes, created_at, confirmed_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Type,
		&t.Amount,
		&t.Status,
		&t.TransactionHash,
		&t.Address,
		&t.PlanID,
		&t.InvestmentID,
		&t.Notes,
		&t.CreatedAt,
		&t.ConfirmedAt,
		&t.UpdatedAt,
	)
	return t, err
}

const notificationColumns = `id, user_id, title, message, type, is_read, created_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	n := &domain.Notification{}
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt)
	return n, err
}

const planColumns = `id, name, daily_return_rate, roi_percentage, duration_days,
	performance_fee_percentage, min_amount, max_amount, is_active, updated_at`

func scanPlan(row pgx.Row) (*domain.InvestmentPlan, error) {
	p := &domain.InvestmentPlan{}
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.DailyReturnRate,
		&p.RoiPercentage,
		&p.DurationDays,
		&p.PerformanceFeePercentage,
		&p.MinAmount,
		&p.MaxAmount,
		&p.IsActive,
		&p.UpdatedAt,
	)
	return p, err
}

// notFound converts pgx.ErrNoRows into a domain NotFound error
func notFound(err error, entity string, id interface{}) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewNotFoundError(entity, id)
	}
	return err
}

// classify maps serialization and deadlock failures to ConcurrencyConflict
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return domain.NewConflictError(err)
		case "23514":
			// check constraint: the database refused a state the domain should have rejected
			return domain.NewValidationError("constraint %s violated", pgErr.ConstraintName)
		}
	}
	return err
}
