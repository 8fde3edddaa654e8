package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// LedgerStore implements domain.LedgerStore on PostgreSQL.
// Each call is one READ COMMITTED transaction holding SELECT ... FOR UPDATE on the user row.
type LedgerStore struct {
	db *infra.PoolRouter
}

// NewLedgerStore creates a new LedgerStore
func NewLedgerStore(db *infra.PoolRouter) *LedgerStore {
	return &LedgerStore{db: db}
}

// Update locks the user row and runs fn inside the transaction
func (s *LedgerStore) Update(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		ltx, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		return fn(ctx, ltx)
	})
}

// UpdateInvestment locks the owner, re-reads the investment and saves it after fn
func (s *LedgerStore) UpdateInvestment(ctx context.Context, investmentID uuid.UUID, fn func(ctx context.Context, tx domain.LedgerTx, inv *domain.Investment) error) error {
	var ownerID uuid.UUID
	err := s.db.Pool().QueryRow(ctx, `SELECT user_id FROM investments WHERE id = $1`, investmentID).Scan(&ownerID)
	if err != nil {
		return notFound(err, "investment", investmentID)
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		ltx, err := lockUser(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		inv, err := scanInvestment(tx.QueryRow(ctx,
			`SELECT `+investmentColumns+` FROM investments WHERE id = $1 FOR UPDATE`, investmentID))
		if err != nil {
			return notFound(err, "investment", investmentID)
		}

		if err := fn(ctx, ltx, inv); err != nil {
			return err
		}
		return saveInvestment(ctx, tx, inv)
	})
}

// UpdateTransaction locks the owner, re-reads the transaction and saves it after fn
func (s *LedgerStore) UpdateTransaction(ctx context.Context, transactionID uuid.UUID, fn func(ctx context.Context, tx domain.LedgerTx, t *domain.Transaction) error) error {
	var ownerID uuid.UUID
	err := s.db.Pool().QueryRow(ctx, `SELECT user_id FROM transactions WHERE id = $1`, transactionID).Scan(&ownerID)
	if err != nil {
		return notFound(err, "transaction", transactionID)
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		ltx, err := lockUser(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		t, err := scanTransaction(tx.QueryRow(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, transactionID))
		if err != nil {
			return notFound(err, "transaction", transactionID)
		}

		if err := fn(ctx, ltx, t); err != nil {
			return err
		}
		return ltx.SaveTransaction(ctx, t)
	})
}

func (s *LedgerStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return s.db.Write(func(pool *pgxpool.Pool) error {
		tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("failed to begin ledger transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return classify(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return classify(fmt.Errorf("failed to commit ledger transaction: %w", err))
		}
		return nil
	})
}

func lockUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*ledgerTx, error) {
	user, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	return &ledgerTx{tx: tx, user: user}, nil
}

// ledgerTx implements domain.LedgerTx on a locked user row
type ledgerTx struct {
	tx   pgx.Tx
	user *domain.User
}

func (l *ledgerTx) User() *domain.User {
	u := *l.user
	return &u
}

func (l *ledgerTx) AdjustBalance(ctx context.Context, delta decimal.Decimal) error {
	next := *l.user
	if err := next.ApplyDelta(delta); err != nil {
		return err
	}
	return l.writeUser(ctx, &next)
}

func (l *ledgerTx) Reserve(ctx context.Context, amount decimal.Decimal) error {
	next := *l.user
	if err := next.Reserve(amount); err != nil {
		return err
	}
	return l.writeUser(ctx, &next)
}

func (l *ledgerTx) Release(ctx context.Context, amount decimal.Decimal) error {
	next := *l.user
	if err := next.Release(amount); err != nil {
		return err
	}
	return l.writeUser(ctx, &next)
}

func (l *ledgerTx) writeUser(ctx context.Context, next *domain.User) error {
	next.UpdatedAt = time.Now().UTC()
	_, err := l.tx.Exec(ctx, `
		UPDATE users
		SET balance = $1, reserved_balance = $2, updated_at = $3
		WHERE id = $4
	`, next.Balance, next.ReservedBalance, next.UpdatedAt, next.ID)
	if err != nil {
		return fmt.Errorf("failed to update user balance: %w", err)
	}
	l.user = next
	return nil
}

func (l *ledgerTx) CountActiveInvestments(ctx context.Context) (int, error) {
	var n int
	err := l.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM investments WHERE user_id = $1 AND is_active`, l.user.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active investments: %w", err)
	}
	return n, nil
}

func (l *ledgerTx) CreateInvestment(ctx context.Context, inv *domain.Investment) error {
	if inv.UserID != l.user.ID {
		return fmt.Errorf("investment belongs to %s, locked user is %s", inv.UserID, l.user.ID)
	}
	_, err := l.tx.Exec(ctx, `
		INSERT INTO investments (`+investmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, investmentArgs(inv)...)
	if err != nil {
		return fmt.Errorf("failed to create investment: %w", err)
	}
	return nil
}

func (l *ledgerTx) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	if t.UserID != l.user.ID {
		return fmt.Errorf("transaction belongs to %s, locked user is %s", t.UserID, l.user.ID)
	}
	_, err := l.tx.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, transactionArgs(t)...)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (l *ledgerTx) SaveTransaction(ctx context.Context, t *domain.Transaction) error {
	_, err := l.tx.Exec(ctx, `
		UPDATE transactions
		SET status = $1, investment_id = $2, notes = $3, confirmed_at = $4, updated_at = $5
		WHERE id = $6 AND user_id = $7
	`, t.Status, t.InvestmentID, t.Notes, t.ConfirmedAt, t.UpdatedAt, t.ID, l.user.ID)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func (l *ledgerTx) Notify(ctx context.Context, n *domain.Notification) error {
	_, err := l.tx.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.Title, n.Message, n.Type, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (l *ledgerTx) Audit(ctx context.Context, e *domain.AuditEntry) error {
	return insertAudit(ctx, l.tx, e)
}

func saveInvestment(ctx context.Context, q querier, inv *domain.Investment) error {
	_, err := q.Exec(ctx, `
		UPDATE investments
		SET current_profit = $1, last_accrued_at = $2, active_nanos = $3, is_active = $4,
		    is_paused = $5, pause_reason = $6, completed_at = $7, updated_at = $8
		WHERE id = $9
	`,
		inv.CurrentProfit,
		inv.LastAccruedAt,
		inv.ActiveNanos,
		inv.IsActive,
		inv.IsPaused,
		inv.PauseReason,
		inv.CompletedAt,
		inv.UpdatedAt,
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save investment: %w", err)
	}
	return nil
}

func insertAudit(ctx context.Context, q querier, e *domain.AuditEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, subject_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.ActorID, e.Action, e.SubjectID, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func investmentArgs(inv *domain.Investment) []any {
	return []any{
		inv.ID, inv.UserID, inv.PlanID, inv.Amount, inv.CurrentProfit, inv.DailyReturnRate,
		inv.PerformanceFeePercentage, inv.DurationDays, inv.StartDate, inv.EndDate, inv.LastAccruedAt,
		inv.ActiveNanos, inv.IsActive, inv.IsPaused, inv.PauseReason, inv.CompletedAt, inv.CreatedAt,
		inv.UpdatedAt,
	}
}

func transactionArgs(t *domain.Transaction) []any {
	return []any{
		t.ID, t.UserID, t.Type, t.Amount, t.Status, t.TransactionHash, t.Address, t.PlanID,
		t.InvestmentID, t.Notes, t.CreatedAt, t.ConfirmedAt, t.UpdatedAt,
	}
}
