package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// SnapshotRepositoryImpl exports and imports the whole ledger
type SnapshotRepositoryImpl struct {
	db *infra.PoolRouter
}

// NewSnapshotRepository creates a new SnapshotRepository
func NewSnapshotRepository(db *infra.PoolRouter) domain.SnapshotRepository {
	return &SnapshotRepositoryImpl{db: db}
}

// Export reads every ledger table from one REPEATABLE READ snapshot.
// The transaction is read only and takes no row locks, so writers are never blocked.
func (r *SnapshotRepositoryImpl) Export(ctx context.Context) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := pgx.BeginTxFunc(ctx, r.db.Pool(), pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		var err error
		snap, err = ReadLedger(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export ledger: %w", err)
	}
	return snap, nil
}

// Import replaces the ledger with snap in a single transaction
func (r *SnapshotRepositoryImpl) Import(ctx context.Context, snap *domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	err := r.db.Write(func(pool *pgxpool.Pool) error {
		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			return WriteLedger(ctx, tx, snap)
		})
	})
	if err != nil {
		return classify(fmt.Errorf("failed to import ledger: %w", err))
	}
	return nil
}

// ReadLedger loads every ledger table through q
func ReadLedger(ctx context.Context, q querier) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		SchemaVersion: domain.SnapshotSchemaVersion,
		ExportedAt:    time.Now().UTC(),
	}

	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		snap.Users = append(snap.Users, domain.SnapshotUser{User: *u, PasswordHash: u.PasswordHash})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `SELECT `+planColumns+` FROM investment_plans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans: %w", err)
	}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		snap.Plans = append(snap.Plans, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `SELECT `+investmentColumns+` FROM investments ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read investments: %w", err)
	}
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		snap.Investments = append(snap.Investments, *inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		snap.Transactions = append(snap.Transactions, *t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `SELECT `+notificationColumns+` FROM notifications ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		snap.Notifications = append(snap.Notifications, *n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `SELECT key, value, updated_by, updated_at FROM platform_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	for rows.Next() {
		var s domain.PlatformSetting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		snap.Settings = append(snap.Settings, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `SELECT id, actor_id, action, subject_id, detail, created_at FROM audit_log ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.SubjectID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		snap.AuditLog = append(snap.AuditLog, e)
	}

	return snap, rows.Err()
}

// WriteLedger truncates every ledger table and bulk loads snap with COPY.
// The caller owns tx, so a failure leaves the previous contents intact.
func WriteLedger(ctx context.Context, tx pgx.Tx, snap *domain.Snapshot) error {
	if _, err := tx.Exec(ctx, `
		TRUNCATE notifications, transactions, investments, audit_log, platform_settings, users, investment_plans
	`); err != nil {
		return fmt.Errorf("failed to truncate ledger: %w", err)
	}

	plans := make([][]any, 0, len(snap.Plans))
	for i := range snap.Plans {
		p := &snap.Plans[i]
		plans = append(plans, []any{
			p.ID, p.Name, p.DailyReturnRate, p.RoiPercentage, p.DurationDays,
			p.PerformanceFeePercentage, p.MinAmount, p.MaxAmount, p.IsActive, p.UpdatedAt,
		})
	}
	if err := copyRows(ctx, tx, "investment_plans", []string{
		"id", "name", "daily_return_rate", "roi_percentage", "duration_days",
		"performance_fee_percentage", "min_amount", "max_amount", "is_active", "updated_at",
	}, plans); err != nil {
		return err
	}

	users := make([][]any, 0, len(snap.Users))
	for i := range snap.Users {
		u := &snap.Users[i]
		users = append(users, []any{
			u.ID, u.Username, u.PasswordHash, u.WalletAddress, u.Balance, u.ReservedBalance,
			u.IsAdmin, u.IsSupportAdmin, u.CreatedAt, u.UpdatedAt,
		})
	}
	if err := copyRows(ctx, tx, "users", []string{
		"id", "username", "password_hash", "wallet_address", "balance", "reserved_balance",
		"is_admin", "is_support_admin", "created_at", "updated_at",
	}, users); err != nil {
		return err
	}

	investments := make([][]any, 0, len(snap.Investments))
	for i := range snap.Investments {
		investments = append(investments, investmentArgs(&snap.Investments[i]))
	}
	if err := copyRows(ctx, tx, "investments", []string{
		"id", "user_id", "plan_id", "amount", "current_profit", "daily_return_rate",
		"performance_fee_percentage", "duration_days", "start_date", "end_date", "last_accrued_at",
		"active_nanos", "is_active", "is_paused", "pause_reason", "completed_at", "created_at", "updated_at",
	}, investments); err != nil {
		return err
	}

	txs := make([][]any, 0, len(snap.Transactions))
	for i := range snap.Transactions {
		txs = append(txs, transactionArgs(&snap.Transactions[i]))
	}
	if err := copyRows(ctx, tx, "transactions", []string{
		"id", "user_id", "type", "amount", "status", "transaction_hash", "address", "plan_id",
		"investment_id", "notes", "created_at", "confirmed_at", "updated_at",
	}, txs); err != nil {
		return err
	}

	notes := make([][]any, 0, len(snap.Notifications))
	for i := range snap.Notifications {
		n := &snap.Notifications[i]
		notes = append(notes, []any{n.ID, n.UserID, n.Title, n.Message, n.Type, n.IsRead, n.CreatedAt})
	}
	if err := copyRows(ctx, tx, "notifications", []string{
		"id", "user_id", "title", "message", "type", "is_read", "created_at",
	}, notes); err != nil {
		return err
	}

	settings := make([][]any, 0, len(snap.Settings))
	for i := range snap.Settings {
		s := &snap.Settings[i]
		settings = append(settings, []any{s.Key, s.Value, s.UpdatedBy, s.UpdatedAt})
	}
	if err := copyRows(ctx, tx, "platform_settings", []string{"key", "value", "updated_by", "updated_at"}, settings); err != nil {
		return err
	}

	audit := make([][]any, 0, len(snap.AuditLog))
	for i := range snap.AuditLog {
		e := &snap.AuditLog[i]
		audit = append(audit, []any{e.ID, e.ActorID, e.Action, e.SubjectID, e.Detail, e.CreatedAt})
	}
	return copyRows(ctx, tx, "audit_log", []string{"id", "actor_id", "action", "subject_id", "detail", "created_at"}, audit)
}

func copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", table, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copied %d of %d rows into %s", n, len(rows), table)
	}
	return nil
}
