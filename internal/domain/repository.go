package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStore is the only mutation path for balances, investments and transactions.
// Every callback runs inside one database transaction that holds the owning user's row lock,
// so all mutations for a single user are totally ordered.
type LedgerStore interface {
	// Update locks userID and runs fn
	Update(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx LedgerTx) error) error

	// UpdateInvestment locks the owner, re-reads the investment and persists it after fn returns
	UpdateInvestment(ctx context.Context, investmentID uuid.UUID, fn func(ctx context.Context, tx LedgerTx, inv *Investment) error) error

	// UpdateTransaction locks the owner, re-reads the transaction and persists it after fn returns
	UpdateTransaction(ctx context.Context, transactionID uuid.UUID, fn func(ctx context.Context, tx LedgerTx, t *Transaction) error) error
}

// LedgerTx is the set of mutations available while a user row is locked
type LedgerTx interface {
	// User returns the locked user as currently seen inside the transaction
	User() *User

	// AdjustBalance credits or debits the balance; debits below the reserved amount fail with InsufficientFunds
	AdjustBalance(ctx context.Context, delta decimal.Decimal) error

	// Reserve holds funds for a pending request
	Reserve(ctx context.Context, amount decimal.Decimal) error

	// Release drops a reservation
	Release(ctx context.Context, amount decimal.Decimal) error

	// CountActiveInvestments counts the user's investments that have not completed
	CountActiveInvestments(ctx context.Context) (int, error)

	CreateInvestment(ctx context.Context, inv *Investment) error
	CreateTransaction(ctx context.Context, t *Transaction) error
	SaveTransaction(ctx context.Context, t *Transaction) error

	// Notify stores a notification that commits with the mutation
	Notify(ctx context.Context, n *Notification) error

	// Audit stores an admin audit record that commits with the mutation
	Audit(ctx context.Context, e *AuditEntry) error
}

// UserRepository defines read and registration operations for users
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetAll retrieves users page by page
	GetAll(ctx context.Context, limit, offset int) ([]*User, error)
}

// InvestmentRepository defines read operations for investments
type InvestmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Investment, error)

	// GetByUserID retrieves all investments for a user, newest first
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Investment, error)

	// GetActiveIDs lists investments the accrual engine must visit
	GetActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TransactionRepository defines read operations for transactions
type TransactionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*Transaction, error)

	// GetByStatus lists transactions for the admin queue; empty status lists all
	GetByStatus(ctx context.Context, status string, limit int) ([]*Transaction, error)
}

// NotificationRepository is the polling read model and the read-state mutations
type NotificationRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)

	// MarkRead, MarkAllRead and ClearAll are scoped to userID and idempotent
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	ClearAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

// PlanRepository defines the plan catalog operations
type PlanRepository interface {
	GetAll(ctx context.Context, activeOnly bool) ([]*InvestmentPlan, error)
	GetByID(ctx context.Context, id string) (*InvestmentPlan, error)

	// Upsert writes the plan and its audit row atomically; actor may be uuid.Nil for seeding
	Upsert(ctx context.Context, plan *InvestmentPlan, audit *AuditEntry) error
}

// SettingsRepository defines platform settings operations
type SettingsRepository interface {
	GetAll(ctx context.Context) ([]*PlatformSetting, error)
	Get(ctx context.Context, key string) (*PlatformSetting, error)

	// Set writes the setting and its audit row atomically.
	// free_plan_rate also updates the free plan's rate.
	Set(ctx context.Context, setting *PlatformSetting, audit *AuditEntry) error
}

// StatsRepository aggregates the admin dashboard
type StatsRepository interface {
	GetStatistics(ctx context.Context) (*PlatformStats, error)
}

// SnapshotRepository reads and replaces the whole ledger
type SnapshotRepository interface {
	// Export reads a consistent snapshot without blocking writers
	Export(ctx context.Context) (*Snapshot, error)

	// Import replaces every ledger table with the snapshot contents in one transaction
	Import(ctx context.Context, snap *Snapshot) error
}

// BackupRepository is the registry of backup targets
type BackupRepository interface {
	Create(ctx context.Context, b *BackupDatabase) error
	GetByID(ctx context.Context, id uuid.UUID) (*BackupDatabase, error)
	GetAll(ctx context.Context) ([]*BackupDatabase, error)

	// UpdateStatus persists status, last sync time and error message
	UpdateStatus(ctx context.Context, b *BackupDatabase) error

	// Promote makes id the only primary in a single statement
	Promote(ctx context.Context, id uuid.UUID, audit *AuditEntry) error

	// GetPrimary returns the promoted target, or nil when the configured database is primary
	GetPrimary(ctx context.Context) (*BackupDatabase, error)
}

// ReplicaTarget is a backup destination that can hold a full ledger copy
type ReplicaTarget interface {
	Ping(ctx context.Context) error

	// Replace swaps the target's contents for snap in one target transaction
	Replace(ctx context.Context, snap *Snapshot) error
	Close() error
}

// EventPublisher delivers pushed events after commit
type EventPublisher interface {
	Publish(ctx context.Context, evt Event)
}
