package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SnapshotSchemaVersion is bumped whenever the persisted ledger layout changes
const SnapshotSchemaVersion = 1

// Snapshot is a full serialized copy of the ledger used for export, import and backup sync
type Snapshot struct {
	SchemaVersion int               `json:"schemaVersion"`
	ExportedAt    time.Time         `json:"exportedAt"`
	Users         []SnapshotUser    `json:"users"`
	Plans         []InvestmentPlan  `json:"plans"`
	Investments   []Investment      `json:"investments"`
	Transactions  []Transaction     `json:"transactions"`
	Notifications []Notification    `json:"notifications"`
	Settings      []PlatformSetting `json:"settings"`
	AuditLog      []AuditEntry      `json:"auditLog"`
}

// SnapshotUser carries the password hash, which User never serializes
type SnapshotUser struct {
	User
	PasswordHash string `json:"password_hash"`
}

// Validate checks that a snapshot can be loaded by this build
func (s *Snapshot) Validate() error {
	if s.SchemaVersion < 1 {
		return NewValidationError("snapshot has no schema version")
	}
	if s.SchemaVersion > SnapshotSchemaVersion {
		return NewValidationError("snapshot schema version %d is newer than supported version %d", s.SchemaVersion, SnapshotSchemaVersion)
	}

	users := make(map[uuid.UUID]bool, len(s.Users))
	for i := range s.Users {
		u := &s.Users[i].User
		if users[u.ID] {
			return NewValidationError("duplicate user %s in snapshot", u.ID)
		}
		if err := u.CheckInvariants(); err != nil {
			return err
		}
		users[u.ID] = true
	}

	plans := make(map[string]bool, len(s.Plans))
	for i := range s.Plans {
		plans[s.Plans[i].ID] = true
	}

	for i := range s.Investments {
		inv := &s.Investments[i]
		if !users[inv.UserID] {
			return NewValidationError("investment %s references unknown user %s", inv.ID, inv.UserID)
		}
		if !plans[inv.PlanID] {
			return NewValidationError("investment %s references unknown plan %s", inv.ID, inv.PlanID)
		}
		if inv.CurrentProfit.LessThan(decimal.Zero) {
			return NewValidationError("investment %s has negative profit", inv.ID)
		}
	}

	for i := range s.Transactions {
		if !users[s.Transactions[i].UserID] {
			return NewValidationError("transaction %s references unknown user", s.Transactions[i].ID)
		}
	}
	for i := range s.Notifications {
		if !users[s.Notifications[i].UserID] {
			return NewValidationError("notification %s references unknown user", s.Notifications[i].ID)
		}
	}
	return nil
}

// PlatformStats is the admin dashboard summary
type PlatformStats struct {
	Users               int             `json:"users"`
	PendingTransactions int             `json:"pending_transactions"`
	ActiveInvestments   int             `json:"active_investments"`
	PausedInvestments   int             `json:"paused_investments"`
	TotalBalance        decimal.Decimal `json:"total_balance"`
	TotalReserved       decimal.Decimal `json:"total_reserved"`
	TotalInvested       decimal.Decimal `json:"total_invested"`
	TotalProfit         decimal.Decimal `json:"total_profit"`
}
