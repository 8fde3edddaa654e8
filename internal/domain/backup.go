package domain

import (
	"time"

	"github.com/google/uuid"
)

// Backup target kinds
const (
	BackupKindPostgres = "postgres"
	BackupKindSQLite   = "sqlite"
)

// Backup status constants
const (
	BackupInactive = "inactive"
	BackupSyncing  = "syncing"
	BackupActive   = "active"
	BackupError    = "error"
)

// BackupDatabase is a secondary copy of the ledger managed by the replication service
type BackupDatabase struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Kind             string     `json:"kind"`
	ConnectionTarget string     `json:"-"`
	IsPrimary        bool       `json:"is_primary"`
	Status           string     `json:"status"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewBackupDatabase validates input and returns an inactive target
func NewBackupDatabase(name, kind, target string, now time.Time) (*BackupDatabase, error) {
	if name == "" || target == "" {
		return nil, NewValidationError("backup name and connection target are required")
	}
	if kind != BackupKindPostgres && kind != BackupKindSQLite {
		return nil, NewValidationError("unsupported backup kind %q", kind)
	}
	now = now.UTC().Truncate(time.Microsecond)
	return &BackupDatabase{
		ID:               uuid.New(),
		Name:             name,
		Kind:             kind,
		ConnectionTarget: target,
		Status:           BackupInactive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// BeginSync moves the target into syncing. Only one sync may run at a time.
func (b *BackupDatabase) BeginSync(now time.Time) error {
	if b.Status == BackupSyncing {
		return NewTransitionError("backup", b.Status, BackupSyncing)
	}
	b.Status = BackupSyncing
	b.UpdatedAt = now.UTC().Truncate(time.Microsecond)
	return nil
}

// MarkActive records a completed sync
func (b *BackupDatabase) MarkActive(now time.Time) error {
	if b.Status != BackupSyncing {
		return NewTransitionError("backup", b.Status, BackupActive)
	}
	at := now.UTC().Truncate(time.Microsecond)
	b.Status = BackupActive
	b.ErrorMessage = ""
	b.LastSyncAt = &at
	b.UpdatedAt = at
	return nil
}

// MarkError records a failure. The message is kept until the next successful sync.
func (b *BackupDatabase) MarkError(msg string, now time.Time) {
	if msg == "" {
		msg = "unknown replication error"
	}
	b.Status = BackupError
	b.ErrorMessage = msg
	b.UpdatedAt = now.UTC().Truncate(time.Microsecond)
}

// CanPromote checks that the target holds a complete copy and can serve as the ledger database
func (b *BackupDatabase) CanPromote() error {
	if b.IsPrimary {
		return NewTransitionError("backup", "primary", "primary")
	}
	if b.Status != BackupActive {
		return NewTransitionError("backup", b.Status, "primary")
	}
	if b.Kind != BackupKindPostgres {
		return NewValidationError("only postgres targets can be promoted")
	}
	return nil
}
