package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestTransactionTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr bool
	}{
		{"pending to confirmed", StatusPending, StatusConfirmed, false},
		{"pending to rejected", StatusPending, StatusRejected, false},
		{"pending to cancelled", StatusPending, StatusCancelled, false},
		{"confirmed to cancelled", StatusConfirmed, StatusCancelled, true},
		{"rejected to confirmed", StatusRejected, StatusConfirmed, true},
		{"cancelled to confirmed", StatusCancelled, StatusConfirmed, true},
		{"pending to pending", StatusPending, StatusPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := NewTransaction(uuid.New(), TxDeposit, decimal.NewFromInt(5), t0)
			tx.Status = tt.from

			err := tx.Transition(tt.to, t0.Add(time.Minute))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrInvalidStateTransition) {
				t.Errorf("Expected ErrInvalidStateTransition, got %v", err)
			}
			if err != nil && tx.Status != tt.from {
				t.Errorf("Status changed on failed transition: %s", tx.Status)
			}
		})
	}
}

func TestConfirmStampsTime(t *testing.T) {
	tx := NewTransaction(uuid.New(), TxWithdrawal, decimal.NewFromInt(5), t0)
	if err := tx.Transition(StatusConfirmed, t0.Add(time.Hour)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if tx.ConfirmedAt == nil || !tx.ConfirmedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("Expected confirmed_at to be set, got %v", tx.ConfirmedAt)
	}
}

func TestUserBalanceRules(t *testing.T) {
	u := &User{ID: uuid.New(), Balance: decimal.NewFromInt(100)}

	if err := u.Reserve(decimal.NewFromInt(60)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !u.Available().Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected available 40, got %s", u.Available())
	}

	if err := u.ApplyDelta(decimal.NewFromInt(-50)); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Expected debit into reserved funds to fail, got %v", err)
	}
	if err := u.Reserve(decimal.NewFromInt(41)); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Expected over-reservation to fail, got %v", err)
	}

	if err := u.Release(decimal.NewFromInt(60)); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := u.ApplyDelta(decimal.NewFromInt(-100)); err != nil {
		t.Fatalf("full debit: %v", err)
	}
	if !u.Balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", u.Balance)
	}
	if err := u.ApplyDelta(decimal.RequireFromString("-0.00000001")); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Expected negative balance to be rejected, got %v", err)
	}
	if err := u.CheckInvariants(); err != nil {
		t.Errorf("invariants: %v", err)
	}
}

func TestErrorMatching(t *testing.T) {
	err := ErrActiveInvestment
	if !errors.Is(err, ErrValidation) {
		t.Error("Expected active investment error to be a validation error")
	}
	if errors.Is(NewValidationError("bad amount"), ErrActiveInvestment) {
		t.Error("Expected reason mismatch to fail errors.Is")
	}
	wrapped := NewReplicationError("sync", errors.New("connection refused"))
	if KindOf(wrapped) != KindReplicationFailure {
		t.Errorf("Expected replication kind, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("Expected foreign errors to have no kind")
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x52908400098527886E0F7030069857D2E4169EE7", true},
		{"TJRabPrwbZy45sbavfcjinPJC18kjpRTv8", true},
		{"0x1234", false},
		{"T0000000000000000000000000000000000", false},
		{"", false},
		{"bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh", false},
	}
	for _, tt := range tests {
		err := ValidateAddress(tt.addr)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateAddress(%q) = %v, want valid=%v", tt.addr, err, tt.valid)
		}
	}
}

func TestBackupLifecycle(t *testing.T) {
	b, err := NewBackupDatabase("dr", BackupKindPostgres, "postgres://replica/db", t0)
	if err != nil {
		t.Fatalf("new backup: %v", err)
	}
	if err := b.CanPromote(); err == nil {
		t.Error("Expected inactive backup promotion to fail")
	}

	if err := b.BeginSync(t0); err != nil {
		t.Fatalf("begin sync: %v", err)
	}
	if err := b.BeginSync(t0); err == nil {
		t.Error("Expected concurrent sync to be rejected")
	}
	if err := b.MarkActive(t0.Add(time.Minute)); err != nil {
		t.Fatalf("mark active: %v", err)
	}
	if b.LastSyncAt == nil {
		t.Error("Expected last sync time")
	}
	if err := b.CanPromote(); err != nil {
		t.Errorf("Expected active postgres backup to be promotable, got %v", err)
	}

	b.MarkError("", t0)
	if b.Status != BackupError || b.ErrorMessage == "" {
		t.Errorf("Expected error status with message, got %s %q", b.Status, b.ErrorMessage)
	}

	if _, err := NewBackupDatabase("x", "mysql", "dsn", t0); KindOf(err) != KindValidation {
		t.Errorf("Expected unsupported kind to fail validation, got %v", err)
	}
}

func TestSnapshotVersionCheck(t *testing.T) {
	snap := &Snapshot{SchemaVersion: SnapshotSchemaVersion + 1}
	if err := snap.Validate(); KindOf(err) != KindValidation {
		t.Errorf("Expected newer snapshot to be rejected, got %v", err)
	}

	u := User{ID: uuid.New(), Balance: decimal.NewFromInt(5)}
	snap = &Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		Users:         []SnapshotUser{{User: u}},
		Investments:   []Investment{{ID: uuid.New(), UserID: u.ID, PlanID: "missing"}},
	}
	if err := snap.Validate(); err == nil {
		t.Error("Expected dangling plan reference to be rejected")
	}
}
