package replica

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"yieldvault/internal/domain"
	"yieldvault/internal/testutil"
)

func sampleSnapshot() *domain.Snapshot {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123000, time.UTC)
	user := domain.User{
		ID:              uuid.New(),
		Username:        "alice",
		WalletAddress:   "0x52908400098527886E0F7030069857D2E4169EE7",
		Balance:         testutil.Dec("150.12345678"),
		ReservedBalance: testutil.Dec("20"),
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	plan := domain.InvestmentPlan{
		ID:                       "starter",
		Name:                     "Starter",
		DailyReturnRate:          testutil.Dec("0.01"),
		RoiPercentage:            testutil.Dec("10"),
		DurationDays:             10,
		PerformanceFeePercentage: testutil.Dec("10"),
		MinAmount:                testutil.Dec("10"),
		IsActive:                 true,
		UpdatedAt:                at,
	}
	inv := *domain.NewInvestment(user.ID, &plan, testutil.Dec("100"), at)
	inv.Accrue(at.Add(36 * time.Hour))

	tx := *domain.NewTransaction(user.ID, domain.TxInvestment, testutil.Dec("100"), at)
	_ = tx.Transition(domain.StatusConfirmed, at)
	tx.PlanID = plan.ID
	tx.InvestmentID = &inv.ID

	admin := uuid.New()
	return &domain.Snapshot{
		SchemaVersion: domain.SnapshotSchemaVersion,
		ExportedAt:    at,
		Users:         []domain.SnapshotUser{{User: user, PasswordHash: "$2a$10$hash"}},
		Plans:         []domain.InvestmentPlan{plan},
		Investments:   []domain.Investment{inv},
		Transactions:  []domain.Transaction{tx},
		Notifications: []domain.Notification{*domain.NewNotification(user.ID, domain.NotifySuccess, "Deposit confirmed", "ok", at)},
		Settings:      []domain.PlatformSetting{{Key: domain.SettingFreePlanRate, Value: "0.005", UpdatedBy: &admin, UpdatedAt: at}},
		AuditLog:      []domain.AuditEntry{*domain.NewAuditEntry(admin, "settings.update", domain.SettingFreePlanRate, "0.005", at)},
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	target, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer target.Close()

	if err := target.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	want := sampleSnapshot()
	if err := target.Replace(ctx, want); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err := target.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got.Users) != 1 || len(got.Investments) != 1 || len(got.Transactions) != 1 {
		t.Fatalf("row counts = %d/%d/%d", len(got.Users), len(got.Investments), len(got.Transactions))
	}

	u := got.Users[0]
	if u.ID != want.Users[0].ID || u.PasswordHash != "$2a$10$hash" {
		t.Errorf("user identity not preserved: %+v", u)
	}
	if u.Balance.String() != "150.12345678" || !u.ReservedBalance.Equal(testutil.Dec("20")) {
		t.Errorf("balances = %s/%s", u.Balance, u.ReservedBalance)
	}

	inv := got.Investments[0]
	wantInv := want.Investments[0]
	if inv.CurrentProfit.String() != wantInv.CurrentProfit.String() {
		t.Errorf("profit = %s, want %s", inv.CurrentProfit, wantInv.CurrentProfit)
	}
	if inv.ActiveNanos != wantInv.ActiveNanos || !inv.LastAccruedAt.Equal(wantInv.LastAccruedAt) {
		t.Errorf("accrual state not preserved")
	}

	tx := got.Transactions[0]
	if tx.InvestmentID == nil || *tx.InvestmentID != wantInv.ID {
		t.Errorf("investment link lost: %v", tx.InvestmentID)
	}
	if tx.ConfirmedAt == nil || !tx.ConfirmedAt.Equal(*want.Transactions[0].ConfirmedAt) {
		t.Errorf("confirmed_at = %v", tx.ConfirmedAt)
	}

	if len(got.Settings) != 1 || got.Settings[0].UpdatedBy == nil || *got.Settings[0].UpdatedBy != *want.Settings[0].UpdatedBy {
		t.Errorf("settings = %+v", got.Settings)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("loaded snapshot invalid: %v", err)
	}
}

func TestSQLiteReplaceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	target, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer target.Close()

	snap := sampleSnapshot()
	for i := 0; i < 2; i++ {
		if err := target.Replace(ctx, snap); err != nil {
			t.Fatalf("Replace #%d: %v", i+1, err)
		}
	}

	got, err := target.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Users) != 1 || len(got.Notifications) != 1 || len(got.AuditLog) != 1 {
		t.Fatalf("duplicated rows after second sync: users=%d notifications=%d audit=%d",
			len(got.Users), len(got.Notifications), len(got.AuditLog))
	}

	empty := &domain.Snapshot{SchemaVersion: domain.SnapshotSchemaVersion, ExportedAt: time.Now().UTC()}
	if err := target.Replace(ctx, empty); err != nil {
		t.Fatalf("Replace with empty snapshot: %v", err)
	}
	got, err = target.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Users) != 0 {
		t.Fatalf("users = %d after empty sync", len(got.Users))
	}
}

func TestOpenerRejectsUnknownKind(t *testing.T) {
	_, err := NewOpener(testutil.Logger()).Open(context.Background(), &domain.BackupDatabase{Kind: "mysql"})
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestSQLiteNeedsExistingDirectory(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "unmounted")
	path := filepath.Join(dir, "ledger.db")

	if err := CheckSQLite(ctx, path, false); err == nil {
		t.Error("check of a missing directory succeeded")
	}
	if _, err := OpenSQLite(path); err == nil {
		t.Error("OpenSQLite created a missing directory")
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("directory exists after failed open: %v", err)
	}
}

func TestSQLiteCheckLeavesTargetUntouched(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	if err := CheckSQLite(ctx, path, false); err != nil {
		t.Fatalf("check of a fresh target: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("check created the backup file: %v", err)
	}

	target, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := target.Replace(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	target.Close()

	if err := CheckSQLite(ctx, path, true); err != nil {
		t.Fatalf("check of a synced target: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := CheckSQLite(ctx, path, true); err == nil {
		t.Error("check of a deleted backup file succeeded")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("check recreated the deleted backup file: %v", err)
	}
}

func TestOpenerCheckByKind(t *testing.T) {
	ctx := context.Background()
	o := NewOpener(testutil.Logger())
	missing := &domain.BackupDatabase{Kind: domain.BackupKindSQLite, ConnectionTarget: filepath.Join(t.TempDir(), "gone", "ledger.db")}
	if err := o.Check(ctx, missing); err == nil {
		t.Error("check of an unreachable sqlite target succeeded")
	}
	down := &domain.BackupDatabase{Kind: domain.BackupKindPostgres, ConnectionTarget: "postgres://yv:yv@127.0.0.1:1/ledger?connect_timeout=2"}
	if err := o.Check(ctx, down); err == nil {
		t.Error("check of an unreachable postgres target succeeded")
	}
	if err := o.Check(ctx, &domain.BackupDatabase{Kind: "mysql"}); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("unknown kind = %v", err)
	}
}
