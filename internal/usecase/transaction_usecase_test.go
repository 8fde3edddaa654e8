package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	"yieldvault/internal/service"
	vtest "yieldvault/internal/testutil"
	"yieldvault/internal/utils"
)

const payoutAddress = "0x52908400098527886E0F7030069857D2E4169EE7"

var epoch = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	ledger  *vtest.MemoryLedger
	events  *vtest.EventRecorder
	clock   *utils.ManualClock
	metrics *infra.Metrics
	tx      *TransactionUsecase
	admin   *AdminUsecase
	accrual *service.AccrualService
	root    *domain.User
}

func newLedgerFixture(t *testing.T, autoConfirm bool) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		ledger:  vtest.NewMemoryLedger(),
		events:  &vtest.EventRecorder{},
		clock:   utils.NewManualClock(epoch),
		metrics: infra.NewMetrics(prometheus.NewRegistry()),
	}
	f.ledger.AddPlan(&domain.InvestmentPlan{
		ID:                       "starter",
		Name:                     "Starter",
		DailyReturnRate:          vtest.Dec("0.01"),
		PerformanceFeePercentage: vtest.Dec("10"),
		DurationDays:             10,
		MinAmount:                vtest.Dec("10"),
		MaxAmount:                vtest.Dec("1000"),
		IsActive:                 true,
	})

	f.tx = NewTransactionUsecase(f.ledger, f.ledger.Plans(), f.ledger.Transactions(), f.ledger.Investments(), f.ledger.Users(),
		f.events, f.clock, f.metrics, vtest.Logger(), TransactionConfig{
			MinDeposit:             vtest.Dec("10"),
			MinWithdrawal:          vtest.Dec("10"),
			AutoConfirmInvestments: autoConfirm,
		})
	f.admin = NewAdminUsecase(f.ledger, f.ledger.Users(), f.ledger.Plans(), f.ledger.Settings(), f.ledger.Stats(),
		f.tx, f.events, f.clock, vtest.Logger())
	f.accrual = service.NewAccrualService(f.ledger, f.ledger.Investments(), f.events, f.clock, f.metrics, vtest.Logger())
	f.root = f.addStaff(t, "root", true, false)
	return f
}

func (f *ledgerFixture) addStaff(t *testing.T, name string, admin, support bool) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Username: name, IsAdmin: admin, IsSupportAdmin: support, CreatedAt: epoch, UpdatedAt: epoch}
	if err := f.ledger.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return u
}

func TestDepositConfirmCreditsBalance(t *testing.T) {
	f := newLedgerFixture(t, true)
	ctx := context.Background()
	user := f.ledger.AddUser("alice", vtest.Dec("0"))

	dep, err := f.tx.SubmitDeposit(ctx, user.ID, vtest.Dec("100"), "")
	if err != nil {
		t.Fatalf("SubmitDeposit: %v", err)
	}
	if dep.Status != domain.StatusPending {
		t.Fatalf("status = %s", dep.Status)
	}
	if !f.ledger.User(user.ID).Balance.IsZero() {
		t.Fatal("pending deposit must not credit the balance")
	}

	got, err := f.admin.ConfirmTransaction(ctx, f.root.ID, dep.ID)
	if err != nil {
		t.Fatalf("ConfirmTransaction: %v", err)
	}
	if got.Status != domain.StatusConfirmed || got.ConfirmedAt == nil {
		t.Errorf("transaction = %+v", got)
	}
	if bal := f.ledger.User(user.ID).Balance; !bal.Equal(vtest.Dec("100")) {
		t.Errorf("balance = %s, want 100", bal)
	}

	notes := f.ledger.NotificationsFor(user.ID)
	success := 0
	for _, n := range notes {
		if n.Type == domain.NotifySuccess {
			success++
		}
	}
	if success != 1 {
		t.Errorf("success notifications = %d, want 1 (%+v)", success, notes)
	}
	if f.events.Count(domain.EventInvestmentUpdate) != 0 {
		t.Errorf("deposit produced investment events: %v", f.events.Kinds())
	}
	if f.events.Count(domain.EventNotification) != 2 {
		t.Errorf("events = %v", f.events.Kinds())
	}

	audit := f.ledger.AuditLog()
	if len(audit) != 1 || audit[0].Action != "transaction.confirm" || audit[0].ActorID != f.root.ID {
		t.Errorf("audit = %+v", audit)
	}

	if _, err := f.tx.Cancel(ctx, user.ID, dep.ID); domain.KindOf(err) != domain.KindInvalidStateTransition {
		t.Errorf("cancel after confirm = %v", err)
	}
	if _, err := f.admin.ConfirmTransaction(ctx, f.root.ID, dep.ID); domain.KindOf(err) != domain.KindInvalidStateTransition {
		t.Errorf("second confirm = %v", err)
	}
	if bal := f.ledger.User(user.ID).Balance; !bal.Equal(vtest.Dec("100")) {
		t.Errorf("balance changed by a rejected transition: %s", bal)
	}
}

func TestDepositValidation(t *testing.T) {
	f := newLedgerFixture(t, true)
	ctx := context.Background()
	user := f.ledger.AddUser("alice", vtest.Dec("0"))

	tests := []struct {
		name   string
		amount string
		hash   string
	}{
		{"below minimum", "5", ""},
		{"negative", "-10", ""},
		{"too precise", "10.123456789", ""},
		{"bad hash", "50", "0xnothex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tx.SubmitDeposit(ctx, user.ID, vtest.Dec(tt.amount), tt.hash)
			if domain.KindOf(err) != domain.KindValidation {
				t.Errorf("SubmitDeposit(%s, %q) = %v, want validation error", tt.amount, tt.hash, err)
			}
		})
	}
}

func TestWithdrawalBlockedWhileInvested(t *testing.T) {
	f := newLedgerFixture(t, true)
	ctx := context.Background()
	user := f.ledger.AddUser("dave", vtest.Dec("200"))

	inv, err := f.tx.SubmitInvestment(ctx, user.ID, "starter", vtest.Dec("100"))
	if err != nil {
		t.Fatalf("SubmitInvestment: %v", err)
	}
	if inv.Status != domain.StatusConfirmed || inv.InvestmentID == nil {
		t.Fatalf("auto-confirmed investment = %+v", inv)
	}
	if len(f.ledger.AuditLog()) != 0 {
		t.Error("automatic confirmation must not write an audit row")
	}
	if f.events.Count(domain.EventInvestmentStatusChange) != 1 {
		t.Errorf("events = %v", f.events.Kinds())
	}

	_, err = f.tx.SubmitWithdrawal(ctx, user.ID, vtest.Dec("50"), payoutAddress)
	if !errors.Is(err, domain.ErrActiveInvestment) {
		t.Fatalf("withdrawal during investment = %v", err)
	}
	if u := f.ledger.User(user.ID); !u.Balance.Equal(vtest.Dec("100")) || !u.ReservedBalance.IsZero() {
		t.Errorf("blocked withdrawal changed the user: %+v", u)
	}

	f.clock.Advance(10*24*time.Hour + time.Minute)
	if _, err := f.accrual.RunTick(ctx); err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if bal := f.ledger.User(user.ID).Balance; !bal.Equal(vtest.Dec("209")) {
		t.Fatalf("balance after completion = %s, want 209", bal)
	}

	wd, err := f.tx.SubmitWithdrawal(ctx, user.ID, vtest.Dec("50"), payoutAddress)
	if err != nil {
		t.Fatalf("withdrawal after completion: %v", err)
	}
	if u := f.ledger.User(user.ID); !u.ReservedBalance.Equal(vtest.Dec("50")) || !u.Available().Equal(vtest.Dec("159")) {
		t.Errorf("reservation = %+v", u)
	}
	if _, err := f.admin.ConfirmTransaction(ctx, f.root.ID, wd.ID); err != nil {
		t.Fatalf("confirm withdrawal: %v", err)
	}
	if u := f.ledger.User(user.ID); !u.Balance.Equal(vtest.Dec("159")) || !u.ReservedBalance.IsZero() {
		t.Errorf("after payout = %+v", u)
	}
}

func TestRejectReleasesReservation(t *testing.T) {
	f := newLedgerFixture(t, true)
	ctx := context.Background()
	user := f.ledger.AddUser("erin", vtest.Dec("100"))

	wd, err := f.tx.SubmitWithdrawal(ctx, user.ID, vtest.Dec("80"), payoutAddress)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.tx.SubmitWithdrawal(ctx, user.ID, vtest.Dec("30"), payoutAddress); domain.KindOf(err) != domain.KindInsufficientFunds {
		t.Errorf("second withdrawal over available = %v", err)
	}

	if _, err := f.admin.RejectTransaction(ctx, f.root.ID, wd.ID, " "); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("reject without reason = %v", err)
	}
	got, err := f.admin.RejectTransaction(ctx, f.root.ID, wd.ID, "address on blocklist")
	if err != nil {
		t.Fatalf("RejectTransaction: %v", err)
	}
	if got.Status != domain.StatusRejected || got.Notes != "address on blocklist" {
		t.Errorf("transaction = %+v", got)
	}
	if u := f.ledger.User(user.ID); !u.Balance.Equal(vtest.Dec("100")) || !u.ReservedBalance.IsZero() {
		t.Errorf("user after reject = %+v", u)
	}
	audit := f.ledger.AuditLog()
	if len(audit) != 1 || audit[0].Action != "transaction.reject" {
		t.Errorf("audit = %+v", audit)
	}
}

func TestCancelOwnPendingOnly(t *testing.T) {
	f := newLedgerFixture(t, false)
	ctx := context.Background()
	alice := f.ledger.AddUser("alice", vtest.Dec("100"))
	mallory := f.ledger.AddUser("mallory", vtest.Dec("0"))

	pending, err := f.tx.SubmitInvestment(ctx, alice.ID, "starter", vtest.Dec("60"))
	if err != nil {
		t.Fatal(err)
	}
	if pending.Status != domain.StatusPending {
		t.Fatalf("status = %s with auto confirm off", pending.Status)
	}
	if u := f.ledger.User(alice.ID); !u.ReservedBalance.Equal(vtest.Dec("60")) {
		t.Errorf("reserved = %s", u.ReservedBalance)
	}

	if _, err := f.tx.Cancel(ctx, mallory.ID, pending.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("cancel by another user = %v", err)
	}
	got, err := f.tx.Cancel(ctx, alice.ID, pending.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Errorf("status = %s", got.Status)
	}
	if u := f.ledger.User(alice.ID); !u.ReservedBalance.IsZero() || !u.Balance.Equal(vtest.Dec("100")) {
		t.Errorf("user after cancel = %+v", u)
	}
	if _, err := f.tx.Cancel(ctx, alice.ID, pending.ID); domain.KindOf(err) != domain.KindInvalidStateTransition {
		t.Errorf("second cancel = %v", err)
	}
}

func TestManualInvestmentConfirmation(t *testing.T) {
	f := newLedgerFixture(t, false)
	ctx := context.Background()
	user := f.ledger.AddUser("frank", vtest.Dec("100"))

	pending, err := f.tx.SubmitInvestment(ctx, user.ID, "starter", vtest.Dec("100"))
	if err != nil {
		t.Fatal(err)
	}
	notes := f.ledger.NotificationsFor(user.ID)
	if len(notes) != 1 || notes[0].Type != domain.NotifyInfo || notes[0].Title != "Investment requested" {
		t.Fatalf("notifications after request = %+v", notes)
	}
	if f.events.Count(domain.EventNotification) != 1 {
		t.Errorf("events = %v", f.events.Kinds())
	}

	got, err := f.admin.ConfirmTransaction(ctx, f.root.ID, pending.ID)
	if err != nil {
		t.Fatalf("ConfirmTransaction: %v", err)
	}
	if got.InvestmentID == nil {
		t.Fatal("confirmed investment has no investment id")
	}
	inv := f.ledger.Investment(*got.InvestmentID)
	if inv == nil || !inv.IsActive || !inv.Amount.Equal(vtest.Dec("100")) {
		t.Errorf("investment = %+v", inv)
	}
	if u := f.ledger.User(user.ID); !u.Balance.IsZero() || !u.ReservedBalance.IsZero() {
		t.Errorf("user = %+v", u)
	}

	p, err := f.tx.Portfolio(ctx, user.ID)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if !p.Invested.Equal(vtest.Dec("100")) || !p.TotalValue.Equal(vtest.Dec("100")) || len(p.Investments) != 1 {
		t.Errorf("portfolio = %+v", p)
	}
}

func TestInvestmentRejectsBadInput(t *testing.T) {
	f := newLedgerFixture(t, true)
	ctx := context.Background()
	user := f.ledger.AddUser("gina", vtest.Dec("100"))

	if _, err := f.tx.SubmitInvestment(ctx, user.ID, "starter", vtest.Dec("500")); domain.KindOf(err) != domain.KindInsufficientFunds {
		t.Errorf("over balance = %v", err)
	}
	if _, err := f.tx.SubmitInvestment(ctx, user.ID, "starter", vtest.Dec("5")); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("below plan minimum = %v", err)
	}
	if _, err := f.tx.SubmitInvestment(ctx, user.ID, "platinum", vtest.Dec("50")); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("unknown plan = %v", err)
	}
	if _, err := f.tx.SubmitWithdrawal(ctx, user.ID, vtest.Dec("20"), "not-an-address"); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("bad address = %v", err)
	}

	list, err := f.tx.ListForUser(ctx, user.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("rejected submissions left %d transactions", len(list))
	}
	if u := f.ledger.User(user.ID); !u.Balance.Equal(vtest.Dec("100")) || !u.ReservedBalance.IsZero() {
		t.Errorf("user = %+v", u)
	}
}

func TestListByStatus(t *testing.T) {
	f := newLedgerFixture(t, true)
	ctx := context.Background()
	user := f.ledger.AddUser("hank", vtest.Dec("0"))
	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Second)
		if _, err := f.tx.SubmitDeposit(ctx, user.ID, vtest.Dec("20"), ""); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := f.tx.ListByStatus(ctx, domain.StatusPending, 0)
	if err != nil || len(pending) != 3 {
		t.Fatalf("pending = %d, %v", len(pending), err)
	}
	if !pending[0].CreatedAt.After(pending[2].CreatedAt) {
		t.Error("queue should be newest first")
	}
	if _, err := f.tx.ListByStatus(ctx, "settled", 0); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("unknown status = %v", err)
	}
}
