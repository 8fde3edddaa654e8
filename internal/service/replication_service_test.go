package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"yieldvault/internal/adapter/replica"
	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	vtest "yieldvault/internal/testutil"
	"yieldvault/internal/utils"
)

// fakeOpener hands out replicas by connection target; unknown targets fail to connect
type fakeOpener struct {
	replicas map[string]*vtest.FakeReplica
}

func (o *fakeOpener) Check(_ context.Context, b *domain.BackupDatabase) error {
	r, ok := o.replicas[b.ConnectionTarget]
	if !ok {
		return errors.New("dial tcp: connection refused")
	}
	return r.Ping(context.Background())
}

func (o *fakeOpener) Open(_ context.Context, b *domain.BackupDatabase) (domain.ReplicaTarget, error) {
	r, ok := o.replicas[b.ConnectionTarget]
	if !ok {
		return nil, errors.New("dial tcp: connection refused")
	}
	return r, nil
}

type fakeSwitcher struct {
	gate    *infra.WriteGate
	pingErr error
	urls    []string
	err     error
}

func (s *fakeSwitcher) Ping(context.Context) error {
	return s.pingErr
}

func (s *fakeSwitcher) Fence() func() {
	return s.gate.Fence()
}

func (s *fakeSwitcher) SwitchTo(_ context.Context, url string) error {
	if s.err != nil {
		return s.err
	}
	s.urls = append(s.urls, url)
	return nil
}

type fakeAlerter struct {
	mu       sync.Mutex
	failures []string
	promoted int
}

func (a *fakeAlerter) ReplicationFailed(_ context.Context, _ *domain.BackupDatabase, op string, _ error) error {
	a.mu.Lock()
	a.failures = append(a.failures, op)
	a.mu.Unlock()
	return nil
}

func (a *fakeAlerter) PrimaryPromoted(context.Context, *domain.BackupDatabase) error {
	a.mu.Lock()
	a.promoted++
	a.mu.Unlock()
	return nil
}

type fakeArchive struct {
	keys []string
	data [][]byte
}

func (a *fakeArchive) Put(_ context.Context, at time.Time, data []byte) (string, error) {
	key := "exports/" + at.Format(time.RFC3339) + ".json"
	a.keys = append(a.keys, key)
	a.data = append(a.data, data)
	return key, nil
}

type replicationFixture struct {
	ledger   *vtest.MemoryLedger
	backups  *vtest.MemoryBackups
	opener   *fakeOpener
	switcher *fakeSwitcher
	alerts   *fakeAlerter
	archive  *fakeArchive
	metrics  *infra.Metrics
	svc      *ReplicationService
}

func newReplicationFixture() *replicationFixture {
	gate := &infra.WriteGate{}
	f := &replicationFixture{
		ledger:   vtest.NewMemoryLedger(),
		backups:  vtest.NewMemoryBackups(),
		opener:   &fakeOpener{replicas: make(map[string]*vtest.FakeReplica)},
		switcher: &fakeSwitcher{gate: gate},
		alerts:   &fakeAlerter{},
		archive:  &fakeArchive{},
		metrics:  infra.NewMetrics(prometheus.NewRegistry()),
	}
	f.ledger.Gate = gate
	f.svc = NewReplicationService(f.backups, f.ledger.Snapshots(), f.opener, f.switcher, f.alerts, f.archive,
		utils.NewManualClock(epoch), f.metrics, vtest.Logger())
	return f
}

func (f *replicationFixture) replica(target string) *vtest.FakeReplica {
	r := &vtest.FakeReplica{}
	f.opener.replicas[target] = r
	return r
}

func TestCreateUnreachableTargetKeepsLedgerWritable(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	user := f.ledger.AddUser("alice", vtest.Dec("0"))

	b, err := f.svc.Create(ctx, "offsite", domain.BackupKindPostgres, "postgres://nowhere:5432/ledger")
	if err != nil {
		t.Fatalf("Create returned %v; an unreachable target is recorded, not rejected", err)
	}
	if b.Status != domain.BackupError || b.ErrorMessage == "" {
		t.Errorf("target = %+v, want error status with message", b)
	}
	stored, _ := f.backups.GetByID(ctx, b.ID)
	if stored.Status != domain.BackupError || stored.ErrorMessage != b.ErrorMessage {
		t.Errorf("stored target = %+v", stored)
	}
	if len(f.alerts.failures) != 1 || f.alerts.failures[0] != "CONNECT" {
		t.Errorf("alerts = %v", f.alerts.failures)
	}

	err = f.ledger.Update(ctx, user.ID, func(ctx context.Context, tx domain.LedgerTx) error {
		return tx.AdjustBalance(ctx, vtest.Dec("100"))
	})
	if err != nil {
		t.Fatalf("ledger write after replication failure: %v", err)
	}
	if !f.ledger.User(user.ID).Balance.Equal(vtest.Dec("100")) {
		t.Error("balance not updated")
	}
}

func TestCreateSyncsReachableTarget(t *testing.T) {
	f := newReplicationFixture()
	f.ledger.AddUser("alice", vtest.Dec("25"))
	r := f.replica("file:standby.db")

	b, err := f.svc.Create(context.Background(), "standby", domain.BackupKindSQLite, "file:standby.db")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != domain.BackupActive || b.LastSyncAt == nil || b.ErrorMessage != "" {
		t.Errorf("target = %+v", b)
	}
	if len(r.Replaced) != 1 || len(r.Replaced[0].Users) != 1 {
		t.Fatalf("replica received %d snapshots", len(r.Replaced))
	}
	if !r.Closed {
		t.Error("replica connection left open")
	}
	if got := testutil.ToFloat64(f.metrics.BackupSyncs.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok syncs = %v", got)
	}
}

func TestSyncFailureRecordsErrorAndRecovers(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	r := f.replica("postgres://standby/ledger")
	b, err := f.svc.Create(ctx, "standby", domain.BackupKindPostgres, "postgres://standby/ledger")
	if err != nil {
		t.Fatal(err)
	}

	r.ReplaceErr = errors.New("disk full")
	got, err := f.svc.Sync(ctx, b.ID)
	if domain.KindOf(err) != domain.KindReplicationFailure {
		t.Fatalf("Sync error = %v", err)
	}
	if got == nil || got.Status != domain.BackupError || got.ErrorMessage != "disk full" {
		t.Errorf("target = %+v", got)
	}
	if v := testutil.ToFloat64(f.metrics.BackupSyncs.WithLabelValues("error")); v != 1 {
		t.Errorf("error syncs = %v", v)
	}
	if err := f.svc.SyncAll(ctx); err == nil {
		t.Error("SyncAll should report the failing target")
	}

	r.ReplaceErr = nil
	got, err = f.svc.Sync(ctx, b.ID)
	if err != nil {
		t.Fatalf("Sync after fix: %v", err)
	}
	if got.Status != domain.BackupActive || got.ErrorMessage != "" {
		t.Errorf("target = %+v", got)
	}
}

func TestPromoteKeepsSinglePrimary(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	actor := uuid.New()
	f.replica("postgres://a/ledger")
	f.replica("postgres://b/ledger")

	a, err := f.svc.Create(ctx, "a", domain.BackupKindPostgres, "postgres://a/ledger")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.Create(ctx, "b", domain.BackupKindPostgres, "postgres://b/ledger")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Promote(ctx, actor, a.ID, false); err != nil {
		t.Fatalf("Promote a: %v", err)
	}
	if f.backups.PrimaryCount() != 1 {
		t.Fatalf("primaries = %d", f.backups.PrimaryCount())
	}
	if _, err := f.svc.Sync(ctx, a.ID); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("syncing the primary = %v, want validation error", err)
	}
	if _, err := f.svc.Promote(ctx, actor, a.ID, false); domain.KindOf(err) != domain.KindInvalidStateTransition {
		t.Errorf("promoting the primary again = %v", err)
	}

	if _, err := f.svc.Promote(ctx, actor, b.ID, false); err != nil {
		t.Fatalf("Promote b: %v", err)
	}
	if f.backups.PrimaryCount() != 1 {
		t.Fatalf("primaries = %d after second promotion", f.backups.PrimaryCount())
	}
	primary, _ := f.backups.GetPrimary(ctx)
	if primary == nil || primary.ID != b.ID {
		t.Errorf("primary = %+v, want b", primary)
	}
	if len(f.switcher.urls) != 2 || f.switcher.urls[1] != "postgres://b/ledger" {
		t.Errorf("switches = %v", f.switcher.urls)
	}
	if len(f.backups.Audit) != 2 || f.backups.Audit[0].Action != "backup.promote" {
		t.Errorf("audit = %+v", f.backups.Audit)
	}
	if f.alerts.promoted != 2 {
		t.Errorf("promotion alerts = %d", f.alerts.promoted)
	}
	if v := testutil.ToFloat64(f.metrics.Promotions); v != 2 {
		t.Errorf("promotions = %v", v)
	}
}

func TestPromoteRejectsUnfitTargets(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	f.replica("file:standby.db")

	lite, err := f.svc.Create(ctx, "lite", domain.BackupKindSQLite, "file:standby.db")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Promote(ctx, uuid.New(), lite.ID, false); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("promoting sqlite = %v", err)
	}

	broken, err := f.svc.Create(ctx, "broken", domain.BackupKindPostgres, "postgres://gone/ledger")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Promote(ctx, uuid.New(), broken.ID, false); domain.KindOf(err) != domain.KindInvalidStateTransition {
		t.Errorf("promoting an errored target = %v", err)
	}

	if _, err := f.svc.Promote(ctx, uuid.New(), uuid.New(), false); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("promoting unknown target = %v", err)
	}
	if f.backups.PrimaryCount() != 0 || len(f.switcher.urls) != 0 {
		t.Error("rejected promotion changed the primary")
	}
}

func TestSQLiteTargetHealthReflectsTheFile(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	f.ledger.AddUser("alice", vtest.Dec("5"))
	f.svc = NewReplicationService(f.backups, f.ledger.Snapshots(), replica.NewOpener(vtest.Logger()), f.switcher, f.alerts, nil,
		utils.NewManualClock(epoch), f.metrics, vtest.Logger())
	dir := t.TempDir()

	lost, err := f.svc.Create(ctx, "lost", domain.BackupKindSQLite, filepath.Join(dir, "missing", "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	if lost.Status != domain.BackupError || lost.ErrorMessage == "" {
		t.Errorf("target in a missing directory = %+v, want error", lost)
	}

	path := filepath.Join(dir, "ledger.db")
	b, err := f.svc.Create(ctx, "archive", domain.BackupKindSQLite, path)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != domain.BackupActive {
		t.Fatalf("target = %+v", b)
	}
	if err := f.svc.TestConnection(ctx, b.ID); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.TestConnection(ctx, b.ID); domain.KindOf(err) != domain.KindReplicationFailure {
		t.Errorf("TestConnection after the file was deleted = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("connection test recreated the backup file: %v", err)
	}
	stored, _ := f.backups.GetByID(ctx, b.ID)
	if stored.Status != domain.BackupActive {
		t.Errorf("connection test changed status to %s", stored.Status)
	}
}

func snapshotBalance(t *testing.T, snap *domain.Snapshot, userID uuid.UUID) string {
	t.Helper()
	if snap == nil {
		t.Fatal("replica holds no snapshot")
	}
	for _, u := range snap.Users {
		if u.ID == userID {
			return u.Balance.String()
		}
	}
	t.Fatalf("user %s missing from snapshot", userID)
	return ""
}

func TestPromoteCarriesWritesSinceLastSync(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	alice := f.ledger.AddUser("alice", vtest.Dec("0"))
	r := f.replica("postgres://b/ledger")

	b, err := f.svc.Create(ctx, "b", domain.BackupKindPostgres, "postgres://b/ledger")
	if err != nil {
		t.Fatal(err)
	}
	if got := snapshotBalance(t, r.Last(), alice.ID); got != "0" {
		t.Fatalf("initial sync balance = %s", got)
	}

	err = f.ledger.Update(ctx, alice.ID, func(ctx context.Context, tx domain.LedgerTx) error {
		return tx.AdjustBalance(ctx, vtest.Dec("100"))
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Promote(ctx, uuid.New(), b.ID, false); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if got := snapshotBalance(t, r.Last(), alice.ID); got != "100" {
		t.Errorf("promoted copy balance = %s, want 100", got)
	}
	if len(f.switcher.urls) != 1 {
		t.Errorf("switches = %v", f.switcher.urls)
	}
}

func TestPromoteHoldsWritesUntilSwitched(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	alice := f.ledger.AddUser("alice", vtest.Dec("100"))
	r := f.replica("postgres://b/ledger")
	b, err := f.svc.Create(ctx, "b", domain.BackupKindPostgres, "postgres://b/ledger")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	var once sync.Once
	r.OnReplace = func() {
		once.Do(func() {
			go func() {
				done <- f.ledger.Update(ctx, alice.ID, func(ctx context.Context, tx domain.LedgerTx) error {
					return tx.AdjustBalance(ctx, vtest.Dec("50"))
				})
			}()
			select {
			case <-done:
				t.Error("ledger write committed while the promotion was copying")
			case <-time.After(50 * time.Millisecond):
			}
		})
	}

	if _, err := f.svc.Promote(ctx, uuid.New(), b.ID, false); err != nil {
		t.Fatalf("Promote: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("held write: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("held write never resumed after promotion")
	}
	if got := snapshotBalance(t, r.Last(), alice.ID); got != "100" {
		t.Errorf("final sync balance = %s, want 100", got)
	}
	if bal := f.ledger.User(alice.ID).Balance; !bal.Equal(vtest.Dec("150")) {
		t.Errorf("balance after promotion = %s, want 150", bal)
	}
}

func TestPromoteWithPrimaryDownNeedsForce(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	f.ledger.AddUser("alice", vtest.Dec("10"))
	r := f.replica("postgres://b/ledger")
	b, err := f.svc.Create(ctx, "b", domain.BackupKindPostgres, "postgres://b/ledger")
	if err != nil {
		t.Fatal(err)
	}
	synced := len(r.Replaced)
	f.switcher.pingErr = errors.New("dial tcp: connection refused")

	if _, err := f.svc.Promote(ctx, uuid.New(), b.ID, false); domain.KindOf(err) != domain.KindReplicationFailure {
		t.Fatalf("Promote without force = %v", err)
	}
	if f.backups.PrimaryCount() != 0 || len(f.switcher.urls) != 0 {
		t.Fatal("refused promotion changed the primary")
	}

	if _, err := f.svc.Promote(ctx, uuid.New(), b.ID, true); err != nil {
		t.Fatalf("forced Promote: %v", err)
	}
	if len(r.Replaced) != synced {
		t.Errorf("forced promotion synced from an unreachable primary")
	}
	if f.backups.PrimaryCount() != 1 || len(f.switcher.urls) != 1 {
		t.Errorf("primaries = %d, switches = %v", f.backups.PrimaryCount(), f.switcher.urls)
	}
	audit := f.backups.Audit
	if len(audit) != 1 || audit[0].Action != "backup.promote_forced" || !strings.Contains(audit[0].Detail, "last sync") {
		t.Errorf("audit = %+v", audit)
	}
}

func TestRecoverInterrupted(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	b, _ := domain.NewBackupDatabase("stuck", domain.BackupKindPostgres, "postgres://stuck/ledger", epoch)
	b.Status = domain.BackupSyncing
	if err := f.backups.Create(ctx, b); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.RecoverInterrupted(ctx); err != nil {
		t.Fatalf("RecoverInterrupted: %v", err)
	}
	got, _ := f.backups.GetByID(ctx, b.ID)
	if got.Status != domain.BackupError || got.ErrorMessage == "" {
		t.Errorf("target = %+v", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newReplicationFixture()
	ctx := context.Background()
	f.ledger.AddPlan(starterPlan())
	alice := f.ledger.AddUser("alice", vtest.Dec("42.5"))

	snap, err := f.svc.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(f.archive.keys) != 1 || len(f.archive.data[0]) == 0 {
		t.Errorf("archive = %v", f.archive.keys)
	}

	target := vtest.NewMemoryLedger()
	restore := NewReplicationService(f.backups, target.Snapshots(), f.opener, f.switcher, nil, nil,
		utils.NewManualClock(epoch), f.metrics, vtest.Logger())

	if err := restore.Import(ctx, uuid.New(), snap, false); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("unconfirmed import = %v", err)
	}
	if target.User(alice.ID) != nil {
		t.Fatal("unconfirmed import changed the ledger")
	}

	if err := restore.Import(ctx, uuid.New(), snap, true); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got := target.User(alice.ID)
	if got == nil || !got.Balance.Equal(vtest.Dec("42.5")) {
		t.Errorf("restored user = %+v", got)
	}
	if _, err := target.Plans().GetByID(ctx, "starter"); err != nil {
		t.Errorf("restored plan: %v", err)
	}
}
