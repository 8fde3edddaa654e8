package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	"yieldvault/internal/utils"
)

// ReplicaOpener connects to a registered backup target. Check is read-only;
// Open may prepare the target for a sync.
type ReplicaOpener interface {
	Check(ctx context.Context, b *domain.BackupDatabase) error
	Open(ctx context.Context, b *domain.BackupDatabase) (domain.ReplicaTarget, error)
}

// LedgerRouter owns the ledger connection pool. Promotion fences its writes,
// checks the current primary and repoints it.
type LedgerRouter interface {
	Ping(ctx context.Context) error
	Fence() (release func())
	SwitchTo(ctx context.Context, databaseURL string) error
}

// ReplicationAlerter tells admins about replication events
type ReplicationAlerter interface {
	ReplicationFailed(ctx context.Context, b *domain.BackupDatabase, op string, cause error) error
	PrimaryPromoted(ctx context.Context, b *domain.BackupDatabase) error
}

// ExportArchiver keeps a copy of every export
type ExportArchiver interface {
	Put(ctx context.Context, exportedAt time.Time, data []byte) (string, error)
}

// ReplicationService manages backup targets: sync, connection tests, promotion,
// export and import. It only reads the ledger, except for Import and Promote.
type ReplicationService struct {
	backups   domain.BackupRepository
	snapshots domain.SnapshotRepository
	opener    ReplicaOpener
	router    LedgerRouter
	alerts    ReplicationAlerter
	archive   ExportArchiver
	clock     utils.Clock
	metrics   *infra.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	syncing map[uuid.UUID]bool
}

// NewReplicationService creates a new ReplicationService. alerts and archive may be nil.
func NewReplicationService(
	backups domain.BackupRepository,
	snapshots domain.SnapshotRepository,
	opener ReplicaOpener,
	router LedgerRouter,
	alerts ReplicationAlerter,
	archive ExportArchiver,
	clock utils.Clock,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *ReplicationService {
	return &ReplicationService{
		backups:   backups,
		snapshots: snapshots,
		opener:    opener,
		router:    router,
		alerts:    alerts,
		archive:   archive,
		clock:     clock,
		metrics:   metrics,
		logger:    logger.With("component", "replication"),
		syncing:   make(map[uuid.UUID]bool),
	}
}

// List returns every registered target
func (s *ReplicationService) List(ctx context.Context) ([]*domain.BackupDatabase, error) {
	return s.backups.GetAll(ctx)
}

// Create registers a target and runs the first sync. An unreachable target is
// kept in the error state with the failure message; that is not an error for the caller.
func (s *ReplicationService) Create(ctx context.Context, name, kind, target string) (*domain.BackupDatabase, error) {
	b, err := domain.NewBackupDatabase(name, kind, target, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.backups.Create(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("backup target registered", "backup_id", b.ID, "name", b.Name, "kind", b.Kind)

	if err := s.checkTarget(ctx, b); err != nil {
		s.fail(ctx, b, "CONNECT", err)
		return b, nil
	}

	synced, err := s.Sync(ctx, b.ID)
	if err != nil && synced == nil {
		return nil, err
	}
	return synced, nil
}

// TestConnection pings the target without touching its status
func (s *ReplicationService) TestConnection(ctx context.Context, id uuid.UUID) error {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkTarget(ctx, b); err != nil {
		return domain.NewReplicationError("connection test failed", err)
	}
	return nil
}

// Sync copies a consistent snapshot of the primary ledger onto the target.
// On failure the returned target carries the error state alongside the error.
func (s *ReplicationService) Sync(ctx context.Context, id uuid.UUID) (*domain.BackupDatabase, error) {
	if !s.acquire(id) {
		return nil, domain.NewTransitionError("backup", domain.BackupSyncing, domain.BackupSyncing)
	}
	defer s.release(id)

	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.IsPrimary {
		return nil, domain.NewValidationError("backup %s is the current primary", b.Name)
	}
	if err := b.BeginSync(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.backups.UpdateStatus(ctx, b); err != nil {
		return nil, err
	}

	started := time.Now()
	if err := s.copyTo(ctx, b); err != nil {
		s.metrics.BackupSyncs.WithLabelValues("error").Inc()
		s.fail(ctx, b, "SYNC", err)
		return b, domain.NewReplicationError("sync failed", err)
	}
	s.metrics.BackupSyncDuration.Observe(time.Since(started).Seconds())
	s.metrics.BackupSyncs.WithLabelValues("ok").Inc()

	if err := b.MarkActive(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.backups.UpdateStatus(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("backup synced", "backup_id", b.ID, "name", b.Name, "duration", time.Since(started))
	return b, nil
}

// SyncAll re-syncs every target except the primary and targets already syncing
func (s *ReplicationService) SyncAll(ctx context.Context) error {
	targets, err := s.backups.GetAll(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, b := range targets {
		if b.IsPrimary || b.Status == domain.BackupSyncing {
			continue
		}
		if _, err := s.Sync(ctx, b.ID); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d backup target(s) failed to sync", failed)
	}
	return nil
}

// RecoverInterrupted moves targets left in syncing by a previous process into error
func (s *ReplicationService) RecoverInterrupted(ctx context.Context) error {
	targets, err := s.backups.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, b := range targets {
		if b.Status != domain.BackupSyncing {
			continue
		}
		b.MarkError("sync interrupted by restart", s.clock.Now())
		if err := s.backups.UpdateStatus(ctx, b); err != nil {
			return err
		}
		s.logger.Warn("marked interrupted sync as failed", "backup_id", b.ID, "name", b.Name)
	}
	return nil
}

// Promote makes an active postgres target the primary ledger database.
// Ledger writes are fenced while a final sync copies the current primary onto the
// target, the registry flips and the pool switches; held writes then land on the
// new primary. If the current primary is unreachable the promotion is refused
// unless force is set, in which case the target's last sync becomes the ledger.
func (s *ReplicationService) Promote(ctx context.Context, actorID, id uuid.UUID, force bool) (*domain.BackupDatabase, error) {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.CanPromote(); err != nil {
		return nil, err
	}
	if err := s.checkTarget(ctx, b); err != nil {
		s.fail(ctx, b, "PROMOTE", err)
		return nil, domain.NewReplicationError("target unreachable", err)
	}

	primaryErr := s.router.Ping(ctx)
	if primaryErr != nil && !force {
		return nil, domain.NewReplicationError("current primary unreachable; promote with force to fail over to the last sync", primaryErr)
	}

	if !s.acquire(id) {
		return nil, domain.NewTransitionError("backup", domain.BackupSyncing, "primary")
	}
	defer s.release(id)

	release := s.router.Fence()
	defer release()

	action, detail := "backup.promote", b.Name
	if primaryErr == nil {
		if err := s.copyTo(ctx, b); err != nil {
			s.fail(ctx, b, "PROMOTE", err)
			return nil, domain.NewReplicationError("final sync failed", err)
		}
		synced := s.clock.Now()
		b.LastSyncAt = &synced
		b.UpdatedAt = synced
		if err := s.backups.UpdateStatus(ctx, b); err != nil {
			return nil, err
		}
	} else {
		action = "backup.promote_forced"
		detail = fmt.Sprintf("%s; primary unreachable; last sync %s", b.Name, formatSync(b.LastSyncAt))
		s.logger.Warn("forced promotion onto last sync",
			"backup_id", b.ID, "name", b.Name, "last_sync_at", b.LastSyncAt, "primary_error", primaryErr)
	}

	audit := domain.NewAuditEntry(actorID, action, b.ID.String(), detail, s.clock.Now())
	if err := s.backups.Promote(ctx, id, audit); err != nil {
		return nil, err
	}
	if err := s.router.SwitchTo(ctx, b.ConnectionTarget); err != nil {
		s.logger.Error("promotion committed but pool switch failed; restart to reconnect", "backup_id", b.ID, "error", err)
		return nil, domain.NewReplicationError("switch to promoted primary", err)
	}

	s.metrics.Promotions.Inc()
	b.IsPrimary = true
	s.logger.Warn("primary database promoted", "backup_id", b.ID, "name", b.Name, "actor_id", actorID, "forced", primaryErr != nil)
	if s.alerts != nil {
		if err := s.alerts.PrimaryPromoted(ctx, b); err != nil {
			s.logger.Warn("promotion alert failed", "error", err)
		}
	}
	return b, nil
}

// Export reads a consistent snapshot of the ledger and archives it when an archive is configured
func (s *ReplicationService) Export(ctx context.Context) (*domain.Snapshot, error) {
	snap, err := s.snapshots.Export(ctx)
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		data, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot: %w", err)
		}
		key, err := s.archive.Put(ctx, snap.ExportedAt, data)
		if err != nil {
			s.logger.Warn("export archive failed", "error", err)
		} else {
			s.logger.Info("export archived", "key", key, "bytes", len(data))
		}
	}
	return snap, nil
}

// Import replaces the whole ledger with snap. It is destructive and requires confirm.
func (s *ReplicationService) Import(ctx context.Context, actorID uuid.UUID, snap *domain.Snapshot, confirm bool) error {
	if !confirm {
		return domain.NewValidationError("import replaces all ledger data and must be confirmed")
	}
	if snap == nil {
		return domain.NewValidationError("snapshot is required")
	}
	if err := s.snapshots.Import(ctx, snap); err != nil {
		return err
	}
	s.logger.Warn("ledger replaced from snapshot",
		"actor_id", actorID,
		"schema_version", snap.SchemaVersion,
		"exported_at", snap.ExportedAt,
		"users", len(snap.Users),
		"investments", len(snap.Investments),
		"transactions", len(snap.Transactions))
	return nil
}

func (s *ReplicationService) copyTo(ctx context.Context, b *domain.BackupDatabase) error {
	snap, err := s.snapshots.Export(ctx)
	if err != nil {
		return fmt.Errorf("export primary: %w", err)
	}
	target, err := s.opener.Open(ctx, b)
	if err != nil {
		return err
	}
	defer target.Close()
	return target.Replace(ctx, snap)
}

func (s *ReplicationService) checkTarget(ctx context.Context, b *domain.BackupDatabase) error {
	return s.opener.Check(ctx, b)
}

// fail records the error on the target. Failures stay on the admin surface.
func (s *ReplicationService) fail(ctx context.Context, b *domain.BackupDatabase, op string, cause error) {
	if op != "PROMOTE" {
		b.MarkError(cause.Error(), s.clock.Now())
		if err := s.backups.UpdateStatus(ctx, b); err != nil {
			s.logger.Error("failed to record backup error", "backup_id", b.ID, "error", err)
		}
	}
	s.logger.Error("replication failure", "op", op, "backup_id", b.ID, "name", b.Name, "error", cause)
	if s.alerts != nil {
		if err := s.alerts.ReplicationFailed(ctx, b, op, cause); err != nil {
			s.logger.Warn("replication alert failed", "error", err)
		}
	}
}

func (s *ReplicationService) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing[id] {
		return false
	}
	s.syncing[id] = true
	return true
}

func (s *ReplicationService) release(id uuid.UUID) {
	s.mu.Lock()
	delete(s.syncing, id)
	s.mu.Unlock()
}

func formatSync(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
