package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yieldvault/internal/domain"
)

// BackupRepositoryImpl is the backup target registry. It lives in the control database
// (DATABASE_URL) on a fixed pool, so it keeps working across promotions.
type BackupRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewBackupRepository creates a new BackupRepository
func NewBackupRepository(db *pgxpool.Pool) domain.BackupRepository {
	return &BackupRepositoryImpl{db: db}
}

const backupColumns = `id, name, kind, connection_target, is_primary, status, last_sync_at,
	error_message, created_at, updated_at`

func scanBackup(row pgx.Row) (*domain.BackupDatabase, error) {
	b := &domain.BackupDatabase{}
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Kind,
		&b.ConnectionTarget,
		&b.IsPrimary,
		&b.Status,
		&b.LastSyncAt,
		&b.ErrorMessage,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

// Create registers a new backup target
func (r *BackupRepositoryImpl) Create(ctx context.Context, b *domain.BackupDatabase) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO backup_databases (`+backupColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.Name, b.Kind, b.ConnectionTarget, b.IsPrimary, b.Status, b.LastSyncAt, b.ErrorMessage, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create backup target: %w", err)
	}
	return nil
}

// GetByID retrieves a backup target
func (r *BackupRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.BackupDatabase, error) {
	b, err := scanBackup(r.db.QueryRow(ctx, `SELECT `+backupColumns+` FROM backup_databases WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "backup", id)
	}
	return b, nil
}

// GetAll lists backup targets
func (r *BackupRepositoryImpl) GetAll(ctx context.Context) ([]*domain.BackupDatabase, error) {
	rows, err := r.db.Query(ctx, `SELECT `+backupColumns+` FROM backup_databases ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup targets: %w", err)
	}
	defer rows.Close()

	var out []*domain.BackupDatabase
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup target: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateStatus persists the sync state of a target
func (r *BackupRepositoryImpl) UpdateStatus(ctx context.Context, b *domain.BackupDatabase) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE backup_databases
		SET status = $1, last_sync_at = $2, error_message = $3, updated_at = $4
		WHERE id = $5
	`, b.Status, b.LastSyncAt, b.ErrorMessage, b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("failed to update backup status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("backup", b.ID)
	}
	return nil
}

// Promote demotes the current primary and promotes id in one statement.
// backup_databases_one_primary rejects any committed state with two primaries.
func (r *BackupRepositoryImpl) Promote(ctx context.Context, id uuid.UUID, audit *domain.AuditEntry) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM backup_databases WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			return notFound(err, "backup", id)
		}
		if status != domain.BackupActive {
			return domain.NewTransitionError("backup", status, "primary")
		}

		if _, err := tx.Exec(ctx, `
			UPDATE backup_databases
			SET is_primary = (id = $1), updated_at = NOW()
			WHERE is_primary OR id = $1
		`, id); err != nil {
			return fmt.Errorf("failed to promote backup: %w", err)
		}

		if audit != nil {
			return insertAudit(ctx, tx, audit)
		}
		return nil
	})
}

// GetPrimary returns the promoted target, or nil if none was promoted
func (r *BackupRepositoryImpl) GetPrimary(ctx context.Context) (*domain.BackupDatabase, error) {
	b, err := scanBackup(r.db.QueryRow(ctx, `SELECT `+backupColumns+` FROM backup_databases WHERE is_primary`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get primary backup: %w", err)
	}
	return b, nil
}
