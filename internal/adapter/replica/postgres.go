package replica

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yieldvault/internal/database"
	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	"yieldvault/internal/repository"
)

// PostgresTarget is a full ledger database that can later be promoted to primary
type PostgresTarget struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects to the target for a sync and brings its schema up to date
func OpenPostgres(ctx context.Context, url string, logger *slog.Logger) (*PostgresTarget, error) {
	pool, err := infra.NewDatabase(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresTarget{pool: pool, logger: logger}, nil
}

// PingPostgres dials the target and pings it without touching its schema
func PingPostgres(ctx context.Context, url string) error {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to backup: %w", err)
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}

// Ping checks the target is reachable
func (t *PostgresTarget) Ping(ctx context.Context) error {
	return t.pool.Ping(ctx)
}

// Replace truncates and reloads every ledger table in one target transaction
func (t *PostgresTarget) Replace(ctx context.Context, snap *domain.Snapshot) error {
	err := pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		return repository.WriteLedger(ctx, tx, snap)
	})
	if err != nil {
		return fmt.Errorf("failed to replace target contents: %w", err)
	}
	return nil
}

// Load reads the target's ledger back into a snapshot
func (t *PostgresTarget) Load(ctx context.Context) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := pgx.BeginTxFunc(ctx, t.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		var err error
		snap, err = repository.ReadLedger(ctx, tx)
		return err
	})
	return snap, err
}

// Close releases the pool
func (t *PostgresTarget) Close() error {
	t.pool.Close()
	return nil
}
