package replica

import (
	"context"
	"log/slog"

	"yieldvault/internal/domain"
)

// Opener connects to backup targets by kind
type Opener struct {
	logger *slog.Logger
}

// NewOpener creates an Opener
func NewOpener(logger *slog.Logger) *Opener {
	return &Opener{logger: logger}
}

// Check reports whether b is reachable. It never creates, migrates or writes the target.
func (o *Opener) Check(ctx context.Context, b *domain.BackupDatabase) error {
	switch b.Kind {
	case domain.BackupKindPostgres:
		return PingPostgres(ctx, b.ConnectionTarget)
	case domain.BackupKindSQLite:
		return CheckSQLite(ctx, b.ConnectionTarget, b.LastSyncAt != nil)
	default:
		return domain.NewValidationError("unsupported backup kind %q", b.Kind)
	}
}

// Open returns a live connection to b for a sync
func (o *Opener) Open(ctx context.Context, b *domain.BackupDatabase) (domain.ReplicaTarget, error) {
	switch b.Kind {
	case domain.BackupKindPostgres:
		t, err := OpenPostgres(ctx, b.ConnectionTarget, o.logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case domain.BackupKindSQLite:
		t, err := OpenSQLite(b.ConnectionTarget)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, domain.NewValidationError("unsupported backup kind %q", b.Kind)
	}
}
