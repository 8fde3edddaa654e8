package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// SettingsRepositoryImpl handles platform settings database operations
type SettingsRepositoryImpl struct {
	db *infra.PoolRouter
}

// NewSettingsRepository creates a new repository instance
func NewSettingsRepository(db *infra.PoolRouter) domain.SettingsRepository {
	return &SettingsRepositoryImpl{db: db}
}

// Get retrieves a setting by key
func (r *SettingsRepositoryImpl) Get(ctx context.Context, key string) (*domain.PlatformSetting, error) {
	var s domain.PlatformSetting
	err := r.db.Pool().QueryRow(ctx, `
		SELECT key, value, updated_by, updated_at
		FROM platform_settings
		WHERE key = $1
	`, key).Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "setting", key)
	}
	return &s, nil
}

// Set updates or creates a setting together with its audit row.
// Changing free_plan_rate also reprices the free plan for future investments.
func (r *SettingsRepositoryImpl) Set(ctx context.Context, s *domain.PlatformSetting, audit *domain.AuditEntry) error {
	return r.db.Write(func(pool *pgxpool.Pool) error {
		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			return setSetting(ctx, tx, s, audit)
		})
	})
}

func setSetting(ctx context.Context, tx pgx.Tx, s *domain.PlatformSetting, audit *domain.AuditEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO platform_settings (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`, s.Key, s.Value, s.UpdatedBy, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", s.Key, err)
	}

	if s.Key == domain.SettingFreePlanRate {
		_, err := tx.Exec(ctx, `
			UPDATE investment_plans
			SET daily_return_rate = $1::numeric, updated_at = $2
			WHERE id = $3
		`, s.Value, s.UpdatedAt, domain.FreePlanID)
		if err != nil {
			return fmt.Errorf("failed to reprice free plan: %w", err)
		}
	}

	if audit != nil {
		return insertAudit(ctx, tx, audit)
	}
	return nil
}

// GetAll retrieves all platform settings
func (r *SettingsRepositoryImpl) GetAll(ctx context.Context) ([]*domain.PlatformSetting, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT key, value, updated_by, updated_at
		FROM platform_settings
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all settings: %w", err)
	}
	defer rows.Close()

	var settings []*domain.PlatformSetting
	for rows.Next() {
		var s domain.PlatformSetting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedBy, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, &s)
	}

	return settings, rows.Err()
}
