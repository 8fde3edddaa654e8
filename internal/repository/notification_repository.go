package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// NotificationRepositoryImpl implements the NotificationRepository interface.
// Rows are inserted by the ledger store inside the mutating transaction.
type NotificationRepositoryImpl struct {
	db *infra.PoolRouter
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *infra.PoolRouter) domain.NotificationRepository {
	return &NotificationRepositoryImpl{db: db}
}

// GetByUserID retrieves a user's notifications, newest first
func (r *NotificationRepositoryImpl) GetByUserID(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return out, nil
}

// CountUnread returns the unread badge count
func (r *NotificationRepositoryImpl) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications read
func (r *NotificationRepositoryImpl) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("notification", id)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read
func (r *NotificationRepositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClearAll deletes the user's notifications
func (r *NotificationRepositoryImpl) ClearAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// exec runs a write statement through the ledger write gate
func (r *NotificationRepositoryImpl) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := r.db.Write(func(pool *pgxpool.Pool) error {
		var err error
		tag, err = pool.Exec(ctx, sql, args...)
		return err
	})
	return tag, err
}
