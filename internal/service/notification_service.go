package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// EventSink is a push channel the dispatcher fans events out to
type EventSink interface {
	Deliver(ctx context.Context, evt domain.Event) error
}

// NotificationService pushes committed events to live sessions and serves the
// polling read model. Rows are written by the ledger transaction that caused them;
// this service never creates them.
type NotificationService struct {
	repo    domain.NotificationRepository
	sinks   []EventSink
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(repo domain.NotificationRepository, metrics *infra.Metrics, logger *slog.Logger, sinks ...EventSink) *NotificationService {
	return &NotificationService{
		repo:    repo,
		sinks:   sinks,
		metrics: metrics,
		logger:  logger.With("component", "notifications"),
	}
}

// AddSink registers another push channel
func (s *NotificationService) AddSink(sink EventSink) {
	s.sinks = append(s.sinks, sink)
}

// Publish implements domain.EventPublisher. Delivery is fire and forget:
// a failing sink is logged and the caller is never blocked or failed.
func (s *NotificationService) Publish(ctx context.Context, evt domain.Event) {
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, evt); err != nil {
			s.logger.Warn("event delivery failed", "kind", evt.Kind, "user_id", evt.UserID, "error", err)
		}
	}
	s.metrics.NotificationsPushed.WithLabelValues(evt.Kind).Inc()
}

// List returns the user's notifications, newest first
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	return s.repo.GetByUserID(ctx, userID, unreadOnly, limit)
}

// UnreadCount returns how many notifications the user has not read
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead marks one of the user's notifications as read
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead marks every notification of the user as read. Running it twice is harmless.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// ClearAll deletes the user's notifications
func (s *NotificationService) ClearAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.ClearAll(ctx, userID)
}
