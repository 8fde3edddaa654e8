package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification type constants
const (
	NotifyInfo    = "info"
	NotifySuccess = "success"
	NotifyWarning = "warning"
	NotifyError   = "error"
)

// Push event kinds
const (
	EventNotification           = "notification"
	EventInvestmentUpdate       = "investment_update"
	EventInvestmentStatusChange = "investment_status_change"
)

// Notification is a user-facing record of a ledger state change.
// Only IsRead ever changes after creation.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotification builds an unread notification
func NewNotification(userID uuid.UUID, notifyType, title, message string, now time.Time) *Notification {
	return &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      notifyType,
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	}
}

// Event is pushed to connected sessions after the ledger transaction that produced it commits
type Event struct {
	Kind    string      `json:"type"`
	UserID  uuid.UUID   `json:"userId"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}
