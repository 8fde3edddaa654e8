package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"yieldvault/internal/domain"
)

const defaultAPIBase = "https://api.telegram.org"

// AlertService posts admin alerts to a Telegram chat
type AlertService struct {
	botToken   string
	chatID     string
	enabled    bool
	apiBase    string
	httpClient *http.Client
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewAlertService creates an AlertService. Alerts are dropped silently when
// either the token or the chat id is empty.
func NewAlertService(botToken, chatID string) *AlertService {
	return &AlertService{
		botToken: botToken,
		chatID:   chatID,
		enabled:  botToken != "" && chatID != "",
		apiBase:  defaultAPIBase,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithAPIBase points the service at another Bot API host
func (s *AlertService) WithAPIBase(base string) *AlertService {
	s.apiBase = base
	return s
}

// Enabled reports whether alerts are delivered
func (s *AlertService) Enabled() bool {
	return s.enabled
}

// ReplicationFailed reports a backup target that failed to sync or promote
func (s *AlertService) ReplicationFailed(ctx context.Context, b *domain.BackupDatabase, op string, cause error) error {
	if !s.enabled {
		return nil
	}

	message := fmt.Sprintf(
		"*BACKUP %s FAILED*\n\n"+
			"Target: `%s` (%s)\n"+
			"Status: `%s`\n"+
			"Time: `%s`\n\n"+
			"Error:\n`%s`",
		op,
		b.Name,
		b.Kind,
		b.Status,
		time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
		cause.Error(),
	)

	return s.sendMessage(ctx, message)
}

// PrimaryPromoted reports a completed promotion
func (s *AlertService) PrimaryPromoted(ctx context.Context, b *domain.BackupDatabase) error {
	if !s.enabled {
		return nil
	}

	message := fmt.Sprintf(
		"*PRIMARY DATABASE CHANGED*\n\n"+
			"New primary: `%s`\n"+
			"Time: `%s`",
		b.Name,
		time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
	)

	return s.sendMessage(ctx, message)
}

// sendMessage sends a message to Telegram using the Bot API
func (s *AlertService) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	payload := telegramMessage{
		ChatID:    s.chatID,
		Text:      text,
		ParseMode: "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}
