package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

type session struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
}

// Hub routes pushed events to the websocket sessions of their user.
// Delivery never blocks: a session whose buffer is full misses the event
// and catches up through the polling endpoints.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*session]struct{}
	upgrader websocket.Upgrader
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewHub creates an empty hub
func NewHub(metrics *infra.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[*session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		metrics: metrics,
		logger:  logger.With("component", "ws"),
	}
}

// Deliver sends evt to every session of evt.UserID
func (h *Hub) Deliver(_ context.Context, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions[evt.UserID] {
		select {
		case s.send <- data:
		default:
			h.metrics.NotificationsDropped.Inc()
		}
	}
	return nil
}

// SessionCount returns the number of open sessions for userID
func (h *Hub) SessionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// Serve upgrades the request and streams userID's events until the client goes away
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	s := &session{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(s)
	defer h.unregister(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readLoop(s)
	}()
	h.writeLoop(s, done)
	return nil
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	set, ok := h.sessions[s.userID]
	if !ok {
		set = make(map[*session]struct{})
		h.sessions[s.userID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	h.metrics.WebsocketSessions.Inc()
	h.logger.Debug("session opened", "user_id", s.userID)
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	if set, ok := h.sessions[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.userID)
		}
	}
	h.mu.Unlock()
	s.conn.Close()
	h.metrics.WebsocketSessions.Dec()
	h.logger.Debug("session closed", "user_id", s.userID)
}

// readLoop only services control frames; clients never send data
func (h *Hub) readLoop(s *session) {
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *session, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
