package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	"yieldvault/internal/testutil"
)

func newTestHub() *Hub {
	return NewHub(infra.NewMetrics(prometheus.NewRegistry()), testutil.Logger())
}

func dial(t *testing.T, hub *Hub, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.SessionCount(userID) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.SessionCount(userID) == 0 {
		t.Fatal("session never registered")
	}
	return conn
}

func TestDeliverReachesOwnerOnly(t *testing.T) {
	hub := newTestHub()
	alice, bob := uuid.New(), uuid.New()
	aliceConn := dial(t, hub, alice)
	bobConn := dial(t, hub, bob)

	evt := domain.Event{Kind: domain.EventInvestmentUpdate, UserID: alice, Payload: map[string]string{"id": "inv-1"}}
	if err := hub.Deliver(context.Background(), evt); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	_ = aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := aliceConn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Type   string    `json:"type"`
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != domain.EventInvestmentUpdate || got.UserID != alice {
		t.Errorf("got %+v", got)
	}

	_ = bobConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := bobConn.ReadMessage(); err == nil {
		t.Error("bob received alice's event")
	}
}

func TestSessionUnregistersOnClose(t *testing.T) {
	hub := newTestHub()
	user := uuid.New()
	conn := dial(t, hub, user)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.SessionCount(user) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := hub.SessionCount(user); n != 0 {
		t.Fatalf("sessions = %d after close", n)
	}
}

func TestDeliverWithoutSessions(t *testing.T) {
	hub := newTestHub()
	if err := hub.Deliver(context.Background(), domain.Event{Kind: domain.EventNotification, UserID: uuid.New()}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}
