package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	vtest "yieldvault/internal/testutil"
)

type failingSink struct{ calls int }

func (s *failingSink) Deliver(context.Context, domain.Event) error {
	s.calls++
	return errors.New("socket closed")
}

func notify(t *testing.T, ledger *vtest.MemoryLedger, userID uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		note := domain.NewNotification(userID, domain.NotifyInfo, fmt.Sprintf("note %d", i), "body", epoch.Add(time.Duration(i)*time.Minute))
		err := ledger.Update(context.Background(), userID, func(ctx context.Context, tx domain.LedgerTx) error {
			return tx.Notify(ctx, note)
		})
		if err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
}

func TestPublishFansOutAndSurvivesSinkFailure(t *testing.T) {
	ledger := vtest.NewMemoryLedger()
	metrics := infra.NewMetrics(prometheus.NewRegistry())
	broken := &failingSink{}
	recorder := &vtest.EventRecorder{}
	svc := NewNotificationService(ledger.Notifications(), metrics, vtest.Logger(), broken)
	svc.AddSink(publisherSink{recorder})

	svc.Publish(context.Background(), domain.Event{Kind: domain.EventNotification, UserID: uuid.New()})

	if broken.calls != 1 {
		t.Errorf("broken sink calls = %d", broken.calls)
	}
	if recorder.Count(domain.EventNotification) != 1 {
		t.Error("a failing sink must not stop delivery to the others")
	}
	if got := testutil.ToFloat64(metrics.NotificationsPushed.WithLabelValues(domain.EventNotification)); got != 1 {
		t.Errorf("pushed counter = %v", got)
	}
}

// publisherSink adapts an EventRecorder to EventSink
type publisherSink struct{ r *vtest.EventRecorder }

func (p publisherSink) Deliver(ctx context.Context, evt domain.Event) error {
	p.r.Publish(ctx, evt)
	return nil
}

func TestNotificationReadModel(t *testing.T) {
	ctx := context.Background()
	ledger := vtest.NewMemoryLedger()
	svc := NewNotificationService(ledger.Notifications(), infra.NewMetrics(prometheus.NewRegistry()), vtest.Logger())
	alice := ledger.AddUser("alice", vtest.Dec("0"))
	bob := ledger.AddUser("bob", vtest.Dec("0"))
	notify(t, ledger, alice.ID, 3)
	notify(t, ledger, bob.ID, 1)

	list, err := svc.List(ctx, alice.ID, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Title != "note 2" {
		t.Fatalf("list = %+v", list)
	}
	if list, _ := svc.List(ctx, alice.ID, false, 2); len(list) != 2 {
		t.Errorf("limit ignored: %d", len(list))
	}

	if err := svc.MarkRead(ctx, alice.ID, list[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n, _ := svc.UnreadCount(ctx, alice.ID); n != 2 {
		t.Errorf("unread = %d, want 2", n)
	}

	bobs, _ := svc.List(ctx, bob.ID, false, 0)
	if err := svc.MarkRead(ctx, alice.ID, bobs[0].ID); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("marking another user's notification = %v, want not found", err)
	}

	if n, err := svc.MarkAllRead(ctx, alice.ID); err != nil || n != 2 {
		t.Errorf("MarkAllRead = %d, %v", n, err)
	}
	if n, err := svc.MarkAllRead(ctx, alice.ID); err != nil || n != 0 {
		t.Errorf("second MarkAllRead = %d, %v", n, err)
	}
	if unread, _ := svc.List(ctx, alice.ID, true, 0); len(unread) != 0 {
		t.Errorf("unread list = %d", len(unread))
	}

	if n, err := svc.ClearAll(ctx, alice.ID); err != nil || n != 3 {
		t.Errorf("ClearAll = %d, %v", n, err)
	}
	if n, _ := svc.UnreadCount(ctx, bob.ID); n != 1 {
		t.Errorf("bob's notifications touched: unread = %d", n)
	}
}
