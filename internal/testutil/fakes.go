package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"yieldvault/internal/domain"
)

// Logger returns a logger that discards output
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Dec parses a decimal literal and panics on bad input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// EventRecorder is a domain.EventPublisher that keeps every event
type EventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *EventRecorder) Publish(_ context.Context, evt domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns the recorded events in order
func (r *EventRecorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Kinds returns the recorded event kinds in order
func (r *EventRecorder) Kinds() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Kind)
	}
	return out
}

// Count returns how many events of kind were recorded
func (r *EventRecorder) Count(kind string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// FakeReplica is a domain.ReplicaTarget with injectable failures
type FakeReplica struct {
	mu         sync.Mutex
	PingErr    error
	ReplaceErr error
	Replaced   []*domain.Snapshot
	Closed     bool

	// OnReplace runs before each Replace is recorded
	OnReplace func()
}

func (f *FakeReplica) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PingErr
}

func (f *FakeReplica) Replace(_ context.Context, snap *domain.Snapshot) error {
	f.mu.Lock()
	hook := f.OnReplace
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReplaceErr != nil {
		return f.ReplaceErr
	}
	f.Replaced = append(f.Replaced, snap)
	return nil
}

func (f *FakeReplica) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Last returns the most recent snapshot written to the replica
func (f *FakeReplica) Last() *domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Replaced) == 0 {
		return nil
	}
	return f.Replaced[len(f.Replaced)-1]
}

// TestDatabaseURL returns TEST_DATABASE_URL or skips the test
func TestDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres test")
	}
	return url
}
