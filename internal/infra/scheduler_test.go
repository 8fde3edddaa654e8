package infra

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerRunNow(t *testing.T) {
	s := NewScheduler(testLogger())
	defer s.Stop()

	var calls int32
	if err := s.Register("tick", "@every 1h", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := s.RunNow("tick"); err != nil {
		t.Fatalf("run now: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected 1 call, got %d", got)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Error("Expected unknown job error")
	}
}

func TestSchedulerSkipsOverlap(t *testing.T) {
	s := NewScheduler(testLogger())
	defer s.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	var calls int32
	_ = s.Register("slow", "@every 1h", func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		_ = s.RunNow("slow")
		close(done)
	}()
	<-started

	_ = s.RunNow("slow")
	close(release)
	<-done

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected overlapping run to be skipped, got %d calls", got)
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(testLogger())
	defer s.Stop()

	if err := s.Register("bad", "not a spec", func(context.Context) error { return nil }); err == nil {
		t.Error("Expected invalid cron spec to fail")
	}
	_ = s.Register("ok", "@hourly", func(context.Context) error { return errors.New("boom") })
	if err := s.Register("ok", "@hourly", func(context.Context) error { return nil }); err == nil {
		t.Error("Expected duplicate job name to fail")
	}
	// job errors are logged, not returned
	if err := s.RunNow("ok"); err != nil {
		t.Errorf("Expected nil from RunNow, got %v", err)
	}
}
