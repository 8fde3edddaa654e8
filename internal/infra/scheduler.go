package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is a scheduled task
type JobFunc func(ctx context.Context) error

type job struct {
	spec    string
	fn      JobFunc
	running sync.Mutex
}

// Scheduler manages scheduled tasks. A job never overlaps with itself,
// whether triggered by cron or by RunNow.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	jobs   map[string]*job
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		logger: logger,
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a named job on a cron spec (standard 5-field or @every descriptors)
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	j := &job{spec: spec, fn: fn}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, j) }); err != nil {
		return fmt.Errorf("failed to schedule %s (%s): %w", name, spec, err)
	}
	s.jobs[name] = j
	return nil
}

// Start starts the cron loop
func (s *Scheduler) Start() {
	for name, j := range s.jobs {
		s.logger.Info("scheduled job", "job", name, "spec", j.spec)
	}
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow triggers a job immediately. It is a no-op if the job is already running.
func (s *Scheduler) RunNow(name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	s.run(name, j)
	return nil
}

func (s *Scheduler) run(name string, j *job) {
	if !j.running.TryLock() {
		s.logger.Warn("job still running, skipping", "job", name)
		return
	}
	defer j.running.Unlock()

	start := time.Now()
	if err := j.fn(s.ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
}
