package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDatabase creates a new database connection pool with optimized settings
func NewDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Keep the pool small; every ledger mutation holds a connection only for its row lock
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// WriteGate holds ledger writes back while a promotion moves the primary.
// Writers share it; a fence takes it exclusively once in-flight writers are done.
type WriteGate struct {
	mu sync.RWMutex
}

// Enter admits one writer and returns its exit
func (g *WriteGate) Enter() func() {
	g.mu.RLock()
	return g.mu.RUnlock
}

// Fence waits for in-flight writers and blocks new ones until the returned func is called
func (g *WriteGate) Fence() func() {
	g.mu.Lock()
	var once sync.Once
	return func() { once.Do(g.mu.Unlock) }
}

// PoolRouter hands out the pool of the current primary ledger database.
// Reads use Pool directly; writes go through Write so a promotion can fence them.
type PoolRouter struct {
	current atomic.Pointer[pgxpool.Pool]
	gate    WriteGate
	logger  *slog.Logger
}

// NewPoolRouter starts routing to pool
func NewPoolRouter(pool *pgxpool.Pool, logger *slog.Logger) *PoolRouter {
	r := &PoolRouter{logger: logger}
	r.current.Store(pool)
	return r
}

// Pool returns the current primary pool
func (r *PoolRouter) Pool() *pgxpool.Pool {
	return r.current.Load()
}

// Write runs fn on the current primary while holding the write gate.
// The pool is resolved after the gate is entered, so a write held by a fence lands on the promoted primary.
func (r *PoolRouter) Write(fn func(pool *pgxpool.Pool) error) error {
	defer r.gate.Enter()()
	return fn(r.current.Load())
}

// Fence stops ledger writes until the returned func is called
func (r *PoolRouter) Fence() func() {
	release := r.gate.Fence()
	r.logger.Warn("ledger writes fenced")
	return func() {
		release()
		r.logger.Info("ledger write fence lifted")
	}
}

// Ping checks the current primary
func (r *PoolRouter) Ping(ctx context.Context) error {
	return r.Pool().Ping(ctx)
}

// SwitchTo connects to databaseURL and makes it the primary.
// The previous pool is closed in the background once its connections are released.
func (r *PoolRouter) SwitchTo(ctx context.Context, databaseURL string) error {
	next, err := NewDatabase(ctx, databaseURL)
	if err != nil {
		return err
	}

	prev := r.current.Swap(next)
	r.logger.Info("ledger database switched", "previous_pool", prev != nil)

	if prev != nil {
		go prev.Close()
	}
	return nil
}

// Close closes the current pool
func (r *PoolRouter) Close() {
	if p := r.current.Load(); p != nil {
		p.Close()
	}
}
