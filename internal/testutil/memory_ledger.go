package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
)

// MemoryLedger is an in-memory domain.LedgerStore. Like the Postgres store it serializes
// mutations per user and commits a callback's writes only if the callback succeeds.
type MemoryLedger struct {
	mu        sync.Mutex
	userLocks map[uuid.UUID]*sync.Mutex

	users         map[uuid.UUID]*domain.User
	plans         map[string]*domain.InvestmentPlan
	investments   map[uuid.UUID]*domain.Investment
	transactions  map[uuid.UUID]*domain.Transaction
	notifications []*domain.Notification
	settings      map[string]*domain.PlatformSetting
	audit         []*domain.AuditEntry

	// BrokenInvestments makes UpdateInvestment fail for the listed ids
	BrokenInvestments map[uuid.UUID]error

	// Gate, when set, admits every mutation the way PoolRouter.Write does
	Gate *infra.WriteGate
}

// NewMemoryLedger returns an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		userLocks:         make(map[uuid.UUID]*sync.Mutex),
		users:             make(map[uuid.UUID]*domain.User),
		plans:             make(map[string]*domain.InvestmentPlan),
		investments:       make(map[uuid.UUID]*domain.Investment),
		transactions:      make(map[uuid.UUID]*domain.Transaction),
		settings:          make(map[string]*domain.PlatformSetting),
		BrokenInvestments: make(map[uuid.UUID]error),
	}
}

// AddUser stores a user with the given balance and returns it
func (m *MemoryLedger) AddUser(username string, balance decimal.Decimal) *domain.User {
	u := &domain.User{
		ID:       uuid.New(),
		Username: username,
		Balance:  balance,
	}
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	cp := *u
	return &cp
}

// AddPlan stores a plan
func (m *MemoryLedger) AddPlan(p *domain.InvestmentPlan) {
	cp := *p
	m.mu.Lock()
	m.plans[p.ID] = &cp
	m.mu.Unlock()
}

// User returns a copy of the committed user
func (m *MemoryLedger) User(id uuid.UUID) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// Investment returns a copy of the committed investment
func (m *MemoryLedger) Investment(id uuid.UUID) *domain.Investment {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.investments[id]
	if !ok {
		return nil
	}
	cp := *inv
	return &cp
}

// Transaction returns a copy of the committed transaction
func (m *MemoryLedger) Transaction(id uuid.UUID) *domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// NotificationsFor returns the user's notifications in creation order
func (m *MemoryLedger) NotificationsFor(userID uuid.UUID) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out
}

// AuditLog returns all audit entries in creation order
func (m *MemoryLedger) AuditLog() []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, 0, len(m.audit))
	for _, e := range m.audit {
		out = append(out, *e)
	}
	return out
}

func (m *MemoryLedger) lockFor(userID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.userLocks[userID] = l
	}
	return l
}

// Update implements domain.LedgerStore
func (m *MemoryLedger) Update(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	_, err := m.update(ctx, userID, func(tx *memTx) error { return fn(ctx, tx) })
	return err
}

func (m *MemoryLedger) update(ctx context.Context, userID uuid.UUID, fn func(tx *memTx) error) (*memTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Gate != nil {
		defer m.Gate.Enter()()
	}
	l := m.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	u, ok := m.users[userID]
	if !ok {
		m.mu.Unlock()
		return nil, domain.NewNotFoundError("user", userID)
	}
	tx := &memTx{
		m:            m,
		user:         *u,
		investments:  make(map[uuid.UUID]*domain.Investment),
		transactions: make(map[uuid.UUID]*domain.Transaction),
	}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	user := tx.user
	m.users[userID] = &user
	for id, inv := range tx.investments {
		m.investments[id] = inv
	}
	for id, t := range tx.transactions {
		m.transactions[id] = t
	}
	m.notifications = append(m.notifications, tx.notifications...)
	m.audit = append(m.audit, tx.audit...)
	return tx, nil
}

// UpdateInvestment implements domain.LedgerStore
func (m *MemoryLedger) UpdateInvestment(ctx context.Context, investmentID uuid.UUID, fn func(ctx context.Context, tx domain.LedgerTx, inv *domain.Investment) error) error {
	m.mu.Lock()
	inv, ok := m.investments[investmentID]
	broken := m.BrokenInvestments[investmentID]
	m.mu.Unlock()
	if !ok {
		return domain.NewNotFoundError("investment", investmentID)
	}
	if broken != nil {
		return broken
	}

	_, err := m.update(ctx, inv.UserID, func(tx *memTx) error {
		m.mu.Lock()
		cp := *m.investments[investmentID]
		m.mu.Unlock()
		if err := fn(ctx, tx, &cp); err != nil {
			return err
		}
		tx.investments[cp.ID] = &cp
		return nil
	})
	return err
}

// UpdateTransaction implements domain.LedgerStore
func (m *MemoryLedger) UpdateTransaction(ctx context.Context, transactionID uuid.UUID, fn func(ctx context.Context, tx domain.LedgerTx, t *domain.Transaction) error) error {
	m.mu.Lock()
	t, ok := m.transactions[transactionID]
	m.mu.Unlock()
	if !ok {
		return domain.NewNotFoundError("transaction", transactionID)
	}

	_, err := m.update(ctx, t.UserID, func(tx *memTx) error {
		m.mu.Lock()
		cp := *m.transactions[transactionID]
		m.mu.Unlock()
		if err := fn(ctx, tx, &cp); err != nil {
			return err
		}
		tx.transactions[cp.ID] = &cp
		return nil
	})
	return err
}

// memTx stages writes until the callback returns
type memTx struct {
	m             *MemoryLedger
	user          domain.User
	investments   map[uuid.UUID]*domain.Investment
	transactions  map[uuid.UUID]*domain.Transaction
	notifications []*domain.Notification
	audit         []*domain.AuditEntry
}

func (t *memTx) User() *domain.User {
	u := t.user
	return &u
}

func (t *memTx) AdjustBalance(_ context.Context, delta decimal.Decimal) error {
	next := t.user
	if err := next.ApplyDelta(delta); err != nil {
		return err
	}
	t.user = next
	return nil
}

func (t *memTx) Reserve(_ context.Context, amount decimal.Decimal) error {
	next := t.user
	if err := next.Reserve(amount); err != nil {
		return err
	}
	t.user = next
	return nil
}

func (t *memTx) Release(_ context.Context, amount decimal.Decimal) error {
	next := t.user
	if err := next.Release(amount); err != nil {
		return err
	}
	t.user = next
	return nil
}

func (t *memTx) CountActiveInvestments(_ context.Context) (int, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	n := 0
	for id, inv := range t.m.investments {
		if staged, ok := t.investments[id]; ok {
			inv = staged
		}
		if inv.UserID == t.user.ID && inv.IsActive {
			n++
		}
	}
	for id, inv := range t.investments {
		if _, committed := t.m.investments[id]; !committed && inv.UserID == t.user.ID && inv.IsActive {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateInvestment(_ context.Context, inv *domain.Investment) error {
	if inv.UserID != t.user.ID {
		return errors.New("investment belongs to another user")
	}
	cp := *inv
	t.investments[inv.ID] = &cp
	return nil
}

func (t *memTx) CreateTransaction(_ context.Context, tr *domain.Transaction) error {
	if tr.UserID != t.user.ID {
		return errors.New("transaction belongs to another user")
	}
	cp := *tr
	t.transactions[tr.ID] = &cp
	return nil
}

func (t *memTx) SaveTransaction(_ context.Context, tr *domain.Transaction) error {
	cp := *tr
	t.transactions[tr.ID] = &cp
	return nil
}

func (t *memTx) Notify(_ context.Context, n *domain.Notification) error {
	cp := *n
	t.notifications = append(t.notifications, &cp)
	return nil
}

func (t *memTx) Audit(_ context.Context, e *domain.AuditEntry) error {
	cp := *e
	t.audit = append(t.audit, &cp)
	return nil
}

func sortNewestFirst[T any](items []*T, created func(*T) int64) {
	sort.SliceStable(items, func(i, j int) bool { return created(items[i]) > created(items[j]) })
}
