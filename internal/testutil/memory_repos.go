package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"yieldvault/internal/domain"
)

// Users returns a domain.UserRepository view of the ledger
func (m *MemoryLedger) Users() domain.UserRepository { return memUsers{m} }

// Investments returns a domain.InvestmentRepository view of the ledger
func (m *MemoryLedger) Investments() domain.InvestmentRepository { return memInvestments{m} }

// Transactions returns a domain.TransactionRepository view of the ledger
func (m *MemoryLedger) Transactions() domain.TransactionRepository { return memTransactions{m} }

// Notifications returns a domain.NotificationRepository view of the ledger
func (m *MemoryLedger) Notifications() domain.NotificationRepository { return memNotifications{m} }

// Plans returns a domain.PlanRepository view of the ledger
func (m *MemoryLedger) Plans() domain.PlanRepository { return memPlans{m} }

// Settings returns a domain.SettingsRepository view of the ledger
func (m *MemoryLedger) Settings() domain.SettingsRepository { return memSettings{m} }

// Stats returns a domain.StatsRepository view of the ledger
func (m *MemoryLedger) Stats() domain.StatsRepository { return memStats{m} }

// Snapshots returns a domain.SnapshotRepository view of the ledger
func (m *MemoryLedger) Snapshots() domain.SnapshotRepository { return memSnapshots{m} }

type memUsers struct{ m *MemoryLedger }

func (r memUsers) Create(_ context.Context, u *domain.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.users {
		if existing.Username == u.Username {
			return domain.NewValidationError("username %s is already taken", u.Username)
		}
	}
	cp := *u
	r.m.users[u.ID] = &cp
	return nil
}

func (r memUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	if u := r.m.User(id); u != nil {
		return u, nil
	}
	return nil, domain.NewNotFoundError("user", id)
}

func (r memUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("user", username)
}

func (r memUsers) GetAll(_ context.Context, limit, offset int) ([]*domain.User, error) {
	r.m.mu.Lock()
	var all []*domain.User
	for _, u := range r.m.users {
		cp := *u
		all = append(all, &cp)
	}
	r.m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

type memInvestments struct{ m *MemoryLedger }

func (r memInvestments) GetByID(_ context.Context, id uuid.UUID) (*domain.Investment, error) {
	if inv := r.m.Investment(id); inv != nil {
		return inv, nil
	}
	return nil, domain.NewNotFoundError("investment", id)
}

func (r memInvestments) GetByUserID(_ context.Context, userID uuid.UUID) ([]*domain.Investment, error) {
	r.m.mu.Lock()
	var out []*domain.Investment
	for _, inv := range r.m.investments {
		if inv.UserID == userID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	r.m.mu.Unlock()
	sortNewestFirst(out, func(i *domain.Investment) int64 { return i.CreatedAt.UnixNano() })
	return out, nil
}

func (r memInvestments) GetActiveIDs(_ context.Context) ([]uuid.UUID, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var ids []uuid.UUID
	for id, inv := range r.m.investments {
		if inv.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

type memTransactions struct{ m *MemoryLedger }

func (r memTransactions) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	if t := r.m.Transaction(id); t != nil {
		return t, nil
	}
	return nil, domain.NewNotFoundError("transaction", id)
}

func (r memTransactions) GetByUserID(_ context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	return r.filter(func(t *domain.Transaction) bool { return t.UserID == userID }, limit), nil
}

func (r memTransactions) GetByStatus(_ context.Context, status string, limit int) ([]*domain.Transaction, error) {
	return r.filter(func(t *domain.Transaction) bool { return status == "" || t.Status == status }, limit), nil
}

func (r memTransactions) filter(keep func(*domain.Transaction) bool, limit int) []*domain.Transaction {
	r.m.mu.Lock()
	var out []*domain.Transaction
	for _, t := range r.m.transactions {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	r.m.mu.Unlock()
	sortNewestFirst(out, func(t *domain.Transaction) int64 { return t.CreatedAt.UnixNano() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type memNotifications struct{ m *MemoryLedger }

func (r memNotifications) GetByUserID(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.Notification
	for i := len(r.m.notifications) - 1; i >= 0; i-- {
		n := r.m.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		cp := *n
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memNotifications) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, x := range r.m.notifications {
		if x.UserID == userID && !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (r memNotifications) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, x := range r.m.notifications {
		if x.ID == id && x.UserID == userID {
			x.IsRead = true
			return nil
		}
	}
	return domain.NewNotFoundError("notification", id)
}

func (r memNotifications) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, x := range r.m.notifications {
		if x.UserID == userID && !x.IsRead {
			x.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r memNotifications) ClearAll(_ context.Context, userID uuid.UUID) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	kept := r.m.notifications[:0]
	var n int64
	for _, x := range r.m.notifications {
		if x.UserID == userID {
			n++
			continue
		}
		kept = append(kept, x)
	}
	r.m.notifications = kept
	return n, nil
}

type memPlans struct{ m *MemoryLedger }

func (r memPlans) GetAll(_ context.Context, activeOnly bool) ([]*domain.InvestmentPlan, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.InvestmentPlan
	for _, p := range r.m.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPlans) GetByID(_ context.Context, id string) (*domain.InvestmentPlan, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.plans[id]
	if !ok {
		return nil, domain.NewNotFoundError("plan", id)
	}
	cp := *p
	return &cp, nil
}

func (r memPlans) Upsert(_ context.Context, p *domain.InvestmentPlan, audit *domain.AuditEntry) error {
	cp := *p
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.plans[p.ID] = &cp
	if audit != nil {
		a := *audit
		r.m.audit = append(r.m.audit, &a)
	}
	return nil
}

type memSettings struct{ m *MemoryLedger }

func (r memSettings) GetAll(_ context.Context) ([]*domain.PlatformSetting, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.PlatformSetting
	for _, s := range r.m.settings {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r memSettings) Get(_ context.Context, key string) (*domain.PlatformSetting, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.settings[key]
	if !ok {
		return nil, domain.NewNotFoundError("setting", key)
	}
	cp := *s
	return &cp, nil
}

func (r memSettings) Set(_ context.Context, s *domain.PlatformSetting, audit *domain.AuditEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if s.Key == domain.SettingFreePlanRate {
		if p, ok := r.m.plans[domain.FreePlanID]; ok {
			rate, err := decimal.NewFromString(s.Value)
			if err != nil {
				return err
			}
			p.DailyReturnRate = rate
			p.UpdatedAt = s.UpdatedAt
		}
	}
	cp := *s
	r.m.settings[s.Key] = &cp
	if audit != nil {
		a := *audit
		r.m.audit = append(r.m.audit, &a)
	}
	return nil
}

type memStats struct{ m *MemoryLedger }

func (r memStats) GetStatistics(_ context.Context) (*domain.PlatformStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s := &domain.PlatformStats{Users: len(r.m.users)}
	for _, u := range r.m.users {
		s.TotalBalance = s.TotalBalance.Add(u.Balance)
		s.TotalReserved = s.TotalReserved.Add(u.ReservedBalance)
	}
	for _, t := range r.m.transactions {
		if t.Status == domain.StatusPending {
			s.PendingTransactions++
		}
	}
	for _, inv := range r.m.investments {
		s.TotalProfit = s.TotalProfit.Add(inv.CurrentProfit)
		if !inv.IsActive {
			continue
		}
		s.TotalInvested = s.TotalInvested.Add(inv.Amount)
		if inv.IsPaused {
			s.PausedInvestments++
		} else {
			s.ActiveInvestments++
		}
	}
	return s, nil
}

type memSnapshots struct{ m *MemoryLedger }

func (r memSnapshots) Export(_ context.Context) (*domain.Snapshot, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	snap := &domain.Snapshot{SchemaVersion: domain.SnapshotSchemaVersion, ExportedAt: time.Now().UTC()}
	for _, u := range r.m.users {
		snap.Users = append(snap.Users, domain.SnapshotUser{User: *u, PasswordHash: u.PasswordHash})
	}
	for _, p := range r.m.plans {
		snap.Plans = append(snap.Plans, *p)
	}
	for _, inv := range r.m.investments {
		snap.Investments = append(snap.Investments, *inv)
	}
	for _, t := range r.m.transactions {
		snap.Transactions = append(snap.Transactions, *t)
	}
	for _, n := range r.m.notifications {
		snap.Notifications = append(snap.Notifications, *n)
	}
	for _, s := range r.m.settings {
		snap.Settings = append(snap.Settings, *s)
	}
	for _, e := range r.m.audit {
		snap.AuditLog = append(snap.AuditLog, *e)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].Username < snap.Users[j].Username })
	return snap, nil
}

func (r memSnapshots) Import(_ context.Context, snap *domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if r.m.Gate != nil {
		defer r.m.Gate.Enter()()
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.users = make(map[uuid.UUID]*domain.User)
	for i := range snap.Users {
		u := snap.Users[i].User
		u.PasswordHash = snap.Users[i].PasswordHash
		r.m.users[u.ID] = &u
	}
	r.m.plans = make(map[string]*domain.InvestmentPlan)
	for i := range snap.Plans {
		p := snap.Plans[i]
		r.m.plans[p.ID] = &p
	}
	r.m.investments = make(map[uuid.UUID]*domain.Investment)
	for i := range snap.Investments {
		inv := snap.Investments[i]
		r.m.investments[inv.ID] = &inv
	}
	r.m.transactions = make(map[uuid.UUID]*domain.Transaction)
	for i := range snap.Transactions {
		t := snap.Transactions[i]
		r.m.transactions[t.ID] = &t
	}
	r.m.notifications = nil
	for i := range snap.Notifications {
		n := snap.Notifications[i]
		r.m.notifications = append(r.m.notifications, &n)
	}
	r.m.settings = make(map[string]*domain.PlatformSetting)
	for i := range snap.Settings {
		s := snap.Settings[i]
		r.m.settings[s.Key] = &s
	}
	r.m.audit = nil
	for i := range snap.AuditLog {
		e := snap.AuditLog[i]
		r.m.audit = append(r.m.audit, &e)
	}
	return nil
}

// MemoryBackups is an in-memory domain.BackupRepository
type MemoryBackups struct {
	mu      sync.Mutex
	targets map[uuid.UUID]*domain.BackupDatabase
	Audit   []domain.AuditEntry
}

// NewMemoryBackups returns an empty registry
func NewMemoryBackups() *MemoryBackups {
	return &MemoryBackups{targets: make(map[uuid.UUID]*domain.BackupDatabase)}
}

func (r *MemoryBackups) Create(_ context.Context, b *domain.BackupDatabase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.targets[b.ID] = &cp
	return nil
}

func (r *MemoryBackups) GetByID(_ context.Context, id uuid.UUID) (*domain.BackupDatabase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.targets[id]
	if !ok {
		return nil, domain.NewNotFoundError("backup", id)
	}
	cp := *b
	return &cp, nil
}

func (r *MemoryBackups) GetAll(_ context.Context) ([]*domain.BackupDatabase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.BackupDatabase
	for _, b := range r.targets {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryBackups) UpdateStatus(_ context.Context, b *domain.BackupDatabase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.targets[b.ID]
	if !ok {
		return domain.NewNotFoundError("backup", b.ID)
	}
	cur.Status = b.Status
	cur.LastSyncAt = b.LastSyncAt
	cur.ErrorMessage = b.ErrorMessage
	cur.UpdatedAt = b.UpdatedAt
	return nil
}

func (r *MemoryBackups) Promote(_ context.Context, id uuid.UUID, audit *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.targets[id]
	if !ok {
		return domain.NewNotFoundError("backup", id)
	}
	if target.Status != domain.BackupActive {
		return domain.NewTransitionError("backup", target.Status, "primary")
	}
	for _, b := range r.targets {
		b.IsPrimary = b.ID == id
	}
	if audit != nil {
		r.Audit = append(r.Audit, *audit)
	}
	return nil
}

func (r *MemoryBackups) GetPrimary(_ context.Context) (*domain.BackupDatabase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.targets {
		if b.IsPrimary {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

// PrimaryCount counts targets flagged primary
func (r *MemoryBackups) PrimaryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.targets {
		if b.IsPrimary {
			n++
		}
	}
	return n
}
