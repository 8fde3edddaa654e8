package replica

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yieldvault/internal/domain"
)

// SQLiteTarget keeps a self-contained ledger copy in a single SQLite file.
// Money is stored as decimal text so values survive byte-identically.
type SQLiteTarget struct {
	db *gorm.DB
}

type snapshotMetaRow struct {
	ID            int `gorm:"primaryKey"`
	SchemaVersion int
	ExportedAt    time.Time `gorm:"autoCreateTime:false"`
}

func (snapshotMetaRow) TableName() string { return "snapshot_meta" }

type userRow struct {
	ID              string `gorm:"primaryKey"`
	Username        string `gorm:"uniqueIndex"`
	PasswordHash    string
	WalletAddress   string
	Balance         string
	ReservedBalance string
	IsAdmin         bool
	IsSupportAdmin  bool
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

func (userRow) TableName() string { return "users" }

type planRow struct {
	ID                       string `gorm:"primaryKey"`
	Name                     string
	DailyReturnRate          string
	RoiPercentage            string
	DurationDays             int
	PerformanceFeePercentage string
	MinAmount                string
	MaxAmount                string
	IsActive                 bool
	UpdatedAt                time.Time `gorm:"autoUpdateTime:false"`
}

func (planRow) TableName() string { return "investment_plans" }

type investmentRow struct {
	ID                       string `gorm:"primaryKey"`
	UserID                   string `gorm:"index"`
	PlanID                   string
	Amount                   string
	CurrentProfit            string
	DailyReturnRate          string
	PerformanceFeePercentage string
	DurationDays             int
	StartDate                time.Time
	EndDate                  time.Time
	LastAccruedAt            time.Time
	ActiveNanos              int64
	IsActive                 bool
	IsPaused                 bool
	PauseReason              string
	CompletedAt              *time.Time
	CreatedAt                time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt                time.Time `gorm:"autoUpdateTime:false"`
}

func (investmentRow) TableName() string { return "investments" }

type transactionRow struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index"`
	Type            string
	Amount          string
	Status          string
	TransactionHash string
	Address         string
	PlanID          string
	InvestmentID    *string
	Notes           string
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
	ConfirmedAt     *time.Time
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

func (transactionRow) TableName() string { return "transactions" }

type notificationRow struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Title     string
	Message   string
	Type      string
	IsRead    bool
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (notificationRow) TableName() string { return "notifications" }

type settingRow struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedBy *string
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (settingRow) TableName() string { return "platform_settings" }

type auditRow struct {
	ID        string `gorm:"primaryKey"`
	ActorID   string
	Action    string
	SubjectID string
	Detail    string
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (auditRow) TableName() string { return "audit_log" }

var sqliteModels = []interface{}{
	&snapshotMetaRow{}, &userRow{}, &planRow{}, &investmentRow{},
	&transactionRow{}, &notificationRow{}, &settingRow{}, &auditRow{},
}

// OpenSQLite opens the SQLite file at path for a sync, creating the file and
// its tables if needed. The directory must already exist.
func OpenSQLite(path string) (*SQLiteTarget, error) {
	if err := checkBackupDir(path); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite backup: %w", err)
	}

	if err := db.AutoMigrate(sqliteModels...); err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("failed to migrate sqlite backup: %w", err)
	}

	return &SQLiteTarget{db: db}, nil
}

// CheckSQLite checks a target without creating or migrating anything. A target
// that was never synced only needs a writable directory; a synced one must
// still have its file and tables.
func CheckSQLite(ctx context.Context, path string, synced bool) error {
	if !synced {
		return checkBackupDir(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("backup file unavailable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("backup path %s is a directory", path)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open sqlite backup: %w", err)
	}
	defer closeGorm(db)

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	if !db.WithContext(ctx).Migrator().HasTable(&snapshotMetaRow{}) {
		return fmt.Errorf("backup file %s holds no ledger copy", path)
	}
	return nil
}

func checkBackupDir(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("backup directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup directory %s is not a directory", dir)
	}

	f, err := os.CreateTemp(dir, ".yieldvault-write-check-*")
	if err != nil {
		return fmt.Errorf("backup directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Ping checks the file is usable
func (t *SQLiteTarget) Ping(ctx context.Context) error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Replace swaps the file contents for snap inside one SQLite transaction
func (t *SQLiteTarget) Replace(ctx context.Context, snap *domain.Snapshot) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range sqliteModels {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to clear backup table: %w", err)
			}
		}

		meta := snapshotMetaRow{ID: 1, SchemaVersion: snap.SchemaVersion, ExportedAt: snap.ExportedAt}
		if err := tx.Create(&meta).Error; err != nil {
			return fmt.Errorf("failed to write snapshot meta: %w", err)
		}

		users := make([]userRow, 0, len(snap.Users))
		for i := range snap.Users {
			u := &snap.Users[i]
			users = append(users, userRow{
				ID:              u.ID.String(),
				Username:        u.Username,
				PasswordHash:    u.PasswordHash,
				WalletAddress:   u.WalletAddress,
				Balance:         u.Balance.String(),
				ReservedBalance: u.ReservedBalance.String(),
				IsAdmin:         u.IsAdmin,
				IsSupportAdmin:  u.IsSupportAdmin,
				CreatedAt:       u.CreatedAt,
				UpdatedAt:       u.UpdatedAt,
			})
		}

		plans := make([]planRow, 0, len(snap.Plans))
		for i := range snap.Plans {
			p := &snap.Plans[i]
			plans = append(plans, planRow{
				ID:                       p.ID,
				Name:                     p.Name,
				DailyReturnRate:          p.DailyReturnRate.String(),
				RoiPercentage:            p.RoiPercentage.String(),
				DurationDays:             p.DurationDays,
				PerformanceFeePercentage: p.PerformanceFeePercentage.String(),
				MinAmount:                p.MinAmount.String(),
				MaxAmount:                p.MaxAmount.String(),
				IsActive:                 p.IsActive,
				UpdatedAt:                p.UpdatedAt,
			})
		}

		investments := make([]investmentRow, 0, len(snap.Investments))
		for i := range snap.Investments {
			inv := &snap.Investments[i]
			investments = append(investments, investmentRow{
				ID:                       inv.ID.String(),
				UserID:                   inv.UserID.String(),
				PlanID:                   inv.PlanID,
				Amount:                   inv.Amount.String(),
				CurrentProfit:            inv.CurrentProfit.String(),
				DailyReturnRate:          inv.DailyReturnRate.String(),
				PerformanceFeePercentage: inv.PerformanceFeePercentage.String(),
				DurationDays:             inv.DurationDays,
				StartDate:                inv.StartDate,
				EndDate:                  inv.EndDate,
				LastAccruedAt:            inv.LastAccruedAt,
				ActiveNanos:              inv.ActiveNanos,
				IsActive:                 inv.IsActive,
				IsPaused:                 inv.IsPaused,
				PauseReason:              inv.PauseReason,
				CompletedAt:              inv.CompletedAt,
				CreatedAt:                inv.CreatedAt,
				UpdatedAt:                inv.UpdatedAt,
			})
		}

		txs := make([]transactionRow, 0, len(snap.Transactions))
		for i := range snap.Transactions {
			tr := &snap.Transactions[i]
			var invID *string
			if tr.InvestmentID != nil {
				s := tr.InvestmentID.String()
				invID = &s
			}
			txs = append(txs, transactionRow{
				ID:              tr.ID.String(),
				UserID:          tr.UserID.String(),
				Type:            tr.Type,
				Amount:          tr.Amount.String(),
				Status:          tr.Status,
				TransactionHash: tr.TransactionHash,
				Address:         tr.Address,
				PlanID:          tr.PlanID,
				InvestmentID:    invID,
				Notes:           tr.Notes,
				CreatedAt:       tr.CreatedAt,
				ConfirmedAt:     tr.ConfirmedAt,
				UpdatedAt:       tr.UpdatedAt,
			})
		}

		notes := make([]notificationRow, 0, len(snap.Notifications))
		for i := range snap.Notifications {
			n := &snap.Notifications[i]
			notes = append(notes, notificationRow{
				ID:        n.ID.String(),
				UserID:    n.UserID.String(),
				Title:     n.Title,
				Message:   n.Message,
				Type:      n.Type,
				IsRead:    n.IsRead,
				CreatedAt: n.CreatedAt,
			})
		}

		settings := make([]settingRow, 0, len(snap.Settings))
		for i := range snap.Settings {
			s := &snap.Settings[i]
			var by *string
			if s.UpdatedBy != nil {
				v := s.UpdatedBy.String()
				by = &v
			}
			settings = append(settings, settingRow{Key: s.Key, Value: s.Value, UpdatedBy: by, UpdatedAt: s.UpdatedAt})
		}

		audit := make([]auditRow, 0, len(snap.AuditLog))
		for i := range snap.AuditLog {
			e := &snap.AuditLog[i]
			audit = append(audit, auditRow{
				ID:        e.ID.String(),
				ActorID:   e.ActorID.String(),
				Action:    e.Action,
				SubjectID: e.SubjectID,
				Detail:    e.Detail,
				CreatedAt: e.CreatedAt,
			})
		}

		if err := createAll(tx, users); err != nil {
			return err
		}
		if err := createAll(tx, plans); err != nil {
			return err
		}
		if err := createAll(tx, investments); err != nil {
			return err
		}
		if err := createAll(tx, txs); err != nil {
			return err
		}
		if err := createAll(tx, notes); err != nil {
			return err
		}
		if err := createAll(tx, settings); err != nil {
			return err
		}
		return createAll(tx, audit)
	})
}

func createAll[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("failed to write backup rows: %w", err)
	}
	return nil
}

// Load reads the stored copy back into a snapshot
func (t *SQLiteTarget) Load(ctx context.Context) (*domain.Snapshot, error) {
	db := t.db.WithContext(ctx)

	var meta snapshotMetaRow
	if err := db.First(&meta).Error; err != nil {
		return nil, fmt.Errorf("failed to read snapshot meta: %w", err)
	}
	snap := &domain.Snapshot{SchemaVersion: meta.SchemaVersion, ExportedAt: meta.ExportedAt.UTC()}

	var users []userRow
	if err := db.Order("created_at, id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	for _, r := range users {
		u := domain.User{
			ID:              mustUUID(r.ID),
			Username:        r.Username,
			PasswordHash:    r.PasswordHash,
			WalletAddress:   r.WalletAddress,
			Balance:         dec(r.Balance),
			ReservedBalance: dec(r.ReservedBalance),
			IsAdmin:         r.IsAdmin,
			IsSupportAdmin:  r.IsSupportAdmin,
			CreatedAt:       r.CreatedAt.UTC(),
			UpdatedAt:       r.UpdatedAt.UTC(),
		}
		snap.Users = append(snap.Users, domain.SnapshotUser{User: u, PasswordHash: r.PasswordHash})
	}

	var plans []planRow
	if err := db.Order("id").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to read plans: %w", err)
	}
	for _, r := range plans {
		snap.Plans = append(snap.Plans, domain.InvestmentPlan{
			ID:                       r.ID,
			Name:                     r.Name,
			DailyReturnRate:          dec(r.DailyReturnRate),
			RoiPercentage:            dec(r.RoiPercentage),
			DurationDays:             r.DurationDays,
			PerformanceFeePercentage: dec(r.PerformanceFeePercentage),
			MinAmount:                dec(r.MinAmount),
			MaxAmount:                dec(r.MaxAmount),
			IsActive:                 r.IsActive,
			UpdatedAt:                r.UpdatedAt.UTC(),
		})
	}

	var investments []investmentRow
	if err := db.Order("created_at, id").Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("failed to read investments: %w", err)
	}
	for _, r := range investments {
		snap.Investments = append(snap.Investments, domain.Investment{
			ID:                       mustUUID(r.ID),
			UserID:                   mustUUID(r.UserID),
			PlanID:                   r.PlanID,
			Amount:                   dec(r.Amount),
			CurrentProfit:            dec(r.CurrentProfit),
			DailyReturnRate:          dec(r.DailyReturnRate),
			PerformanceFeePercentage: dec(r.PerformanceFeePercentage),
			DurationDays:             r.DurationDays,
			StartDate:                r.StartDate.UTC(),
			EndDate:                  r.EndDate.UTC(),
			LastAccruedAt:            r.LastAccruedAt.UTC(),
			ActiveNanos:              r.ActiveNanos,
			IsActive:                 r.IsActive,
			IsPaused:                 r.IsPaused,
			PauseReason:              r.PauseReason,
			CompletedAt:              utcPtr(r.CompletedAt),
			CreatedAt:                r.CreatedAt.UTC(),
			UpdatedAt:                r.UpdatedAt.UTC(),
		})
	}

	var txs []transactionRow
	if err := db.Order("created_at, id").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	for _, r := range txs {
		tr := domain.Transaction{
			ID:              mustUUID(r.ID),
			UserID:          mustUUID(r.UserID),
			Type:            r.Type,
			Amount:          dec(r.Amount),
			Status:          r.Status,
			TransactionHash: r.TransactionHash,
			Address:         r.Address,
			PlanID:          r.PlanID,
			Notes:           r.Notes,
			CreatedAt:       r.CreatedAt.UTC(),
			ConfirmedAt:     utcPtr(r.ConfirmedAt),
			UpdatedAt:       r.UpdatedAt.UTC(),
		}
		if r.InvestmentID != nil {
			id := mustUUID(*r.InvestmentID)
			tr.InvestmentID = &id
		}
		snap.Transactions = append(snap.Transactions, tr)
	}

	var notes []notificationRow
	if err := db.Order("created_at, id").Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	for _, r := range notes {
		snap.Notifications = append(snap.Notifications, domain.Notification{
			ID:        mustUUID(r.ID),
			UserID:    mustUUID(r.UserID),
			Title:     r.Title,
			Message:   r.Message,
			Type:      r.Type,
			IsRead:    r.IsRead,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}

	var settings []settingRow
	if err := db.Order("`key`").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	for _, r := range settings {
		s := domain.PlatformSetting{Key: r.Key, Value: r.Value, UpdatedAt: r.UpdatedAt.UTC()}
		if r.UpdatedBy != nil {
			id := mustUUID(*r.UpdatedBy)
			s.UpdatedBy = &id
		}
		snap.Settings = append(snap.Settings, s)
	}

	var audit []auditRow
	if err := db.Order("created_at, id").Find(&audit).Error; err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	for _, r := range audit {
		snap.AuditLog = append(snap.AuditLog, domain.AuditEntry{
			ID:        mustUUID(r.ID),
			ActorID:   mustUUID(r.ActorID),
			Action:    r.Action,
			SubjectID: r.SubjectID,
			Detail:    r.Detail,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}

	return snap, nil
}

// Close releases the file handle
func (t *SQLiteTarget) Close() error {
	return closeGorm(t.db)
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func mustUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
