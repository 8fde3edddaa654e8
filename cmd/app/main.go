package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"yieldvault/configs"
	"yieldvault/internal/adapter/natsbus"
	"yieldvault/internal/adapter/replica"
	"yieldvault/internal/adapter/s3archive"
	"yieldvault/internal/adapter/telegram"
	"yieldvault/internal/database"
	delivery "yieldvault/internal/delivery/http"
	"yieldvault/internal/delivery/ws"
	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	"yieldvault/internal/middleware"
	"yieldvault/internal/repository"
	"yieldvault/internal/service"
	"yieldvault/internal/usecase"
	"yieldvault/internal/utils"
)

const (
	jobAccrual    = "accrual"
	jobBackupSync = "backup-sync"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := configs.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := infra.NewLogger(cfg.Log.Level, cfg.Log.File)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("yieldvault stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited gracefully")
}

func run(ctx context.Context, cfg *configs.Config, logger *slog.Logger) error {
	// The control database holds the backup registry and is the ledger until a backup is promoted
	control, err := infra.NewDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect control database: %w", err)
	}
	defer control.Close()

	if err := database.RunMigrations(ctx, control, logger); err != nil {
		return err
	}

	backupRepo := repository.NewBackupRepository(control)
	ledgerPool, err := openLedgerPool(ctx, control, backupRepo, logger)
	if err != nil {
		return err
	}
	db := infra.NewPoolRouter(ledgerPool, logger)
	defer db.Close()

	clock := utils.SystemClock{}
	metrics := infra.NewMetrics(prometheus.DefaultRegisterer)

	// Repositories
	ledger := repository.NewLedgerStore(db)
	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	investmentRepo := repository.NewInvestmentRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	// Push fan-out: local websocket sessions, plus peers over NATS when configured
	hub := ws.NewHub(metrics, logger)
	notifications := service.NewNotificationService(notificationRepo, metrics, logger, hub)
	if cfg.NATS.URL != "" {
		bus, err := natsbus.Connect(ctx, cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("NATS unavailable, push stays local to this instance", "error", err)
		} else {
			defer bus.Close()
			notifications.AddSink(bus)
			if err := bus.Listen(ctx, hub); err != nil {
				logger.Error("remote events disabled", "error", err)
			}
		}
	}

	var alerts service.ReplicationAlerter
	if cfg.Telegram.BotToken != "" {
		alerts = telegram.NewAlertService(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	var archive service.ExportArchiver
	if cfg.Backup.S3Bucket != "" {
		a, err := s3archive.New(ctx, s3archive.Options{
			Bucket:    cfg.Backup.S3Bucket,
			Region:    cfg.Backup.S3Region,
			Prefix:    cfg.Backup.S3Prefix,
			AccessKey: cfg.Backup.S3AccessKey,
			SecretKey: cfg.Backup.S3SecretKey,
			Endpoint:  cfg.Backup.S3Endpoint,
		})
		if err != nil {
			return err
		}
		archive = a
	}

	// Services
	accrual := service.NewAccrualService(ledger, investmentRepo, notifications, clock, metrics, logger)
	replication := service.NewReplicationService(
		backupRepo, snapshotRepo, replica.NewOpener(logger), db, alerts, archive, clock, metrics, logger,
	)
	if err := replication.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("recover interrupted syncs: %w", err)
	}

	transactions := usecase.NewTransactionUsecase(
		ledger, planRepo, transactionRepo, investmentRepo, userRepo, notifications, clock, metrics, logger,
		usecase.TransactionConfig{
			MinDeposit:             cfg.Ledger.MinDeposit,
			MinWithdrawal:          cfg.Ledger.MinWithdrawal,
			AutoConfirmInvestments: cfg.Ledger.AutoConfirmInvestments,
		},
	)
	admin := usecase.NewAdminUsecase(
		ledger, userRepo, planRepo, settingsRepo, statsRepo, transactions, notifications, clock, logger,
	)

	seed, err := configs.LoadPlans(cfg.Ledger.PlansFile)
	if err != nil {
		return err
	}
	if _, err := usecase.SeedPlans(ctx, planRepo, seed, clock, logger); err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}
	if err := ensureAdminUser(ctx, userRepo, cfg.Auth, clock, logger); err != nil {
		return err
	}

	// Background jobs
	scheduler := infra.NewScheduler(logger)
	if err := scheduler.Register(jobAccrual, cfg.Schedule.Accrual, accrual.Run); err != nil {
		return err
	}
	if err := scheduler.Register(jobBackupSync, cfg.Schedule.BackupSync, replication.SyncAll); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Public and admin API
	auth := middleware.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, userRepo)
	e := delivery.NewEcho()
	delivery.SetupRoutes(e, &delivery.RouterConfig{
		Auth:          auth,
		AuthHandler:   delivery.NewAuthHandler(userRepo, auth, clock, cfg.IsProduction()),
		UserHandler:   delivery.NewUserHandler(transactions, notifications, planRepo, hub, logger),
		AdminHandler:  delivery.NewAdminHandler(admin, logger),
		BackupHandler: delivery.NewBackupHandler(replication),
		Logger:        logger,
	})

	api := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ops := &http.Server{
		Addr:         ":" + cfg.Server.OpsPort,
		Handler:      opsRouter(control, db, scheduler, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{api, ops} {
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}
	logger.Info("yieldvault started",
		"api_addr", api.Addr,
		"ops_addr", ops.Addr,
		"env", cfg.Server.Env,
		"auto_confirm_investments", cfg.Ledger.AutoConfirmInvestments)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server forced to shutdown", "error", err)
	}
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server forced to shutdown", "error", err)
	}
	return runErr
}

// openLedgerPool connects to the promoted backup if there is one, else reuses the control pool
func openLedgerPool(ctx context.Context, control *pgxpool.Pool, backups domain.BackupRepository, logger *slog.Logger) (*pgxpool.Pool, error) {
	primary, err := backups.GetPrimary(ctx)
	if err != nil {
		return nil, fmt.Errorf("load primary: %w", err)
	}
	if primary == nil {
		return control, nil
	}

	pool, err := infra.NewDatabase(ctx, primary.ConnectionTarget)
	if err != nil {
		return nil, fmt.Errorf("connect promoted primary %s: %w", primary.Name, err)
	}
	if err := database.RunMigrations(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("using promoted primary", "backup_id", primary.ID, "name", primary.Name)
	return pool, nil
}

func opsRouter(control *pgxpool.Pool, ledger *infra.PoolRouter, scheduler *infra.Scheduler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/health", handleHealth(control, ledger))
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/jobs/{name}/run", handleRunJob(scheduler, logger))
	return r
}

type pinger interface {
	Ping(context.Context) error
}

func handleHealth(control, ledger pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		check := func(p pinger) string {
			if err := p.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				return "unhealthy"
			}
			return "healthy"
		}

		body := map[string]string{
			"service":          "yieldvault",
			"control_database": check(control),
			"ledger_database":  check(ledger),
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
		}
		body["status"] = "healthy"
		if status != http.StatusOK {
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func handleRunJob(scheduler *infra.Scheduler, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		logger.Info("manual job run requested", "job", name)

		go func() {
			if err := scheduler.RunNow(name); err != nil {
				logger.Error("manual job run failed", "job", name, "error", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"job": name, "status": "processing"})
	}
}

// ensureAdminUser creates the bootstrap admin from config when the username is free
func ensureAdminUser(ctx context.Context, users domain.UserRepository, cfg configs.AuthConfig, clock utils.Clock, logger *slog.Logger) error {
	if cfg.AdminUsername == "" {
		return nil
	}

	existing, err := users.GetByUsername(ctx, cfg.AdminUsername)
	if err == nil {
		if !existing.IsAdmin {
			logger.Warn("bootstrap admin exists without admin capability; grant it in the database", "username", existing.Username)
		}
		return nil
	}
	if domain.KindOf(err) != domain.KindNotFound {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	now := clock.Now()
	admin := &domain.User{
		ID:           uuid.New(),
		Username:     cfg.AdminUsername,
		PasswordHash: string(hash),
		IsAdmin:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	logger.Info("created bootstrap admin", "username", admin.Username, "user_id", admin.ID)
	return nil
}
