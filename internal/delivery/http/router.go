package http

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	custommiddleware "yieldvault/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	Auth          *custommiddleware.Auth
	AuthHandler   *AuthHandler
	UserHandler   *UserHandler
	AdminHandler  *AdminHandler
	BackupHandler *BackupHandler
	Logger        *slog.Logger
}

// NewEcho builds an echo instance with the request validator installed
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()
	return e
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// polled by the notification bell
			return strings.HasSuffix(c.Request().URL.Path, "/notifications/unread-count")
		},
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= 500 || v.Error != nil {
				level = slog.LevelError
			}
			config.Logger.LogAttrs(context.Background(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	api := e.Group("/api")

	// Auth routes (public)
	auth := api.Group("/auth")
	{
		auth.POST("/login", config.AuthHandler.Login)
		auth.POST("/logout", config.AuthHandler.Logout)
		auth.POST("/register", config.AuthHandler.Register)
	}

	api.GET("/plans", config.UserHandler.GetPlans)

	// User routes (protected with AuthMiddleware)
	user := api.Group("/user", config.Auth.AuthMiddleware)
	{
		user.GET("/me", config.UserHandler.GetMe)
		user.GET("/investments", config.UserHandler.GetInvestments)
		user.POST("/investments", config.UserHandler.SubmitInvestment)
		user.GET("/transactions", config.UserHandler.GetTransactions)
		user.POST("/transactions/:id/cancel", config.UserHandler.CancelTransaction)
		user.POST("/deposits", config.UserHandler.SubmitDeposit)
		user.POST("/withdrawals", config.UserHandler.SubmitWithdrawal)
		user.GET("/notifications", config.UserHandler.GetNotifications)
		user.GET("/notifications/unread-count", config.UserHandler.GetUnreadCount)
		user.POST("/notifications/read-all", config.UserHandler.MarkAllNotificationsRead)
		user.POST("/notifications/:id/read", config.UserHandler.MarkNotificationRead)
		user.DELETE("/notifications", config.UserHandler.ClearNotifications)
		user.GET("/ws", config.UserHandler.Stream)
	}

	// Admin read views (admins and support admins)
	review := api.Group("/admin", config.Auth.AuthMiddleware, config.Auth.RequireReviewer)
	{
		review.GET("/transactions", config.AdminHandler.GetTransactions)
		review.GET("/settings", config.AdminHandler.GetSettings)
		review.GET("/statistics", config.AdminHandler.GetStatistics)
		review.GET("/users", config.AdminHandler.GetUsers)
		review.GET("/backups", config.BackupHandler.GetBackups)
	}

	// Admin mutations (full admins only)
	manage := api.Group("/admin", config.Auth.AuthMiddleware, config.Auth.RequireManager)
	{
		manage.POST("/transactions/:id/confirm", config.AdminHandler.ConfirmTransaction)
		manage.POST("/transactions/:id/reject", config.AdminHandler.RejectTransaction)
		manage.POST("/investments/:id/pause", config.AdminHandler.PauseInvestment)
		manage.POST("/investments/:id/resume", config.AdminHandler.ResumeInvestment)
		manage.POST("/users/:id/balance", config.AdminHandler.AdjustBalance)
		manage.PUT("/settings", config.AdminHandler.UpdateSetting)
		manage.PUT("/plans/:id", config.AdminHandler.UpsertPlan)
		manage.POST("/backups", config.BackupHandler.CreateBackup)
		manage.POST("/backups/:id/sync", config.BackupHandler.SyncBackup)
		manage.POST("/backups/:id/test", config.BackupHandler.TestBackup)
		manage.POST("/backups/:id/promote", config.BackupHandler.PromoteBackup)
		manage.GET("/export", config.BackupHandler.Export)
		manage.POST("/import", config.BackupHandler.Import)
	}
}
