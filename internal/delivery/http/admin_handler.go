package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"yieldvault/internal/delivery/http/dto"
	"yieldvault/internal/domain"
	"yieldvault/internal/middleware"
	"yieldvault/internal/usecase"
)

// AdminHandler handles admin-only requests
type AdminHandler struct {
	admin  *usecase.AdminUsecase
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(admin *usecase.AdminUsecase, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger.With("component", "admin_handler"),
	}
}

// GetTransactions returns the review queue
// GET /api/admin/transactions?status=pending&limit=100
func (h *AdminHandler) GetTransactions(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := c.QueryParam("status")
	if status == "" {
		status = domain.StatusPending
	} else if status == "all" {
		status = ""
	}

	txs, err := h.admin.PendingTransactions(ctx, actorID, status, queryInt(c, "limit", 100))
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, txs)
}

// ConfirmTransaction settles a pending transaction
// POST /api/admin/transactions/:id/confirm
func (h *AdminHandler) ConfirmTransaction(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid transaction ID")
	}

	tx, err := h.admin.ConfirmTransaction(c.Request().Context(), actorID, txID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Transaction confirmed", tx)
}

// RejectTransaction refuses a pending transaction
// POST /api/admin/transactions/:id/reject
func (h *AdminHandler) RejectTransaction(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid transaction ID")
	}

	var req dto.RejectRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	tx, err := h.admin.RejectTransaction(c.Request().Context(), actorID, txID, req.Reason)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Transaction rejected", tx)
}

// PauseInvestment freezes accrual on an investment
// POST /api/admin/investments/:id/pause
func (h *AdminHandler) PauseInvestment(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}
	invID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid investment ID")
	}

	var req dto.PauseRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	inv, err := h.admin.PauseInvestment(c.Request().Context(), actorID, invID, req.Reason)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Investment paused", inv)
}

// ResumeInvestment restarts accrual on a paused investment
// POST /api/admin/investments/:id/resume
func (h *AdminHandler) ResumeInvestment(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}
	invID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid investment ID")
	}

	inv, err := h.admin.ResumeInvestment(c.Request().Context(), actorID, invID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Investment resumed", inv)
}

// AdjustBalance applies a manual credit or debit
// POST /api/admin/users/:id/balance
func (h *AdminHandler) AdjustBalance(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid user ID")
	}

	var req dto.BalanceAdjustRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	user, err := h.admin.AdjustBalance(c.Request().Context(), actorID, userID, req.Delta, req.Note)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Balance adjusted", dto.NewUserOutput(user))
}

// GetUsers lists accounts
// GET /api/admin/users?limit=100&offset=0
func (h *AdminHandler) GetUsers(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	users, err := h.admin.Users(c.Request().Context(), actorID, queryInt(c, "limit", 100), queryInt(c, "offset", 0))
	if err != nil {
		return HandleError(c, err)
	}

	out := make([]*dto.UserOutput, 0, len(users))
	for _, u := range users {
		out = append(out, dto.NewUserOutput(u))
	}
	return SuccessResponse(c, out)
}

// GetSettings lists platform settings
// GET /api/admin/settings
func (h *AdminHandler) GetSettings(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	settings, err := h.admin.Settings(c.Request().Context(), actorID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, settings)
}

// UpdateSetting changes one platform setting
// PUT /api/admin/settings
func (h *AdminHandler) UpdateSetting(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	var req dto.SettingRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	setting, err := h.admin.UpdateSetting(c.Request().Context(), actorID, req.Key, req.Value)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Setting updated", setting)
}

// UpsertPlan creates or edits a plan
// PUT /api/admin/plans/:id
func (h *AdminHandler) UpsertPlan(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	var req dto.PlanRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	plan := &domain.InvestmentPlan{
		ID:                       c.Param("id"),
		Name:                     req.Name,
		DailyReturnRate:          req.DailyReturnRate,
		RoiPercentage:            req.RoiPercentage,
		DurationDays:             req.DurationDays,
		PerformanceFeePercentage: req.PerformanceFeePercentage,
		MinAmount:                req.MinAmount,
		MaxAmount:                req.MaxAmount,
		IsActive:                 req.IsActive,
	}

	saved, err := h.admin.UpsertPlan(c.Request().Context(), actorID, plan)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Plan saved", saved)
}

// GetStatistics returns dashboard aggregates
// GET /api/admin/statistics
func (h *AdminHandler) GetStatistics(c echo.Context) error {
	actorID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	stats, err := h.admin.Statistics(ctx, actorID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, stats)
}
