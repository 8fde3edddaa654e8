package http

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"yieldvault/internal/delivery/http/dto"
	"yieldvault/internal/delivery/ws"
	"yieldvault/internal/domain"
	"yieldvault/internal/middleware"
	"yieldvault/internal/service"
	"yieldvault/internal/usecase"
)

// UserHandler handles user-related requests
type UserHandler struct {
	transactions  *usecase.TransactionUsecase
	notifications *service.NotificationService
	plans         domain.PlanRepository
	hub           *ws.Hub
	logger        *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(
	transactions *usecase.TransactionUsecase,
	notifications *service.NotificationService,
	plans domain.PlanRepository,
	hub *ws.Hub,
	logger *slog.Logger,
) *UserHandler {
	return &UserHandler{
		transactions:  transactions,
		notifications: notifications,
		plans:         plans,
		hub:           hub,
		logger:        logger.With("component", "user_handler"),
	}
}

// GetPlans lists the plans open for new investments
// GET /api/plans
func (h *UserHandler) GetPlans(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	plans, err := h.plans.GetAll(ctx, true)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, plans)
}

// GetMe returns the user with balance, running investments and totals
// GET /api/user/me
func (h *UserHandler) GetMe(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	portfolio, err := h.transactions.Portfolio(ctx, userID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, portfolio)
}

// GetInvestments returns all of the user's investments with live progress
// GET /api/user/investments
func (h *UserHandler) GetInvestments(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	portfolio, err := h.transactions.Portfolio(ctx, userID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, portfolio.Investments)
}

// GetTransactions returns the user's transaction history, newest first
// GET /api/user/transactions?limit=50
func (h *UserHandler) GetTransactions(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	txs, err := h.transactions.ListForUser(ctx, userID, queryInt(c, "limit", 50))
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, txs)
}

// SubmitDeposit records a deposit awaiting confirmation
// POST /api/user/deposits
func (h *UserHandler) SubmitDeposit(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	var req dto.DepositRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	tx, err := h.transactions.SubmitDeposit(c.Request().Context(), userID, req.Amount, req.TxHash)
	if err != nil {
		return HandleError(c, err)
	}
	return CreatedResponse(c, tx)
}

// SubmitWithdrawal reserves funds for a payout request
// POST /api/user/withdrawals
func (h *UserHandler) SubmitWithdrawal(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	var req dto.WithdrawalRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	tx, err := h.transactions.SubmitWithdrawal(c.Request().Context(), userID, req.Amount, req.Address)
	if err != nil {
		return HandleError(c, err)
	}
	return CreatedResponse(c, tx)
}

// SubmitInvestment requests a new investment in a plan
// POST /api/user/investments
func (h *UserHandler) SubmitInvestment(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	var req dto.InvestmentRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	tx, err := h.transactions.SubmitInvestment(c.Request().Context(), userID, req.PlanID, req.Amount)
	if err != nil {
		return HandleError(c, err)
	}
	return CreatedResponse(c, tx)
}

// CancelTransaction withdraws one of the user's own pending requests
// POST /api/user/transactions/:id/cancel
func (h *UserHandler) CancelTransaction(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid transaction ID")
	}

	tx, err := h.transactions.Cancel(c.Request().Context(), userID, txID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Transaction cancelled", tx)
}

// GetNotifications lists the user's notifications
// GET /api/user/notifications?unread=true&limit=50
func (h *UserHandler) GetNotifications(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	unreadOnly, _ := strconv.ParseBool(c.QueryParam("unread"))
	list, err := h.notifications.List(ctx, userID, unreadOnly, queryInt(c, "limit", 50))
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, list)
}

// GetUnreadCount returns the unread badge count
// GET /api/user/notifications/unread-count
func (h *UserHandler) GetUnreadCount(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	n, err := h.notifications.UnreadCount(c.Request().Context(), userID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, dto.UnreadCountOutput{Unread: n})
}

// MarkNotificationRead marks one notification as read
// POST /api/user/notifications/:id/read
func (h *UserHandler) MarkNotificationRead(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid notification ID")
	}

	if err := h.notifications.MarkRead(c.Request().Context(), userID, id); err != nil {
		return HandleError(c, err)
	}
	return SuccessMessageResponse(c, "Notification marked as read", nil)
}

// MarkAllNotificationsRead marks every notification as read
// POST /api/user/notifications/read-all
func (h *UserHandler) MarkAllNotificationsRead(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	n, err := h.notifications.MarkAllRead(c.Request().Context(), userID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, dto.AffectedOutput{Affected: n})
}

// ClearNotifications deletes every notification of the user
// DELETE /api/user/notifications
func (h *UserHandler) ClearNotifications(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	n, err := h.notifications.ClearAll(c.Request().Context(), userID)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, dto.AffectedOutput{Affected: n})
}

// Stream upgrades to a websocket carrying the user's push events
// GET /api/user/ws
func (h *UserHandler) Stream(c echo.Context) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "User not authenticated")
	}

	if err := h.hub.Serve(c.Response(), c.Request(), userID); err != nil {
		// the upgrader has already answered the client
		h.logger.Warn("websocket session refused", "user_id", userID, "error", err)
	}
	return nil
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
