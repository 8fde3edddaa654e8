package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"yieldvault/internal/delivery/http/dto"
	"yieldvault/internal/domain"
	"yieldvault/internal/middleware"
	"yieldvault/internal/utils"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	userRepo     domain.UserRepository
	auth         *middleware.Auth
	clock        utils.Clock
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(userRepo domain.UserRepository, auth *middleware.Auth, clock utils.Clock, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		userRepo:     userRepo,
		auth:         auth,
		clock:        clock,
		secureCookie: secureCookie,
	}
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, err := h.userRepo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return UnauthorizedResponse(c, "Invalid credentials")
		}
		return InternalServerErrorResponse(c, "Failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return UnauthorizedResponse(c, "Invalid credentials")
	}

	token, err := h.auth.GenerateJWT(user.ID)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to generate token", err)
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.auth.TTL().Seconds()),
	})

	return SuccessResponse(c, dto.LoginResponse{
		Token: token,
		User:  dto.NewUserOutput(user),
	})
}

// Logout clears the session cookie
// POST /api/auth/logout
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	return SuccessMessageResponse(c, "Logged out", nil)
}

// Register creates a user account with an empty balance
// POST /api/auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req dto.RegisterRequest
	if handled, err := bindAndValidate(c, &req); handled {
		return err
	}

	wallet := strings.TrimSpace(req.WalletAddress)
	if wallet != "" {
		if err := domain.ValidateAddress(wallet); err != nil {
			return HandleError(c, err)
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to hash password", err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	now := h.clock.Now().UTC().Truncate(time.Microsecond)
	user := &domain.User{
		ID:              uuid.New(),
		Username:        req.Username,
		PasswordHash:    string(hashedPassword),
		WalletAddress:   wallet,
		Balance:         decimal.Zero,
		ReservedBalance: decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.userRepo.Create(ctx, user); err != nil {
		return HandleError(c, err)
	}

	return CreatedResponse(c, dto.NewUserOutput(user))
}
