package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"yieldvault/internal/domain"
)

// TokenCookie is the cookie name the session token travels in
const TokenCookie = "token"

// JWTClaims represents the custom JWT claims. Capabilities are not carried in the
// token; they are reloaded from the user row on every admin request.
type JWTClaims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// Auth issues and verifies session tokens
type Auth struct {
	secret []byte
	ttl    time.Duration
	users  domain.UserRepository
}

// NewAuth creates a new Auth
func NewAuth(secret string, ttl time.Duration, users domain.UserRepository) *Auth {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{secret: []byte(secret), ttl: ttl, users: users}
}

// TTL returns the token lifetime
func (a *Auth) TTL() time.Duration {
	return a.ttl
}

// GenerateJWT generates a new JWT token for a user
func (a *Auth) GenerateJWT(userID uuid.UUID) (string, error) {
	claims := &JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token string and returns its claims
func (a *Auth) ParseToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}

// AuthMiddleware validates the token from the Authorization header or the token cookie
func (a *Auth) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := bearerToken(c.Request().Header.Get("Authorization"))
		if tokenString == "" {
			if cookie, err := c.Cookie(TokenCookie); err == nil {
				tokenString = cookie.Value
			}
		}
		if tokenString == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token",
			})
		}

		claims, err := a.ParseToken(tokenString)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Invalid or expired token",
			})
		}

		c.Set("user_id", claims.UserID)
		return next(c)
	}
}

// RequireReviewer allows admins and support admins through
func (a *Auth) RequireReviewer(next echo.HandlerFunc) echo.HandlerFunc {
	return a.requireCapability(next, (*domain.User).CanReview)
}

// RequireManager allows full admins only
func (a *Auth) RequireManager(next echo.HandlerFunc) echo.HandlerFunc {
	return a.requireCapability(next, (*domain.User).CanManage)
}

// requireCapability reloads the acting user so revoked privileges take effect immediately.
// Must be used after AuthMiddleware.
func (a *Auth) requireCapability(next echo.HandlerFunc, allowed func(*domain.User) bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := GetUserID(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized",
			})
		}

		user, err := a.users.GetByID(c.Request().Context(), userID)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "Unauthorized",
				})
			}
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "Failed to load user",
			})
		}
		if !allowed(user) {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "Admin access required",
			})
		}

		c.Set("user", user)
		return next(c)
	}
}

// GetUserID extracts user ID from context
func GetUserID(c echo.Context) (uuid.UUID, error) {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("user ID not found in context")
	}
	return userID, nil
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
