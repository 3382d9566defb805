package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"go-auth-api/app/entity"
	"go-auth-api/app/service"
)

const (
	ContextKeyUserID    = "user_id"
	ContextKeyUserEmail = "user_email"
)

type accessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*service.Token, error)
}

type userLoader interface {
	CurrentUser(ctx context.Context, userID string) (*entity.User, error)
}

type AuthMiddleware struct {
	sessions accessTokenValidator
	users    userLoader
}

func NewAuthMiddleware(sessions accessTokenValidator, users userLoader) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, users: users}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Authentication required",
			})
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logrus.Debug("Invalid authorization header format")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Authentication required",
			})
		}

		token, err := m.sessions.ValidateAccessToken(parts[1])
		if err != nil {
			logrus.Debug("Invalid or expired access token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid or expired token",
			})
		}

		c.Set(ContextKeyUserID, token.Subject)
		c.Set(ContextKeyUserEmail, token.Email)

		return next(c)
	}
}

// RequireAdmin loads the current user and rejects non-admins. Must run after
// RequireAuth.
func (m *AuthMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := c.Get(ContextKeyUserID).(string)
		if !ok || userID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "Authentication required",
			})
		}

		user, err := m.users.CurrentUser(c.Request().Context(), userID)
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Debug("Failed to load user for role check")
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "Not enough permissions",
			})
		}
		if !user.IsAdmin() {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "Not enough permissions",
			})
		}

		return next(c)
	}
}
