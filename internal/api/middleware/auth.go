package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vidtube/account-service/internal/core/domain"
)

// UserContextKey is where the auth guard stores the resolved, sanitized user.
const UserContextKey = "user"

// AccessTokenCookie is the cookie checked before the Authorization header.
const AccessTokenCookie = "accessToken"

// AccessVerifier is the slice of the token service the guard needs.
type AccessVerifier interface {
	VerifyAccess(token string) (string, error)
}

// UserLoader is the slice of the user repository the guard needs.
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// Auth is the guard middleware: it extracts the access token from the
// accessToken cookie or the Authorization: Bearer header, verifies it, loads
// the user, and injects the sanitized record into the request context. Any
// failure short-circuits with 401 before the downstream handler runs.
func Auth(tokens AccessVerifier, repo UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized request")
			}

			userID, err := tokens.VerifyAccess(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}

			user, err := repo.FindByID(c.Request().Context(), userID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}

			c.Set(UserContextKey, user.Sanitize())
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
