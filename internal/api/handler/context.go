package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vidtube/account-service/internal/api/middleware"
	"github.com/vidtube/account-service/internal/core/domain"
)

// ctxUser extracts the sanitized user injected by the Auth middleware and
// fast-fails with 401 when it is absent — presence proves the guard ran.
func ctxUser(c echo.Context) (*domain.User, error) {
	user, _ := c.Get(middleware.UserContextKey).(*domain.User)
	if user == nil || user.ID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication context")
	}
	return user, nil
}
