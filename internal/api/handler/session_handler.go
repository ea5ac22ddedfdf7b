package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vidtube/account-service/internal/api/metrics"
	"github.com/vidtube/account-service/internal/api/respond"
	"github.com/vidtube/account-service/internal/core/domain"
	"github.com/vidtube/account-service/internal/core/ports"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

// LoginThrottle is the interface the handler uses to curb repeated failed
// logins. Implementations fail open.
type LoginThrottle interface {
	Allow(ctx context.Context, identifier string) bool
	RecordFailure(ctx context.Context, identifier string) error
	Reset(ctx context.Context, identifier string) error
}

// noopThrottle is used when no Redis-backed limiter is wired (tests).
type noopThrottle struct{}

func (noopThrottle) Allow(context.Context, string) bool          { return true }
func (noopThrottle) RecordFailure(context.Context, string) error { return nil }
func (noopThrottle) Reset(context.Context, string) error         { return nil }

// SessionHandler handles login, logout, and refresh-token rotation.
type SessionHandler struct {
	accounts   ports.AccountService
	tokens     ports.TokenService
	throttle   LoginThrottle
	refreshTTL time.Duration
}

func NewSessionHandler(accounts ports.AccountService, tokens ports.TokenService, throttle LoginThrottle, refreshTTL time.Duration) *SessionHandler {
	if throttle == nil {
		throttle = noopThrottle{}
	}
	return &SessionHandler{accounts: accounts, tokens: tokens, throttle: throttle, refreshTTL: refreshTTL}
}

// Login handles POST /login — authenticates by username or email, issues the
// token pair, and sets both HTTP-only secure cookies.
//
// @Summary      Login
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      401  {object}  respond.ErrorEnvelope
// @Failure      404  {object}  respond.ErrorEnvelope
// @Router       /login [post]
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	if !h.throttle.Allow(ctx, identifier) {
		metrics.LoginsTotal.WithLabelValues("throttled").Inc()
		return echo.NewHTTPError(http.StatusUnauthorized, "too many failed login attempts, try again later")
	}

	result, err := h.accounts.Login(ctx, ports.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		if errors.Is(err, domain.ErrInvalidCredentials) {
			_ = h.throttle.RecordFailure(ctx, identifier)
		}
		return err
	}

	_ = h.throttle.Reset(ctx, identifier)
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	metrics.TokensIssuedTotal.WithLabelValues("access").Inc()
	metrics.TokensIssuedTotal.WithLabelValues("refresh").Inc()

	h.setSessionCookies(c, result.Tokens)
	return respond.OK(c, http.StatusOK, loginResponse{
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	}, "User logged in successfully")
}

// Logout handles POST /logout — clears the stored refresh token and expires
// both cookies. Requires a valid access token.
func (h *SessionHandler) Logout(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	if err := h.accounts.Logout(c.Request().Context(), user.ID); err != nil {
		return err
	}

	h.clearSessionCookies(c)
	return respond.OK(c, http.StatusOK, nil, "User logged out successfully")
}

// Refresh handles POST /refresh — reads the refresh token from cookie or
// body, rotates it, and resets both cookies.
//
// @Summary      Rotate the refresh token
// @Tags         sessions
// @Produce      json
// @Success      200  {object}  respond.Envelope
// @Failure      401  {object}  respond.ErrorEnvelope
// @Router       /refresh [post]
func (h *SessionHandler) Refresh(c echo.Context) error {
	presented := ""
	if cookie, err := c.Cookie(refreshTokenCookie); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req refreshRequest
		if err := c.Bind(&req); err == nil {
			presented = req.RefreshToken
		}
	}
	if presented == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized request")
	}

	pair, err := h.tokens.Rotate(c.Request().Context(), presented)
	if err != nil {
		metrics.TokenRotationsTotal.WithLabelValues(rotateResult(err)).Inc()
		return err
	}

	metrics.TokenRotationsTotal.WithLabelValues("ok").Inc()
	metrics.TokensIssuedTotal.WithLabelValues("access").Inc()
	metrics.TokensIssuedTotal.WithLabelValues("refresh").Inc()
	h.setSessionCookies(c, pair)
	return respond.OK(c, http.StatusOK, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "Access token refreshed successfully")
}

func (h *SessionHandler) setSessionCookies(c echo.Context, pair *domain.TokenPair) {
	expires := time.Now().Add(h.refreshTTL)
	c.SetCookie(sessionCookie(accessTokenCookie, pair.AccessToken, expires))
	c.SetCookie(sessionCookie(refreshTokenCookie, pair.RefreshToken, expires))
}

func (h *SessionHandler) clearSessionCookies(c echo.Context) {
	expired := time.Unix(0, 0)
	c.SetCookie(sessionCookie(accessTokenCookie, "", expired))
	c.SetCookie(sessionCookie(refreshTokenCookie, "", expired))
}

func sessionCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func rotateResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrRefreshTokenStale):
		return "stale"
	case errors.Is(err, domain.ErrTokenInvalid):
		return "invalid"
	default:
		return "error"
	}
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid"
	case errors.Is(err, domain.ErrUserNotFound):
		return "not_found"
	default:
		return "error"
	}
}
