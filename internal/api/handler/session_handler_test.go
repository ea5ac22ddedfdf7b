package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vidtube/account-service/internal/api"
	"github.com/vidtube/account-service/internal/api/handler"
	"github.com/vidtube/account-service/internal/api/middleware"
	"github.com/vidtube/account-service/internal/core/domain"
	"github.com/vidtube/account-service/internal/core/ports"
)

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []string        `json:"errors"`
}

// newTestServer wires validator, error handler, and routes the way the
// router does, with stubbed collaborators.
func newTestServer(accounts ports.AccountService, tokens ports.TokenService, throttle handler.LoginThrottle, recorder handler.WatchRecorder, loader middleware.UserLoader) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = api.NewHTTPErrorHandler(zerolog.Nop())

	accountHandler := handler.NewAccountHandler(accounts)
	sessionHandler := handler.NewSessionHandler(accounts, tokens, throttle, time.Hour)
	channelHandler := handler.NewChannelHandler(accounts, recorder)
	authGuard := middleware.Auth(tokens, loader)

	e.POST("/register", accountHandler.Register)
	e.POST("/login", sessionHandler.Login)
	e.POST("/refresh", sessionHandler.Refresh)

	e.POST("/logout", sessionHandler.Logout, authGuard)
	e.POST("/change-password", accountHandler.ChangePassword, authGuard)
	e.GET("/me", accountHandler.CurrentUser, authGuard)
	e.PATCH("/profile", accountHandler.UpdateProfile, authGuard)
	e.GET("/channels/:username", channelHandler.Profile, authGuard)
	e.GET("/history", channelHandler.History, authGuard)
	e.POST("/history/:videoId", channelHandler.RecordWatch, authGuard)

	return e
}

func doJSON(e *echo.Echo, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return env
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	res := rec.Result()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func withBearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func TestLogin_Success(t *testing.T) {
	user := &domain.User{ID: "u1", Username: "alice", Email: "alice@example.com"}
	accounts := &stubAccounts{
		loginFn: func(_ context.Context, input ports.LoginInput) (*ports.LoginResult, error) {
			if input.Username != "alice" || input.Password != "secret123" {
				t.Fatalf("unexpected login input: %+v", input)
			}
			return &ports.LoginResult{
				User:   user,
				Tokens: &domain.TokenPair{AccessToken: "at", RefreshToken: "rt"},
			}, nil
		},
	}
	throttle := &stubThrottle{}
	e := newTestServer(accounts, &stubTokens{}, throttle, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/login", `{"username":"alice","password":"secret123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	if !env.Success || env.Message != "User logged in successfully" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	var data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		User         struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.AccessToken != "at" || data.RefreshToken != "rt" || data.User.Username != "alice" {
		t.Fatalf("unexpected data: %+v", data)
	}

	for _, name := range []string{"accessToken", "refreshToken"} {
		cookie := findCookie(rec, name)
		if cookie == nil {
			t.Fatalf("%s cookie not set", name)
		}
		if !cookie.HttpOnly || !cookie.Secure {
			t.Fatalf("%s cookie not hardened: %+v", name, cookie)
		}
	}
	if throttle.resets != 1 {
		t.Fatalf("throttle not reset on success: %d", throttle.resets)
	}
}

func TestLogin_MissingIdentifier(t *testing.T) {
	e := newTestServer(&stubAccounts{}, &stubTokens{}, nil, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/login", `{"password":"secret123"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Fatalf("failure envelope marked success")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	accounts := &stubAccounts{
		loginFn: func(context.Context, ports.LoginInput) (*ports.LoginResult, error) {
			return nil, domain.ErrInvalidCredentials
		},
	}
	throttle := &stubThrottle{}
	e := newTestServer(accounts, &stubTokens{}, throttle, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/login", `{"username":"alice","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Message != "invalid user credentials" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if throttle.failures != 1 {
		t.Fatalf("failed attempt not recorded: %d", throttle.failures)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	accounts := &stubAccounts{
		loginFn: func(context.Context, ports.LoginInput) (*ports.LoginResult, error) {
			return nil, domain.ErrUserNotFound
		},
	}
	throttle := &stubThrottle{}
	e := newTestServer(accounts, &stubTokens{}, throttle, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/login", `{"email":"ghost@example.com","password":"secret"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if throttle.failures != 0 {
		t.Fatalf("unknown user counted as failed credential attempt")
	}
}

func TestLogin_Throttled(t *testing.T) {
	called := false
	accounts := &stubAccounts{
		loginFn: func(context.Context, ports.LoginInput) (*ports.LoginResult, error) {
			called = true
			return nil, nil
		},
	}
	e := newTestServer(accounts, &stubTokens{}, &stubThrottle{blocked: true}, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/login", `{"username":"alice","password":"secret123"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatalf("login reached the service while throttled")
	}
}

func TestRefresh_FromCookie(t *testing.T) {
	tokens := &stubTokens{
		rotateFn: func(_ context.Context, presented string) (*domain.TokenPair, error) {
			if presented != "old-refresh" {
				t.Fatalf("unexpected presented token %q", presented)
			}
			return &domain.TokenPair{AccessToken: "new-at", RefreshToken: "new-rt"}, nil
		},
	}
	e := newTestServer(&stubAccounts{}, tokens, nil, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/refresh", "", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "old-refresh"})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	cookie := findCookie(rec, "refreshToken")
	if cookie == nil || cookie.Value != "new-rt" {
		t.Fatalf("refresh cookie not rotated: %+v", cookie)
	}
}

func TestRefresh_FromBody(t *testing.T) {
	tokens := &stubTokens{
		rotateFn: func(_ context.Context, presented string) (*domain.TokenPair, error) {
			if presented != "body-refresh" {
				t.Fatalf("unexpected presented token %q", presented)
			}
			return &domain.TokenPair{AccessToken: "new-at", RefreshToken: "new-rt"}, nil
		},
	}
	e := newTestServer(&stubAccounts{}, tokens, nil, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/refresh", `{"refreshToken":"body-refresh"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRefresh_MissingToken(t *testing.T) {
	e := newTestServer(&stubAccounts{}, &stubTokens{}, nil, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/refresh", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRefresh_Stale(t *testing.T) {
	tokens := &stubTokens{
		rotateFn: func(context.Context, string) (*domain.TokenPair, error) {
			return nil, domain.ErrRefreshTokenStale
		},
	}
	e := newTestServer(&stubAccounts{}, tokens, nil, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/refresh", `{"refreshToken":"reused"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Message != "Refresh token is expired or used" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestLogout_ClearsCookies(t *testing.T) {
	loggedOut := ""
	accounts := &stubAccounts{
		logoutFn: func(_ context.Context, userID string) error {
			loggedOut = userID
			return nil
		},
	}
	tokens := &stubTokens{authedUserID: "u1"}
	loader := &stubLoader{user: &domain.User{ID: "u1", Username: "alice"}}
	e := newTestServer(accounts, tokens, nil, &stubRecorder{}, loader)

	rec := doJSON(e, http.MethodPost, "/logout", "", withBearer("access"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if loggedOut != "u1" {
		t.Fatalf("logout called with %q", loggedOut)
	}

	for _, name := range []string{"accessToken", "refreshToken"} {
		cookie := findCookie(rec, name)
		if cookie == nil {
			t.Fatalf("%s cookie not reset", name)
		}
		if cookie.Value != "" || cookie.Expires.After(time.Now()) {
			t.Fatalf("%s cookie not expired: %+v", name, cookie)
		}
	}
}

func TestLogout_RequiresAuth(t *testing.T) {
	tokens := &stubTokens{verifyErr: domain.ErrTokenInvalid}
	e := newTestServer(&stubAccounts{}, tokens, nil, &stubRecorder{}, &stubLoader{})

	rec := doJSON(e, http.MethodPost, "/logout", "", withBearer("garbage"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
