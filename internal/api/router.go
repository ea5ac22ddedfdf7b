package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vidtube/account-service/internal/api/handler"
	"github.com/vidtube/account-service/internal/api/middleware"
	"github.com/vidtube/account-service/internal/core/service"
	"github.com/vidtube/account-service/internal/infrastructure/config"
	mongodb "github.com/vidtube/account-service/internal/infrastructure/db/mongo"
	redisdb "github.com/vidtube/account-service/internal/infrastructure/db/redis"
	"github.com/vidtube/account-service/internal/infrastructure/queue"
	"github.com/vidtube/account-service/internal/infrastructure/storage"
)

// Deps carries the process-wide collaborators the router wires together.
// Constructed once in main — no package-level singletons.
type Deps struct {
	Mongo    *mongo.Database
	Redis    *redis.Client
	Media    *storage.MediaStore
	Recorder *queue.HistoryRecorder
	Logger   zerolog.Logger
	Config   *config.Config
}

// NewRouter builds and returns the Echo instance with all routes registered,
// along with the history recorder so main can start its workers.
func NewRouter(deps Deps) (*echo.Echo, *queue.HistoryRecorder) {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("account"))

	// --- Dependencies ---
	userRepo := mongodb.NewUserRepository(deps.Mongo)
	tokenService := service.NewTokenService(
		userRepo,
		deps.Config.Tokens.AccessSecret,
		deps.Config.Tokens.RefreshSecret,
		deps.Config.Tokens.AccessTTL,
		deps.Config.Tokens.RefreshTTL,
	)
	accountService := service.NewAccountService(userRepo, tokenService, deps.Media, deps.Logger)
	throttle := redisdb.NewLoginLimiter(deps.Redis, 0, 0)

	recorder := deps.Recorder
	if recorder == nil {
		recorder = queue.NewHistoryRecorder(0, userRepo, deps.Logger)
	}

	accountHandler := handler.NewAccountHandler(accountService)
	sessionHandler := handler.NewSessionHandler(accountService, tokenService, throttle, deps.Config.Tokens.RefreshTTL)
	channelHandler := handler.NewChannelHandler(accountService, recorder)
	authGuard := middleware.Auth(tokenService, userRepo)

	// --- Public routes ---
	e.POST("/register", accountHandler.Register)
	e.POST("/login", sessionHandler.Login)
	e.POST("/refresh", sessionHandler.Refresh)

	// --- Authenticated routes ---
	e.POST("/logout", sessionHandler.Logout, authGuard)
	e.POST("/change-password", accountHandler.ChangePassword, authGuard)
	e.GET("/me", accountHandler.CurrentUser, authGuard)
	e.PATCH("/profile", accountHandler.UpdateProfile, authGuard)
	e.PATCH("/username", accountHandler.ChangeUsername, authGuard)
	e.PATCH("/avatar", accountHandler.UpdateAvatar, authGuard)
	e.PATCH("/cover-image", accountHandler.UpdateCoverImage, authGuard)
	e.GET("/channels/:username", channelHandler.Profile, authGuard)
	e.GET("/history", channelHandler.History, authGuard)
	e.POST("/history/:videoId", channelHandler.RecordWatch, authGuard)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Mongo, deps.Redis)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())

	return e, recorder
}
