package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vidtube/account-service/internal/api"
	"github.com/vidtube/account-service/internal/infrastructure/config"
	mongodb "github.com/vidtube/account-service/internal/infrastructure/db/mongo"
	redisdb "github.com/vidtube/account-service/internal/infrastructure/db/redis"
	"github.com/vidtube/account-service/internal/infrastructure/storage"
	"github.com/vidtube/account-service/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}
	defer func() {
		_ = mongoClient.Disconnect(context.Background())
	}()
	log.Info().Str("database", cfg.Mongo.Database).Msg("mongo connected")

	userRepo := mongodb.NewUserRepository(db)
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("user index creation failed")
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer rdb.Close()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	media, err := storage.NewMediaStore(storage.Config{
		Endpoint:      cfg.Media.Endpoint,
		AccessKey:     cfg.Media.AccessKey,
		SecretKey:     cfg.Media.SecretKey,
		Bucket:        cfg.Media.Bucket,
		UseSSL:        cfg.Media.UseSSL,
		PublicBaseURL: cfg.Media.PublicBaseURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("media storage init failed")
	}
	if err := media.EnsureBucket(ctx); err != nil {
		log.Fatal().Err(err).Msg("media bucket check failed")
	}

	e, recorder := api.NewRouter(api.Deps{
		Mongo:  db,
		Redis:  rdb,
		Media:  media,
		Logger: log,
		Config: cfg,
	})
	recorder.Start(ctx)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server start failed")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("account service started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
		os.Exit(1)
	}
	log.Info().Msg("account service stopped gracefully")
}
