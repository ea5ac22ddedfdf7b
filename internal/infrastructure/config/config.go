package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Tokens TokenConfig
	Mongo  MongoConfig
	Redis  RedisConfig
	Media  MediaConfig
}

type TokenConfig struct {
	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL,  default=15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL, default=168h"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=vidtube"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

type MediaConfig struct {
	Endpoint      string `env:"MEDIA_ENDPOINT,   default=localhost:9000"`
	AccessKey     string `env:"MEDIA_ACCESS_KEY"`
	SecretKey     string `env:"MEDIA_SECRET_KEY"`
	Bucket        string `env:"MEDIA_BUCKET,     default=vidtube-media"`
	UseSSL        bool   `env:"MEDIA_USE_SSL,    default=false"`
	PublicBaseURL string `env:"MEDIA_PUBLIC_BASE_URL"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
