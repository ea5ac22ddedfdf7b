package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultWindow      = 15 * time.Minute
	defaultMaxFailures = 10
)

// LoginLimiter throttles repeated failed logins per identifier, backed by a
// Redis counter with a sliding expiry window.
// Key format: login_failures:<identifier>
type LoginLimiter struct {
	client      *redis.Client
	window      time.Duration
	maxFailures int64
}

// NewLoginLimiter creates a LoginLimiter wrapping the given Redis client.
// Non-positive window/maxFailures fall back to the defaults.
func NewLoginLimiter(client *redis.Client, window time.Duration, maxFailures int64) *LoginLimiter {
	if window <= 0 {
		window = defaultWindow
	}
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	return &LoginLimiter{client: client, window: window, maxFailures: maxFailures}
}

// Allow reports whether a login attempt for identifier may proceed. The
// limiter fails open: a Redis error never blocks a legitimate login.
func (l *LoginLimiter) Allow(ctx context.Context, identifier string) bool {
	n, err := l.client.Get(ctx, l.key(identifier)).Int64()
	if err != nil {
		return true
	}
	return n < l.maxFailures
}

// RecordFailure increments the failure counter, starting the expiry window on
// the first failure.
func (l *LoginLimiter) RecordFailure(ctx context.Context, identifier string) error {
	key := l.key(identifier)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("set failure window: %w", err)
		}
	}
	return nil
}

// Reset clears the failure counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, identifier string) error {
	return l.client.Del(ctx, l.key(identifier)).Err()
}

func (l *LoginLimiter) key(identifier string) string {
	return fmt.Sprintf("login_failures:%s", identifier)
}
