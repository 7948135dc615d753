// Package ratelimit throttles failed logins with Redis fixed-window counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned once a key has used up its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable wraps backend failures so callers can decide to fail open.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// LoginLimiter budgets login attempts per email. Every attempt reserves a
// slot before the password is checked; a successful login clears the budget.
type LoginLimiter interface {
	Reserve(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// Config holds limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// RedisLimiter counts attempts with INCR in a fixed window whose TTL is set on the first hit.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedisLimiter creates a limiter backed by the given Redis client.
func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	return &RedisLimiter{redis: client, config: cfg}
}

// Reserve counts one attempt for email and fails with ErrRateLimited once
// the window's budget is spent. INCR and the window TTL are sent in one
// MULTI/EXEC so a counter can never be left without an expiry.
func (l *RedisLimiter) Reserve(ctx context.Context, email string) error {
	key := loginKey(email)

	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.config.Window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if incr.Val() > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter after a successful login.
func (l *RedisLimiter) Reset(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, loginKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func loginKey(email string) string {
	return "lt:" + strings.ToLower(strings.TrimSpace(email))
}

// Noop never limits.
type Noop struct{}

func (Noop) Reserve(context.Context, string) error { return nil }
func (Noop) Reset(context.Context, string) error   { return nil }
