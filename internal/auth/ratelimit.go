package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQuotaExceeded is returned when a client has used its daily quota.
var ErrQuotaExceeded = errors.New("daily send quota exceeded")

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// DailyLimit is the number of emails a client may queue per UTC day.
	// Zero or less disables the limit.
	DailyLimit int `mapstructure:"daily_limit"`
}

// RateLimiter enforces a per-client daily send quota with a Redis counter.
type RateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	now    func() time.Time
}

// NewRateLimiter creates a new RateLimiter with the given Redis client and
// configuration. A nil client disables rate limiting.
func NewRateLimiter(client *redis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Allow counts one send for clientID and returns ErrQuotaExceeded when the
// count passes the daily limit. remaining is -1 when limiting is off.
func (rl *RateLimiter) Allow(ctx context.Context, clientID string) (remaining int, err error) {
	if rl.client == nil || rl.config.DailyLimit <= 0 {
		return -1, nil
	}

	now := rl.now().UTC()
	key := fmt.Sprintf("ratelimit:send:%s:%s", clientID, now.Format("2006-01-02"))

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Expire one hour after the day ends.
	pipe.Expire(ctx, key, untilEndOfDay(now)+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment send count: %w", err)
	}

	count := int(incr.Val())
	if count > rl.config.DailyLimit {
		return 0, fmt.Errorf("%w (%d/%d)", ErrQuotaExceeded, count-1, rl.config.DailyLimit)
	}
	return rl.config.DailyLimit - count, nil
}

// untilEndOfDay returns the duration from now until the next UTC midnight.
func untilEndOfDay(now time.Time) time.Duration {
	year, month, day := now.Date()
	next := time.Date(year, month, day+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}
