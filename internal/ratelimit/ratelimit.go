// Package ratelimit provides a fixed-window counter over Redis, used to
// throttle session issuance per client IP.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/showroomhq/testdrive-core/pkg/logger"
)

type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// New builds a limiter. A nil client disables limiting; callers degrade
// gracefully when Redis is unreachable at startup.
func New(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

// Allow increments the window counter for key and reports whether the
// request fits the quota. Redis failures fail open: availability of
// session issuance outweighs strict limiting.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.rdb == nil {
		return true
	}
	redisKey := "ratelimit:" + key
	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		logger.WarnContext(ctx, "rate limiter unavailable, failing open", "error", err)
		return true
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, redisKey, l.window).Err(); err != nil {
			logger.WarnContext(ctx, "rate limiter expire failed", "key", key, "error", err)
		}
	}
	return count <= int64(l.limit)
}
