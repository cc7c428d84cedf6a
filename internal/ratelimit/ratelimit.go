// Package ratelimit implements a fixed-window per-user send limiter on Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SendLimiter allows at most limit sends per user per window.
type SendLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

func NewSendLimiter(rdb *redis.Client, limit int, window time.Duration) *SendLimiter {
	return &SendLimiter{rdb: rdb, limit: int64(limit), window: window}
}

func Key(userID uuid.UUID) string {
	return "ratelimit:send:" + userID.String()
}

// Allow counts one send. On Redis errors it allows the send and returns the
// error so the caller can log it.
func (l *SendLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := Key(userID)
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.rdb.PExpire(ctx, key, l.window).Err(); err != nil {
			return true, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= l.limit, nil
}
