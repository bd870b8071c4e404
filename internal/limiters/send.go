package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SendLimiter caps dispatches per subject in a fixed window. Unlike
// [AttemptLimiter] there is no reset on success: every send counts.
type SendLimiter struct {
	redis  *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewSendLimiter(redisClient *redis.Client, prefix string, max int, window time.Duration) *SendLimiter {
	return &SendLimiter{
		redis:  redisClient,
		prefix: prefix,
		max:    max,
		window: window,
	}
}

func (l *SendLimiter) key(tenantID, subject string) string {
	return l.prefix + ":" + tenantID + ":" + subject
}

// Allow consumes one send from the window, failing with [ErrRateLimited]
// once the cap is exceeded.
func (l *SendLimiter) Allow(ctx context.Context, tenantID, subject string) error {
	key := l.key(tenantID, subject)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count > int64(l.max) {
		return ErrRateLimited
	}
	return nil
}
