// Package limiters implements Redis-backed fixed-window throttles for
// verification attempts and code sends.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited reports that the window's cap was reached.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable reports a Redis failure.
	ErrUnavailable = errors.New("limiter backend unavailable")
)

// AttemptLimiter caps consecutive failures per subject. Failures expire
// after the cooldown; a success resets the counter immediately.
type AttemptLimiter struct {
	redis    *redis.Client
	prefix   string
	max      int
	cooldown time.Duration
}

func NewAttemptLimiter(redisClient *redis.Client, prefix string, max int, cooldown time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		redis:    redisClient,
		prefix:   prefix,
		max:      max,
		cooldown: cooldown,
	}
}

func (l *AttemptLimiter) key(tenantID, subject string) string {
	return l.prefix + ":" + tenantID + ":" + subject
}

func (l *AttemptLimiter) Check(ctx context.Context, tenantID, subject string) error {
	count, err := l.redis.Get(ctx, l.key(tenantID, subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.max) {
		return ErrRateLimited
	}
	return nil
}

func (l *AttemptLimiter) RecordFailure(ctx context.Context, tenantID, subject string) error {
	key := l.key(tenantID, subject)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count >= int64(l.max) {
		return ErrRateLimited
	}
	return nil
}

func (l *AttemptLimiter) Reset(ctx context.Context, tenantID, subject string) error {
	if err := l.redis.Del(ctx, l.key(tenantID, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
