package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	goredis "github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter keyed by caller.
type RateLimiter interface {
	// Allow consumes one unit for key. It reports whether the call is within
	// the limit and, when it is not, how long until the window resets.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// NewRateLimiter counts in Redis when rdb is non-nil, otherwise in process.
// A limit <= 0 disables limiting.
func NewRateLimiter(rdb *goredis.Client, prefix string, limit int, window time.Duration) RateLimiter {
	if window <= 0 {
		window = time.Hour
	}
	if rdb == nil {
		return &memoryLimiter{
			prefix: prefix,
			limit:  limit,
			window: window,
			counts: cache.New(window, window),
		}
	}
	return &redisLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

type redisLimiter struct {
	rdb    *goredis.Client
	prefix string
	limit  int
	window time.Duration
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}
	bucket := windowKey(l.prefix, key, l.window, time.Now())
	n, err := l.rdb.Incr(ctx, bucket).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, bucket, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if n <= int64(l.limit) {
		return true, 0, nil
	}
	ttl, err := l.rdb.TTL(ctx, bucket).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

type memoryLimiter struct {
	prefix string
	limit  int
	window time.Duration
	counts *cache.Cache
}

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}
	now := time.Now()
	bucket := windowKey(l.prefix, key, l.window, now)
	_ = l.counts.Add(bucket, 0, l.window)
	n, err := l.counts.IncrementInt(bucket, 1)
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if n <= l.limit {
		return true, 0, nil
	}
	return false, now.Truncate(l.window).Add(l.window).Sub(now), nil
}

func windowKey(prefix, key string, window time.Duration, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d", prefix, key, now.Truncate(window).Unix())
}
