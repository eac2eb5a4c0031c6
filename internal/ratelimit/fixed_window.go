package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type FixedWindowLimiter struct {
	store  Store
	prefix string
	limit  int
	window time.Duration
}

func NewFixedWindow(store Store, prefix string, limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		store:  store,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow increments the counter and sets its expiry on the first increment
// of a window. Two concurrent first increments can both see count==1 and
// both set the expiry; the limiter is approximate, so that is acceptable.
func (f *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := f.prefix + key

	count, err := f.store.Incr(ctx, redisKey)
	if err != nil {
		return false, err
	}

	if count == 1 {
		f.store.Expire(ctx, redisKey, f.window)
	}

	return count <= int64(f.limit), nil
}

func (f *FixedWindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	val, err := f.store.Get(ctx, f.prefix+key)
	if err == redis.Nil {
		return f.limit, nil
	}

	if err != nil {
		return 0, err
	}

	count, _ := strconv.Atoi(val)
	remaining := f.limit - count

	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

func (f *FixedWindowLimiter) Limit() int {
	return f.limit
}

func (f *FixedWindowLimiter) Window() time.Duration {
	return f.window
}

// Returns the time at which the limit resets
func (f *FixedWindowLimiter) Reset(ctx context.Context, key string) (time.Time, error) {
	ttl, err := f.store.TTL(ctx, f.prefix+key)
	if err != nil || ttl <= 0 {
		return time.Now(), err
	}

	return time.Now().Add(ttl), nil
}
