package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type SlidingWindowLimiter struct {
	store  Store
	prefix string
	limit  int
	window time.Duration
}

func NewSlidingWindow(store Store, prefix string, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		store:  store,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Uses a sorted set with timestamps as scores: prune everything older
// than the window, count what is left, and admit if under the limit.
func (s *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := s.prefix + key
	now := time.Now()
	windowStart := now.Add(-s.window)

	if err := s.store.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano())); err != nil {
		return false, err
	}

	count, err := s.store.ZCard(ctx, redisKey)
	if err != nil {
		return false, err
	}

	if count < int64(s.limit) {
		s.store.ZAdd(ctx, redisKey, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: fmt.Sprintf("%d", now.UnixNano()),
		})
		s.store.Expire(ctx, redisKey, s.window)
		return true, nil
	}

	return false, nil
}

func (s *SlidingWindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := s.store.ZCard(ctx, s.prefix+key)
	if err != nil {
		return 0, err
	}

	remaining := s.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *SlidingWindowLimiter) Limit() int {
	return s.limit
}

func (s *SlidingWindowLimiter) Window() time.Duration {
	return s.window
}

func (s *SlidingWindowLimiter) Reset(ctx context.Context, key string) (time.Time, error) {
	// Next admission slot opens when the oldest entry ages out; without
	// reading it back the window duration is a safe upper bound.
	return time.Now().Add(s.window), nil
}
