package ratelimit

import (
	"time"
)

func NewLimiter(store Store, algorithm, prefix string, limit int, window time.Duration) Limiter {
	switch algorithm {
	case "token_bucket":
		refillRate := limit / int(window.Seconds())
		if refillRate == 0 {
			refillRate = 1
		}
		return NewTokenBucket(store, prefix, limit, refillRate)
	case "sliding_window":
		return NewSlidingWindow(store, prefix, limit, window)
	case "fixed_window":
		return NewFixedWindow(store, prefix, limit, window)
	default:
		return NewFixedWindow(store, prefix, limit, window)
	}
}
