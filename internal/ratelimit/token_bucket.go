package ratelimit

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

type TokenBucket struct {
	store      Store
	prefix     string
	capacity   int
	refillRate int // Tokens per second
}

type bucketState struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

func NewTokenBucket(store Store, prefix string, capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		store:      store,
		prefix:     prefix,
		capacity:   capacity,
		refillRate: refillRate,
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := t.prefix + key

	state, err := t.load(ctx, redisKey)
	if err != nil {
		return false, err
	}

	now := time.Now()
	elapsed := now.Sub(state.LastRefill)
	state.Tokens = math.Min(state.Tokens+elapsed.Seconds()*float64(t.refillRate), float64(t.capacity))
	state.LastRefill = now

	allowed := state.Tokens >= 1
	if allowed {
		state.Tokens -= 1
	}

	stateJSON, _ := json.Marshal(state)
	if err := t.store.Set(ctx, redisKey, stateJSON, time.Hour); err != nil {
		return false, err
	}

	return allowed, nil
}

func (t *TokenBucket) Remaining(ctx context.Context, key string) (int, error) {
	state, err := t.load(ctx, t.prefix+key)
	if err != nil {
		return 0, err
	}

	elapsed := time.Since(state.LastRefill)
	current := math.Min(state.Tokens+elapsed.Seconds()*float64(t.refillRate), float64(t.capacity))

	return int(current), nil
}

func (t *TokenBucket) load(ctx context.Context, redisKey string) (bucketState, error) {
	data, err := t.store.Get(ctx, redisKey)
	if err == redis.Nil {
		return bucketState{Tokens: float64(t.capacity), LastRefill: time.Now()}, nil
	}
	if err != nil {
		return bucketState{}, err
	}

	var state bucketState
	json.Unmarshal([]byte(data), &state)
	return state, nil
}

func (t *TokenBucket) Limit() int {
	return t.capacity
}

func (t *TokenBucket) Window() time.Duration {
	// Time to fully refill an empty bucket
	return time.Duration(t.capacity/t.refillRate) * time.Second
}

func (t *TokenBucket) Reset(ctx context.Context, key string) (time.Time, error) {
	state, err := t.load(ctx, t.prefix+key)
	if err != nil {
		return time.Time{}, err
	}

	tokensNeeded := float64(t.capacity) - state.Tokens
	secondsToFull := tokensNeeded / float64(t.refillRate)

	return time.Now().Add(time.Duration(secondsToFull) * time.Second), nil
}
