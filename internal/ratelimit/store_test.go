package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var errStoreDown = errors.New("store unreachable")

// In-memory stand-in for the redis counter store. Expiry is simulated
// explicitly via expireNow instead of sleeping in tests.
type fakeStore struct {
	mu       sync.Mutex
	counters map[string]int64
	ttls     map[string]time.Duration
	kv       map[string]string
	zsets    map[string]map[string]float64
	failing  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		counters: make(map[string]int64),
		ttls:     make(map[string]time.Duration),
		kv:       make(map[string]string),
		zsets:    make(map[string]map[string]float64),
	}
}

// Simulates the window elapsing for a key.
func (f *fakeStore) expireNow(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counters, key)
	delete(f.ttls, key)
}

func (f *fakeStore) count(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[key]
}

func (f *fakeStore) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errStoreDown
	}
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errStoreDown
	}
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errStoreDown
	}
	return f.ttls[key], nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", errStoreDown
	}
	if v, ok := f.kv[key]; ok {
		return v, nil
	}
	if c, ok := f.counters[key]; ok {
		return strconv.FormatInt(c, 10), nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errStoreDown
	}
	switch v := value.(type) {
	case string:
		f.kv[key] = v
	case []byte:
		f.kv[key] = string(v)
	}
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) ZAdd(ctx context.Context, key string, members ...redis.Z) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errStoreDown
	}
	if f.zsets[key] == nil {
		f.zsets[key] = make(map[string]float64)
	}
	for _, m := range members {
		f.zsets[key][m.Member.(string)] = m.Score
	}
	return nil
}

func (f *fakeStore) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errStoreDown
	}
	maxScore, err := strconv.ParseFloat(max, 64)
	if err != nil {
		return err
	}
	for member, score := range f.zsets[key] {
		if score <= maxScore {
			delete(f.zsets[key], member)
		}
	}
	return nil
}

func (f *fakeStore) ZCard(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errStoreDown
	}
	return int64(len(f.zsets[key])), nil
}
