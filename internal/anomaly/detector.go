package anomaly

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hoststack/license-service/internal/circuitbreaker"
)

const (
	activityKeyPrefix = "license:activity:"
	addressKeyPrefix  = "license:ips:"
)

const (
	// Reasons attached to a suspicious verdict
	ReasonVelocity      = "excessive validation frequency"
	ReasonAddressSpread = "too many distinct source addresses"
)

// Store is the slice of the counter store the detector needs.
type Store interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) error
	ZRemRangeByScore(ctx context.Context, key, min, max string) error
	ZCard(ctx context.Context, key string) (int64, error)
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SCard(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

type Verdict struct {
	Suspicious bool
	Reason     string
}

type Config struct {
	VelocityWindow    time.Duration
	VelocityThreshold int
	AddressWindow     time.Duration
	AddressThreshold  int
}

// Detector flags statistically suspicious usage: one key validated too
// often (a leaked key being hammered) or from too many network origins
// (credential sharing). It is a heuristic, not a hard security boundary,
// and fails open when the counter store is down.
type Detector struct {
	store   Store
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
	now     func() time.Time
}

func NewDetector(store Store, cfg Config, breaker *circuitbreaker.CircuitBreaker) *Detector {
	return &Detector{
		store:   store,
		cfg:     cfg,
		breaker: breaker,
		now:     time.Now,
	}
}

func (d *Detector) Check(ctx context.Context, licenseKey, address string) Verdict {
	var verdict Verdict

	err := d.breaker.Call(func() error {
		v, err := d.check(ctx, licenseKey, address)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})

	if err != nil {
		if err != circuitbreaker.ErrCircuitOpen {
			log.Printf("Anomaly store error, failing open: %v", err)
		}
		return Verdict{}
	}

	return verdict
}

func (d *Detector) check(ctx context.Context, licenseKey, address string) (Verdict, error) {
	now := d.now()

	// Velocity: record the validation, prune the trailing window, count.
	activityKey := activityKeyPrefix + licenseKey
	err := d.store.ZAdd(ctx, activityKey, redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	if err != nil {
		return Verdict{}, err
	}

	windowStart := now.Add(-d.cfg.VelocityWindow)
	if err := d.store.ZRemRangeByScore(ctx, activityKey, "0", fmt.Sprintf("%d", windowStart.Unix())); err != nil {
		return Verdict{}, err
	}
	d.store.Expire(ctx, activityKey, d.cfg.VelocityWindow)

	count, err := d.store.ZCard(ctx, activityKey)
	if err != nil {
		return Verdict{}, err
	}
	if count > int64(d.cfg.VelocityThreshold) {
		return Verdict{Suspicious: true, Reason: ReasonVelocity}, nil
	}

	// Address spread: add the caller address, refresh the set's TTL, count
	// distinct members.
	addressKey := addressKeyPrefix + licenseKey
	if err := d.store.SAdd(ctx, addressKey, address); err != nil {
		return Verdict{}, err
	}
	d.store.Expire(ctx, addressKey, d.cfg.AddressWindow)

	distinct, err := d.store.SCard(ctx, addressKey)
	if err != nil {
		return Verdict{}, err
	}
	if distinct > int64(d.cfg.AddressThreshold) {
		return Verdict{Suspicious: true, Reason: ReasonAddressSpread}, nil
	}

	return Verdict{}, nil
}
