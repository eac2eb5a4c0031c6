package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/hoststack/license-service/internal/circuitbreaker"
)

const (
	// Scope names reported when a limit trips
	ScopeLicense = "license"
	ScopeAddress = "ip"

	LicenseKeyPrefix = "license:rate:"
	AddressKeyPrefix = "ip:rate:"
)

type Result struct {
	Allowed bool
	Scope   string // Which limit tripped, empty when allowed
}

// Dual enforces the per-license and per-address windows for license
// validation. Both counters are incremented on every call, even when the
// first already throttles, so the audit log can name the exact scope.
//
// The limiter is defense-in-depth, not the sole gate: if the counter
// store is unreachable (or its breaker is open) the check fails open.
type Dual struct {
	license *FixedWindowLimiter
	address *FixedWindowLimiter
	breaker *circuitbreaker.CircuitBreaker
}

type DualConfig struct {
	LicenseWindow time.Duration
	LicenseLimit  int
	AddressWindow time.Duration
	AddressLimit  int
}

func NewDual(store Store, cfg DualConfig, breaker *circuitbreaker.CircuitBreaker) *Dual {
	return &Dual{
		license: NewFixedWindow(store, LicenseKeyPrefix, cfg.LicenseLimit, cfg.LicenseWindow),
		address: NewFixedWindow(store, AddressKeyPrefix, cfg.AddressLimit, cfg.AddressWindow),
		breaker: breaker,
	}
}

func (d *Dual) Check(ctx context.Context, licenseKey, address string) Result {
	licenseOK, addressOK := true, true

	err := d.breaker.Call(func() error {
		var err error
		licenseOK, err = d.license.Allow(ctx, licenseKey)
		if err != nil {
			return err
		}

		addressOK, err = d.address.Allow(ctx, address)
		return err
	})

	if err != nil {
		if err != circuitbreaker.ErrCircuitOpen {
			log.Printf("Rate limit store error, failing open: %v", err)
		}
		return Result{Allowed: true}
	}

	if !licenseOK {
		return Result{Allowed: false, Scope: ScopeLicense}
	}
	if !addressOK {
		return Result{Allowed: false, Scope: ScopeAddress}
	}

	return Result{Allowed: true}
}

// LicenseRemaining reports how many validations the license has left in
// the current window, for response headers.
func (d *Dual) LicenseRemaining(ctx context.Context, licenseKey string) (int, error) {
	return d.license.Remaining(ctx, licenseKey)
}
