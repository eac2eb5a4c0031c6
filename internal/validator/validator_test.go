package validator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoststack/license-service/internal/anomaly"
	"github.com/hoststack/license-service/internal/audit"
	"github.com/hoststack/license-service/internal/circuitbreaker"
	"github.com/hoststack/license-service/internal/models"
	"github.com/hoststack/license-service/internal/ratelimit"
	"github.com/hoststack/license-service/internal/signature"
)

const (
	testSecret = "test-signing-secret"
	testKey    = "A1B2-C3D4-E5F6-G7H8"
)

type fakeLicenses struct {
	mu      sync.Mutex
	license *models.License
	err     error
	calls   int
}

func (f *fakeLicenses) FindByKey(ctx context.Context, licenseKey string) (*models.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.license, f.err
}

type fakeLimiter struct {
	mu     sync.Mutex
	result ratelimit.Result
	calls  int
}

func (f *fakeLimiter) Check(ctx context.Context, licenseKey, address string) ratelimit.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

type fakeDetector struct {
	mu      sync.Mutex
	verdict anomaly.Verdict
	calls   int
}

func (f *fakeDetector) Check(ctx context.Context, licenseKey, address string) anomaly.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.verdict
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.ValidationLog
}

func (f *fakeAudit) Record(entry models.ValidationLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeAudit) all() []models.ValidationLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ValidationLog(nil), f.entries...)
}

type fakeFingerprints struct {
	mu    sync.Mutex
	count int
	last  string
}

func (f *fakeFingerprints) Record(ctx context.Context, licenseID uuid.UUID, fp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	f.last = fp
}

func (f *fakeFingerprints) recorded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type fixture struct {
	validator    *Validator
	verifier     *signature.Verifier
	licenses     *fakeLicenses
	limiter      *fakeLimiter
	detector     *fakeDetector
	audit        *fakeAudit
	fingerprints *fakeFingerprints
}

func activeLicense() *models.License {
	return &models.License{
		ID:               uuid.New(),
		LicenseKey:       testKey,
		Status:           models.StatusActive,
		ExpiresAt:        time.Now().Add(365 * 24 * time.Hour),
		CurrentDatabases: 3,
		MaxDatabases:     10,
	}
}

func newFixture() *fixture {
	verifier := signature.NewVerifier(testSecret, 5*time.Minute)

	f := &fixture{
		verifier:     verifier,
		licenses:     &fakeLicenses{license: activeLicense()},
		limiter:      &fakeLimiter{result: ratelimit.Result{Allowed: true}},
		detector:     &fakeDetector{},
		audit:        &fakeAudit{},
		fingerprints: &fakeFingerprints{},
	}

	f.validator = New(verifier, f.limiter, f.detector, f.licenses, f.audit, f.fingerprints)
	return f
}

func (f *fixture) signedRequest(feature string) Request {
	timestamp := time.Now().Unix()
	extra := map[string]string{"server": "web01"}
	fp := "caller-fingerprint"

	return Request{
		LicenseKey:     testKey,
		Feature:        feature,
		Timestamp:      timestamp,
		Fingerprint:    fp,
		Signature:      f.verifier.Sign(testKey, timestamp, fp, feature, extra),
		AdditionalData: extra,
		IPAddress:      "10.0.0.1",
		UserAgent:      "product/2.4",
	}
}

func TestValidateMalformedKeyNoStoreIO(t *testing.T) {
	f := newFixture()

	req := f.signedRequest("create_database")
	req.LicenseKey = "not-a-license-key"

	resp := f.validator.Validate(context.Background(), req)

	assert.False(t, resp.Valid)
	assert.Equal(t, "Invalid license key format", resp.Error)
	assert.Nil(t, resp.Data)

	// Rejected before any store-backed stage ran.
	assert.Zero(t, f.limiter.calls)
	assert.Zero(t, f.detector.calls)
	assert.Zero(t, f.licenses.calls)

	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
}

func TestValidateStaleTimestamp(t *testing.T) {
	f := newFixture()

	req := f.signedRequest("create_database")
	stale := time.Now().Add(-time.Hour).Unix()
	req.Timestamp = stale
	// Re-sign so only freshness is wrong.
	req.Signature = f.verifier.Sign(testKey, stale, req.Fingerprint, req.Feature, req.AdditionalData)

	resp := f.validator.Validate(context.Background(), req)

	assert.False(t, resp.Valid)
	assert.Equal(t, "Request timestamp is stale or from the future", resp.Error)
	assert.Zero(t, f.limiter.calls)
}

func TestValidateForgedSignature(t *testing.T) {
	f := newFixture()

	req := f.signedRequest("create_database")
	req.Signature = "deadbeef"

	resp := f.validator.Validate(context.Background(), req)

	assert.False(t, resp.Valid)
	assert.Equal(t, "Invalid request signature", resp.Error)
	assert.Zero(t, f.limiter.calls)
}

func TestValidateTamperedFeature(t *testing.T) {
	f := newFixture()

	req := f.signedRequest("create_database")
	req.Feature = "create_domain" // signature covered create_database

	resp := f.validator.Validate(context.Background(), req)

	assert.False(t, resp.Valid)
	assert.Equal(t, "Invalid request signature", resp.Error)
}

func TestValidateThrottled(t *testing.T) {
	tests := []struct {
		name    string
		scope   string
		wantMsg string
	}{
		{"license scope", ratelimit.ScopeLicense, "Rate limit exceeded (license)"},
		{"address scope", ratelimit.ScopeAddress, "Rate limit exceeded (ip)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.limiter.result = ratelimit.Result{Allowed: false, Scope: tt.scope}

			resp := f.validator.Validate(context.Background(), f.signedRequest("create_database"))

			assert.False(t, resp.Valid)
			assert.Equal(t, tt.wantMsg, resp.Error)

			// Short-circuited before the store-backed stages downstream.
			assert.Zero(t, f.detector.calls)
			assert.Zero(t, f.licenses.calls)

			// The precise scope lands in the audit trail.
			entries := f.audit.all()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantMsg, entries[0].Message)
		})
	}
}

func TestValidateSuspicious(t *testing.T) {
	f := newFixture()
	f.detector.verdict = anomaly.Verdict{Suspicious: true, Reason: anomaly.ReasonAddressSpread}

	resp := f.validator.Validate(context.Background(), f.signedRequest("create_database"))

	assert.False(t, resp.Valid)
	assert.Contains(t, resp.Error, anomaly.ReasonAddressSpread)
	assert.Zero(t, f.licenses.calls)
}

func TestValidateLicenseNotFound(t *testing.T) {
	f := newFixture()
	f.licenses.license = nil

	resp := f.validator.Validate(context.Background(), f.signedRequest("create_database"))

	assert.False(t, resp.Valid)
	assert.Equal(t, "License not found", resp.Error)
}

func TestValidateLookupFailsClosed(t *testing.T) {
	f := newFixture()
	f.licenses.license = nil
	f.licenses.err = errors.New("connection refused")

	resp := f.validator.Validate(context.Background(), f.signedRequest("create_database"))

	assert.False(t, resp.Valid)
	assert.Equal(t, "License service temporarily unavailable", resp.Error)
}

func TestValidateInactiveStatuses(t *testing.T) {
	tests := []struct {
		status  string
		wantMsg string
	}{
		{models.StatusSuspended, "License is suspended"},
		{models.StatusExpired, "License is expired"},
		{models.StatusCancelled, "License is cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := newFixture()
			f.licenses.license.Status = tt.status

			resp := f.validator.Validate(context.Background(), f.signedRequest("create_database"))

			assert.False(t, resp.Valid)
			assert.Equal(t, tt.wantMsg, resp.Error)

			// The resolved license id is still attached to the audit row.
			entries := f.audit.all()
			require.Len(t, entries, 1)
			require.NotNil(t, entries[0].LicenseID)
			assert.Equal(t, f.licenses.license.ID, *entries[0].LicenseID)
		})
	}
}

func TestValidateExpiredByTimestamp(t *testing.T) {
	f := newFixture()
	f.licenses.license.ExpiresAt = time.Now().Add(-24 * time.Hour)

	resp := f.validator.Validate(context.Background(), f.signedRequest("create_database"))

	assert.False(t, resp.Valid)
	assert.Equal(t, "License has expired", resp.Error)
}

func TestValidateQuotaExceeded(t *testing.T) {
	f := newFixture()
	f.licenses.license.CurrentDatabases = f.licenses.license.MaxDatabases

	resp := f.validator.Validate(context.Background(), f.signedRequest("create_database"))

	assert.False(t, resp.Valid)
	assert.Equal(t, "Database quota exceeded", resp.Error)
}

func TestValidateSuccess(t *testing.T) {
	f := newFixture()

	resp := f.validator.Validate(context.Background(), f.signedRequest("create_database"))

	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Data)
	assert.Equal(t, f.licenses.license.ID, resp.Data.LicenseID)
	assert.Equal(t, 7, resp.Data.RemainingQuota)
	assert.Equal(t, "create_database", resp.Data.Feature)

	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)

	// Fingerprint recording is async and best-effort.
	assert.Eventually(t, func() bool {
		return f.fingerprints.recorded() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestValidateUnknownFeatureAllowed(t *testing.T) {
	f := newFixture()

	resp := f.validator.Validate(context.Background(), f.signedRequest("reboot_server"))

	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Data)
	assert.Equal(t, -1, resp.Data.RemainingQuota)

	// The permissive default is visible in the audit trail.
	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "unknown feature")
}

func TestValidateIdempotent(t *testing.T) {
	f := newFixture()

	first := f.validator.Validate(context.Background(), f.signedRequest("create_database"))
	second := f.validator.Validate(context.Background(), f.signedRequest("create_database"))

	// Validation reads quota, never consumes it.
	assert.True(t, first.Valid)
	assert.True(t, second.Valid)
	assert.Equal(t, first.Data.RemainingQuota, second.Data.RemainingQuota)

	// Each attempt still counted toward the limiter and detector.
	assert.Equal(t, 2, f.limiter.calls)
	assert.Equal(t, 2, f.detector.calls)
}

// Counter store satisfying both the limiter's and the detector's store
// interfaces, with every call failing.
type downStore struct{}

var errDown = errors.New("counter store down")

func (downStore) Incr(ctx context.Context, key string) (int64, error) { return 0, errDown }
func (downStore) Expire(ctx context.Context, key string, ttl time.Duration) error { return errDown }
func (downStore) TTL(ctx context.Context, key string) (time.Duration, error) { return 0, errDown }
func (downStore) Get(ctx context.Context, key string) (string, error) { return "", errDown }
func (downStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return errDown
}
func (downStore) ZAdd(ctx context.Context, key string, members ...redis.Z) error { return errDown }
func (downStore) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	return errDown
}
func (downStore) ZCard(ctx context.Context, key string) (int64, error) { return 0, errDown }
func (downStore) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return errDown
}
func (downStore) SCard(ctx context.Context, key string) (int64, error) { return 0, errDown }

func TestValidateFailsOpenWithCounterStoreDown(t *testing.T) {
	verifier := signature.NewVerifier(testSecret, 5*time.Minute)
	licenses := &fakeLicenses{license: activeLicense()}
	auditRec := &fakeAudit{}
	fingerprints := &fakeFingerprints{}

	breaker := circuitbreaker.New(circuitbreaker.Config{})
	limiter := ratelimit.NewDual(downStore{}, ratelimit.DualConfig{
		LicenseWindow: time.Minute,
		LicenseLimit:  100,
		AddressWindow: time.Hour,
		AddressLimit:  1000,
	}, breaker)
	detector := anomaly.NewDetector(downStore{}, anomaly.Config{
		VelocityWindow:    time.Hour,
		VelocityThreshold: 500,
		AddressWindow:     24 * time.Hour,
		AddressThreshold:  10,
	}, breaker)

	v := New(verifier, limiter, detector, licenses, auditRec, fingerprints)

	f := &fixture{verifier: verifier}
	resp := v.Validate(context.Background(), f.signedRequest("create_database"))

	// Abuse heuristics degrade; the authoritative path still decides.
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Data)
}

type erroringSink struct{}

func (erroringSink) CreateBatch(ctx context.Context, logs []*models.ValidationLog) error {
	return errors.New("audit store down")
}

func TestValidateAuditFailureDoesNotChangeDecision(t *testing.T) {
	verifier := signature.NewVerifier(testSecret, 5*time.Minute)
	auditLogger := audit.NewLogger(erroringSink{}, 10)
	defer auditLogger.Close()

	licenses := &fakeLicenses{license: activeLicense()}
	v := New(verifier, &fakeLimiter{result: ratelimit.Result{Allowed: true}}, &fakeDetector{}, licenses, auditLogger, &fakeFingerprints{})

	f := &fixture{verifier: verifier}

	resp := v.Validate(context.Background(), f.signedRequest("create_database"))
	assert.True(t, resp.Valid)

	req := f.signedRequest("create_database")
	req.Signature = "deadbeef"
	resp = v.Validate(context.Background(), req)
	assert.False(t, resp.Valid)
	assert.Equal(t, "Invalid request signature", resp.Error)
}
