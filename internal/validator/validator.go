package validator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/hoststack/license-service/internal/anomaly"
	"github.com/hoststack/license-service/internal/models"
	"github.com/hoststack/license-service/internal/quota"
	"github.com/hoststack/license-service/internal/ratelimit"
	"github.com/hoststack/license-service/internal/signature"
)

// The license lookup is authoritative and fails closed, so it gets a
// bounded wait instead of inheriting the whole request deadline.
const lookupTimeout = 3 * time.Second

type Request struct {
	LicenseKey     string            `json:"license_key"`
	Feature        string            `json:"feature"`
	Timestamp      int64             `json:"timestamp"`
	Signature      string            `json:"signature"`
	Fingerprint    string            `json:"fingerprint"`
	AdditionalData map[string]string `json:"additional_data,omitempty"`

	// Filled in by the transport layer, not the caller payload.
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type Data struct {
	LicenseID      uuid.UUID `json:"license_id"`
	RemainingQuota int       `json:"remaining_quota"`
	Feature        string    `json:"feature"`
}

type Response struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Data  *Data  `json:"data,omitempty"`
}

// LicenseSource resolves a license key against the system of record.
type LicenseSource interface {
	FindByKey(ctx context.Context, licenseKey string) (*models.License, error)
}

type RateLimiter interface {
	Check(ctx context.Context, licenseKey, address string) ratelimit.Result
}

type AnomalyChecker interface {
	Check(ctx context.Context, licenseKey, address string) anomaly.Verdict
}

type AuditRecorder interface {
	Record(entry models.ValidationLog)
}

type FingerprintRecorder interface {
	Record(ctx context.Context, licenseID uuid.UUID, fp string)
}

// Validator runs the validation pipeline in a fixed order: structure,
// signature, rate limits, anomaly signals, then the authoritative
// license lookup, status, expiry and quota. The first failing check
// short-circuits the rest, but every attempt reaches the audit log.
//
// The validator holds no mutable state; all shared state lives in the
// counter store and the system of record, so concurrent validations
// need no coordination.
type Validator struct {
	verifier     *signature.Verifier
	limiter      RateLimiter
	detector     AnomalyChecker
	licenses     LicenseSource
	audit        AuditRecorder
	fingerprints FingerprintRecorder
}

func New(verifier *signature.Verifier, limiter RateLimiter, detector AnomalyChecker, licenses LicenseSource, audit AuditRecorder, fingerprints FingerprintRecorder) *Validator {
	return &Validator{
		verifier:     verifier,
		limiter:      limiter,
		detector:     detector,
		licenses:     licenses,
		audit:        audit,
		fingerprints: fingerprints,
	}
}

func (v *Validator) Validate(ctx context.Context, req Request) Response {
	// Structure and signature checks are pure; malformed or forged
	// requests are rejected before any store round-trip.
	if !signature.ValidKeyFormat(req.LicenseKey) {
		return v.reject(req, nil, "Invalid license key format")
	}

	if err := v.verifier.Verify(req.LicenseKey, req.Timestamp, req.Fingerprint, req.Feature, req.Signature, req.AdditionalData); err != nil {
		switch err {
		case signature.ErrStaleTimestamp:
			return v.reject(req, nil, "Request timestamp is stale or from the future")
		default:
			return v.reject(req, nil, "Invalid request signature")
		}
	}

	rl := v.limiter.Check(ctx, req.LicenseKey, req.IPAddress)
	if !rl.Allowed {
		return v.reject(req, nil, fmt.Sprintf("Rate limit exceeded (%s)", rl.Scope))
	}

	if verdict := v.detector.Check(ctx, req.LicenseKey, req.IPAddress); verdict.Suspicious {
		return v.reject(req, nil, "Suspicious activity: "+verdict.Reason)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	license, err := v.licenses.FindByKey(lookupCtx, req.LicenseKey)
	if err != nil {
		// Authoritative check: without ground truth, deny.
		log.Printf("License lookup failed for %s: %v", req.LicenseKey, err)
		return v.reject(req, nil, "License service temporarily unavailable")
	}
	if license == nil {
		return v.reject(req, nil, "License not found")
	}

	if license.Status != models.StatusActive {
		return v.reject(req, &license.ID, fmt.Sprintf("License is %s", license.Status))
	}

	if license.IsExpired() {
		return v.reject(req, &license.ID, "License has expired")
	}

	decision := quota.Evaluate(license, req.Feature)
	if !decision.Allowed {
		return v.reject(req, &license.ID, decision.Message)
	}

	v.audit.Record(models.ValidationLog{
		LicenseKey: req.LicenseKey,
		LicenseID:  &license.ID,
		Feature:    req.Feature,
		Success:    true,
		Message:    decision.Message,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	})

	// Best-effort; detached from the request context so a client
	// disconnect does not cancel it.
	go func(licenseID uuid.UUID, fp string) {
		fpCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		v.fingerprints.Record(fpCtx, licenseID, fp)
	}(license.ID, req.Fingerprint)

	return Response{
		Valid: true,
		Data: &Data{
			LicenseID:      license.ID,
			RemainingQuota: decision.Remaining,
			Feature:        req.Feature,
		},
	}
}

func (v *Validator) reject(req Request, licenseID *uuid.UUID, message string) Response {
	v.audit.Record(models.ValidationLog{
		LicenseKey: req.LicenseKey,
		LicenseID:  licenseID,
		Feature:    req.Feature,
		Success:    false,
		Message:    message,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	})

	return Response{Valid: false, Error: message}
}
