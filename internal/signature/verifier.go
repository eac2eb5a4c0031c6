package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidFormat    = errors.New("license key format is invalid")
	ErrStaleTimestamp   = errors.New("request timestamp outside allowed window")
	ErrInvalidSignature = errors.New("request signature mismatch")
)

// License keys look like A1B2-C3D4-E5F6-G7H8.
var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// Verifier authenticates validation requests. It is pure: no I/O, no
// shared state beyond the secret.
type Verifier struct {
	secret    []byte
	clockSkew time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, clockSkew time.Duration) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		clockSkew: clockSkew,
		now:       time.Now,
	}
}

func ValidKeyFormat(licenseKey string) bool {
	return keyPattern.MatchString(licenseKey)
}

// Verify checks key format, timestamp freshness and the HMAC signature,
// in that order. The first failing check wins.
func (v *Verifier) Verify(licenseKey string, timestamp int64, fingerprint, feature, providedSignature string, extra map[string]string) error {
	if !ValidKeyFormat(licenseKey) {
		return ErrInvalidFormat
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.clockSkew || age < -v.clockSkew {
		return ErrStaleTimestamp
	}

	expected := v.Sign(licenseKey, timestamp, fingerprint, feature, extra)
	if !hmac.Equal([]byte(expected), []byte(providedSignature)) {
		return ErrInvalidSignature
	}

	return nil
}

// Sign computes the HMAC-SHA256 hex signature over the canonical payload.
// Clients of the validation endpoint compute the same thing.
func (v *Verifier) Sign(licenseKey string, timestamp int64, fingerprint, feature string, extra map[string]string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(canonicalPayload(licenseKey, timestamp, fingerprint, feature, extra)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Canonical form: key|timestamp|fingerprint|feature, then the extra
// payload as k=v pairs in sorted key order. Sorting keeps the signature
// independent of map iteration order.
func canonicalPayload(licenseKey string, timestamp int64, fingerprint, feature string, extra map[string]string) string {
	parts := []string{
		licenseKey,
		strconv.FormatInt(timestamp, 10),
		fingerprint,
		feature,
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		parts = append(parts, k+"="+extra[k])
	}

	return strings.Join(parts, "|")
}
