package signature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVerifier(secret string, skew time.Duration, now time.Time) *Verifier {
	v := NewVerifier(secret, skew)
	v.now = func() time.Time { return now }
	return v
}

func TestValidKeyFormat(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"well formed", "A1B2-C3D4-E5F6-G7H8", true},
		{"all digits", "1234-5678-9012-3456", true},
		{"all letters", "ABCD-EFGH-IJKL-MNOP", true},
		{"empty", "", false},
		{"lowercase", "a1b2-c3d4-e5f6-g7h8", false},
		{"missing segment", "A1B2-C3D4-E5F6", false},
		{"extra segment", "A1B2-C3D4-E5F6-G7H8-I9J0", false},
		{"short segment", "A1B-C3D4-E5F6-G7H8", false},
		{"no dashes", "A1B2C3D4E5F6G7H8", false},
		{"special characters", "A1B2-C3D4-E5F6-G7H!", false},
		{"trailing whitespace", "A1B2-C3D4-E5F6-G7H8 ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidKeyFormat(tt.key))
		})
	}
}

func TestVerifyMalformedKey(t *testing.T) {
	now := time.Now()
	v := testVerifier("secret", 5*time.Minute, now)

	err := v.Verify("not-a-key", now.Unix(), "fp", "create_database", "sig", nil)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestVerifyFreshness(t *testing.T) {
	const key = "A1B2-C3D4-E5F6-G7H8"
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name      string
		timestamp int64
		wantErr   error
	}{
		{"current", now.Unix(), nil},
		{"just inside window", now.Add(-299 * time.Second).Unix(), nil},
		{"just inside future window", now.Add(299 * time.Second).Unix(), nil},
		{"too old", now.Add(-301 * time.Second).Unix(), ErrStaleTimestamp},
		{"too far in future", now.Add(301 * time.Second).Unix(), ErrStaleTimestamp},
		{"zero", 0, ErrStaleTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testVerifier("secret", 5*time.Minute, now)

			// Sign with the correct payload so only freshness can fail.
			sig := v.Sign(key, tt.timestamp, "fp", "create_database", nil)

			err := v.Verify(key, tt.timestamp, "fp", "create_database", sig, nil)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestStaleTimestampRejectedEvenWithCorrectSignature(t *testing.T) {
	const key = "A1B2-C3D4-E5F6-G7H8"
	now := time.Unix(1_700_000_000, 0)
	v := testVerifier("secret", 5*time.Minute, now)

	stale := now.Add(-time.Hour).Unix()
	sig := v.Sign(key, stale, "fp", "create_database", nil)

	err := v.Verify(key, stale, "fp", "create_database", sig, nil)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestSignDeterminism(t *testing.T) {
	const key = "A1B2-C3D4-E5F6-G7H8"
	now := time.Unix(1_700_000_000, 0)
	v := testVerifier("secret", 5*time.Minute, now)

	extra := map[string]string{"server": "web01", "version": "2.4"}

	first := v.Sign(key, now.Unix(), "fp", "create_database", extra)
	second := v.Sign(key, now.Unix(), "fp", "create_database", extra)
	assert.Equal(t, first, second)

	// Map iteration order must not leak into the signature.
	reordered := map[string]string{"version": "2.4", "server": "web01"}
	assert.Equal(t, first, v.Sign(key, now.Unix(), "fp", "create_database", reordered))
}

func TestSignFieldMutationInvalidates(t *testing.T) {
	const key = "A1B2-C3D4-E5F6-G7H8"
	now := time.Unix(1_700_000_000, 0)
	v := testVerifier("secret", 5*time.Minute, now)

	extra := map[string]string{"server": "web01"}
	sig := v.Sign(key, now.Unix(), "fp", "create_database", extra)

	require.NoError(t, v.Verify(key, now.Unix(), "fp", "create_database", sig, extra))

	tests := []struct {
		name   string
		verify func() error
	}{
		{"different key", func() error {
			return v.Verify("Z9Y8-X7W6-V5U4-T3S2", now.Unix(), "fp", "create_database", sig, extra)
		}},
		{"different timestamp", func() error {
			return v.Verify(key, now.Unix()-1, "fp", "create_database", sig, extra)
		}},
		{"different fingerprint", func() error {
			return v.Verify(key, now.Unix(), "other-fp", "create_database", sig, extra)
		}},
		{"different feature", func() error {
			return v.Verify(key, now.Unix(), "fp", "create_domain", sig, extra)
		}},
		{"different payload value", func() error {
			return v.Verify(key, now.Unix(), "fp", "create_database", sig, map[string]string{"server": "web02"})
		}},
		{"extra payload key", func() error {
			return v.Verify(key, now.Unix(), "fp", "create_database", sig, map[string]string{"server": "web01", "x": "1"})
		}},
		{"dropped payload", func() error {
			return v.Verify(key, now.Unix(), "fp", "create_database", sig, nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.verify(), ErrInvalidSignature)
		})
	}
}

func TestVerifyDifferentSecret(t *testing.T) {
	const key = "A1B2-C3D4-E5F6-G7H8"
	now := time.Unix(1_700_000_000, 0)

	signer := testVerifier("secret-a", 5*time.Minute, now)
	verifier := testVerifier("secret-b", 5*time.Minute, now)

	sig := signer.Sign(key, now.Unix(), "fp", "create_database", nil)
	assert.ErrorIs(t, verifier.Verify(key, now.Unix(), "fp", "create_database", sig, nil), ErrInvalidSignature)
}
