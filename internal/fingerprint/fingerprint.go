package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	keyPrefix = "license:fingerprint:"
	recordTTL = 30 * 24 * time.Hour
)

// Derive computes the deterministic caller fingerprint from the request
// attributes. Clients compute the same value and include it in the
// signed payload.
func Derive(address, agent string, extra map[string]string) string {
	parts := []string{address, agent}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		parts = append(parts, k+"="+extra[k])
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// Store is the slice of the counter store the recorder needs.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Recorder keeps the most recent caller fingerprint per license for the
// out-of-process alerting job. Write-only and best-effort: a failed
// write is logged and forgotten.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Record(ctx context.Context, licenseID uuid.UUID, fp string) {
	if err := r.store.Set(ctx, keyPrefix+licenseID.String(), fp, recordTTL); err != nil {
		log.Printf("Failed to record fingerprint for license %s: %v", licenseID, err)
	}
}
