// Package idempotency remembers the outcome of a checkout submitted with a
// client key so that retries of the same logical submission replay it.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Record is what a replay returns.
type Record struct {
	OrderID     string    `json:"order_id"`
	Total       int64     `json:"total"`
	Status      string    `json:"status"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is scoped by user: the same key from two users is two entries.
type Store interface {
	Get(ctx context.Context, userID, key string) (Record, bool, error)
	// Claim marks key as in flight. It returns false when another request holds it.
	Claim(ctx context.Context, userID, key string, ttl time.Duration) (bool, error)
	Save(ctx context.Context, userID, key string, rec Record, ttl time.Duration) error
	Release(ctx context.Context, userID, key string) error
}

// Fingerprint hashes the normalized parts of a request body.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.TrimSpace(p)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
