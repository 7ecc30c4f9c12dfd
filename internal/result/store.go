// Package result provides content-addressed persistence of computed values,
// keyed by cache key, with optional expiration.
package result

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("result not found")

// ErrExpired is returned when a record exists but its expiration has
// passed. Expired records behave as missing for read purposes; they are not
// implicitly deleted.
var ErrExpired = errors.New("result expired")

// Record is a persisted association between a cache key and a serialized
// result value.
type Record struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	WrittenAt time.Time       `json:"written_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// Expired reports whether the record's expiration has passed at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Store defines the persistence operations for computed results.
//
// Put is idempotent: writing an existing unexpired key is a no-op unless
// refresh is set, in which case the record is overwritten. Concurrent
// writers to the same key resolve as no-op-if-exists; records are never
// torn. Get returns ErrNotFound for missing keys and ErrExpired for lapsed
// ones.
type Store interface {
	Put(ctx context.Context, key string, value json.RawMessage, expiresAt *time.Time, refresh bool) error
	Get(ctx context.Context, key string) (*Record, error)
	Close() error
}
