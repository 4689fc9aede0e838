// Package registry is a thin abstraction over the external KV store
// (Redis) that the Placer relies on: keyed get/set/delete, atomic
// set-if-absent with TTL, numeric increment, and prefix scan.
package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("registry: key not found")

// Store is the operation set the Placer and Reconciler rely on. Store
// implementations return plain errors; the Placer wraps some of them in
// placer.ErrRegistryError.
type Store interface {
	// Get returns the value for key, or ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)
	// SetIfAbsent atomically creates key=value with the given TTL only if
	// key does not already exist. Returns true if this call created it.
	SetIfAbsent(ctx context.Context, key, value string, ttl int64) (bool, error)
	// Set unconditionally writes key=value, with no expiry.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Idempotent: deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// IncrBy atomically adds delta to the integer at key (treating an
	// absent key as 0) and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	// Scan returns every key with the given prefix. Best-effort: callers
	// must tolerate keys that vanish between Scan and a subsequent Get.
	Scan(ctx context.Context, prefix string) ([]string, error)
}
