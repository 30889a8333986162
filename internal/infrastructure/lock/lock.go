// Package lock provides per-key mutual exclusion for document operations
// that must not run twice concurrently, such as derived-document generation
// and cancellation callbacks.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotObtained is returned when the key stays held for the whole wait.
var ErrNotObtained = errors.New("lock: not obtained")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker obtains leases on keys. A lease expires after ttl even if it is
// never released.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// DocumentKey is the lock key of one fiscal document.
func DocumentKey(kind, externalID string) string {
	return "cfdi:lock:" + kind + ":" + externalID
}
