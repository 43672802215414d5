// Package lock provides the per-integration lease lock serializing
// synchronize() and approveSync() calls for one integration across server
// instances. Leases are TTL-bounded so a crashed holder never blocks the
// integration forever; a stuck PENDING_APPROVAL ledger entry after a crash is
// a valid, inspectable state.
package lock

import (
	"context"
	"time"
)

// Lease is an acquired lock. The token fences the release so a holder whose
// lease expired cannot release a sibling's lock.
type Lease struct {
	Key   string
	Token string
	TTL   time.Duration
}

// Locker acquires and releases lease locks.
type Locker interface {
	// Acquire blocks until the lease is obtained or ctx is done. Callers
	// bound the wait through the context deadline.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)

	// Release returns the lease. Releasing an expired or stolen lease is a
	// no-op, not an error.
	Release(ctx context.Context, lease *Lease) error
}

// retryInterval is the poll spacing while waiting for a held lock.
const retryInterval = 25 * time.Millisecond
