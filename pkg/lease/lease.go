// Package lease provides short-lived exclusive claims keyed by resource id.
// The approval coordinator takes a lease per workflow instance so that at
// most one transition attempt is in flight for that instance at a time.
package lease

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld is returned by Release when the lease already expired or was
// taken over by another holder.
var ErrNotHeld = errors.New("lease not held")

// Lease is an acquired claim. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases. Acquire blocks until the lease is free or the
// context is cancelled; fairness between waiters is not guaranteed.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
