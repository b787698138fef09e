package lease

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker within a single process. Used in tests and
// single-replica deployments without Redis.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemoryLocker constructs an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	for {
		l.mu.Lock()
		held, ok := l.slots[key]
		if !ok {
			released := make(chan struct{})
			l.slots[key] = released
			l.mu.Unlock()
			lease := &memoryLease{locker: l, key: key, released: released}
			if ttl > 0 {
				lease.expiry = time.AfterFunc(ttl, func() { lease.free() })
			}
			return lease, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-held:
		}
	}
}

type memoryLease struct {
	locker   *MemoryLocker
	key      string
	released chan struct{}
	expiry   *time.Timer
	once     sync.Once
}

func (l *memoryLease) Release(ctx context.Context) error {
	if l.expiry != nil {
		l.expiry.Stop()
	}
	if l.free() {
		return nil
	}
	return ErrNotHeld
}

// free hands the slot back and wakes waiters. Returns false when the lease
// was already released or expired, matching the Redis behaviour where the
// key has simply disappeared by the time Release runs.
func (l *memoryLease) free() bool {
	freed := false
	l.once.Do(func() {
		l.locker.mu.Lock()
		if current, ok := l.locker.slots[l.key]; ok && current == l.released {
			delete(l.locker.slots, l.key)
		}
		l.locker.mu.Unlock()
		close(l.released)
		freed = true
	})
	return freed
}
