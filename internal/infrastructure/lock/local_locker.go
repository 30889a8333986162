package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker holds leases in process memory.
// This is suitable for single-instance deployments and testing
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]*localLease
	wait time.Duration
	now  func() time.Time
}

// NewLocalLocker creates a LocalLocker that waits at most wait for a held key.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		held: make(map[string]*localLease),
		wait: wait,
		now:  time.Now,
	}
}

// Obtain implements Locker. An expired lease is taken over.
func (l *LocalLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		cur, busy := l.held[key]
		if busy && !l.now().Before(cur.expiresAt) {
			delete(l.held, key)
			close(cur.done)
			busy = false
		}
		if !busy {
			lease := &localLease{
				locker:    l,
				key:       key,
				expiresAt: l.now().Add(ttl),
				done:      make(chan struct{}),
			}
			l.held[key] = lease
			l.mu.Unlock()
			return lease, nil
		}
		l.mu.Unlock()

		expiry := time.NewTimer(cur.expiresAt.Sub(l.now()))
		select {
		case <-cur.done:
		case <-expiry.C:
		case <-timer.C:
			expiry.Stop()
			return nil, ErrNotObtained
		case <-ctx.Done():
			expiry.Stop()
			return nil, ctx.Err()
		}
		expiry.Stop()
	}
}

type localLease struct {
	locker    *LocalLocker
	key       string
	expiresAt time.Time
	done      chan struct{}
}

func (lease *localLease) Release(context.Context) error {
	l := lease.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[lease.key] == lease {
		delete(l.held, lease.key)
		close(lease.done)
	}
	return nil
}
