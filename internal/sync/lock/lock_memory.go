package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryLocker implements Locker for unit tests and single-instance
// development. Leases still expire, matching the redis implementation's
// recovery behavior.
type InMemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memLease
}

type memLease struct {
	token     string
	expiresAt time.Time
}

func NewMemory() *InMemoryLocker {
	return &InMemoryLocker{leases: make(map[string]memLease)}
}

func (l *InMemoryLocker) tryAcquire(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, held := l.leases[key]; held && time.Now().Before(existing.expiresAt) {
		return false
	}
	l.leases[key] = memLease{token: token, expiresAt: time.Now().Add(ttl)}
	return true
}

func (l *InMemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	for {
		if l.tryAcquire(key, token, ttl) {
			return &Lease{Key: key, Token: token, TTL: ttl}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func (l *InMemoryLocker) Release(_ context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, held := l.leases[lease.Key]; held && existing.token == lease.Token {
		delete(l.leases, lease.Key)
	}
	return nil
}
