package coordinator

import (
	"context"
	"sync"
	"time"
)

// InProcessLocker implements Locker with a mutex-backed map keyed by lock
// name, for standalone deployments with no Redis configured. A held lock
// expires after ttl even if never explicitly released, so a crashed holder
// cannot wedge the lock forever.
type InProcessLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time // name -> expiry
}

// NewInProcessLocker creates an empty in-process lock table.
func NewInProcessLocker() *InProcessLocker {
	return &InProcessLocker{locks: make(map[string]time.Time)}
}

// Acquire grants name if it is unheld or its prior holder's ttl has expired.
func (l *InProcessLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, held := l.locks[name]; held && time.Now().Before(expiry) {
		return false, nil
	}
	l.locks[name] = time.Now().Add(ttl)
	return true, nil
}

// Release drops name, if held. Safe to call when unheld or already expired.
func (l *InProcessLocker) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, name)
	return nil
}
