package memory

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/clawstreet/clawd/internal/domain"
)

// LockManager is an in-process domain.LockManager for tests and dev mode.
// It mirrors the redis lock contract: a held key fails fast with ErrLockHeld
// and the unlock function is idempotent. TTLs are ignored because the process
// releasing the lock is the process that took it.
type LockManager struct {
	held *xsync.Map[string, struct{}]
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: xsync.NewMap[string, struct{}]()}
}

// Acquire implements domain.LockManager.
func (l *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if _, loaded := l.held.LoadOrStore(key, struct{}{}); loaded {
		return nil, domain.ErrLockHeld
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.held.Delete(key) })
	}, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
