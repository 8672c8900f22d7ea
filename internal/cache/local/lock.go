package local

import (
	"context"
	"sync"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// LockManager implements domain.LockManager within one process. Locks
// expire after their TTL like their Redis counterparts.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]time.Time
	now   func() time.Time
	token uint64
	owner map[string]uint64
}

func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]time.Time),
		owner: make(map[string]uint64),
		now:   time.Now,
	}
}

func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	now := lm.now()
	if exp, ok := lm.held[key]; ok && now.Before(exp) {
		return nil, domain.ErrLockHeld
	}
	lm.token++
	token := lm.token
	lm.held[key] = now.Add(ttl)
	lm.owner[key] = token

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if lm.owner[key] == token {
				delete(lm.held, key)
				delete(lm.owner, key)
			}
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
