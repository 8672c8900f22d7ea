package local

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/chigozzdevv/tossr/internal/domain"
)

type limiterKey struct {
	key    string
	limit  int
	window time.Duration
}

// RateLimiter implements domain.RateLimiter with one token bucket per key,
// refilled at limit tokens per window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[limiterKey]*rate.Limiter
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[limiterKey]*rate.Limiter)}
}

func (rl *RateLimiter) limiter(key string, limit int, window time.Duration) *rate.Limiter {
	k := limiterKey{key: key, limit: limit, window: window}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[k]
	if !ok {
		every := rate.Every(window / time.Duration(max(limit, 1)))
		l = rate.NewLimiter(every, max(limit, 1))
		rl.limiters[k] = l
	}
	return l
}

func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	return rl.limiter(key, limit, window).Allow(), nil
}

// Wait blocks for one token at a rate of one request per second.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.limiter(key, 1, time.Second).Wait(ctx)
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
