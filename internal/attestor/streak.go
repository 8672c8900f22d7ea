package attestor

import (
	"context"
	"math"
	"sync"
)

// StreakStore tracks consecutive wins per wallet for the producer's own
// bookkeeping. The ledger's streak records remain authoritative.
type StreakStore struct {
	mu      sync.Mutex
	streaks map[string]uint32
}

func NewStreakStore() *StreakStore {
	return &StreakStore{streaks: make(map[string]uint32)}
}

// Update adds one on a win, saturating, and resets on a loss.
func (s *StreakStore) Update(wallet string, won bool) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := uint32(0)
	if won {
		next = s.streaks[wallet]
		if next < math.MaxUint32 {
			next++
		}
	}
	s.streaks[wallet] = next
	return next
}

func (s *StreakStore) Get(wallet string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaks[wallet]
}

// UpdateStreak lets an in-process StreakStore stand in for the remote
// /update_streak endpoint.
func (s *StreakStore) UpdateStreak(_ context.Context, wallet string, won bool) (uint32, error) {
	return s.Update(wallet, won), nil
}
