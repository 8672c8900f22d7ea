package domain

import (
	"fmt"
	"time"
)

// StreakStatus tracks a streak through Active to a terminal state.
type StreakStatus uint8

const (
	StreakActive StreakStatus = iota
	StreakCompleted
	StreakFailed
	StreakClaimed
)

var streakStatusNames = [...]string{"active", "completed", "failed", "claimed"}

func (s StreakStatus) String() string {
	if int(s) < len(streakStatusNames) {
		return streakStatusNames[s]
	}
	return fmt.Sprintf("StreakStatus(%d)", uint8(s))
}

func (s StreakStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(streakStatusNames) {
		return nil, fmt.Errorf("unknown streak status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *StreakStatus) UnmarshalText(b []byte) error {
	for i, name := range streakStatusNames {
		if name == string(b) {
			*s = StreakStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown streak status %q", b)
}

const (
	MinStreakTarget = 2
	MaxStreakTarget = 10
)

// StreakKey addresses one user's streak on a market.
type StreakKey struct {
	User     string `json:"user"`
	MarketID string `json:"market_id"`
}

type Streak struct {
	User          string       `json:"user"`
	MarketID      string       `json:"market_id"`
	CurrentStreak uint8        `json:"current_streak"`
	Target        uint8        `json:"target"`
	LastRound     uint64       `json:"last_round"`
	Status        StreakStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (s Streak) Key() StreakKey { return StreakKey{User: s.User, MarketID: s.MarketID} }

// CommunityEntry is one participant's seed byte in a community round.
// Distance and Won are meaningful once Settled.
type CommunityEntry struct {
	MarketID string    `json:"market_id"`
	Round    uint64    `json:"round"`
	User     string    `json:"user"`
	SeedByte uint8     `json:"seed_byte"`
	Seq      uint32    `json:"seq"`
	Distance uint8     `json:"distance"`
	Won      bool      `json:"won"`
	Settled  bool      `json:"settled"`
	JoinedAt time.Time `json:"joined_at"`
}

func (e CommunityEntry) Key() BetKey {
	return BetKey{Round: RoundKey{MarketID: e.MarketID, Number: e.Round}, User: e.User}
}

// JackpotPot accumulates contributions for a market until claimed.
type JackpotPot struct {
	MarketID         string `json:"market_id"`
	CurrentAmount    uint64 `json:"current_amount"`
	LastWinner       string `json:"last_winner,omitempty"`
	TotalContributed uint64 `json:"total_contributed"`
}

// PatternType names the pattern rule a pattern id refers to.
type PatternType uint8

const (
	PatternPrime PatternType = iota
	PatternFibonacci
	PatternPerfectSquare
	PatternEndsWithSeven
	PatternPalindrome
	PatternEven
	PatternOdd
)

var patternTypeNames = [...]string{
	"prime", "fibonacci", "perfect_square", "ends_with_seven", "palindrome", "even", "odd",
}

func (p PatternType) String() string {
	if int(p) < len(patternTypeNames) {
		return patternTypeNames[p]
	}
	return fmt.Sprintf("PatternType(%d)", uint8(p))
}

func (p PatternType) MarshalText() ([]byte, error) {
	if int(p) >= len(patternTypeNames) {
		return nil, fmt.Errorf("unknown pattern type %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *PatternType) UnmarshalText(b []byte) error {
	for i, name := range patternTypeNames {
		if name == string(b) {
			*p = PatternType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown pattern type %q", b)
}

type PatternConfig struct {
	MarketID    string      `json:"market_id"`
	PatternID   uint8       `json:"pattern_id"`
	PatternType PatternType `json:"pattern_type"`
	IsActive    bool        `json:"is_active"`
}

// MaxViewers caps a permission group's allow-list.
const MaxViewers = 50

type PermissionGroup struct {
	MarketID string   `json:"market_id"`
	Round    uint64   `json:"round"`
	Viewers  []string `json:"viewers"`
}
