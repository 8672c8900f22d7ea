package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Transfer records one movement of a market's asset between accounts.
// Custody itself is handled outside this system.
type Transfer struct {
	ID        int64     `json:"id"`
	MarketID  string    `json:"market_id"`
	Round     uint64    `json:"round"`
	Asset     string    `json:"asset"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    uint64    `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerTx is the view of the ledger inside one atomic unit. Getters return
// ErrNotFound for missing records; Put methods upsert.
type LedgerTx interface {
	Market(ctx context.Context, id string) (Market, error)
	PutMarket(ctx context.Context, m Market) error

	Round(ctx context.Context, key RoundKey) (Round, error)
	PutRound(ctx context.Context, r Round) error

	Bet(ctx context.Context, key BetKey) (Bet, error)
	PutBet(ctx context.Context, b Bet) error
	Bets(ctx context.Context, key RoundKey) ([]Bet, error)

	Streak(ctx context.Context, key StreakKey) (Streak, error)
	PutStreak(ctx context.Context, s Streak) error

	CommunityEntry(ctx context.Context, key BetKey) (CommunityEntry, error)
	PutCommunityEntry(ctx context.Context, e CommunityEntry) error
	// CommunityEntries returns a round's entries in join order.
	CommunityEntries(ctx context.Context, key RoundKey) ([]CommunityEntry, error)

	Jackpot(ctx context.Context, marketID string) (JackpotPot, error)
	PutJackpot(ctx context.Context, p JackpotPot) error

	PatternConfig(ctx context.Context, marketID string, patternID uint8) (PatternConfig, error)
	PutPatternConfig(ctx context.Context, c PatternConfig) error

	PermissionGroup(ctx context.Context, key RoundKey) (PermissionGroup, error)
	PutPermissionGroup(ctx context.Context, g PermissionGroup) error

	RecordTransfer(ctx context.Context, t Transfer) error
}

// Ledger is the authoritative, serializing store. Update runs fn as one
// all-or-nothing unit: if fn returns an error nothing it wrote is kept.
type Ledger interface {
	Update(ctx context.Context, fn func(tx LedgerTx) error) error
	View(ctx context.Context, fn func(tx LedgerTx) error) error

	Markets(ctx context.Context, opts ListOpts) ([]Market, error)
	Rounds(ctx context.Context, filter RoundFilter) ([]Round, error)
	Transfers(ctx context.Context, account string, opts ListOpts) ([]Transfer, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
