// Package memory is an in-process implementation of the ledger and
// attestation stores, used for local runs and tests.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

type patternKey struct {
	marketID  string
	patternID uint8
}

type state struct {
	markets   map[string]domain.Market
	rounds    map[domain.RoundKey]domain.Round
	bets      map[domain.BetKey]domain.Bet
	streaks   map[domain.StreakKey]domain.Streak
	entries   map[domain.BetKey]domain.CommunityEntry
	jackpots  map[string]domain.JackpotPot
	patterns  map[patternKey]domain.PatternConfig
	groups    map[domain.RoundKey]domain.PermissionGroup
	transfers []domain.Transfer
}

func newState() *state {
	return &state{
		markets:  make(map[string]domain.Market),
		rounds:   make(map[domain.RoundKey]domain.Round),
		bets:     make(map[domain.BetKey]domain.Bet),
		streaks:  make(map[domain.StreakKey]domain.Streak),
		entries:  make(map[domain.BetKey]domain.CommunityEntry),
		jackpots: make(map[string]domain.JackpotPot),
		patterns: make(map[patternKey]domain.PatternConfig),
		groups:   make(map[domain.RoundKey]domain.PermissionGroup),
	}
}

// Ledger serializes every unit of work behind one lock. Update writes to the
// live state and keeps an undo log that is replayed if the unit fails.
type Ledger struct {
	mu    sync.RWMutex
	state *state
}

func NewLedger() *Ledger {
	return &Ledger{state: newState()}
}

var _ domain.Ledger = (*Ledger)(nil)

func (l *Ledger) Update(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &tx{st: l.state, mark: len(l.state.transfers)}
	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
	}()
	if err := fn(t); err != nil {
		return err
	}
	committed = true
	return nil
}

func (l *Ledger) View(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(&tx{st: l.state, readOnly: true})
}

func (l *Ledger) Markets(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	l.mu.RLock()
	out := slices.Collect(maps.Values(l.state.markets))
	l.mu.RUnlock()

	out = slices.DeleteFunc(out, func(m domain.Market) bool {
		return !inWindow(m.CreatedAt, opts)
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}

// Rounds lists matching rounds, newest number first within each market.
func (l *Ledger) Rounds(_ context.Context, f domain.RoundFilter) ([]domain.Round, error) {
	l.mu.RLock()
	var out []domain.Round
	for k, r := range l.state.rounds {
		if f.MarketID != "" && k.MarketID != f.MarketID {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		out = append(out, r)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Number > out[j].Number
	})
	return paginate(out, 0, f.Limit), nil
}

func (l *Ledger) Transfers(_ context.Context, account string, opts domain.ListOpts) ([]domain.Transfer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Transfer
	for _, t := range l.state.transfers {
		if account != "" && t.From != account && t.To != account {
			continue
		}
		if !inWindow(t.CreatedAt, opts) {
			continue
		}
		out = append(out, t)
	}
	return paginate(out, opts.Offset, opts.Limit), nil
}

func inWindow(ts time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && ts.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && ts.After(*opts.Until) {
		return false
	}
	return true
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
