package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/chigozzdevv/tossr/internal/domain"
)

type tx struct {
	st       *state
	readOnly bool

	// undo restores overwritten map entries; mark is the transfer count
	// before the unit started.
	undo []func()
	mark int
}

// remember records how to restore m[k] to its value before this write.
func remember[K comparable, V any](t *tx, m map[K]V, k K) {
	prev, had := m[k]
	t.undo = append(t.undo, func() {
		if had {
			m[k] = prev
			return
		}
		delete(m, k)
	})
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	clear(t.st.transfers[t.mark:])
	t.st.transfers = t.st.transfers[:t.mark]
}

func (t *tx) write() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *tx) Market(_ context.Context, id string) (domain.Market, error) {
	m, ok := t.st.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (t *tx) PutMarket(_ context.Context, m domain.Market) error {
	if err := t.write(); err != nil {
		return err
	}
	remember(t, t.st.markets, m.ID)
	t.st.markets[m.ID] = m
	return nil
}

func (t *tx) Round(_ context.Context, key domain.RoundKey) (domain.Round, error) {
	r, ok := t.st.rounds[key]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r, nil
}

func (t *tx) PutRound(_ context.Context, r domain.Round) error {
	if err := t.write(); err != nil {
		return err
	}
	remember(t, t.st.rounds, r.Key())
	t.st.rounds[r.Key()] = r
	return nil
}

func (t *tx) Bet(_ context.Context, key domain.BetKey) (domain.Bet, error) {
	b, ok := t.st.bets[key]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (t *tx) PutBet(_ context.Context, b domain.Bet) error {
	if err := t.write(); err != nil {
		return err
	}
	remember(t, t.st.bets, b.Key())
	t.st.bets[b.Key()] = b
	return nil
}

func (t *tx) Bets(_ context.Context, key domain.RoundKey) ([]domain.Bet, error) {
	var out []domain.Bet
	for k, b := range t.st.bets {
		if k.Round == key {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].User < out[j].User
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out, nil
}

func (t *tx) Streak(_ context.Context, key domain.StreakKey) (domain.Streak, error) {
	s, ok := t.st.streaks[key]
	if !ok {
		return domain.Streak{}, domain.ErrNotFound
	}
	return s, nil
}

func (t *tx) PutStreak(_ context.Context, s domain.Streak) error {
	if err := t.write(); err != nil {
		return err
	}
	remember(t, t.st.streaks, s.Key())
	t.st.streaks[s.Key()] = s
	return nil
}

func (t *tx) CommunityEntry(_ context.Context, key domain.BetKey) (domain.CommunityEntry, error) {
	e, ok := t.st.entries[key]
	if !ok {
		return domain.CommunityEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (t *tx) PutCommunityEntry(_ context.Context, e domain.CommunityEntry) error {
	if err := t.write(); err != nil {
		return err
	}
	remember(t, t.st.entries, e.Key())
	t.st.entries[e.Key()] = e
	return nil
}

func (t *tx) CommunityEntries(_ context.Context, key domain.RoundKey) ([]domain.CommunityEntry, error) {
	var out []domain.CommunityEntry
	for k, e := range t.st.entries {
		if k.Round == key {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (t *tx) Jackpot(_ context.Context, marketID string) (domain.JackpotPot, error) {
	p, ok := t.st.jackpots[marketID]
	if !ok {
		return domain.JackpotPot{}, domain.ErrNotFound
	}
	return p, nil
}

func (t *tx) PutJackpot(_ context.Context, p domain.JackpotPot) error {
	if err := t.write(); err != nil {
		return err
	}
	remember(t, t.st.jackpots, p.MarketID)
	t.st.jackpots[p.MarketID] = p
	return nil
}

func (t *tx) PatternConfig(_ context.Context, marketID string, patternID uint8) (domain.PatternConfig, error) {
	c, ok := t.st.patterns[patternKey{marketID, patternID}]
	if !ok {
		return domain.PatternConfig{}, domain.ErrNotFound
	}
	return c, nil
}

func (t *tx) PutPatternConfig(_ context.Context, c domain.PatternConfig) error {
	if err := t.write(); err != nil {
		return err
	}
	pk := patternKey{c.MarketID, c.PatternID}
	remember(t, t.st.patterns, pk)
	t.st.patterns[pk] = c
	return nil
}

func (t *tx) PermissionGroup(_ context.Context, key domain.RoundKey) (domain.PermissionGroup, error) {
	g, ok := t.st.groups[key]
	if !ok {
		return domain.PermissionGroup{}, domain.ErrNotFound
	}
	g.Viewers = slices.Clone(g.Viewers)
	return g, nil
}

func (t *tx) PutPermissionGroup(_ context.Context, g domain.PermissionGroup) error {
	if err := t.write(); err != nil {
		return err
	}
	g.Viewers = slices.Clone(g.Viewers)
	gk := domain.RoundKey{MarketID: g.MarketID, Number: g.Round}
	remember(t, t.st.groups, gk)
	t.st.groups[gk] = g
	return nil
}

func (t *tx) RecordTransfer(_ context.Context, tr domain.Transfer) error {
	if err := t.write(); err != nil {
		return err
	}
	tr.ID = int64(len(t.st.transfers) + 1)
	t.st.transfers = append(t.st.transfers, tr)
	return nil
}
