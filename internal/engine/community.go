package engine

import (
	"context"
	"errors"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/odds"
	"github.com/chigozzdevv/tossr/internal/outcome"
)

// CommunityPrize is paid to each entry whose seed matches the final byte.
const CommunityPrize = 1_000_000_000

// JoinCommunity adds caller's seed byte to a predicting community round.
func (e *Engine) JoinCommunity(ctx context.Context, caller string, key domain.RoundKey, seed uint8) (domain.CommunityEntry, error) {
	if caller == "" {
		return domain.CommunityEntry{}, domain.ErrUnauthorized
	}
	var entry domain.CommunityEntry
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, err := tx.Market(ctx, key.MarketID)
		if err != nil {
			return err
		}
		if m.Type != domain.MarketCommunitySeed {
			return domain.ErrInvalidOutcomeType
		}
		r, err := tx.Round(ctx, key)
		if err != nil {
			return err
		}
		if r.Status != domain.RoundPredicting {
			return domain.ErrRoundNotPredicting
		}
		if r.LockScheduledAt > 0 && now.Unix() >= r.LockScheduledAt {
			return domain.ErrBettingClosed
		}
		entryKey := domain.BetKey{Round: key, User: caller}
		if _, err := tx.CommunityEntry(ctx, entryKey); err == nil {
			return domain.ErrAlreadyExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		existing, err := tx.CommunityEntries(ctx, key)
		if err != nil {
			return err
		}
		entry = domain.CommunityEntry{
			MarketID: key.MarketID,
			Round:    key.Number,
			User:     caller,
			SeedByte: seed,
			Seq:      uint32(len(existing)) + 1,
			JoinedAt: now,
		}
		if err := tx.PutCommunityEntry(ctx, entry); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventCommunityJoined, MarketID: key.MarketID, Round: key.Number, User: caller})
		return nil
	})
	return entry, err
}

// FinalizeCommunity fixes a locked community round's outcome from the
// participants' seeds. With nil seeds the entries' seeds are used in join
// order.
func (e *Engine) FinalizeCommunity(ctx context.Context, caller string, key domain.RoundKey, seeds []byte) (domain.Outcome, error) {
	var result domain.Outcome
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, r, err := adminRound(ctx, tx, caller, key)
		if err != nil {
			return err
		}
		if m.Type != domain.MarketCommunitySeed {
			return domain.ErrInvalidOutcomeType
		}
		if r.Status != domain.RoundLocked || !r.Outcome.IsPending() {
			return domain.ErrInvalidState
		}
		if seeds == nil {
			entries, err := tx.CommunityEntries(ctx, key)
			if err != nil {
				return err
			}
			for _, en := range entries {
				seeds = append(seeds, en.SeedByte)
			}
		}
		o, err := outcome.AggregateSeeds(seeds)
		if err != nil {
			return err
		}
		r.Outcome = o
		r.InputsHash = o.Community.SeedHash
		r.RevealedAt = now.Unix()
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		result = o
		emit(domain.Event{Type: domain.EventOutcomeRevealed, MarketID: key.MarketID, Round: key.Number, Status: r.Status.String(), Outcome: &r.Outcome})
		return nil
	})
	return result, err
}

// SettleCommunityEntry scores one entry by Hamming distance to the final
// byte and pays the prize on an exact match.
func (e *Engine) SettleCommunityEntry(ctx context.Context, caller string, key domain.RoundKey, user string) (domain.CommunityEntry, error) {
	var entry domain.CommunityEntry
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, r, err := adminRound(ctx, tx, caller, key)
		if err != nil {
			return err
		}
		if !r.Revealed() {
			return domain.ErrOutcomeNotRevealed
		}
		if r.Outcome.Kind != domain.OutcomeCommunity || r.Outcome.Community == nil {
			return domain.ErrInvalidOutcomeType
		}
		en, err := tx.CommunityEntry(ctx, domain.BetKey{Round: key, User: user})
		if err != nil {
			return err
		}
		if en.Settled {
			return domain.ErrAlreadySettled
		}
		en.Distance = odds.Hamming(en.SeedByte, r.Outcome.Community.FinalByte)
		en.Won = en.Distance == 0
		en.Settled = true
		if en.Won {
			if err := transfer(ctx, tx, m, key.Number, m.VaultAccount(), user, CommunityPrize, "community_prize", now); err != nil {
				return err
			}
		}
		if err := tx.PutCommunityEntry(ctx, en); err != nil {
			return err
		}
		entry = en
		var amount uint64
		if en.Won {
			amount = CommunityPrize
		}
		emit(domain.Event{Type: domain.EventCommunitySettled, MarketID: key.MarketID, Round: key.Number, User: user, Amount: amount, Won: boolPtr(en.Won)})
		return nil
	})
	return entry, err
}
