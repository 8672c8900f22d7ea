package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/odds"
)

// BetRequest is a stake on a round. Asset, when set, must name the
// market's asset.
type BetRequest struct {
	Selection domain.Selection `json:"selection"`
	Stake     uint64           `json:"stake"`
	Asset     string           `json:"asset,omitempty"`
}

// PlaceBet records caller's stake with the odds in force right now and moves
// the stake into the market vault.
func (e *Engine) PlaceBet(ctx context.Context, caller string, key domain.RoundKey, req BetRequest) (domain.Bet, error) {
	if caller == "" {
		return domain.Bet{}, domain.ErrUnauthorized
	}
	var bet domain.Bet
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, err := tx.Market(ctx, key.MarketID)
		if err != nil {
			return err
		}
		r, err := tx.Round(ctx, key)
		if err != nil {
			return err
		}
		if r.Status != domain.RoundPredicting {
			return domain.ErrInvalidState
		}
		if r.LockScheduledAt > 0 && now.Unix() >= r.LockScheduledAt {
			return domain.ErrBettingClosed
		}
		if req.Stake == 0 {
			return domain.ErrInvalidStake
		}
		if req.Asset != "" && req.Asset != m.Asset {
			return domain.ErrAssetMismatch
		}
		betKey := domain.BetKey{Round: key, User: caller}
		if _, err := tx.Bet(ctx, betKey); err == nil {
			return domain.ErrAlreadyExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if r.UnsettledBets == math.MaxUint32 {
			return domain.ErrOverflow
		}

		bet = domain.Bet{
			MarketID:  key.MarketID,
			Round:     key.Number,
			User:      caller,
			Stake:     req.Stake,
			Selection: req.Selection,
			OddsBps:   odds.Compute(m.Type, req.Selection, m.HouseEdgeBps),
			PlacedAt:  now,
		}
		r.UnsettledBets++

		if err := transfer(ctx, tx, m, key.Number, caller, m.VaultAccount(), req.Stake, "stake", now); err != nil {
			return err
		}
		if err := tx.PutBet(ctx, bet); err != nil {
			return err
		}
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventBetPlaced, MarketID: key.MarketID, Round: key.Number, User: caller, Amount: req.Stake})
		return nil
	})
	return bet, err
}

// SettleBet evaluates one bet against the revealed outcome and pays it.
// A bet settles exactly once.
func (e *Engine) SettleBet(ctx context.Context, caller string, key domain.RoundKey, user string) (domain.Bet, error) {
	var bet domain.Bet
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, r, err := adminRound(ctx, tx, caller, key)
		if err != nil {
			return err
		}
		if r.Status != domain.RoundLocked {
			return domain.ErrInvalidState
		}
		if !r.Revealed() {
			return domain.ErrOutcomeNotRevealed
		}
		b, err := tx.Bet(ctx, domain.BetKey{Round: key, User: user})
		if err != nil {
			return err
		}
		if b.Settled {
			return domain.ErrAlreadySettled
		}
		if r.UnsettledBets == 0 {
			return domain.ErrOverflow
		}

		b.Won = odds.Wins(b.Selection, r.Outcome)
		if b.Won {
			payout, err := odds.Payout(b.Stake, b.OddsBps)
			if err != nil {
				return err
			}
			b.Payout = payout
		}
		b.Settled = true
		r.UnsettledBets--

		if b.Payout > 0 {
			if err := transfer(ctx, tx, m, key.Number, m.VaultAccount(), user, b.Payout, "payout", now); err != nil {
				return err
			}
		}
		if err := tx.PutBet(ctx, b); err != nil {
			return err
		}
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		bet = b
		emit(domain.Event{Type: domain.EventBetSettled, MarketID: key.MarketID, Round: key.Number, User: user, Amount: b.Payout, Won: boolPtr(b.Won)})
		return nil
	})
	return bet, err
}
