package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

func jackpotAccount(marketID string) string { return "jackpot:" + marketID }

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// InitJackpot creates an empty pot for a market.
func (e *Engine) InitJackpot(ctx context.Context, caller, marketID string) (domain.JackpotPot, error) {
	pot := domain.JackpotPot{MarketID: marketID}
	err := e.update(ctx, func(tx domain.LedgerTx, _ time.Time, _ func(domain.Event)) error {
		if _, err := adminMarket(ctx, tx, caller, marketID); err != nil {
			return err
		}
		if _, err := tx.Jackpot(ctx, marketID); err == nil {
			return domain.ErrAlreadyExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return tx.PutJackpot(ctx, pot)
	})
	return pot, err
}

// Contribute adds amount to the pot. Totals saturate rather than wrap.
func (e *Engine) Contribute(ctx context.Context, caller, marketID string, amount uint64) (domain.JackpotPot, error) {
	if caller == "" {
		return domain.JackpotPot{}, domain.ErrUnauthorized
	}
	if amount == 0 {
		return domain.JackpotPot{}, domain.ErrInvalidStake
	}
	var pot domain.JackpotPot
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return err
		}
		p, err := tx.Jackpot(ctx, marketID)
		if err != nil {
			return err
		}
		p.CurrentAmount = satAdd(p.CurrentAmount, amount)
		p.TotalContributed = satAdd(p.TotalContributed, amount)
		if err := transfer(ctx, tx, m, 0, caller, jackpotAccount(marketID), amount, "jackpot_contribution", now); err != nil {
			return err
		}
		if err := tx.PutJackpot(ctx, p); err != nil {
			return err
		}
		pot = p
		emit(domain.Event{Type: domain.EventJackpotFunded, MarketID: marketID, User: caller, Amount: amount})
		return nil
	})
	return pot, err
}

// ClaimJackpot drains the pot to caller, whose bet in the given round must
// have settled as a win. A bet can claim at most once.
func (e *Engine) ClaimJackpot(ctx context.Context, caller string, key domain.RoundKey) (uint64, error) {
	var paid uint64
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		b, err := tx.Bet(ctx, domain.BetKey{Round: key, User: caller})
		if err != nil {
			return err
		}
		if !b.Won {
			return domain.ErrBetNotWon
		}
		if !b.Settled {
			return domain.ErrBetNotSettled
		}
		if b.JackpotClaimed {
			return domain.ErrAlreadySettled
		}
		m, err := tx.Market(ctx, key.MarketID)
		if err != nil {
			return err
		}
		p, err := tx.Jackpot(ctx, key.MarketID)
		if err != nil {
			return err
		}
		if p.CurrentAmount == 0 {
			return domain.ErrEmptyJackpot
		}

		paid = p.CurrentAmount
		p.CurrentAmount = 0
		p.LastWinner = caller
		b.JackpotClaimed = true

		if err := transfer(ctx, tx, m, key.Number, jackpotAccount(key.MarketID), caller, paid, "jackpot_claim", now); err != nil {
			return err
		}
		if err := tx.PutJackpot(ctx, p); err != nil {
			return err
		}
		if err := tx.PutBet(ctx, b); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventJackpotClaimed, MarketID: key.MarketID, Round: key.Number, User: caller, Amount: paid})
		return nil
	})
	return paid, err
}
