package engine

import (
	"context"
	"errors"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/odds"
)

const (
	streakBaseOdds  = 200
	streakBaseStake = 100_000_000
)

var streakMultipliers = map[uint8]uint64{
	2: 3, 3: 7, 4: 12, 5: 20, 6: 32, 7: 50, 8: 75, 9: 100, 10: 150,
}

// StreakOdds is the reward multiplier (x100) for completing a streak of
// the given target length.
func StreakOdds(target uint8) uint16 {
	mult, ok := streakMultipliers[target]
	if !ok {
		mult = 2
	}
	return uint16(streakBaseOdds * mult / 10)
}

// InitStreak starts caller's streak on a market. A failed or claimed streak
// may be restarted; an active or completed one may not.
func (e *Engine) InitStreak(ctx context.Context, caller, marketID string, target uint8) (domain.Streak, error) {
	if caller == "" {
		return domain.Streak{}, domain.ErrUnauthorized
	}
	if target < domain.MinStreakTarget || target > domain.MaxStreakTarget {
		return domain.Streak{}, domain.ErrInvalidStreakTarget
	}
	var streak domain.Streak
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		if _, err := tx.Market(ctx, marketID); err != nil {
			return err
		}
		key := domain.StreakKey{User: caller, MarketID: marketID}
		existing, err := tx.Streak(ctx, key)
		switch {
		case err == nil:
			if existing.Status == domain.StreakActive || existing.Status == domain.StreakCompleted {
				return domain.ErrAlreadyExists
			}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		streak = domain.Streak{
			User:      caller,
			MarketID:  marketID,
			Target:    target,
			Status:    domain.StreakActive,
			CreatedAt: now,
		}
		if err := tx.PutStreak(ctx, streak); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventStreakUpdated, MarketID: marketID, User: caller, Status: streak.Status.String()})
		return nil
	})
	return streak, err
}

// RecordStreakResult advances caller's streak with the result of their
// settled bet in round. Each round counts once and rounds must be recorded
// in increasing order.
func (e *Engine) RecordStreakResult(ctx context.Context, caller, marketID string, round uint64) (domain.Streak, error) {
	var streak domain.Streak
	err := e.update(ctx, func(tx domain.LedgerTx, _ time.Time, emit func(domain.Event)) error {
		s, err := tx.Streak(ctx, domain.StreakKey{User: caller, MarketID: marketID})
		if err != nil {
			return err
		}
		if s.Status != domain.StreakActive {
			return domain.ErrStreakNotActive
		}
		if round <= s.LastRound {
			return domain.ErrInvalidState
		}
		b, err := tx.Bet(ctx, domain.BetKey{Round: domain.RoundKey{MarketID: marketID, Number: round}, User: caller})
		if err != nil {
			return err
		}
		if !b.Settled {
			return domain.ErrBetNotSettled
		}

		s.LastRound = round
		if b.Won {
			if s.CurrentStreak < 255 {
				s.CurrentStreak++
			}
			if s.CurrentStreak >= s.Target {
				s.Status = domain.StreakCompleted
			}
		} else {
			s.Status = domain.StreakFailed
		}
		if err := tx.PutStreak(ctx, s); err != nil {
			return err
		}
		streak = s
		emit(domain.Event{Type: domain.EventStreakUpdated, MarketID: marketID, Round: round, User: caller, Status: s.Status.String(), Won: boolPtr(b.Won)})
		return nil
	})
	return streak, err
}

// ClaimStreak pays out a completed streak to its owner.
func (e *Engine) ClaimStreak(ctx context.Context, caller string, key domain.StreakKey) (uint64, error) {
	var paid uint64
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		s, err := tx.Streak(ctx, key)
		if err != nil {
			return err
		}
		if s.Status != domain.StreakCompleted {
			return domain.ErrStreakNotCompleted
		}
		if caller == "" || s.User != caller {
			return domain.ErrUnauthorized
		}
		m, err := tx.Market(ctx, key.MarketID)
		if err != nil {
			return err
		}
		payout, err := odds.Payout(streakBaseStake, StreakOdds(s.Target))
		if err != nil {
			return err
		}
		s.Status = domain.StreakClaimed
		if err := transfer(ctx, tx, m, s.LastRound, m.VaultAccount(), caller, payout, "streak_reward", now); err != nil {
			return err
		}
		if err := tx.PutStreak(ctx, s); err != nil {
			return err
		}
		paid = payout
		emit(domain.Event{Type: domain.EventStreakUpdated, MarketID: key.MarketID, User: caller, Status: s.Status.String(), Amount: payout})
		return nil
	})
	return paid, err
}
