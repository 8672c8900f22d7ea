package engine

import (
	"context"
	"math"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// OpenRound starts the next round of an active market.
func (e *Engine) OpenRound(ctx context.Context, caller, marketID string) (domain.Round, error) {
	var round domain.Round
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return err
		}
		if !m.IsActive {
			return domain.ErrMarketInactive
		}
		if caller == "" || m.Admin != caller {
			return domain.ErrUnauthorized
		}
		if m.LastRound == math.MaxUint64 {
			return domain.ErrOverflow
		}
		m.LastRound++
		m.UpdatedAt = now

		round = domain.Round{
			MarketID: m.ID,
			Number:   m.LastRound,
			Status:   domain.RoundPredicting,
			OpenedAt: now.Unix(),
		}
		if err := tx.PutMarket(ctx, m); err != nil {
			return err
		}
		if err := tx.PutRound(ctx, round); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventRoundOpened, MarketID: m.ID, Round: round.Number, Status: round.Status.String()})
		return nil
	})
	return round, err
}

// ScheduleLock sets the time after which the round may be locked and no
// more bets are accepted.
func (e *Engine) ScheduleLock(ctx context.Context, caller string, key domain.RoundKey, lockAt int64) error {
	return e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		_, r, err := adminRound(ctx, tx, caller, key)
		if err != nil {
			return err
		}
		if r.Status != domain.RoundPredicting {
			return domain.ErrInvalidState
		}
		if lockAt <= now.Unix() {
			return domain.ErrInvalidLockTime
		}
		if lockAt > r.OpenedAt+domain.MaxPredictingDuration {
			return domain.ErrLockTimeTooLate
		}
		r.LockScheduledAt = lockAt
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventLockScheduled, MarketID: key.MarketID, Round: key.Number, Status: r.Status.String()})
		return nil
	})
}

// LockRound closes betting.
func (e *Engine) LockRound(ctx context.Context, caller string, key domain.RoundKey) error {
	return e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		_, r, err := adminRound(ctx, tx, caller, key)
		if err != nil {
			return err
		}
		if r.Status != domain.RoundPredicting {
			return domain.ErrInvalidState
		}
		if r.LockScheduledAt > 0 && now.Unix() < r.LockScheduledAt {
			return domain.ErrLockTimeNotReached
		}
		r.Status = domain.RoundLocked
		r.LockedAt = now.Unix()
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventRoundLocked, MarketID: key.MarketID, Round: key.Number, Status: r.Status.String()})
		return nil
	})
}

// SettleRound closes a revealed round once every bet has been settled.
func (e *Engine) SettleRound(ctx context.Context, caller string, key domain.RoundKey) error {
	return e.update(ctx, func(tx domain.LedgerTx, _ time.Time, emit func(domain.Event)) error {
		_, r, err := adminRound(ctx, tx, caller, key)
		if err != nil {
			return err
		}
		if r.Status != domain.RoundLocked {
			return domain.ErrInvalidState
		}
		if !r.Revealed() {
			return domain.ErrOutcomeNotRevealed
		}
		if r.UnsettledBets > 0 {
			return domain.ErrUnsettledBetsRemain
		}
		r.Status = domain.RoundSettled
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventRoundSettled, MarketID: key.MarketID, Round: key.Number, Status: r.Status.String(), Outcome: &r.Outcome})
		return nil
	})
}
