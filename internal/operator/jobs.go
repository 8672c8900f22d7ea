package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chigozzdevv/tossr/internal/attestor"
	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/engine"
	"github.com/chigozzdevv/tossr/internal/outcome"
)

// Job names used in logs, metrics and the audit log.
const (
	jobOpen     = "open"
	jobLock     = "lock"
	jobAttest   = "attest"
	jobFinalize = "finalize_community"
	jobRandom   = "randomness"
	jobRecover  = "recover_stalled"
	jobSettle   = "settle"
	jobArchive  = "archive"
)

// step performs the next due action for market m's latest round.
func (o *Operator) step(ctx context.Context, m domain.Market) (bool, string, domain.RoundKey, error) {
	now := o.now()
	if m.LastRound == 0 {
		return o.open(ctx, m, now)
	}
	key := domain.RoundKey{MarketID: m.ID, Number: m.LastRound}
	r, err := o.round(ctx, key)
	if err != nil {
		return false, jobOpen, key, err
	}

	switch r.Status {
	case domain.RoundSettled:
		return o.open(ctx, m, now)

	case domain.RoundPredicting:
		lockAt := r.LockScheduledAt
		if lockAt == 0 {
			lockAt = r.OpenedAt + int64(o.cfg.RoundDuration/time.Second)
		}
		if now.Unix() < lockAt {
			return false, jobLock, key, nil
		}
		if err := o.deps.Engine.LockRound(ctx, o.cfg.Admin, key); err != nil {
			return false, jobLock, key, err
		}
		o.audit(ctx, "operator.lock", map[string]any{"round": key.String()})
		return true, jobLock, key, nil

	case domain.RoundLocked:
		if r.Revealed() {
			return o.settle(ctx, m, r)
		}
		return o.resolve(ctx, m, r, now)
	}
	return false, "", key, nil
}

func (o *Operator) open(ctx context.Context, m domain.Market, now time.Time) (bool, string, domain.RoundKey, error) {
	if !m.IsActive {
		return false, jobOpen, domain.RoundKey{MarketID: m.ID}, nil
	}
	r, err := o.deps.Engine.OpenRound(ctx, o.cfg.Admin, m.ID)
	if err != nil {
		return false, jobOpen, domain.RoundKey{MarketID: m.ID, Number: m.LastRound + 1}, err
	}
	lockAt := now.Add(o.cfg.RoundDuration).Unix()
	if err := o.deps.Engine.ScheduleLock(ctx, o.cfg.Admin, r.Key(), lockAt); err != nil {
		o.logger.WarnContext(ctx, "operator: schedule lock failed",
			slog.String("round", r.Key().String()),
			slog.Any("error", err),
		)
	}
	o.audit(ctx, "operator.open", map[string]any{"round": r.Key().String(), "lock_at": lockAt})
	o.logger.InfoContext(ctx, "operator: round opened",
		slog.String("round", r.Key().String()),
		slog.Int64("lock_at", lockAt),
	)
	return true, jobOpen, r.Key(), nil
}

// resolve fixes the outcome of a locked round: randomness for StreakMeter
// and stalled rounds, seed aggregation for community rounds, and an
// attested commit-reveal for everything else.
func (o *Operator) resolve(ctx context.Context, m domain.Market, r domain.Round, now time.Time) (bool, string, domain.RoundKey, error) {
	key := r.Key()
	lockedFor := now.Sub(time.Unix(r.LockedAt, 0))
	if lockedFor < time.Duration(domain.MinLockDuration)*time.Second {
		return false, jobAttest, key, nil
	}

	if lockedFor >= o.cfg.StallTimeout {
		if err := o.fulfill(ctx, key); err != nil {
			return false, jobRecover, key, err
		}
		o.logger.WarnContext(ctx, "operator: stalled round recovered",
			slog.String("round", key.String()),
			slog.Duration("locked_for", lockedFor),
		)
		o.audit(ctx, "operator.recover", map[string]any{"round": key.String(), "locked_for": lockedFor.String()})
		return true, jobRecover, key, nil
	}

	switch m.Type {
	case domain.MarketStreakMeter:
		if err := o.fulfill(ctx, key); err != nil {
			return false, jobRandom, key, err
		}
		o.audit(ctx, "operator.randomness", map[string]any{"round": key.String()})
		return true, jobRandom, key, nil

	case domain.MarketCommunitySeed:
		_, err := o.deps.Engine.FinalizeCommunity(ctx, o.cfg.Admin, key, nil)
		if errors.Is(err, domain.ErrNoCommunitySeedsProvided) {
			if err := o.fulfill(ctx, key); err != nil {
				return false, jobRandom, key, err
			}
			o.audit(ctx, "operator.randomness", map[string]any{"round": key.String(), "reason": "no community seeds"})
			return true, jobRandom, key, nil
		}
		if err != nil {
			return false, jobFinalize, key, err
		}
		o.audit(ctx, "operator.finalize_community", map[string]any{"round": key.String()})
		return true, jobFinalize, key, nil
	}

	if err := o.attest(ctx, m, r); err != nil {
		return false, jobAttest, key, err
	}
	return true, jobAttest, key, nil
}

// attest obtains a signed outcome, stores it, then commits and reveals it.
func (o *Operator) attest(ctx context.Context, m domain.Market, r domain.Round) error {
	key := r.Key()
	var params attestor.Params
	if m.Type == domain.MarketEntropyBattle {
		params.ChainHash = o.chainHash(ctx, key)
	}

	att, err := o.deps.Source.Produce(ctx, key.String(), m.Type, params)
	if err != nil {
		return fmt.Errorf("produce attestation: %w", err)
	}
	if o.deps.Attestations != nil {
		if err := o.deps.Attestations.Save(ctx, key, att); err != nil {
			return fmt.Errorf("save attestation: %w", err)
		}
	}
	if err := o.deps.Engine.CommitOutcome(ctx, o.cfg.Admin, key, att.CommitmentHash, att.Signature); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	proof := engine.RevealProof{Nonce: att.Nonce, InputsHash: att.InputsHash, Signature: att.Signature}
	if err := o.deps.Engine.Reveal(ctx, o.cfg.Admin, key, att.Outcome, proof); err != nil {
		return fmt.Errorf("reveal: %w", err)
	}
	o.audit(ctx, "operator.attest", map[string]any{
		"round":      key.String(),
		"commitment": att.CommitmentHash.Hex(),
	})
	return nil
}

// chainHash feeds the previous round's inputs hash into an entropy battle.
func (o *Operator) chainHash(ctx context.Context, key domain.RoundKey) []byte {
	if key.Number <= 1 {
		return nil
	}
	prev, err := o.round(ctx, domain.RoundKey{MarketID: key.MarketID, Number: key.Number - 1})
	if err != nil || prev.InputsHash == (common.Hash{}) {
		return nil
	}
	return prev.InputsHash.Bytes()
}

func (o *Operator) fulfill(ctx context.Context, key domain.RoundKey) error {
	var rnd outcome.Randomness
	if _, err := io.ReadFull(o.rand, rnd[:]); err != nil {
		return fmt.Errorf("randomness: %w", err)
	}
	return o.deps.Engine.FulfillRandomness(ctx, key, rnd)
}

// settle pays every open bet and community entry, closes the round and
// hands it to the archiver.
func (o *Operator) settle(ctx context.Context, m domain.Market, r domain.Round) (bool, string, domain.RoundKey, error) {
	key := r.Key()
	var bets []domain.Bet
	var entries []domain.CommunityEntry
	err := o.deps.Ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		if bets, err = tx.Bets(ctx, key); err != nil {
			return err
		}
		entries, err = tx.CommunityEntries(ctx, key)
		return err
	})
	if err != nil {
		return false, jobSettle, key, err
	}

	var settled []domain.Bet
	for _, b := range bets {
		if b.Settled {
			continue
		}
		sb, err := o.deps.Engine.SettleBet(ctx, o.cfg.Admin, key, b.User)
		if err != nil && !errors.Is(err, domain.ErrAlreadySettled) {
			return false, jobSettle, key, fmt.Errorf("settle bet %s: %w", b.User, err)
		}
		if err == nil {
			settled = append(settled, sb)
		}
	}
	if r.Outcome.Kind == domain.OutcomeCommunity {
		for _, e := range entries {
			if e.Settled {
				continue
			}
			if _, err := o.deps.Engine.SettleCommunityEntry(ctx, o.cfg.Admin, key, e.User); err != nil && !errors.Is(err, domain.ErrAlreadySettled) {
				return false, jobSettle, key, fmt.Errorf("settle entry %s: %w", e.User, err)
			}
		}
	}
	if err := o.deps.Engine.SettleRound(ctx, o.cfg.Admin, key); err != nil {
		return false, jobSettle, key, err
	}
	o.audit(ctx, "operator.settle", map[string]any{"round": key.String(), "bets": len(settled)})

	if m.Type == domain.MarketStreakMeter {
		o.reportStreaks(ctx, settled)
	}
	if err := o.archive(ctx, key); err != nil {
		o.fail(ctx, jobArchive, key, err)
	}
	return true, jobSettle, key, nil
}

func (o *Operator) reportStreaks(ctx context.Context, bets []domain.Bet) {
	if o.deps.Streaks == nil {
		return
	}
	for _, b := range bets {
		if _, err := o.deps.Streaks.UpdateStreak(ctx, b.User, b.Won); err != nil {
			o.logger.WarnContext(ctx, "operator: streak report failed",
				slog.String("user", b.User),
				slog.Any("error", err),
			)
		}
	}
}

func (o *Operator) archive(ctx context.Context, key domain.RoundKey) error {
	if o.deps.Archiver == nil || o.deps.Records == nil {
		return nil
	}
	rec, err := o.deps.Records.Record(ctx, key)
	if err != nil {
		return err
	}
	if err := o.deps.Archiver.ArchiveRound(ctx, rec); err != nil {
		return err
	}
	if rec.Attestation != nil {
		return o.deps.Archiver.ArchiveAttestation(ctx, *rec.Attestation)
	}
	return nil
}

func (o *Operator) round(ctx context.Context, key domain.RoundKey) (domain.Round, error) {
	var r domain.Round
	err := o.deps.Ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		r, err = tx.Round(ctx, key)
		return err
	})
	return r, err
}
