package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chigozzdevv/tossr/internal/crypto"
	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/outcome"
)

// RevealProof accompanies an attested reveal.
type RevealProof struct {
	Nonce      common.Hash
	InputsHash common.Hash
	Signature  []byte
}

// unrevealed loads a Locked round that has no outcome yet, together with
// its market.
func unrevealed(ctx context.Context, tx domain.LedgerTx, key domain.RoundKey) (domain.Market, domain.Round, error) {
	r, err := tx.Round(ctx, key)
	if err != nil {
		return domain.Market{}, domain.Round{}, err
	}
	if r.Status != domain.RoundLocked || !r.Outcome.IsPending() {
		return domain.Market{}, domain.Round{}, domain.ErrInvalidState
	}
	m, err := tx.Market(ctx, key.MarketID)
	if err != nil {
		return domain.Market{}, domain.Round{}, err
	}
	return m, r, nil
}

// checkOutcome normalizes o and requires it to be the variant the market
// resolves to.
func checkOutcome(m domain.Market, o domain.Outcome) (domain.Outcome, error) {
	if err := o.Validate(); err != nil || o.IsPending() || o.Kind != outcome.KindFor(m.Type) {
		return domain.Outcome{}, domain.ErrInvalidOutcomeType
	}
	return outcome.Normalize(o), nil
}

// CommitOutcome records an attested commitment for a locked round. Any
// caller may submit; the attestation is the authority. A later commitment
// replaces an earlier one until the outcome is revealed.
func (e *Engine) CommitOutcome(ctx context.Context, caller string, key domain.RoundKey, commitment common.Hash, sig []byte) error {
	return e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		_, r, err := unrevealed(ctx, tx, key)
		if err != nil {
			return err
		}
		if now.Unix() < r.LockedAt+domain.MinLockDuration {
			return domain.ErrMinLockDurationNotMet
		}
		if err := e.verifier.VerifyAttestation(commitment, sig); err != nil {
			return err
		}
		r.Commitment = &commitment
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventOutcomeCommitted, MarketID: key.MarketID, Round: key.Number, User: caller, Status: r.Status.String()})
		return nil
	})
}

// Reveal opens the round's commitment with o and proof. The commitment must
// match the canonical encoding of o and the signature must attest the
// commitment hash.
func (e *Engine) Reveal(ctx context.Context, caller string, key domain.RoundKey, o domain.Outcome, proof RevealProof) error {
	return e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, r, err := unrevealed(ctx, tx, key)
		if err != nil {
			return err
		}
		if r.Commitment == nil {
			return domain.ErrNoCommitment
		}
		revealed, err := checkOutcome(m, o)
		if err != nil {
			return err
		}
		if err := crypto.VerifyCommitment(*r.Commitment, revealed.CommitmentBytes(), proof.Nonce); err != nil {
			return err
		}
		if err := e.verifier.VerifyAttestation(*r.Commitment, proof.Signature); err != nil {
			return err
		}
		r.Outcome = revealed
		r.InputsHash = proof.InputsHash
		r.RevealedAt = now.Unix()
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventOutcomeRevealed, MarketID: key.MarketID, Round: key.Number, User: caller, Status: r.Status.String(), Outcome: &r.Outcome})
		return nil
	})
}

func (e *Engine) RevealNumeric(ctx context.Context, caller string, key domain.RoundKey, value uint16, proof RevealProof) error {
	return e.Reveal(ctx, caller, key, domain.Numeric(value), proof)
}

func (e *Engine) RevealShape(ctx context.Context, caller string, key domain.RoundKey, shape, color, size uint8, proof RevealProof) error {
	return e.Reveal(ctx, caller, key, domain.Shape(shape, color, size), proof)
}

func (e *Engine) RevealPattern(ctx context.Context, caller string, key domain.RoundKey, patternID uint8, value uint16, proof RevealProof) error {
	return e.Reveal(ctx, caller, key, domain.Pattern(patternID, value), proof)
}

// RevealEntropy takes the three scores; the winner is derived from them.
func (e *Engine) RevealEntropy(ctx context.Context, caller string, key domain.RoundKey, tee, chain, sensor uint16, proof RevealProof) error {
	return e.Reveal(ctx, caller, key, domain.Entropy(tee, chain, sensor, outcome.Winner(tee, chain, sensor)), proof)
}

func (e *Engine) RevealCommunity(ctx context.Context, caller string, key domain.RoundKey, finalByte uint8, seedHash common.Hash, proof RevealProof) error {
	return e.Reveal(ctx, caller, key, domain.Community(finalByte, seedHash), proof)
}

// FastReveal writes an outcome without commitment or attestation checks.
// It exists for rounds running in the low-latency execution context, whose
// caller authentication happens before the request reaches the engine.
func (e *Engine) FastReveal(ctx context.Context, caller string, key domain.RoundKey, o domain.Outcome) error {
	return e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, r, err := unrevealed(ctx, tx, key)
		if err != nil {
			return err
		}
		revealed, err := checkOutcome(m, o)
		if err != nil {
			return err
		}
		r.Outcome = revealed
		r.RevealedAt = now.Unix()
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventOutcomeRevealed, MarketID: key.MarketID, Round: key.Number, User: caller, Status: r.Status.String(), Outcome: &r.Outcome})
		return nil
	})
}

// FulfillRandomness derives the outcome from verifiable randomness. Trust
// rests with the randomness provider, so no signature is checked.
func (e *Engine) FulfillRandomness(ctx context.Context, key domain.RoundKey, rnd outcome.Randomness) error {
	return e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		m, r, err := unrevealed(ctx, tx, key)
		if err != nil {
			return err
		}
		o, err := outcome.Derive(m.Type, rnd)
		if err != nil {
			return err
		}
		r.Outcome = o
		r.InputsHash = common.Hash(rnd)
		r.RevealedAt = now.Unix()
		if err := tx.PutRound(ctx, r); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventOutcomeRevealed, MarketID: key.MarketID, Round: key.Number, Status: r.Status.String(), Outcome: &r.Outcome})
		return nil
	})
}
