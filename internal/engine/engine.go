// Package engine runs the round lifecycle and the satellite game modes
// against the ledger. Every exported operation is one atomic ledger unit:
// a failed guard leaves no trace.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// Verifier checks attestation signatures over commitment hashes.
type Verifier interface {
	VerifyAttestation(hash common.Hash, sig []byte) error
}

// Publisher receives lifecycle events after their unit commits.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// Engine is safe for concurrent use; isolation comes from the ledger.
type Engine struct {
	ledger   domain.Ledger
	verifier Verifier
	bus      Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Engine. bus may be nil.
func New(ledger domain.Ledger, verifier Verifier, bus Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		ledger:   ledger,
		verifier: verifier,
		bus:      bus,
		logger:   logger.With(slog.String("component", "engine")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// update runs fn atomically and publishes the events it collected once the
// unit has committed.
func (e *Engine) update(ctx context.Context, fn func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error) error {
	var events []domain.Event
	now := e.now()
	err := e.ledger.Update(ctx, func(tx domain.LedgerTx) error {
		events = events[:0]
		return fn(tx, now, func(ev domain.Event) {
			ev.At = now
			events = append(events, ev)
		})
	})
	if err != nil {
		return err
	}
	e.publish(ctx, events)
	return nil
}

func (e *Engine) publish(ctx context.Context, events []domain.Event) {
	if e.bus == nil {
		return
	}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			e.logger.WarnContext(ctx, "engine: marshal event failed", slog.String("type", string(ev.Type)), slog.Any("error", err))
			continue
		}
		if err := e.bus.Publish(ctx, ev.Channel(), payload); err != nil {
			e.logger.WarnContext(ctx, "engine: publish event failed", slog.String("type", string(ev.Type)), slog.Any("error", err))
		}
		if err := e.bus.StreamAppend(ctx, domain.StreamRounds, payload); err != nil {
			e.logger.WarnContext(ctx, "engine: stream append failed", slog.String("type", string(ev.Type)), slog.Any("error", err))
		}
	}
}

// adminMarket loads a market and requires caller to administer it.
func adminMarket(ctx context.Context, tx domain.LedgerTx, caller, marketID string) (domain.Market, error) {
	m, err := tx.Market(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if caller == "" || m.Admin != caller {
		return domain.Market{}, domain.ErrUnauthorized
	}
	return m, nil
}

// adminRound loads a round whose market caller administers.
func adminRound(ctx context.Context, tx domain.LedgerTx, caller string, key domain.RoundKey) (domain.Market, domain.Round, error) {
	m, err := adminMarket(ctx, tx, caller, key.MarketID)
	if err != nil {
		return domain.Market{}, domain.Round{}, err
	}
	r, err := tx.Round(ctx, key)
	if err != nil {
		return domain.Market{}, domain.Round{}, err
	}
	return m, r, nil
}

func transfer(ctx context.Context, tx domain.LedgerTx, m domain.Market, round uint64, from, to string, amount uint64, reason string, now time.Time) error {
	return tx.RecordTransfer(ctx, domain.Transfer{
		MarketID:  m.ID,
		Round:     round,
		Asset:     m.Asset,
		From:      from,
		To:        to,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: now,
	})
}

func boolPtr(b bool) *bool { return &b }
