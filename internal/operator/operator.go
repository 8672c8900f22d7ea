// Package operator drives rounds through their lifecycle on behalf of a
// market administrator: open, lock, attest, reveal, settle and archive.
package operator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/chigozzdevv/tossr/internal/attestor"
	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/engine"
	"github.com/chigozzdevv/tossr/internal/metrics"
	"github.com/chigozzdevv/tossr/internal/outcome"
)

const leaderLockKey = "operator:tick"

// RoundEngine is the subset of the engine the operator calls.
type RoundEngine interface {
	OpenRound(ctx context.Context, caller, marketID string) (domain.Round, error)
	ScheduleLock(ctx context.Context, caller string, key domain.RoundKey, lockAt int64) error
	LockRound(ctx context.Context, caller string, key domain.RoundKey) error
	CommitOutcome(ctx context.Context, caller string, key domain.RoundKey, commitment common.Hash, sig []byte) error
	Reveal(ctx context.Context, caller string, key domain.RoundKey, o domain.Outcome, proof engine.RevealProof) error
	FinalizeCommunity(ctx context.Context, caller string, key domain.RoundKey, seeds []byte) (domain.Outcome, error)
	FulfillRandomness(ctx context.Context, key domain.RoundKey, rnd outcome.Randomness) error
	SettleBet(ctx context.Context, caller string, key domain.RoundKey, user string) (domain.Bet, error)
	SettleCommunityEntry(ctx context.Context, caller string, key domain.RoundKey, user string) (domain.CommunityEntry, error)
	SettleRound(ctx context.Context, caller string, key domain.RoundKey) error
}

// RecordSource assembles archived round records.
type RecordSource interface {
	Record(ctx context.Context, key domain.RoundKey) (domain.RoundRecord, error)
}

// StreakReporter receives per-wallet results of StreakMeter rounds.
type StreakReporter interface {
	UpdateStreak(ctx context.Context, wallet string, won bool) (uint32, error)
}

// Alerter is told about failed jobs.
type Alerter interface {
	OperatorError(ctx context.Context, job string, key domain.RoundKey, err error) error
}

type Config struct {
	// Admin is the identity the operator acts as; only markets it
	// administers are driven.
	Admin         string
	TickInterval  time.Duration
	RoundDuration time.Duration
	StallTimeout  time.Duration
	LockTTL       time.Duration
	Concurrency   int
	// JournalCron schedules the daily transfer journal export; empty disables it.
	JournalCron string
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 2 * time.Second
	}
	if c.RoundDuration <= 0 {
		c.RoundDuration = 60 * time.Second
	}
	if max := time.Duration(domain.MaxPredictingDuration) * time.Second; c.RoundDuration > max {
		c.RoundDuration = max
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 5 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Deps are the collaborators an Operator needs. Ledger, Engine and Source
// are required; the rest may be nil.
type Deps struct {
	Ledger       domain.Ledger
	Engine       RoundEngine
	Source       attestor.Source
	Attestations domain.AttestationStore
	Audit        domain.AuditStore
	Locks        domain.LockManager
	Archiver     domain.Archiver
	Journal      TransferArchiver
	Records      RecordSource
	Streaks      StreakReporter
	Alerts       Alerter
}

type Operator struct {
	cfg    Config
	deps   Deps
	rand   io.Reader
	now    func() time.Time
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) (*Operator, error) {
	if cfg.Admin == "" {
		return nil, errors.New("operator: admin identity is required")
	}
	if deps.Ledger == nil || deps.Engine == nil || deps.Source == nil {
		return nil, errors.New("operator: ledger, engine and attestation source are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Operator{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		rand:   rand.Reader,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "operator")),
	}, nil
}

// WithClock replaces the operator's time source.
func (o *Operator) WithClock(now func() time.Time) *Operator {
	o.now = now
	return o
}

// Run ticks until ctx is cancelled, alongside the journal cron when set.
func (o *Operator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "operator: starting",
		slog.String("admin", o.cfg.Admin),
		slog.Duration("tick", o.cfg.TickInterval),
		slog.Duration("round_duration", o.cfg.RoundDuration),
	)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(o.cfg.TickInterval)
		defer ticker.Stop()
		for {
			if err := o.Tick(ctx); err != nil {
				o.logger.ErrorContext(ctx, "operator: tick failed", slog.Any("error", err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if o.cfg.JournalCron != "" && o.deps.Journal != nil {
		g.Go(func() error {
			err := o.runJournalCron(ctx, o.cfg.JournalCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("journal cron: %w", err)
		})
	}
	return g.Wait()
}

// Tick advances every administered market by as many steps as are due.
// When a lock manager is configured only the holder of the leader lock
// does any work.
func (o *Operator) Tick(ctx context.Context) error {
	if o.deps.Locks != nil {
		unlock, err := o.deps.Locks.Acquire(ctx, leaderLockKey, o.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("operator: leader lock: %w", err)
		}
		defer unlock()
	}

	markets, err := o.deps.Ledger.Markets(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("operator: list markets: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for _, m := range markets {
		if m.Admin != o.cfg.Admin {
			continue
		}
		g.Go(func() error {
			o.advance(gctx, m)
			return nil
		})
	}
	return g.Wait()
}

// advance runs steps for one market until nothing more is due.
func (o *Operator) advance(ctx context.Context, m domain.Market) {
	for range 8 {
		progressed, job, key, err := o.step(ctx, m)
		if err != nil {
			o.fail(ctx, job, key, err)
			return
		}
		if !progressed {
			return
		}
		metrics.OperatorJobs.WithLabelValues(job, "ok").Inc()
		if m, err = o.market(ctx, m.ID); err != nil {
			return
		}
	}
}

func (o *Operator) fail(ctx context.Context, job string, key domain.RoundKey, err error) {
	metrics.OperatorJobs.WithLabelValues(job, metrics.ResultCode(err)).Inc()
	o.logger.ErrorContext(ctx, "operator: job failed",
		slog.String("job", job),
		slog.String("round", key.String()),
		slog.Any("error", err),
	)
	o.audit(ctx, "operator.error", map[string]any{"job": job, "round": key.String(), "error": err.Error()})
	if o.deps.Alerts != nil {
		if aerr := o.deps.Alerts.OperatorError(ctx, job, key, err); aerr != nil {
			o.logger.WarnContext(ctx, "operator: alert failed", slog.Any("error", aerr))
		}
	}
}

func (o *Operator) audit(ctx context.Context, event string, detail map[string]any) {
	if o.deps.Audit == nil {
		return
	}
	if err := o.deps.Audit.Log(ctx, event, detail); err != nil {
		o.logger.WarnContext(ctx, "operator: audit log failed", slog.String("event", event), slog.Any("error", err))
	}
}

func (o *Operator) market(ctx context.Context, id string) (domain.Market, error) {
	var m domain.Market
	err := o.deps.Ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		m, err = tx.Market(ctx, id)
		return err
	})
	return m, err
}
