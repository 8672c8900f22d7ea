package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// RoundService is the read side of the ledger. Settled rounds never change,
// so they are served cache-aside; every other read goes to the ledger.
type RoundService struct {
	ledger       domain.Ledger
	cache        domain.RoundCache
	attestations domain.AttestationStore
	bus          domain.SignalBus
	logger       *slog.Logger
}

// NewRoundService creates a RoundService. cache and bus may be nil.
func NewRoundService(
	ledger domain.Ledger,
	cache domain.RoundCache,
	attestations domain.AttestationStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *RoundService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoundService{
		ledger:       ledger,
		cache:        cache,
		attestations: attestations,
		bus:          bus,
		logger:       logger.With(slog.String("component", "round_service")),
	}
}

func (s *RoundService) Market(ctx context.Context, id string) (domain.Market, error) {
	var m domain.Market
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		m, err = tx.Market(ctx, id)
		return err
	})
	return m, err
}

func (s *RoundService) Markets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.ledger.Markets(ctx, opts)
}

// Round checks the cache first and back-fills it with settled rounds.
func (s *RoundService) Round(ctx context.Context, key domain.RoundKey) (domain.Round, error) {
	if s.cache != nil {
		if r, err := s.cache.Get(ctx, key); err == nil {
			return r, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "round_service: cache get failed",
				slog.String("round", key.String()),
				slog.Any("error", err),
			)
		}
	}

	var r domain.Round
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		r, err = tx.Round(ctx, key)
		return err
	})
	if err != nil {
		return domain.Round{}, err
	}

	if s.cache != nil && r.Status == domain.RoundSettled {
		if err := s.cache.Set(ctx, r); err != nil {
			s.logger.WarnContext(ctx, "round_service: cache set failed",
				slog.String("round", key.String()),
				slog.Any("error", err),
			)
		}
	}
	return r, nil
}

func (s *RoundService) Rounds(ctx context.Context, filter domain.RoundFilter) ([]domain.Round, error) {
	return s.ledger.Rounds(ctx, filter)
}

// Bets lists a round's bets. When the round has a permission group, only
// the market admin and listed viewers may see them.
func (s *RoundService) Bets(ctx context.Context, key domain.RoundKey, viewer string) ([]domain.Bet, error) {
	var bets []domain.Bet
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		if err := canView(ctx, tx, key, viewer); err != nil {
			return err
		}
		var err error
		bets, err = tx.Bets(ctx, key)
		return err
	})
	return bets, err
}

func canView(ctx context.Context, tx domain.LedgerTx, key domain.RoundKey, viewer string) error {
	g, err := tx.PermissionGroup(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if viewer != "" && slices.Contains(g.Viewers, viewer) {
		return nil
	}
	m, err := tx.Market(ctx, key.MarketID)
	if err != nil {
		return err
	}
	if viewer != "" && viewer == m.Admin {
		return nil
	}
	return domain.ErrUnauthorized
}

func (s *RoundService) Bet(ctx context.Context, key domain.BetKey) (domain.Bet, error) {
	var b domain.Bet
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		b, err = tx.Bet(ctx, key)
		return err
	})
	return b, err
}

func (s *RoundService) Streak(ctx context.Context, key domain.StreakKey) (domain.Streak, error) {
	var st domain.Streak
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		st, err = tx.Streak(ctx, key)
		return err
	})
	return st, err
}

func (s *RoundService) Jackpot(ctx context.Context, marketID string) (domain.JackpotPot, error) {
	var p domain.JackpotPot
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		p, err = tx.Jackpot(ctx, marketID)
		return err
	})
	return p, err
}

func (s *RoundService) CommunityEntries(ctx context.Context, key domain.RoundKey) ([]domain.CommunityEntry, error) {
	var entries []domain.CommunityEntry
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		entries, err = tx.CommunityEntries(ctx, key)
		return err
	})
	return entries, err
}

func (s *RoundService) PermissionGroup(ctx context.Context, key domain.RoundKey) (domain.PermissionGroup, error) {
	var g domain.PermissionGroup
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		g, err = tx.PermissionGroup(ctx, key)
		return err
	})
	return g, err
}

func (s *RoundService) Transfers(ctx context.Context, account string, opts domain.ListOpts) ([]domain.Transfer, error) {
	return s.ledger.Transfers(ctx, account, opts)
}

func (s *RoundService) Attestation(ctx context.Context, key domain.RoundKey) (domain.StoredAttestation, error) {
	if s.attestations == nil {
		return domain.StoredAttestation{}, domain.ErrNotFound
	}
	return s.attestations.Get(ctx, key)
}

// Record assembles the archived form of a round.
func (s *RoundService) Record(ctx context.Context, key domain.RoundKey) (domain.RoundRecord, error) {
	var rec domain.RoundRecord
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		if rec.Market, err = tx.Market(ctx, key.MarketID); err != nil {
			return err
		}
		if rec.Round, err = tx.Round(ctx, key); err != nil {
			return err
		}
		if rec.Bets, err = tx.Bets(ctx, key); err != nil {
			return err
		}
		rec.Entries, err = tx.CommunityEntries(ctx, key)
		return err
	})
	if err != nil {
		return domain.RoundRecord{}, fmt.Errorf("round_service: record %s: %w", key, err)
	}
	if att, err := s.Attestation(ctx, key); err == nil {
		rec.Attestation = &att.Attestation
	}
	return rec, nil
}

// Events replays the lifecycle stream after lastID. An empty lastID starts
// from the beginning.
func (s *RoundService) Events(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if s.bus == nil {
		return nil, nil
	}
	if lastID == "" {
		lastID = "0"
	}
	if count <= 0 || count > 500 {
		count = 100
	}
	msgs, err := s.bus.StreamRead(ctx, domain.StreamRounds, lastID, count)
	if err != nil {
		return nil, fmt.Errorf("round_service: read events: %w", err)
	}
	return msgs, nil
}
