package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// MarketParams describes a new market.
type MarketParams struct {
	Name         string            `json:"name"`
	HouseEdgeBps uint16            `json:"house_edge_bps"`
	Type         domain.MarketType `json:"market_type"`
	Asset        string            `json:"asset"`
}

// InitializeMarket creates an active market administered by caller.
func (e *Engine) InitializeMarket(ctx context.Context, caller string, p MarketParams) (domain.Market, error) {
	if caller == "" {
		return domain.Market{}, domain.ErrUnauthorized
	}
	if p.HouseEdgeBps > domain.MaxHouseEdgeBps {
		return domain.Market{}, domain.ErrInvalidHouseEdge
	}
	if !p.Type.Valid() {
		return domain.Market{}, domain.ErrInvalidMarketType
	}

	var market domain.Market
	err := e.update(ctx, func(tx domain.LedgerTx, now time.Time, emit func(domain.Event)) error {
		market = domain.Market{
			ID:           uuid.NewString(),
			Admin:        caller,
			Name:         p.Name,
			IsActive:     true,
			HouseEdgeBps: p.HouseEdgeBps,
			Asset:        p.Asset,
			Type:         p.Type,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.PutMarket(ctx, market); err != nil {
			return err
		}
		emit(domain.Event{Type: domain.EventMarketCreated, MarketID: market.ID, User: caller})
		return nil
	})
	return market, err
}

// ToggleMarket activates or deactivates a market. Inactive markets cannot
// open rounds; rounds already running are unaffected.
func (e *Engine) ToggleMarket(ctx context.Context, caller, marketID string, active bool) error {
	return e.update(ctx, func(tx domain.LedgerTx, now time.Time, _ func(domain.Event)) error {
		m, err := adminMarket(ctx, tx, caller, marketID)
		if err != nil {
			return err
		}
		m.IsActive = active
		m.UpdatedAt = now
		return tx.PutMarket(ctx, m)
	})
}

// SetHouseEdge changes the edge applied to bets placed from now on.
func (e *Engine) SetHouseEdge(ctx context.Context, caller, marketID string, edgeBps uint16) error {
	if edgeBps > domain.MaxHouseEdgeBps {
		return domain.ErrInvalidHouseEdge
	}
	return e.update(ctx, func(tx domain.LedgerTx, now time.Time, _ func(domain.Event)) error {
		m, err := adminMarket(ctx, tx, caller, marketID)
		if err != nil {
			return err
		}
		m.HouseEdgeBps = edgeBps
		m.UpdatedAt = now
		return tx.PutMarket(ctx, m)
	})
}

// SetPatternConfig activates a pattern rule for a market.
func (e *Engine) SetPatternConfig(ctx context.Context, caller, marketID string, patternID uint8, pt domain.PatternType) (domain.PatternConfig, error) {
	if pt > domain.PatternOdd {
		return domain.PatternConfig{}, domain.ErrInvalidOutcomeType
	}
	cfg := domain.PatternConfig{MarketID: marketID, PatternID: patternID, PatternType: pt, IsActive: true}
	err := e.update(ctx, func(tx domain.LedgerTx, _ time.Time, _ func(domain.Event)) error {
		if _, err := adminMarket(ctx, tx, caller, marketID); err != nil {
			return err
		}
		return tx.PutPatternConfig(ctx, cfg)
	})
	return cfg, err
}
