package engine

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// CreatePermissionGroup sets the viewer allow-list for a round.
func (e *Engine) CreatePermissionGroup(ctx context.Context, caller string, key domain.RoundKey, viewers []string) (domain.PermissionGroup, error) {
	if len(viewers) > domain.MaxViewers {
		return domain.PermissionGroup{}, domain.ErrMaxViewersReached
	}
	var unique []string
	for _, v := range viewers {
		if slices.Contains(unique, v) {
			return domain.PermissionGroup{}, domain.ErrViewerAlreadyExists
		}
		unique = append(unique, v)
	}
	group := domain.PermissionGroup{MarketID: key.MarketID, Round: key.Number, Viewers: unique}
	err := e.update(ctx, func(tx domain.LedgerTx, _ time.Time, _ func(domain.Event)) error {
		if _, _, err := adminRound(ctx, tx, caller, key); err != nil {
			return err
		}
		if _, err := tx.PermissionGroup(ctx, key); err == nil {
			return domain.ErrAlreadyExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return tx.PutPermissionGroup(ctx, group)
	})
	return group, err
}

// AddViewer appends a viewer to a round's allow-list.
func (e *Engine) AddViewer(ctx context.Context, caller string, key domain.RoundKey, viewer string) (domain.PermissionGroup, error) {
	var group domain.PermissionGroup
	err := e.update(ctx, func(tx domain.LedgerTx, _ time.Time, _ func(domain.Event)) error {
		if _, err := adminMarket(ctx, tx, caller, key.MarketID); err != nil {
			return err
		}
		g, err := tx.PermissionGroup(ctx, key)
		if err != nil {
			return err
		}
		if slices.Contains(g.Viewers, viewer) {
			return domain.ErrViewerAlreadyExists
		}
		if len(g.Viewers) >= domain.MaxViewers {
			return domain.ErrMaxViewersReached
		}
		g.Viewers = append(g.Viewers, viewer)
		group = g
		return tx.PutPermissionGroup(ctx, g)
	})
	return group, err
}

// RemoveViewer drops a viewer from a round's allow-list. Removing an absent
// viewer is a no-op.
func (e *Engine) RemoveViewer(ctx context.Context, caller string, key domain.RoundKey, viewer string) (domain.PermissionGroup, error) {
	var group domain.PermissionGroup
	err := e.update(ctx, func(tx domain.LedgerTx, _ time.Time, _ func(domain.Event)) error {
		if _, err := adminMarket(ctx, tx, caller, key.MarketID); err != nil {
			return err
		}
		g, err := tx.PermissionGroup(ctx, key)
		if err != nil {
			return err
		}
		g.Viewers = slices.DeleteFunc(g.Viewers, func(v string) bool { return v == viewer })
		group = g
		return tx.PutPermissionGroup(ctx, g)
	})
	return group, err
}
