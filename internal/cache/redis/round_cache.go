package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// settledTTL bounds how long a settled snapshot lingers. Settled rounds
// never change, so the TTL only limits memory.
const settledTTL = 24 * time.Hour

// RoundCache implements domain.RoundCache with one JSON string per round:
//
//	tossr:round:{market}:{number}
type RoundCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRoundCache(c *Client) *RoundCache {
	return &RoundCache{rdb: c.Underlying(), ttl: settledTTL}
}

func roundKey(k domain.RoundKey) string {
	return fmt.Sprintf("tossr:round:%s:%d", k.MarketID, k.Number)
}

// Set stores a snapshot. Only settled rounds are accepted; anything else is
// still changing in the ledger.
func (rc *RoundCache) Set(ctx context.Context, round domain.Round) error {
	if round.Status != domain.RoundSettled {
		return nil
	}
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("redis: marshal round %s: %w", round.Key(), err)
	}
	if err := rc.rdb.Set(ctx, roundKey(round.Key()), data, rc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set round %s: %w", round.Key(), err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a miss.
func (rc *RoundCache) Get(ctx context.Context, key domain.RoundKey) (domain.Round, error) {
	data, err := rc.rdb.Get(ctx, roundKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("redis: get round %s: %w", key, err)
	}
	var round domain.Round
	if err := json.Unmarshal(data, &round); err != nil {
		return domain.Round{}, fmt.Errorf("redis: unmarshal round %s: %w", key, err)
	}
	return round, nil
}

func (rc *RoundCache) Invalidate(ctx context.Context, key domain.RoundKey) error {
	if err := rc.rdb.Del(ctx, roundKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate round %s: %w", key, err)
	}
	return nil
}

var _ domain.RoundCache = (*RoundCache)(nil)
