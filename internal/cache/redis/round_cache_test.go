package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/chigozzdevv/tossr/internal/domain"
)

func TestRoundKeyLayout(t *testing.T) {
	assert.Equal(t, "tossr:round:m-1:42", roundKey(domain.RoundKey{MarketID: "m-1", Number: 42}))
	assert.Equal(t, "tossr:lock:operator", lockKey("operator"))
	assert.Equal(t, "tossr:ratelimit:bets:alice", rateLimitKey("bets:alice"))
}

func TestRoundCacheSkipsUnsettledRounds(t *testing.T) {
	// Nothing listens on this address; an unsettled round must not reach it.
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer rdb.Close()
	rc := NewRoundCache(NewFromRedis(rdb))

	for _, status := range []domain.RoundStatus{domain.RoundPredicting, domain.RoundLocked} {
		err := rc.Set(context.Background(), domain.Round{MarketID: "m", Number: 1, Status: status})
		assert.NoError(t, err)
	}
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
