package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chigozzdevv/tossr/internal/domain"
)

func TestBusFansOutToMatchingSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBus()

	rounds, err := b.Subscribe(ctx, domain.ChannelRounds)
	require.NoError(t, err)
	all, err := b.Subscribe(ctx, "*")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, domain.ChannelBets, []byte("bet")))
	require.NoError(t, b.Publish(ctx, domain.ChannelRounds, []byte("round")))

	assert.Equal(t, []byte("round"), <-rounds)
	assert.Equal(t, []byte("bet"), <-all)
	assert.Equal(t, []byte("round"), <-all)
}

func TestBusSubscriptionClosesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBus()
	ch, err := b.Subscribe(ctx, "x")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestStreamReadAfter(t *testing.T) {
	ctx := context.Background()
	b := NewBus()
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, b.StreamAppend(ctx, domain.StreamRounds, []byte(p)))
	}

	msgs, err := b.StreamRead(ctx, domain.StreamRounds, "0", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("a"), msgs[0].Payload)

	msgs, err = b.StreamRead(ctx, domain.StreamRounds, msgs[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("c"), msgs[0].Payload)
}

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	rl := NewRateLimiter()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "k", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "k", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "other", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager()
	now := time.Unix(100, 0)
	lm.now = func() time.Time { return now }

	unlock, err := lm.Acquire(ctx, "op", time.Minute)
	require.NoError(t, err)
	_, err = lm.Acquire(ctx, "op", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	relock, err := lm.Acquire(ctx, "op", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = lm.Acquire(ctx, "op", time.Minute)
	assert.NoError(t, err)

	// A stale unlock must not release the newer holder.
	relock()
	_, err = lm.Acquire(ctx, "op", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}
