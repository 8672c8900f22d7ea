package operator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chigozzdevv/tossr/internal/attestor"
	"github.com/chigozzdevv/tossr/internal/cache/local"
	"github.com/chigozzdevv/tossr/internal/crypto"
	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/engine"
	"github.com/chigozzdevv/tossr/internal/service"
	"github.com/chigozzdevv/tossr/internal/store/memory"
)

const admin = "operator-admin"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type archiveRecorder struct {
	mu           sync.Mutex
	rounds       []domain.RoundRecord
	attestations []domain.Attestation
}

func (a *archiveRecorder) ArchiveRound(_ context.Context, rec domain.RoundRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rounds = append(a.rounds, rec)
	return nil
}

func (a *archiveRecorder) ArchiveAttestation(_ context.Context, att domain.Attestation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attestations = append(a.attestations, att)
	return nil
}

type journalRecorder struct {
	day   time.Time
	count int
}

func (j *journalRecorder) ArchiveTransfers(_ context.Context, day time.Time, transfers []domain.Transfer) (int64, error) {
	j.day = day
	j.count = len(transfers)
	return int64(len(transfers)), nil
}

type fixture struct {
	op      *Operator
	eng     *engine.Engine
	ledger  *memory.Ledger
	atts    *memory.AttestationStore
	audit   *memory.AuditStore
	archive *archiveRecorder
	journal *journalRecorder
	streaks *attestor.StreakStore
	locks   *local.LockManager
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)
	verifier, err := crypto.NewVerifier(signer.PublicKey())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		ledger:  memory.NewLedger(),
		atts:    memory.NewAttestationStore(),
		audit:   memory.NewAuditStore(),
		archive: &archiveRecorder{},
		journal: &journalRecorder{},
		streaks: attestor.NewStreakStore(),
		locks:   local.NewLockManager(),
		clock:   &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.eng = engine.New(f.ledger, verifier, nil, logger).WithClock(f.clock.Now)
	records := service.NewRoundService(f.ledger, nil, f.atts, nil, logger)

	f.op, err = New(Config{Admin: admin, RoundDuration: time.Minute}, Deps{
		Ledger:       f.ledger,
		Engine:       f.eng,
		Source:       attestor.NewProducer(signer, nil, logger),
		Attestations: f.atts,
		Audit:        f.audit,
		Locks:        f.locks,
		Archiver:     f.archive,
		Journal:      f.journal,
		Records:      records,
		Streaks:      f.streaks,
	}, logger)
	require.NoError(t, err)
	f.op.WithClock(f.clock.Now)
	return f
}

func (f *fixture) market(t *testing.T, mt domain.MarketType) domain.Market {
	t.Helper()
	m, err := f.eng.InitializeMarket(context.Background(), admin, engine.MarketParams{Name: mt.String(), Type: mt, Asset: "USDC"})
	require.NoError(t, err)
	return m
}

func (f *fixture) round(t *testing.T, key domain.RoundKey) domain.Round {
	t.Helper()
	r, err := f.op.round(context.Background(), key)
	require.NoError(t, err)
	return r
}

func (f *fixture) events(t *testing.T) []string {
	t.Helper()
	entries, err := f.audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i].Event)
	}
	return out
}

func TestNewRequiresAdmin(t *testing.T) {
	_, err := New(Config{}, Deps{}, nil)
	assert.Error(t, err)
}

func TestAttestedRoundLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.MarketEvenOdd)
	first := domain.RoundKey{MarketID: m.ID, Number: 1}

	require.NoError(t, f.op.Tick(ctx))
	r := f.round(t, first)
	assert.Equal(t, domain.RoundPredicting, r.Status)
	assert.Equal(t, f.clock.Now().Add(time.Minute).Unix(), r.LockScheduledAt)

	_, err := f.eng.PlaceBet(ctx, "alice", first, engine.BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 100})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.op.Tick(ctx))
	assert.Equal(t, domain.RoundPredicting, f.round(t, first).Status)

	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.op.Tick(ctx))
	assert.Equal(t, domain.RoundLocked, f.round(t, first).Status)

	f.clock.Advance(time.Duration(domain.MinLockDuration) * time.Second)
	require.NoError(t, f.op.Tick(ctx))

	r = f.round(t, first)
	assert.Equal(t, domain.RoundSettled, r.Status)
	require.NotNil(t, r.Outcome.Numeric)
	assert.NotNil(t, r.Commitment)

	stored, err := f.atts.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, *r.Commitment, stored.Attestation.CommitmentHash)
	assert.Equal(t, stored.Attestation.InputsHash, r.InputsHash)

	bets, err := service.NewRoundService(f.ledger, nil, nil, nil, nil).Bets(ctx, first, "")
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.True(t, bets[0].Settled)

	require.Len(t, f.archive.rounds, 1)
	assert.Equal(t, first, f.archive.rounds[0].Round.Key())
	require.Len(t, f.archive.attestations, 1)

	next := f.round(t, domain.RoundKey{MarketID: m.ID, Number: 2})
	assert.Equal(t, domain.RoundPredicting, next.Status)

	assert.Equal(t, []string{
		"operator.open", "operator.lock", "operator.attest", "operator.settle", "operator.open",
	}, f.events(t))
}

func TestStreakMeterUsesRandomness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.MarketStreakMeter)
	first := domain.RoundKey{MarketID: m.ID, Number: 1}

	require.NoError(t, f.op.Tick(ctx))
	_, err := f.eng.PlaceBet(ctx, "bob", first, engine.BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 10})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.op.Tick(ctx))
	f.clock.Advance(time.Duration(domain.MinLockDuration) * time.Second)
	require.NoError(t, f.op.Tick(ctx))

	r := f.round(t, first)
	assert.Equal(t, domain.RoundSettled, r.Status)
	assert.Nil(t, r.Commitment)
	assert.Contains(t, f.events(t), "operator.randomness")

	_, err = f.atts.Get(ctx, first)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bet, err := service.NewRoundService(f.ledger, nil, nil, nil, nil).Bet(ctx, domain.BetKey{Round: first, User: "bob"})
	require.NoError(t, err)
	want := uint32(0)
	if bet.Won {
		want = 1
	}
	assert.Equal(t, want, f.streaks.Get("bob"))
}

func TestCommunityWithoutSeedsFallsBackToRandomness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.MarketCommunitySeed)
	first := domain.RoundKey{MarketID: m.ID, Number: 1}

	require.NoError(t, f.op.Tick(ctx))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.op.Tick(ctx))
	f.clock.Advance(time.Duration(domain.MinLockDuration) * time.Second)
	require.NoError(t, f.op.Tick(ctx))

	r := f.round(t, first)
	assert.Equal(t, domain.RoundSettled, r.Status)
	assert.Equal(t, domain.OutcomeCommunity, r.Outcome.Kind)
}

func TestCommunityFinalizesJoinedSeeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.MarketCommunitySeed)
	first := domain.RoundKey{MarketID: m.ID, Number: 1}

	require.NoError(t, f.op.Tick(ctx))
	_, err := f.eng.JoinCommunity(ctx, "alice", first, 0x0f)
	require.NoError(t, err)
	_, err = f.eng.JoinCommunity(ctx, "bob", first, 0xf0)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.op.Tick(ctx))
	f.clock.Advance(time.Duration(domain.MinLockDuration) * time.Second)
	require.NoError(t, f.op.Tick(ctx))

	r := f.round(t, first)
	assert.Equal(t, domain.RoundSettled, r.Status)
	assert.Contains(t, f.events(t), "operator.finalize_community")

	entries, err := service.NewRoundService(f.ledger, nil, nil, nil, nil).CommunityEntries(ctx, first)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.Settled, e.User)
	}
}

func TestStalledRoundRecovered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.MarketEvenOdd)
	first := domain.RoundKey{MarketID: m.ID, Number: 1}

	require.NoError(t, f.op.Tick(ctx))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.op.Tick(ctx))

	// Let the round sit locked past the stall timeout without a tick.
	f.clock.Advance(6 * time.Minute)
	require.NoError(t, f.op.Tick(ctx))

	assert.Equal(t, domain.RoundSettled, f.round(t, first).Status)
	assert.Contains(t, f.events(t), "operator.recover")
}

func TestTickSkipsWithoutLeaderLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.MarketEvenOdd)

	unlock, err := f.locks.Acquire(ctx, leaderLockKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.op.Tick(ctx))
	_, err = f.op.round(ctx, domain.RoundKey{MarketID: m.ID, Number: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	unlock()
	require.NoError(t, f.op.Tick(ctx))
	assert.Equal(t, domain.RoundPredicting, f.round(t, domain.RoundKey{MarketID: m.ID, Number: 1}).Status)
}

func TestTickIgnoresOtherAdmins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m, err := f.eng.InitializeMarket(ctx, "someone-else", engine.MarketParams{Type: domain.MarketEvenOdd})
	require.NoError(t, err)

	require.NoError(t, f.op.Tick(ctx))
	_, err = f.op.round(ctx, domain.RoundKey{MarketID: m.ID, Number: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExportJournal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.market(t, domain.MarketEvenOdd)
	require.NoError(t, f.op.Tick(ctx))
	_, err := f.eng.PlaceBet(ctx, "alice", domain.RoundKey{MarketID: m.ID, Number: 1},
		engine.BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 5})
	require.NoError(t, err)

	n, err := f.op.ExportJournal(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), f.journal.day)

	n, err = f.op.ExportJournal(ctx, f.clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 5, 1, 12, 30, 15, 0, time.UTC)
	next, err := nextCronTime("10 0 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 10, 0, 0, time.UTC), next)

	_, err = nextCronTime("61 * * * *", after)
	assert.Error(t, err)
	_, err = nextCronTime("* * *", after)
	assert.Error(t, err)
}
