package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chigozzdevv/tossr/internal/crypto"
	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/outcome"
	"github.com/chigozzdevv/tossr/internal/store/memory"
)

const admin = "admin-wallet"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
	stream int
}

func (r *recorder) Publish(_ context.Context, _ string, payload []byte) error {
	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) StreamAppend(context.Context, string, []byte) error {
	r.mu.Lock()
	r.stream++
	r.mu.Unlock()
	return nil
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	eng    *Engine
	ledger *memory.Ledger
	signer *crypto.Signer
	clock  *fakeClock
	events *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)
	verifier, err := crypto.NewVerifier(signer.PublicKey())
	require.NoError(t, err)

	h := &harness{
		ledger: memory.NewLedger(),
		signer: signer,
		clock:  &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()},
		events: &recorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.eng = New(h.ledger, verifier, h.events, logger).WithClock(h.clock.Now)
	return h
}

func (h *harness) market(t *testing.T, mt domain.MarketType, edge uint16) domain.Market {
	t.Helper()
	m, err := h.eng.InitializeMarket(context.Background(), admin, MarketParams{
		Name: mt.String(), HouseEdgeBps: edge, Type: mt, Asset: "USDC",
	})
	require.NoError(t, err)
	return m
}

func (h *harness) open(t *testing.T, marketID string) domain.RoundKey {
	t.Helper()
	r, err := h.eng.OpenRound(context.Background(), admin, marketID)
	require.NoError(t, err)
	return r.Key()
}

func (h *harness) lock(t *testing.T, key domain.RoundKey) {
	t.Helper()
	require.NoError(t, h.eng.LockRound(context.Background(), admin, key))
}

// attest commits and reveals o through the signed path.
func (h *harness) attest(t *testing.T, key domain.RoundKey, o domain.Outcome) {
	t.Helper()
	ctx := context.Background()
	nonce := common.HexToHash("0x5eed")
	commitment := crypto.Commitment(o.CommitmentBytes(), nonce)
	sig, err := h.signer.SignHash(commitment)
	require.NoError(t, err)

	h.clock.Advance(time.Duration(domain.MinLockDuration) * time.Second)
	require.NoError(t, h.eng.CommitOutcome(ctx, "operator", key, commitment, sig))
	require.NoError(t, h.eng.Reveal(ctx, "operator", key, o, RevealProof{Nonce: nonce, Signature: sig}))
}

func (h *harness) round(t *testing.T, key domain.RoundKey) domain.Round {
	t.Helper()
	var r domain.Round
	require.NoError(t, h.ledger.View(context.Background(), func(tx domain.LedgerTx) error {
		var err error
		r, err = tx.Round(context.Background(), key)
		return err
	}))
	return r
}

func (h *harness) bet(t *testing.T, key domain.RoundKey, user string) domain.Bet {
	t.Helper()
	var b domain.Bet
	require.NoError(t, h.ledger.View(context.Background(), func(tx domain.LedgerTx) error {
		var err error
		b, err = tx.Bet(context.Background(), domain.BetKey{Round: key, User: user})
		return err
	}))
	return b
}

func (h *harness) transfers(t *testing.T, account string) []domain.Transfer {
	t.Helper()
	out, err := h.ledger.Transfers(context.Background(), account, domain.ListOpts{})
	require.NoError(t, err)
	return out
}

func TestInitializeMarketValidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.InitializeMarket(ctx, admin, MarketParams{HouseEdgeBps: 10001, Type: domain.MarketEvenOdd})
	assert.ErrorIs(t, err, domain.ErrInvalidHouseEdge)

	_, err = h.eng.InitializeMarket(ctx, admin, MarketParams{Type: domain.MarketType(42)})
	assert.ErrorIs(t, err, domain.ErrInvalidMarketType)

	_, err = h.eng.InitializeMarket(ctx, "", MarketParams{Type: domain.MarketEvenOdd})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestOpenRoundGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)

	_, err := h.eng.OpenRound(ctx, "mallory", m.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	first := h.open(t, m.ID)
	second := h.open(t, m.ID)
	assert.Equal(t, uint64(1), first.Number)
	assert.Equal(t, uint64(2), second.Number)

	require.NoError(t, h.eng.ToggleMarket(ctx, admin, m.ID, false))
	_, err = h.eng.OpenRound(ctx, admin, m.ID)
	assert.ErrorIs(t, err, domain.ErrMarketInactive)

	// Rounds already running are unaffected by deactivation.
	_, err = h.eng.PlaceBet(ctx, "alice", second, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 10})
	assert.NoError(t, err)
}

func TestScheduleLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)
	now := h.clock.Now().Unix()

	assert.ErrorIs(t, h.eng.ScheduleLock(ctx, admin, key, now), domain.ErrInvalidLockTime)
	assert.ErrorIs(t, h.eng.ScheduleLock(ctx, admin, key, now+domain.MaxPredictingDuration+1), domain.ErrLockTimeTooLate)
	require.NoError(t, h.eng.ScheduleLock(ctx, admin, key, now+30))

	assert.ErrorIs(t, h.eng.LockRound(ctx, admin, key), domain.ErrLockTimeNotReached)

	h.clock.Advance(30 * time.Second)
	_, err := h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 10})
	assert.ErrorIs(t, err, domain.ErrBettingClosed)

	h.lock(t, key)
	assert.Equal(t, domain.RoundLocked, h.round(t, key).Status)
	assert.ErrorIs(t, h.eng.LockRound(ctx, admin, key), domain.ErrInvalidState)
}

func TestPickRangeOddsFixedAtPlacement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketPickRange, 200)
	key := h.open(t, m.ID)

	bet, err := h.eng.PlaceBet(ctx, "alice", key, BetRequest{
		Selection: domain.Selection{Kind: domain.SelectRange, A: 1, B: 25},
		Stake:     1000,
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(392), bet.OddsBps)

	// A later edge change does not touch bets already placed.
	require.NoError(t, h.eng.SetHouseEdge(ctx, admin, m.ID, 5000))
	var stored domain.Bet
	require.NoError(t, h.ledger.View(ctx, func(tx domain.LedgerTx) error {
		stored, err = tx.Bet(ctx, domain.BetKey{Round: key, User: "alice"})
		return err
	}))
	assert.Equal(t, uint16(392), stored.OddsBps)
	assert.Equal(t, uint32(1), h.round(t, key).UnsettledBets)
}

func TestPlaceBetGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)
	sel := domain.Selection{Kind: domain.SelectParity}

	_, err := h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: sel})
	assert.ErrorIs(t, err, domain.ErrInvalidStake)

	_, err = h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: sel, Stake: 5, Asset: "SOL"})
	assert.ErrorIs(t, err, domain.ErrAssetMismatch)

	_, err = h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: sel, Stake: 5, Asset: "USDC"})
	require.NoError(t, err)

	_, err = h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: sel, Stake: 5})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = h.eng.PlaceBet(ctx, "", key, BetRequest{Selection: sel, Stake: 5})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	h.lock(t, key)
	_, err = h.eng.PlaceBet(ctx, "bob", key, BetRequest{Selection: sel, Stake: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	assert.Equal(t, uint32(1), h.round(t, key).UnsettledBets)
	assert.Len(t, h.transfers(t, m.VaultAccount()), 1)
}

func TestEvenOddRoundPaysWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)

	even, err := h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity, A: 0}, Stake: 100})
	require.NoError(t, err)
	assert.Equal(t, uint16(200), even.OddsBps)
	_, err = h.eng.PlaceBet(ctx, "bob", key, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity, A: 1}, Stake: 100})
	require.NoError(t, err)

	h.lock(t, key)
	h.attest(t, key, domain.Numeric(0))

	assert.ErrorIs(t, h.eng.SettleRound(ctx, admin, key), domain.ErrUnsettledBetsRemain)

	won, err := h.eng.SettleBet(ctx, admin, key, "alice")
	require.NoError(t, err)
	assert.True(t, won.Won)
	assert.Equal(t, uint64(200), won.Payout)

	lost, err := h.eng.SettleBet(ctx, admin, key, "bob")
	require.NoError(t, err)
	assert.False(t, lost.Won)
	assert.Zero(t, lost.Payout)

	before := h.round(t, key)
	_, err = h.eng.SettleBet(ctx, admin, key, "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
	again := h.bet(t, key, "alice")
	assert.True(t, again.Won)
	assert.True(t, again.Settled)
	assert.Equal(t, uint64(200), again.Payout)
	assert.Equal(t, before.UnsettledBets, h.round(t, key).UnsettledBets)
	assert.Zero(t, h.round(t, key).UnsettledBets)
	assert.Len(t, h.transfers(t, "alice"), 2)

	require.NoError(t, h.eng.SettleRound(ctx, admin, key))
	assert.Equal(t, domain.RoundSettled, h.round(t, key).Status)
	assert.ErrorIs(t, h.eng.SettleRound(ctx, admin, key), domain.ErrInvalidState)

	payouts := h.transfers(t, "alice")
	require.Len(t, payouts, 2)
	assert.Equal(t, "payout", payouts[1].Reason)
	assert.Equal(t, uint64(200), payouts[1].Amount)
	assert.Len(t, h.transfers(t, "bob"), 1)
}

func TestSettleBeforeReveal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)
	_, err := h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 1})
	require.NoError(t, err)
	h.lock(t, key)

	_, err = h.eng.SettleBet(ctx, admin, key, "alice")
	assert.ErrorIs(t, err, domain.ErrOutcomeNotRevealed)
	assert.ErrorIs(t, h.eng.SettleRound(ctx, admin, key), domain.ErrOutcomeNotRevealed)
}

func TestCommitBeforeMinLockDuration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)
	h.lock(t, key)

	o := domain.Numeric(1)
	nonce := common.HexToHash("0x01")
	commitment := crypto.Commitment(o.CommitmentBytes(), nonce)
	sig, err := h.signer.SignHash(commitment)
	require.NoError(t, err)

	h.clock.Advance(time.Duration(domain.MinLockDuration-1) * time.Second)
	assert.ErrorIs(t, h.eng.CommitOutcome(ctx, "operator", key, commitment, sig), domain.ErrMinLockDurationNotMet)
	assert.Nil(t, h.round(t, key).Commitment)

	h.clock.Advance(time.Second)
	assert.NoError(t, h.eng.CommitOutcome(ctx, "operator", key, commitment, sig))
}

func TestCommitRejectsForeignSignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)
	h.lock(t, key)
	h.clock.Advance(time.Duration(domain.MinLockDuration) * time.Second)

	other, err := crypto.GenerateSigner()
	require.NoError(t, err)
	commitment := crypto.Commitment(domain.Numeric(0).CommitmentBytes(), common.Hash{})
	sig, err := other.SignHash(commitment)
	require.NoError(t, err)

	assert.ErrorIs(t, h.eng.CommitOutcome(ctx, "operator", key, commitment, sig), domain.ErrInvalidAttestation)
	assert.ErrorIs(t, h.eng.CommitOutcome(ctx, "operator", key, commitment, sig[:10]), domain.ErrInvalidAttestation)
}

func TestRevealMustOpenCommitment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketLastDigit, 0)
	key := h.open(t, m.ID)
	h.lock(t, key)
	h.clock.Advance(time.Duration(domain.MinLockDuration) * time.Second)

	nonce := common.HexToHash("0xabc")
	commitment := crypto.Commitment(domain.Numeric(7).CommitmentBytes(), nonce)
	sig, err := h.signer.SignHash(commitment)
	require.NoError(t, err)

	proof := RevealProof{Nonce: nonce, Signature: sig}
	assert.ErrorIs(t, h.eng.RevealNumeric(ctx, "operator", key, 7, proof), domain.ErrNoCommitment)

	require.NoError(t, h.eng.CommitOutcome(ctx, "operator", key, commitment, sig))

	assert.ErrorIs(t, h.eng.RevealNumeric(ctx, "operator", key, 8, proof), domain.ErrInvalidCommitment)
	assert.ErrorIs(t, h.eng.RevealShape(ctx, "operator", key, 1, 2, 3, proof), domain.ErrInvalidOutcomeType)
	assert.ErrorIs(t, h.eng.RevealNumeric(ctx, "operator", key, 7, RevealProof{Nonce: common.HexToHash("0xabd"), Signature: sig}), domain.ErrInvalidCommitment)
	assert.True(t, h.round(t, key).Outcome.IsPending())

	inputs := common.HexToHash("0x1234")
	require.NoError(t, h.eng.RevealNumeric(ctx, "operator", key, 7, RevealProof{Nonce: nonce, InputsHash: inputs, Signature: sig}))

	r := h.round(t, key)
	require.NotNil(t, r.Outcome.Numeric)
	assert.Equal(t, uint16(7), r.Outcome.Numeric.Value)
	assert.Equal(t, inputs, r.InputsHash)
	assert.True(t, r.Revealed())

	// A revealed round cannot be revealed or committed again.
	assert.ErrorIs(t, h.eng.RevealNumeric(ctx, "operator", key, 7, proof), domain.ErrInvalidState)
	assert.ErrorIs(t, h.eng.CommitOutcome(ctx, "operator", key, commitment, sig), domain.ErrInvalidState)
}

func TestRevealEntropyDerivesWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEntropyBattle, 0)
	key := h.open(t, m.ID)
	_, err := h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: domain.Selection{Kind: domain.SelectEntropy, A: 1}, Stake: 10})
	require.NoError(t, err)
	h.lock(t, key)

	// The committed winner byte is not part of the encoding, so a lying
	// winner is corrected on reveal.
	h.attest(t, key, domain.Entropy(100, 400, 200, 0))
	r := h.round(t, key)
	require.NotNil(t, r.Outcome.Entropy)
	assert.Equal(t, uint8(outcome.SourceChain), r.Outcome.Entropy.Winner)

	bet, err := h.eng.SettleBet(ctx, admin, key, "alice")
	require.NoError(t, err)
	assert.True(t, bet.Won)
}

func TestSettleOverflowLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketPickRange, 0)
	key := h.open(t, m.ID)
	_, err := h.eng.PlaceBet(ctx, "whale", key, BetRequest{Selection: domain.Selection{Kind: domain.SelectSingle, A: 42}, Stake: math.MaxUint64})
	require.NoError(t, err)
	h.lock(t, key)
	require.NoError(t, h.eng.FastReveal(ctx, "fast", key, domain.Numeric(42)))

	before := len(h.transfers(t, ""))
	_, err = h.eng.SettleBet(ctx, admin, key, "whale")
	assert.ErrorIs(t, err, domain.ErrOverflow)

	assert.Equal(t, uint32(1), h.round(t, key).UnsettledBets)
	assert.Len(t, h.transfers(t, ""), before)
	require.NoError(t, h.ledger.View(ctx, func(tx domain.LedgerTx) error {
		b, err := tx.Bet(ctx, domain.BetKey{Round: key, User: "whale"})
		require.NoError(t, err)
		assert.False(t, b.Settled)
		return nil
	}))
}

func TestFastRevealChecksOutcomeKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketShapeColor, 0)
	key := h.open(t, m.ID)

	assert.ErrorIs(t, h.eng.FastReveal(ctx, "fast", key, domain.Shape(1, 1, 1)), domain.ErrInvalidState)
	h.lock(t, key)
	assert.ErrorIs(t, h.eng.FastReveal(ctx, "fast", key, domain.Numeric(1)), domain.ErrInvalidOutcomeType)
	require.NoError(t, h.eng.FastReveal(ctx, "fast", key, domain.Shape(1, 2, 0)))
	assert.True(t, h.round(t, key).Revealed())
}

func TestFulfillRandomness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)
	h.lock(t, key)

	var rnd outcome.Randomness
	rnd[0] = 3
	require.NoError(t, h.eng.FulfillRandomness(ctx, key, rnd))

	r := h.round(t, key)
	require.NotNil(t, r.Outcome.Numeric)
	assert.Equal(t, uint16(1), r.Outcome.Numeric.Value)
	assert.Equal(t, common.Hash(rnd), r.InputsHash)
	assert.ErrorIs(t, h.eng.FulfillRandomness(ctx, key, rnd), domain.ErrInvalidState)
}

func TestCommunityRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketCommunitySeed, 0)
	key := h.open(t, m.ID)

	expected, err := outcome.AggregateSeeds([]byte{1, 2, 3})
	require.NoError(t, err)
	final := expected.Community.FinalByte

	_, err = h.eng.JoinCommunity(ctx, "alice", key, final)
	require.NoError(t, err)
	bob, err := h.eng.JoinCommunity(ctx, "bob", key, final^0x03)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), bob.Seq)
	_, err = h.eng.JoinCommunity(ctx, "alice", key, 9)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	h.lock(t, key)
	_, err = h.eng.JoinCommunity(ctx, "carol", key, 1)
	assert.ErrorIs(t, err, domain.ErrRoundNotPredicting)

	_, err = h.eng.FinalizeCommunity(ctx, admin, key, []byte{})
	assert.ErrorIs(t, err, domain.ErrNoCommunitySeedsProvided)

	got, err := h.eng.FinalizeCommunity(ctx, admin, key, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, expected, got)
	assert.Equal(t, expected.Community.SeedHash, h.round(t, key).InputsHash)

	_, err = h.eng.FinalizeCommunity(ctx, admin, key, []byte{1, 2, 3})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	winner, err := h.eng.SettleCommunityEntry(ctx, admin, key, "alice")
	require.NoError(t, err)
	assert.True(t, winner.Won)
	assert.Zero(t, winner.Distance)

	loser, err := h.eng.SettleCommunityEntry(ctx, admin, key, "bob")
	require.NoError(t, err)
	assert.False(t, loser.Won)
	assert.Equal(t, uint8(2), loser.Distance)

	_, err = h.eng.SettleCommunityEntry(ctx, admin, key, "bob")
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)

	prizes := h.transfers(t, "alice")
	require.Len(t, prizes, 1)
	assert.Equal(t, uint64(CommunityPrize), prizes[0].Amount)
}

func TestFinalizeCommunityUsesJoinOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketCommunitySeed, 0)
	key := h.open(t, m.ID)

	for i, user := range []string{"u1", "u2", "u3"} {
		_, err := h.eng.JoinCommunity(ctx, user, key, uint8(i+1))
		require.NoError(t, err)
	}
	h.lock(t, key)

	got, err := h.eng.FinalizeCommunity(ctx, admin, key, nil)
	require.NoError(t, err)
	want, err := outcome.AggregateSeeds([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJoinCommunityRequiresCommunityMarket(t *testing.T) {
	h := newHarness(t)
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)

	_, err := h.eng.JoinCommunity(context.Background(), "alice", key, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeType)
}

// playRound opens, bets on even for user, and settles the round with value.
func (h *harness) playRound(t *testing.T, marketID, user string, value uint16) domain.RoundKey {
	t.Helper()
	ctx := context.Background()
	key := h.open(t, marketID)
	_, err := h.eng.PlaceBet(ctx, user, key, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity, A: 0}, Stake: 10})
	require.NoError(t, err)
	h.lock(t, key)
	require.NoError(t, h.eng.FastReveal(ctx, "fast", key, domain.Numeric(value)))
	_, err = h.eng.SettleBet(ctx, admin, key, user)
	require.NoError(t, err)
	require.NoError(t, h.eng.SettleRound(ctx, admin, key))
	return key
}

func TestStreakCompletesAndClaims(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)

	_, err := h.eng.InitStreak(ctx, "alice", m.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidStreakTarget)
	_, err = h.eng.InitStreak(ctx, "alice", m.ID, 11)
	assert.ErrorIs(t, err, domain.ErrInvalidStreakTarget)

	_, err = h.eng.InitStreak(ctx, "alice", m.ID, 2)
	require.NoError(t, err)
	_, err = h.eng.InitStreak(ctx, "alice", m.ID, 3)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	first := h.playRound(t, m.ID, "alice", 2)
	s, err := h.eng.RecordStreakResult(ctx, "alice", m.ID, first.Number)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), s.CurrentStreak)
	assert.Equal(t, domain.StreakActive, s.Status)

	_, err = h.eng.RecordStreakResult(ctx, "alice", m.ID, first.Number)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = h.eng.ClaimStreak(ctx, "alice", s.Key())
	assert.ErrorIs(t, err, domain.ErrStreakNotCompleted)

	second := h.playRound(t, m.ID, "alice", 4)
	s, err = h.eng.RecordStreakResult(ctx, "alice", m.ID, second.Number)
	require.NoError(t, err)
	assert.Equal(t, domain.StreakCompleted, s.Status)

	_, err = h.eng.ClaimStreak(ctx, "mallory", s.Key())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	paid, err := h.eng.ClaimStreak(ctx, "alice", s.Key())
	require.NoError(t, err)
	assert.Equal(t, uint64(60_000_000), paid)

	_, err = h.eng.ClaimStreak(ctx, "alice", s.Key())
	assert.ErrorIs(t, err, domain.ErrStreakNotCompleted)

	// A claimed streak can be started over.
	_, err = h.eng.InitStreak(ctx, "alice", m.ID, 5)
	assert.NoError(t, err)
}

func TestStreakFailsOnLoss(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)

	_, err := h.eng.InitStreak(ctx, "alice", m.ID, 3)
	require.NoError(t, err)

	key := h.playRound(t, m.ID, "alice", 3)
	s, err := h.eng.RecordStreakResult(ctx, "alice", m.ID, key.Number)
	require.NoError(t, err)
	assert.Equal(t, domain.StreakFailed, s.Status)
	assert.Zero(t, s.CurrentStreak)

	next := h.playRound(t, m.ID, "alice", 2)
	_, err = h.eng.RecordStreakResult(ctx, "alice", m.ID, next.Number)
	assert.ErrorIs(t, err, domain.ErrStreakNotActive)
}

func TestStreakRequiresSettledBet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	_, err := h.eng.InitStreak(ctx, "alice", m.ID, 2)
	require.NoError(t, err)

	key := h.open(t, m.ID)
	_, err = h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 10})
	require.NoError(t, err)

	_, err = h.eng.RecordStreakResult(ctx, "alice", m.ID, key.Number)
	assert.ErrorIs(t, err, domain.ErrBetNotSettled)
}

func TestStreakOdds(t *testing.T) {
	assert.Equal(t, uint16(60), StreakOdds(2))
	assert.Equal(t, uint16(3000), StreakOdds(10))
	assert.Equal(t, uint16(40), StreakOdds(11))
}

func TestJackpot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)

	_, err := h.eng.InitJackpot(ctx, "mallory", m.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = h.eng.InitJackpot(ctx, admin, m.ID)
	require.NoError(t, err)
	_, err = h.eng.InitJackpot(ctx, admin, m.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = h.eng.Contribute(ctx, "sponsor", m.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidStake)
	pot, err := h.eng.Contribute(ctx, "sponsor", m.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), pot.CurrentAmount)

	key := h.open(t, m.ID)
	for user, parity := range map[string]uint16{"alice": 0, "bob": 1, "carol": 0} {
		_, err := h.eng.PlaceBet(ctx, user, key, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity, A: parity}, Stake: 10})
		require.NoError(t, err)
	}
	h.lock(t, key)
	require.NoError(t, h.eng.FastReveal(ctx, "fast", key, domain.Numeric(8)))

	_, err = h.eng.SettleBet(ctx, admin, key, "alice")
	require.NoError(t, err)
	_, err = h.eng.SettleBet(ctx, admin, key, "bob")
	require.NoError(t, err)
	_, err = h.eng.SettleBet(ctx, admin, key, "carol")
	require.NoError(t, err)

	_, err = h.eng.ClaimJackpot(ctx, "bob", key)
	assert.ErrorIs(t, err, domain.ErrBetNotWon)

	paid, err := h.eng.ClaimJackpot(ctx, "alice", key)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), paid)

	_, err = h.eng.ClaimJackpot(ctx, "alice", key)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
	_, err = h.eng.ClaimJackpot(ctx, "carol", key)
	assert.ErrorIs(t, err, domain.ErrEmptyJackpot)

	var stored domain.JackpotPot
	require.NoError(t, h.ledger.View(ctx, func(tx domain.LedgerTx) error {
		stored, err = tx.Jackpot(ctx, m.ID)
		return err
	}))
	assert.Zero(t, stored.CurrentAmount)
	assert.Equal(t, uint64(500), stored.TotalContributed)
	assert.Equal(t, "alice", stored.LastWinner)
}

func TestContributeSaturates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketJackpot, 0)
	_, err := h.eng.InitJackpot(ctx, admin, m.ID)
	require.NoError(t, err)

	_, err = h.eng.Contribute(ctx, "a", m.ID, math.MaxUint64-1)
	require.NoError(t, err)
	pot, err := h.eng.Contribute(ctx, "b", m.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), pot.CurrentAmount)
	assert.Equal(t, uint64(math.MaxUint64), pot.TotalContributed)
}

func TestPermissionGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)

	tooMany := make([]string, domain.MaxViewers+1)
	for i := range tooMany {
		tooMany[i] = string(rune('A' + i))
	}
	_, err := h.eng.CreatePermissionGroup(ctx, admin, key, tooMany)
	assert.ErrorIs(t, err, domain.ErrMaxViewersReached)

	_, err = h.eng.CreatePermissionGroup(ctx, admin, key, []string{"v1", "v1"})
	assert.ErrorIs(t, err, domain.ErrViewerAlreadyExists)

	_, err = h.eng.CreatePermissionGroup(ctx, admin, key, tooMany[:domain.MaxViewers-1])
	require.NoError(t, err)
	_, err = h.eng.CreatePermissionGroup(ctx, admin, key, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	g, err := h.eng.AddViewer(ctx, admin, key, "last")
	require.NoError(t, err)
	assert.Len(t, g.Viewers, domain.MaxViewers)

	_, err = h.eng.AddViewer(ctx, admin, key, "extra")
	assert.ErrorIs(t, err, domain.ErrMaxViewersReached)
	_, err = h.eng.AddViewer(ctx, admin, key, "last")
	assert.ErrorIs(t, err, domain.ErrViewerAlreadyExists)

	g, err = h.eng.RemoveViewer(ctx, admin, key, "nobody")
	require.NoError(t, err)
	assert.Len(t, g.Viewers, domain.MaxViewers)

	g, err = h.eng.RemoveViewer(ctx, admin, key, "last")
	require.NoError(t, err)
	assert.Len(t, g.Viewers, domain.MaxViewers-1)
	assert.NotContains(t, g.Viewers, "last")
}

func TestSetPatternConfig(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketPatternOfDay, 0)

	_, err := h.eng.SetPatternConfig(ctx, admin, m.ID, 0, domain.PatternType(99))
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeType)
	_, err = h.eng.SetPatternConfig(ctx, "mallory", m.ID, 0, domain.PatternPrime)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	cfg, err := h.eng.SetPatternConfig(ctx, admin, m.ID, 0, domain.PatternPrime)
	require.NoError(t, err)
	assert.True(t, cfg.IsActive)
}

func TestEventsFollowCommits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.market(t, domain.MarketEvenOdd, 0)
	key := h.open(t, m.ID)

	_, err := h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 0})
	require.Error(t, err)

	_, err = h.eng.PlaceBet(ctx, "alice", key, BetRequest{Selection: domain.Selection{Kind: domain.SelectParity}, Stake: 5})
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventMarketCreated,
		domain.EventRoundOpened,
		domain.EventBetPlaced,
	}, h.events.types())
	assert.Equal(t, 3, h.events.stream)
}
