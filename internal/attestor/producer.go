// Package attestor is the long-lived attestation producer. It derives round
// outcomes, commits to them under a fresh nonce and signs the commitment
// with the enclave key.
package attestor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chigozzdevv/tossr/internal/crypto"
	"github.com/chigozzdevv/tossr/internal/domain"
	"github.com/chigozzdevv/tossr/internal/metrics"
	"github.com/chigozzdevv/tossr/internal/outcome"
)

// CodeVersion is hashed into every attestation's code measurement.
const CodeVersion = "tossr-tee-engine-0.1.0"

// CodeMeasurement is sha256(CodeVersion).
var CodeMeasurement = common.Hash(sha256.Sum256([]byte(CodeVersion)))

// Params carries the externally supplied inputs some market types need.
type Params struct {
	ChainHash      []byte
	CommunitySeeds []byte
}

// Source produces attestations. Producer implements it in-process and
// Client over HTTP.
type Source interface {
	Produce(ctx context.Context, roundID string, mt domain.MarketType, p Params) (domain.Attestation, error)
}

// EntropySource supplies the sensor contribution of an entropy battle.
type EntropySource interface {
	Read(ctx context.Context) []byte
}

// Producer is safe for concurrent use.
type Producer struct {
	signer *crypto.Signer
	sensor EntropySource
	rand   io.Reader
	now    func() time.Time
	logger *slog.Logger
}

// NewProducer creates a Producer. sensor may be nil, in which case sensor
// entropy comes from crypto/rand.
func NewProducer(signer *crypto.Signer, sensor EntropySource, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		signer: signer,
		sensor: sensor,
		rand:   rand.Reader,
		now:    time.Now,
		logger: logger.With(slog.String("component", "attestor")),
	}
}

// PublicKey is the uncompressed key attestations verify against.
func (p *Producer) PublicKey() []byte { return p.signer.PublicKey() }

// Produce derives the outcome for one round and returns it signed.
// StreakMeter rounds are refused because their outcome depends on per-user
// state the producer does not own.
func (p *Producer) Produce(ctx context.Context, roundID string, mt domain.MarketType, params Params) (domain.Attestation, error) {
	o, err := p.derive(ctx, mt, params)
	if err != nil {
		return domain.Attestation{}, err
	}

	var nonce common.Hash
	if _, err := io.ReadFull(p.rand, nonce[:]); err != nil {
		return domain.Attestation{}, fmt.Errorf("attestor: nonce: %w", err)
	}
	commitment := crypto.Commitment(o.CommitmentBytes(), nonce)

	inputs, err := InputsHash(roundID, mt, o)
	if err != nil {
		return domain.Attestation{}, err
	}
	sig, err := p.signer.SignHash(commitment)
	if err != nil {
		return domain.Attestation{}, err
	}

	metrics.AttestationsTotal.WithLabelValues(mt.String()).Inc()
	p.logger.DebugContext(ctx, "attestor: outcome attested",
		slog.String("round_id", roundID),
		slog.String("market_type", mt.String()),
		slog.String("commitment", commitment.Hex()),
	)
	return domain.Attestation{
		RoundID:         roundID,
		MarketType:      mt,
		Outcome:         o,
		CommitmentHash:  commitment,
		Nonce:           nonce,
		InputsHash:      inputs,
		CodeMeasurement: CodeMeasurement,
		Signature:       sig,
		PublicKey:       p.signer.PublicKey(),
		Timestamp:       p.now().Unix(),
	}, nil
}

func (p *Producer) derive(ctx context.Context, mt domain.MarketType, params Params) (domain.Outcome, error) {
	switch mt {
	case domain.MarketStreakMeter:
		return domain.Outcome{}, fmt.Errorf("attestor: %s rounds are resolved by randomness: %w", mt, domain.ErrInvalidMarketType)
	case domain.MarketCommunitySeed:
		return outcome.AggregateSeeds(params.CommunitySeeds)
	case domain.MarketEntropyBattle:
		tee := make([]byte, 32)
		if _, err := io.ReadFull(p.rand, tee); err != nil {
			return domain.Outcome{}, fmt.Errorf("attestor: tee entropy: %w", err)
		}
		chain := params.ChainHash
		if len(chain) == 0 {
			chain = make([]byte, 32)
		}
		return outcome.EntropyBattle(tee, chain, p.sensorBytes(ctx)), nil
	}
	if !mt.Valid() {
		return domain.Outcome{}, domain.ErrInvalidMarketType
	}
	var rnd outcome.Randomness
	if _, err := io.ReadFull(p.rand, rnd[:]); err != nil {
		return domain.Outcome{}, fmt.Errorf("attestor: randomness: %w", err)
	}
	return outcome.Derive(mt, rnd)
}

func (p *Producer) sensorBytes(ctx context.Context) []byte {
	if p.sensor != nil {
		return p.sensor.Read(ctx)
	}
	buf := make([]byte, 32)
	_, _ = io.ReadFull(p.rand, buf)
	return buf
}

// InputsHash is sha256 over the JSON document {round_id, market_type,
// outcome}, with fields in that order.
func InputsHash(roundID string, mt domain.MarketType, o domain.Outcome) (common.Hash, error) {
	doc, err := json.Marshal(struct {
		RoundID    string            `json:"round_id"`
		MarketType domain.MarketType `json:"market_type"`
		Outcome    domain.Outcome    `json:"outcome"`
	}{roundID, mt, o})
	if err != nil {
		return common.Hash{}, fmt.Errorf("attestor: encode inputs: %w", err)
	}
	return sha256.Sum256(doc), nil
}

var _ Source = (*Producer)(nil)
