// Package outcome maps raw randomness and participant seeds to structured
// round outcomes.
package outcome

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// Randomness is the 32-byte input every derivation reads from.
type Randomness [32]byte

// u16 reads a little-endian pair starting at i, wrapping around the buffer.
func (r Randomness) u16(i int) uint16 {
	return uint16(r[i%32]) | uint16(r[(i+1)%32])<<8
}

// entropyScore maps a two-byte window into [1, 512].
func (r Randomness) entropyScore(i int) uint16 {
	return r.u16(i)%512 + 1
}

// Derive produces the outcome for market type t from rnd.
func Derive(t domain.MarketType, rnd Randomness) (domain.Outcome, error) {
	switch t {
	case domain.MarketPickRange:
		return domain.Numeric(rnd.u16(0)%100 + 1), nil
	case domain.MarketEvenOdd:
		return domain.Numeric(uint16(rnd[0] % 2)), nil
	case domain.MarketLastDigit:
		return domain.Numeric(uint16(rnd[1] % 10)), nil
	case domain.MarketModuloThree:
		return domain.Numeric(uint16(rnd[2] % 3)), nil
	case domain.MarketPatternOfDay:
		v := rnd.u16(3) % 1000
		return domain.Pattern(uint8(Classify(v)), v), nil
	case domain.MarketShapeColor:
		return domain.Shape(rnd[4]%4, rnd[5]%6, rnd[6]%3), nil
	case domain.MarketJackpot:
		return domain.Numeric(uint16(rnd[7] % 100)), nil
	case domain.MarketEntropyBattle:
		tee, chain, sensor := rnd.entropyScore(8), rnd.entropyScore(10), rnd.entropyScore(12)
		return domain.Entropy(tee, chain, sensor, Winner(tee, chain, sensor)), nil
	case domain.MarketStreakMeter:
		return domain.Numeric(uint16(rnd[14] % 100)), nil
	case domain.MarketCommunitySeed:
		return domain.Community(rnd[15], common.Hash(rnd)), nil
	}
	return domain.Outcome{}, fmt.Errorf("outcome: unsupported market type %s", t)
}

// AggregateSeeds fixes a community round's outcome from every participant
// seed byte, hashed once in the given order.
func AggregateSeeds(seeds []byte) (domain.Outcome, error) {
	if len(seeds) == 0 {
		return domain.Outcome{}, domain.ErrNoCommunitySeedsProvided
	}
	sum := sha256.Sum256(seeds)
	return domain.Community(sum[31], common.Hash(sum)), nil
}

// EntropyBattle scores three externally supplied entropy buffers.
func EntropyBattle(tee, chain, sensor []byte) domain.Outcome {
	ts, cs, ss := ShannonScore(tee), ShannonScore(chain), ShannonScore(sensor)
	return domain.Entropy(ts, cs, ss, Winner(ts, cs, ss))
}

// Normalize recomputes derived fields a revealer must not choose, currently
// the entropy winner.
func Normalize(o domain.Outcome) domain.Outcome {
	if o.Kind == domain.OutcomeEntropy && o.Entropy != nil {
		e := *o.Entropy
		e.Winner = Winner(e.TeeScore, e.ChainScore, e.SensorScore)
		o.Entropy = &e
	}
	return o
}

// KindFor is the outcome variant a market of type t resolves to.
func KindFor(t domain.MarketType) domain.OutcomeKind {
	switch t {
	case domain.MarketPatternOfDay:
		return domain.OutcomePattern
	case domain.MarketShapeColor:
		return domain.OutcomeShape
	case domain.MarketEntropyBattle:
		return domain.OutcomeEntropy
	case domain.MarketCommunitySeed:
		return domain.OutcomeCommunity
	case domain.MarketPickRange, domain.MarketEvenOdd, domain.MarketLastDigit,
		domain.MarketModuloThree, domain.MarketJackpot, domain.MarketStreakMeter:
		return domain.OutcomeNumeric
	}
	return domain.OutcomePending
}
