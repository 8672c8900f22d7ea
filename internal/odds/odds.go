// Package odds computes payout multipliers, evaluates selections against
// revealed outcomes and computes settlement payouts.
//
// Odds are a multiplier scaled by 100: 150 pays 1.5x the stake.
package odds

import (
	"math"

	"github.com/chigozzdevv/tossr/internal/domain"
)

const (
	bpsDenominator = 10_000
	maxOdds        = math.MaxUint16

	shapeCount = 4
	colorCount = 6
	sizeCount  = 3
	shapeSpace = shapeCount * colorCount * sizeCount
)

// patternFrequency counts how many values in [0, 1000) classify as each
// pattern id under derivation precedence.
var patternFrequency = [7]uint64{168, 10, 29, 52, 73, 437, 231}

const patternSpace = 1000

func denominator(edgeBps uint16) uint64 {
	edge := uint64(edgeBps)
	if edge > bpsDenominator {
		edge = bpsDenominator
	}
	return bpsDenominator + edge
}

// EqualBins is the multiplier for one of n equally likely outcomes.
func EqualBins(n uint64, edgeBps uint16) uint16 {
	return clamp(satMul(n, 1_000_000) / denominator(edgeBps))
}

// Probability is the multiplier for an event with probability num/den.
// A zero numerator or denominator yields zero odds.
func Probability(num, den uint64, edgeBps uint16) uint16 {
	if num == 0 || den == 0 {
		return 0
	}
	scaled := satMul(satMul(den, 100), bpsDenominator)
	return clamp(scaled / num / denominator(edgeBps))
}

// Compute returns the multiplier for sel on a market of type t.
func Compute(t domain.MarketType, sel domain.Selection, edgeBps uint16) uint16 {
	switch t {
	case domain.MarketEvenOdd:
		return EqualBins(2, edgeBps)
	case domain.MarketModuloThree:
		return EqualBins(3, edgeBps)
	case domain.MarketLastDigit:
		return EqualBins(10, edgeBps)
	case domain.MarketJackpot:
		return EqualBins(100, edgeBps)
	case domain.MarketEntropyBattle:
		return EqualBins(3, edgeBps)
	case domain.MarketPickRange:
		return pickRange(sel, edgeBps)
	case domain.MarketShapeColor:
		return Probability(shapeMatches(sel), shapeSpace, edgeBps)
	case domain.MarketPatternOfDay:
		id := sel.A
		if id >= uint16(len(patternFrequency)) {
			id = uint16(domain.PatternOdd)
		}
		return Probability(patternFrequency[id], patternSpace, edgeBps)
	case domain.MarketCommunitySeed:
		return Probability(hammingTail(communityTolerance(sel)), 256, edgeBps)
	case domain.MarketStreakMeter:
		return EqualBins(2, edgeBps)
	}
	return 0
}

func pickRange(sel domain.Selection, edgeBps uint16) uint16 {
	switch sel.Kind {
	case domain.SelectRange:
		if sel.B < sel.A {
			return 0
		}
		width := uint64(sel.B-sel.A) + 1
		if 100%width == 0 {
			return EqualBins(100/width, edgeBps)
		}
		return Probability(width, 100, edgeBps)
	case domain.SelectSingle:
		return EqualBins(100, edgeBps)
	}
	return EqualBins(2, edgeBps)
}

func shapeMatches(sel domain.Selection) uint64 {
	options := func(v uint16, n uint64) uint64 {
		if v == domain.Wildcard {
			return n
		}
		return 1
	}
	return options(sel.A, shapeCount) * options(sel.B, colorCount) * options(sel.C, sizeCount)
}

// communityTolerance is the low byte of the selection's tolerance. Pricing and
// Evaluate both read it through here.
func communityTolerance(sel domain.Selection) uint8 {
	return uint8(sel.B)
}

// hammingTail counts the byte values within tolerance bits of a fixed byte:
// sum of C(8,k) for k in [0, min(tolerance, 8)].
func hammingTail(tolerance uint8) uint64 {
	t := min(tolerance, 8)
	var total, c uint64 = 0, 1
	for k := uint64(0); k <= uint64(t); k++ {
		total += c
		c = c * (8 - k) / (k + 1)
	}
	return total
}

func satMul(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		return math.MaxUint64
	}
	return a * b
}

func clamp(v uint64) uint16 {
	if v > maxOdds {
		return maxOdds
	}
	return uint16(v)
}
