package odds

import (
	"math/bits"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// Hamming is the number of differing bits between a and b.
func Hamming(a, b uint8) uint8 {
	return uint8(bits.OnesCount8(a ^ b))
}

// Wins reports whether sel matches o. Pending outcomes and selections whose
// kind does not fit the outcome never win.
func Wins(sel domain.Selection, o domain.Outcome) bool {
	switch o.Kind {
	case domain.OutcomeNumeric:
		if o.Numeric == nil {
			return false
		}
		return numericWins(sel, o.Numeric.Value)
	case domain.OutcomeShape:
		if o.Shape == nil || sel.Kind != domain.SelectShape {
			return false
		}
		return fieldMatches(sel.A, o.Shape.Shape) &&
			fieldMatches(sel.B, o.Shape.Color) &&
			fieldMatches(sel.C, o.Shape.Size)
	case domain.OutcomePattern:
		if o.Pattern == nil || sel.Kind != domain.SelectPattern {
			return false
		}
		return sel.A == uint16(o.Pattern.PatternID) && o.Pattern.MatchedValue > 0
	case domain.OutcomeEntropy:
		if o.Entropy == nil || sel.Kind != domain.SelectEntropy {
			return false
		}
		return sel.A == uint16(o.Entropy.Winner)
	case domain.OutcomeCommunity:
		if o.Community == nil || sel.Kind != domain.SelectCommunity {
			return false
		}
		return Hamming(uint8(sel.A), o.Community.FinalByte) <= communityTolerance(sel)
	}
	return false
}

func numericWins(sel domain.Selection, v uint16) bool {
	switch sel.Kind {
	case domain.SelectSingle:
		return sel.A == v
	case domain.SelectRange:
		return sel.A <= v && v <= sel.B
	case domain.SelectParity:
		return (v%2 == 0) == (sel.A == 0)
	case domain.SelectDigit:
		return v%10 == sel.A%10
	case domain.SelectModulo:
		return v%3 == sel.A%3
	}
	return false
}

func fieldMatches(want uint16, got uint8) bool {
	return want == domain.Wildcard || want == uint16(got)
}

// Payout is stake*odds/100, failing with ErrOverflow instead of wrapping.
func Payout(stake uint64, oddsBps uint16) (uint64, error) {
	hi, lo := bits.Mul64(stake, uint64(oddsBps))
	if hi != 0 {
		return 0, domain.ErrOverflow
	}
	return lo / 100, nil
}
