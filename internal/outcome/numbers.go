package outcome

import (
	"strconv"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// fibonacci holds every Fibonacci number below 1000.
var fibonacci = map[uint16]struct{}{
	0: {}, 1: {}, 2: {}, 3: {}, 5: {}, 8: {}, 13: {}, 21: {}, 34: {},
	55: {}, 89: {}, 144: {}, 233: {}, 377: {}, 610: {}, 987: {},
}

func IsPrime(n uint16) bool {
	if n < 2 {
		return false
	}
	if n == 2 {
		return true
	}
	if n%2 == 0 {
		return false
	}
	for d := uint32(3); d*d <= uint32(n); d += 2 {
		if uint32(n)%d == 0 {
			return false
		}
	}
	return true
}

func IsFibonacci(n uint16) bool {
	_, ok := fibonacci[n]
	return ok
}

// IsPerfectSquare uses an integer square root so no value near a square is
// misclassified by float rounding.
func IsPerfectSquare(n uint16) bool {
	r := isqrt(uint32(n))
	return r*r == uint32(n)
}

func isqrt(n uint32) uint32 {
	if n < 2 {
		return n
	}
	// Newton iteration from above converges to floor(sqrt(n)).
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

func IsPalindrome(n uint16) bool {
	s := strconv.FormatUint(uint64(n), 10)
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		if s[i] != s[j] {
			return false
		}
	}
	return true
}

// Classify returns the first pattern v satisfies, in precedence order
// prime, fibonacci, perfect square, ends with 7, palindrome, even, odd.
func Classify(v uint16) domain.PatternType {
	switch {
	case IsPrime(v):
		return domain.PatternPrime
	case IsFibonacci(v):
		return domain.PatternFibonacci
	case IsPerfectSquare(v):
		return domain.PatternPerfectSquare
	case v%10 == 7:
		return domain.PatternEndsWithSeven
	case IsPalindrome(v):
		return domain.PatternPalindrome
	case v%2 == 0:
		return domain.PatternEven
	default:
		return domain.PatternOdd
	}
}

// MatchesPattern reports whether v has property p, ignoring precedence.
func MatchesPattern(v uint16, p domain.PatternType) bool {
	switch p {
	case domain.PatternPrime:
		return IsPrime(v)
	case domain.PatternFibonacci:
		return IsFibonacci(v)
	case domain.PatternPerfectSquare:
		return IsPerfectSquare(v)
	case domain.PatternEndsWithSeven:
		return v%10 == 7
	case domain.PatternPalindrome:
		return IsPalindrome(v)
	case domain.PatternEven:
		return v%2 == 0
	case domain.PatternOdd:
		return v%2 == 1
	}
	return false
}
