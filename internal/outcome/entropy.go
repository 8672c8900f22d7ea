package outcome

import "math"

// Entropy source indexes, in tie-break order.
const (
	SourceTee uint8 = iota
	SourceChain
	SourceSensor
)

// ShannonScore is floor(125 * H) where H is the byte-level Shannon entropy
// of data in bits. The result lies in [0, 1000].
func ShannonScore(data []byte) uint16 {
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	n := float64(len(data))
	var h float64
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return uint16(math.Floor(h * 125))
}

// Winner returns the index of the strict maximum score. Tee beats chain
// only when strictly greater than both others, likewise chain; every
// remaining case, including a three-way tie, goes to sensor.
//
// The producer and the engine's reveal both call this, and the entropy
// commitment covers only the three scores, so ties settle the same way on
// both sides.
func Winner(tee, chain, sensor uint16) uint8 {
	switch {
	case tee > chain && tee > sensor:
		return SourceTee
	case chain > tee && chain > sensor:
		return SourceChain
	default:
		return SourceSensor
	}
}
