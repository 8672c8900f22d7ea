package domain

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OutcomeKind tags which variant of Outcome is populated.
type OutcomeKind uint8

const (
	OutcomePending OutcomeKind = iota
	OutcomeNumeric
	OutcomeShape
	OutcomePattern
	OutcomeEntropy
	OutcomeCommunity
)

var outcomeKindNames = [...]string{"pending", "numeric", "shape", "pattern", "entropy", "community"}

func (k OutcomeKind) String() string {
	if int(k) < len(outcomeKindNames) {
		return outcomeKindNames[k]
	}
	return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	if int(k) >= len(outcomeKindNames) {
		return nil, fmt.Errorf("unknown outcome kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for i, name := range outcomeKindNames {
		if name == string(b) {
			*k = OutcomeKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", b)
}

type NumericOutcome struct {
	Value uint16 `json:"value"`
}

type ShapeOutcome struct {
	Shape uint8 `json:"shape"`
	Color uint8 `json:"color"`
	Size  uint8 `json:"size"`
}

type PatternOutcome struct {
	PatternID    uint8  `json:"pattern_id"`
	MatchedValue uint16 `json:"matched_value"`
}

type EntropyOutcome struct {
	TeeScore    uint16 `json:"tee_score"`
	ChainScore  uint16 `json:"chain_score"`
	SensorScore uint16 `json:"sensor_score"`
	Winner      uint8  `json:"winner"`
}

type CommunityOutcome struct {
	FinalByte uint8       `json:"final_byte"`
	SeedHash  common.Hash `json:"seed_hash"`
}

// Outcome is the revealed result of a round. Exactly the field matching
// Kind is set; a Pending outcome has none.
type Outcome struct {
	Kind      OutcomeKind       `json:"kind"`
	Numeric   *NumericOutcome   `json:"numeric,omitempty"`
	Shape     *ShapeOutcome     `json:"shape,omitempty"`
	Pattern   *PatternOutcome   `json:"pattern,omitempty"`
	Entropy   *EntropyOutcome   `json:"entropy,omitempty"`
	Community *CommunityOutcome `json:"community,omitempty"`
}

func Numeric(v uint16) Outcome {
	return Outcome{Kind: OutcomeNumeric, Numeric: &NumericOutcome{Value: v}}
}

func Shape(shape, color, size uint8) Outcome {
	return Outcome{Kind: OutcomeShape, Shape: &ShapeOutcome{Shape: shape, Color: color, Size: size}}
}

func Pattern(id uint8, value uint16) Outcome {
	return Outcome{Kind: OutcomePattern, Pattern: &PatternOutcome{PatternID: id, MatchedValue: value}}
}

func Entropy(tee, chain, sensor uint16, winner uint8) Outcome {
	return Outcome{Kind: OutcomeEntropy, Entropy: &EntropyOutcome{
		TeeScore: tee, ChainScore: chain, SensorScore: sensor, Winner: winner,
	}}
}

func Community(final uint8, seedHash common.Hash) Outcome {
	return Outcome{Kind: OutcomeCommunity, Community: &CommunityOutcome{FinalByte: final, SeedHash: seedHash}}
}

// IsPending reports whether no outcome has been written yet.
func (o Outcome) IsPending() bool { return o.Kind == OutcomePending }

// Validate checks that the variant named by Kind is present.
func (o Outcome) Validate() error {
	ok := false
	switch o.Kind {
	case OutcomePending:
		ok = true
	case OutcomeNumeric:
		ok = o.Numeric != nil
	case OutcomeShape:
		ok = o.Shape != nil
	case OutcomePattern:
		ok = o.Pattern != nil
	case OutcomeEntropy:
		ok = o.Entropy != nil
	case OutcomeCommunity:
		ok = o.Community != nil
	}
	if !ok {
		return fmt.Errorf("outcome: %s variant missing", o.Kind)
	}
	return nil
}

// CommitmentBytes is the canonical encoding hashed with the nonce into a
// commitment. Pending outcomes encode to nil. The entropy winner is not part
// of the encoding; it is recomputed from the scores.
func (o Outcome) CommitmentBytes() []byte {
	switch {
	case o.Kind == OutcomeNumeric && o.Numeric != nil:
		return binary.LittleEndian.AppendUint16(nil, o.Numeric.Value)
	case o.Kind == OutcomeShape && o.Shape != nil:
		return []byte{o.Shape.Shape, o.Shape.Color, o.Shape.Size}
	case o.Kind == OutcomePattern && o.Pattern != nil:
		return binary.LittleEndian.AppendUint16([]byte{o.Pattern.PatternID}, o.Pattern.MatchedValue)
	case o.Kind == OutcomeEntropy && o.Entropy != nil:
		b := make([]byte, 0, 6)
		b = binary.LittleEndian.AppendUint16(b, o.Entropy.TeeScore)
		b = binary.LittleEndian.AppendUint16(b, o.Entropy.ChainScore)
		return binary.LittleEndian.AppendUint16(b, o.Entropy.SensorScore)
	case o.Kind == OutcomeCommunity && o.Community != nil:
		b := make([]byte, 0, 33)
		b = append(b, o.Community.FinalByte)
		return append(b, o.Community.SeedHash.Bytes()...)
	}
	return nil
}
