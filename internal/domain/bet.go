package domain

import (
	"fmt"
	"time"
)

// SelectionKind tags how a bettor's selection parameters are read.
type SelectionKind uint8

const (
	SelectRange SelectionKind = iota
	SelectSingle
	SelectParity
	SelectDigit
	SelectModulo
	SelectPattern
	SelectShape
	SelectEntropy
	SelectStreak
	SelectCommunity
)

var selectionKindNames = [...]string{
	"range", "single", "parity", "digit", "modulo",
	"pattern", "shape", "entropy", "streak", "community",
}

func (k SelectionKind) String() string {
	if int(k) < len(selectionKindNames) {
		return selectionKindNames[k]
	}
	return fmt.Sprintf("SelectionKind(%d)", uint8(k))
}

func (k SelectionKind) MarshalText() ([]byte, error) {
	if int(k) >= len(selectionKindNames) {
		return nil, fmt.Errorf("unknown selection kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *SelectionKind) UnmarshalText(b []byte) error {
	for i, name := range selectionKindNames {
		if name == string(b) {
			*k = SelectionKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown selection kind %q", b)
}

// Wildcard matches any value in a shape selection field.
const Wildcard = 255

// Selection is a bettor's prediction. Meaning of A, B and C depends on Kind:
// Range uses [A,B]; Single/Digit/Modulo/Pattern/Entropy use A; Parity uses
// A==0 for even; Shape uses shape/color/size; Community uses seed A with
// tolerance B.
type Selection struct {
	Kind SelectionKind `json:"kind"`
	A    uint16        `json:"a"`
	B    uint16        `json:"b"`
	C    uint16        `json:"c"`
}

// BetKey addresses one user's bet in a round.
type BetKey struct {
	Round RoundKey `json:"round"`
	User  string   `json:"user"`
}

// Bet is one stake against one round. OddsBps is fixed at placement.
type Bet struct {
	MarketID  string    `json:"market_id"`
	Round     uint64    `json:"round"`
	User      string    `json:"user"`
	Stake     uint64    `json:"stake"`
	Selection Selection `json:"selection"`
	OddsBps   uint16    `json:"odds_bps"`
	Settled   bool      `json:"settled"`
	Won       bool      `json:"won"`
	Payout    uint64    `json:"payout"`
	PlacedAt  time.Time `json:"placed_at"`

	// JackpotClaimed is set once this winning bet has drained a jackpot.
	JackpotClaimed bool `json:"jackpot_claimed"`
}

func (b Bet) Key() BetKey {
	return BetKey{Round: RoundKey{MarketID: b.MarketID, Number: b.Round}, User: b.User}
}
