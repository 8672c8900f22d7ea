package domain

import (
	"fmt"
	"time"
)

// MarketType selects the derivation and odds rules a market plays under.
type MarketType uint8

const (
	MarketPickRange MarketType = iota
	MarketEvenOdd
	MarketLastDigit
	MarketModuloThree
	MarketPatternOfDay
	MarketShapeColor
	MarketJackpot
	MarketEntropyBattle
	MarketStreakMeter
	MarketCommunitySeed
)

var marketTypeNames = [...]string{
	"PickRange",
	"EvenOdd",
	"LastDigit",
	"ModuloThree",
	"PatternOfDay",
	"ShapeColor",
	"Jackpot",
	"EntropyBattle",
	"StreakMeter",
	"CommunitySeed",
}

func (t MarketType) String() string {
	if int(t) < len(marketTypeNames) {
		return marketTypeNames[t]
	}
	return fmt.Sprintf("MarketType(%d)", uint8(t))
}

// Valid reports whether t is a known market type.
func (t MarketType) Valid() bool { return int(t) < len(marketTypeNames) }

// ParseMarketType accepts the canonical name of a market type.
func ParseMarketType(s string) (MarketType, error) {
	for i, name := range marketTypeNames {
		if name == s {
			return MarketType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown market type %q", s)
}

func (t MarketType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown market type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *MarketType) UnmarshalText(b []byte) error {
	v, err := ParseMarketType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Market is a recurring game configuration run by one administrator.
type Market struct {
	ID           string     `json:"id"`
	Admin        string     `json:"admin"`
	Name         string     `json:"name"`
	IsActive     bool       `json:"is_active"`
	LastRound    uint64     `json:"last_round"`
	HouseEdgeBps uint16     `json:"house_edge_bps"`
	Asset        string     `json:"asset"`
	Type         MarketType `json:"market_type"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// MaxHouseEdgeBps is 100%.
const MaxHouseEdgeBps = 10000

// VaultAccount is the custody account a market's stakes move into.
func (m Market) VaultAccount() string { return "vault:" + m.ID }
