package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// RoundStatus is the lifecycle state of a round. It only moves forward.
type RoundStatus uint8

const (
	RoundPredicting RoundStatus = iota
	RoundLocked
	RoundSettled
)

var roundStatusNames = [...]string{"predicting", "locked", "settled"}

func (s RoundStatus) String() string {
	if int(s) < len(roundStatusNames) {
		return roundStatusNames[s]
	}
	return fmt.Sprintf("RoundStatus(%d)", uint8(s))
}

func (s RoundStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(roundStatusNames) {
		return nil, fmt.Errorf("unknown round status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *RoundStatus) UnmarshalText(b []byte) error {
	for i, name := range roundStatusNames {
		if name == string(b) {
			*s = RoundStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown round status %q", b)
}

const (
	// MinLockDuration is the dwell time in seconds between lock and commit.
	MinLockDuration int64 = 5
	// MaxPredictingDuration bounds how far after opening a lock may be scheduled.
	MaxPredictingDuration int64 = 300
)

// RoundKey addresses one round of one market.
type RoundKey struct {
	MarketID string `json:"market_id"`
	Number   uint64 `json:"number"`
}

func (k RoundKey) String() string { return fmt.Sprintf("%s/%d", k.MarketID, k.Number) }

// Round is one instance of play. Timestamps are unix seconds, zero when unset.
type Round struct {
	MarketID        string       `json:"market_id"`
	Number          uint64       `json:"number"`
	Status          RoundStatus  `json:"status"`
	InputsHash      common.Hash  `json:"inputs_hash"`
	Outcome         Outcome      `json:"outcome"`
	UnsettledBets   uint32       `json:"unsettled_bets"`
	OpenedAt        int64        `json:"opened_at"`
	LockScheduledAt int64        `json:"lock_scheduled_at"`
	LockedAt        int64        `json:"locked_at"`
	RevealedAt      int64        `json:"revealed_at"`
	Commitment      *common.Hash `json:"commitment_hash,omitempty"`
}

func (r Round) Key() RoundKey { return RoundKey{MarketID: r.MarketID, Number: r.Number} }

// Revealed reports whether an outcome has been finalized.
func (r Round) Revealed() bool { return r.RevealedAt > 0 }

// RoundFilter narrows ledger round listings.
type RoundFilter struct {
	MarketID string
	Status   *RoundStatus
	Limit    int
}
