package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Attestation is the signed record the attestation producer hands to the
// round operator. Signature is over CommitmentHash.
type Attestation struct {
	RoundID         string        `json:"round_id"`
	MarketType      MarketType    `json:"market_type"`
	Outcome         Outcome       `json:"outcome"`
	CommitmentHash  common.Hash   `json:"commitment_hash"`
	Nonce           common.Hash   `json:"nonce"`
	InputsHash      common.Hash   `json:"inputs_hash"`
	CodeMeasurement common.Hash   `json:"code_measurement"`
	Signature       hexutil.Bytes `json:"signature"`
	PublicKey       hexutil.Bytes `json:"public_key"`
	Timestamp       int64         `json:"timestamp"`
}

// StoredAttestation ties an attestation to the ledger round it was used for.
type StoredAttestation struct {
	Round       RoundKey    `json:"round"`
	Attestation Attestation `json:"attestation"`
	CreatedAt   time.Time   `json:"created_at"`
}

// AttestationStore persists attestations used to commit and reveal rounds.
type AttestationStore interface {
	Save(ctx context.Context, key RoundKey, att Attestation) error
	Get(ctx context.Context, key RoundKey) (StoredAttestation, error)
	List(ctx context.Context, marketID string, opts ListOpts) ([]StoredAttestation, error)
}
