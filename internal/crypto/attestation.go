package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// DefaultTrustedPubKey is the uncompressed secp256k1 key of the production
// attestation engine.
var DefaultTrustedPubKey = []byte{
	0x04, 0x31, 0x46, 0xf8, 0xa2, 0x66, 0xf9, 0x16, 0x8f, 0x6f, 0xca, 0xe4, 0xc7, 0xad, 0xd0, 0x0c,
	0x59, 0x46, 0x61, 0xd9, 0xe7, 0xcc, 0x5b, 0x64, 0x0c, 0x6a, 0xc4, 0xb4, 0x71, 0x2c, 0x94, 0xb7,
	0xe4, 0x06, 0x85, 0x9b, 0x6d, 0x78, 0x86, 0x17, 0x27, 0x53, 0x49, 0xdb, 0x75, 0xa2, 0xb0, 0x66,
	0x6f, 0xb5, 0x41, 0xc7, 0xd2, 0x69, 0xea, 0x9c, 0x66, 0x12, 0x6c, 0x3b, 0x6a, 0xd5, 0x17, 0x4f,
	0x23,
}

const (
	pubKeyLen = 65
	sigLen    = 64
)

// Commitment binds outcome bytes to a nonce: sha256(outcome || nonce).
func Commitment(outcome []byte, nonce common.Hash) common.Hash {
	h := sha256.New()
	h.Write(outcome)
	h.Write(nonce[:])
	return common.BytesToHash(h.Sum(nil))
}

// VerifyCommitment recomputes the commitment and requires an exact match.
func VerifyCommitment(commitment common.Hash, outcome []byte, nonce common.Hash) error {
	if Commitment(outcome, nonce) != commitment {
		return domain.ErrInvalidCommitment
	}
	return nil
}

// Verifier checks attestation signatures against a single trusted key.
type Verifier struct {
	trusted []byte // 64-byte X||Y
}

// NewVerifier builds a Verifier for an uncompressed 65-byte public key.
func NewVerifier(pub []byte) (*Verifier, error) {
	if len(pub) != pubKeyLen || pub[0] != 0x04 {
		return nil, fmt.Errorf("crypto: trusted key must be a 65-byte uncompressed point, got %d bytes", len(pub))
	}
	if _, err := ethcrypto.UnmarshalPubkey(pub); err != nil {
		return nil, fmt.Errorf("crypto: trusted key not on curve: %w", err)
	}
	return &Verifier{trusted: bytes.Clone(pub[1:])}, nil
}

// NewVerifierFromHex is NewVerifier for a hex string with optional 0x prefix.
// An empty string selects DefaultTrustedPubKey.
func NewVerifierFromHex(pubHex string) (*Verifier, error) {
	if pubHex == "" {
		return NewVerifier(DefaultTrustedPubKey)
	}
	pub, err := hex.DecodeString(strings.TrimPrefix(pubHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: trusted key is not valid hex: %w", err)
	}
	return NewVerifier(pub)
}

// TrustedKey returns the uncompressed trusted key.
func (v *Verifier) TrustedKey() []byte {
	return append([]byte{0x04}, v.trusted...)
}

// VerifyAttestation accepts sig (r||s, optionally followed by a recovery
// byte which is ignored) iff one of the four recovery ids yields the trusted
// key for hash.
func (v *Verifier) VerifyAttestation(hash common.Hash, sig []byte) error {
	if len(sig) != sigLen && len(sig) != sigLen+1 {
		return domain.ErrInvalidAttestation
	}
	candidate := make([]byte, sigLen+1)
	copy(candidate, sig[:sigLen])
	for recID := byte(0); recID < 4; recID++ {
		candidate[sigLen] = recID
		pub, err := ethcrypto.Ecrecover(hash[:], candidate)
		if err != nil || len(pub) != pubKeyLen {
			continue
		}
		if bytes.Equal(pub[1:], v.trusted) {
			return nil
		}
	}
	return domain.ErrInvalidAttestation
}
