package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer produces recoverable secp256k1 signatures over 32-byte hashes.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  []byte // uncompressed, 65 bytes
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return newSigner(pk), nil
}

// GenerateSigner creates a Signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generating key: %w", err)
	}
	return newSigner(pk), nil
}

func newSigner(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: pk,
		publicKey:  ethcrypto.FromECDSAPub(&pk.PublicKey),
	}
}

// PublicKey returns the uncompressed public key (0x04 || X || Y).
func (s *Signer) PublicKey() []byte {
	return bytes.Clone(s.publicKey)
}

// SignHash signs hash and returns r || s || v with v in {0,1}.
func (s *Signer) SignHash(hash common.Hash) ([]byte, error) {
	sig, err := ethcrypto.Sign(hash[:], s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	return sig, nil
}

// PrivateKeyHex returns the hex private key without 0x prefix.
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", ethcrypto.FromECDSA(s.privateKey))
}
