package crypto

import (
	"crypto/sha256"
	"testing"
	"testing/quick"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chigozzdevv/tossr/internal/domain"
)

func TestCommitmentMatchesSHA256(t *testing.T) {
	outcome := []byte{0x2a, 0x00}
	nonce := common.HexToHash("0x01")

	want := sha256.Sum256(append(append([]byte{}, outcome...), nonce[:]...))
	assert.Equal(t, common.Hash(want), Commitment(outcome, nonce))
}

func TestCommitmentBinding(t *testing.T) {
	property := func(outcome []byte, nonce [32]byte, bit uint16) bool {
		n := common.Hash(nonce)
		c := Commitment(outcome, n)
		if VerifyCommitment(c, outcome, n) != nil {
			return false
		}

		total := (len(outcome) + 32) * 8
		pos := int(bit) % total
		flippedOutcome := append([]byte{}, outcome...)
		flippedNonce := n
		if pos < len(outcome)*8 {
			flippedOutcome[pos/8] ^= 1 << (pos % 8)
		} else {
			pos -= len(outcome) * 8
			flippedNonce[pos/8] ^= 1 << (pos % 8)
		}
		return VerifyCommitment(c, flippedOutcome, flippedNonce) == domain.ErrInvalidCommitment
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 500}))
}

func TestDefaultTrustedKeyIsValid(t *testing.T) {
	v, err := NewVerifierFromHex("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTrustedPubKey, v.TrustedKey())
}

func TestNewVerifierRejectsMalformedKeys(t *testing.T) {
	_, err := NewVerifier(DefaultTrustedPubKey[:33])
	assert.Error(t, err)

	bad := append([]byte{}, DefaultTrustedPubKey...)
	bad[64] ^= 0x01
	_, err = NewVerifier(bad)
	assert.Error(t, err)

	_, err = NewVerifierFromHex("0xzz")
	assert.Error(t, err)
}

func TestVerifyAttestation(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	v, err := NewVerifierFromHex(hexutil.Encode(signer.PublicKey()))
	require.NoError(t, err)

	hash := Commitment([]byte{7, 0}, common.HexToHash("0xabc"))
	sig, err := signer.SignHash(hash)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	assert.NoError(t, v.VerifyAttestation(hash, sig))
	assert.NoError(t, v.VerifyAttestation(hash, sig[:64]), "recovery byte is optional")

	// The recovery byte supplied by the caller never matters.
	tampered := append([]byte{}, sig...)
	tampered[64] ^= 1
	assert.NoError(t, v.VerifyAttestation(hash, tampered))

	other := hash
	other[0] ^= 0xff
	assert.ErrorIs(t, v.VerifyAttestation(other, sig), domain.ErrInvalidAttestation)

	assert.ErrorIs(t, v.VerifyAttestation(hash, sig[:63]), domain.ErrInvalidAttestation)
	assert.ErrorIs(t, v.VerifyAttestation(hash, nil), domain.ErrInvalidAttestation)
}

func TestVerifyAttestationRejectsForeignKey(t *testing.T) {
	trusted, err := GenerateSigner()
	require.NoError(t, err)
	v, err := NewVerifier(trusted.PublicKey())
	require.NoError(t, err)

	property := func(raw [32]byte) bool {
		foreign, err := GenerateSigner()
		if err != nil {
			return false
		}
		hash := common.Hash(raw)
		sig, err := foreign.SignHash(hash)
		if err != nil {
			return false
		}
		return v.VerifyAttestation(hash, sig) == domain.ErrInvalidAttestation
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 50}))
}

func TestDefaultVerifierRejectsDevKey(t *testing.T) {
	dev, err := NewSigner("0x62bb8ebe78f681f2c6c7c30c9d2625b0cf243e6400f5a3976ad57132a6360621")
	require.NoError(t, err)
	v, err := NewVerifier(DefaultTrustedPubKey)
	require.NoError(t, err)

	hash := common.HexToHash("0x1234")
	sig, err := dev.SignHash(hash)
	require.NoError(t, err)
	assert.ErrorIs(t, v.VerifyAttestation(hash, sig), domain.ErrInvalidAttestation)
}
