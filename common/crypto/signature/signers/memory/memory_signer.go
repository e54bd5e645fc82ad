// Package memory provides a memory backed Signer, primarily for use in testing.
package memory

import (
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/oasisprotocol/ismp/common/crypto/signature"
)

// SeedSize is the size of an RFC 8032 seed in bytes.
const SeedSize = ed25519.SeedSize

var _ signature.Signer = (*Signer)(nil)

// Signer is a memory backed Signer.
type Signer struct {
	privateKey ed25519.PrivateKey
}

// Public returns the PublicKey corresponding to the signer.
func (s *Signer) Public() signature.PublicKey {
	var pk signature.PublicKey
	_ = pk.UnmarshalBinary(s.privateKey.Public().(ed25519.PublicKey))
	return pk
}

// ContextSign generates a signature with the private key over the context and
// message.
func (s *Signer) ContextSign(context signature.Context, message []byte) ([]byte, error) {
	data, err := signature.PrepareSignerMessage(context, message)
	if err != nil {
		return nil, err
	}

	return ed25519.Sign(s.privateKey, data), nil
}

// String returns anything but the actual private key backing the Signer.
func (s *Signer) String() string {
	return "[redacted private key]"
}

// Reset tears down the Signer and obliterates any sensitive state if any.
func (s *Signer) Reset() {
	for idx := range s.privateKey {
		s.privateKey[idx] = 0
	}
}

// NewSigner creates a new signer using entropy from `rng`.
func NewSigner(rng io.Reader) (signature.Signer, error) {
	_, privateKey, err := ed25519.GenerateKey(rng)
	if err != nil {
		return nil, err
	}

	return &Signer{privateKey: privateKey}, nil
}

// NewFromSeed creates a new signer from a RFC 8032 seed.
func NewFromSeed(seed []byte) (signature.Signer, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("signature/signer/memory: bad seed length: %d", len(seed))
	}

	return &Signer{privateKey: ed25519.NewKeyFromSeed(seed)}, nil
}

// NewTestSigner generates a new signer deterministically from
// a test key name string.
//
// This routine will panic on failure.
func NewTestSigner(name string) signature.Signer {
	seed := sha512.Sum512_256([]byte(name))
	return &Signer{privateKey: ed25519.NewKeyFromSeed(seed[:])}
}
