// Package hash implements the keccak-256 digest used for commitments.
package hash

import (
	"bytes"
	"crypto/subtle"
	"encoding"
	"encoding/hex"
	"errors"
	gohash "hash"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/oasisprotocol/ismp/common/cbor"
)

// Size is the size of the digest in bytes.
const Size = 32

var (
	// ErrMalformed is the error returned when a hash is malformed.
	ErrMalformed = errors.New("hash: malformed hash")

	_ encoding.BinaryMarshaler   = (*Hash)(nil)
	_ encoding.BinaryUnmarshaler = (*Hash)(nil)
	_ encoding.TextMarshaler     = Hash{}
	_ encoding.TextUnmarshaler   = (*Hash)(nil)
)

// Hash is a keccak-256 digest over arbitrary binary data.
type Hash [Size]byte

// MarshalBinary encodes a hash into binary form.
func (h *Hash) MarshalBinary() (data []byte, err error) {
	data = append([]byte{}, h[:]...)
	return
}

// UnmarshalBinary decodes a binary marshaled hash.
func (h *Hash) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return ErrMalformed
	}

	copy(h[:], data)

	return nil
}

// MarshalText encodes a Hash into 0x-prefixed hex form.
func (h Hash) MarshalText() (data []byte, err error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText decodes a text marshaled Hash, with or without the 0x prefix.
func (h *Hash) UnmarshalText(text []byte) error {
	return h.UnmarshalHex(string(text))
}

// UnmarshalHex deserializes a hexadecimal text string into the given type.
func (h *Hash) UnmarshalHex(text string) error {
	b, err := hex.DecodeString(strings.TrimPrefix(text, "0x"))
	if err != nil {
		return err
	}

	return h.UnmarshalBinary(b)
}

// From sets the hash to that of an arbitrary CBOR serializeable interface.
func (h *Hash) From(v interface{}) {
	h.FromBytes(cbor.Marshal(v))
}

// FromBytes sets the hash to that of the concatenation of the byte strings.
func (h *Hash) FromBytes(data ...[]byte) {
	hasher := sha3.NewLegacyKeccak256()
	for _, d := range data {
		_, _ = hasher.Write(d)
	}
	_ = h.UnmarshalBinary(hasher.Sum(nil))
}

// Equal compares vs another hash for equality.
func (h *Hash) Equal(cmp *Hash) bool {
	if cmp == nil {
		return false
	}
	return subtle.ConstantTimeCompare(h[:], cmp[:]) == 1
}

// IsZero returns true iff the hash is the all-zero digest.
func (h *Hash) IsZero() bool {
	return bytes.Equal(h[:], zeroHash[:])
}

// String returns the string representation of a hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Hex returns the 0x-prefixed hex representation of a hash.
func (h Hash) Hex() string {
	return "0x" + h.String()
}

// NewFrom creates a new hash by hashing the CBOR representation of the given type.
func NewFrom(v interface{}) (h Hash) {
	h.From(v)
	return
}

// NewFromBytes creates a new hash by hashing the provided byte string(s).
func NewFromBytes(data ...[]byte) (h Hash) {
	h.FromBytes(data...)
	return
}

var zeroHash Hash

// Builder is a hash builder that can be used to compute hashes iteratively.
type Builder struct {
	hasher gohash.Hash
}

// Write adds more data to the running hash.
// It never returns an error.
func (b *Builder) Write(p []byte) (int, error) {
	return b.hasher.Write(p)
}

// Build returns the current hash.
// It does not change the underlying hash state.
func (b *Builder) Build() (h Hash) {
	_ = h.UnmarshalBinary(b.hasher.Sum(nil))
	return
}

// NewBuilder creates a new hash builder.
func NewBuilder() *Builder {
	return &Builder{hasher: sha3.NewLegacyKeccak256()}
}
