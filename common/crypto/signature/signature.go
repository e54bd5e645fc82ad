// Package signature provides wrapper types around public key signatures.
package signature

import (
	"bytes"
	"encoding"
	"encoding/hex"
	"errors"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/oasisprotocol/ismp/common/cbor"
)

const (
	// PublicKeySize is the size of a public key in bytes.
	PublicKeySize = ed25519.PublicKeySize

	// SignatureSize is the size of a signature in bytes.
	SignatureSize = ed25519.SignatureSize
)

var (
	// ErrMalformedPublicKey is the error returned when a public key is
	// malformed.
	ErrMalformedPublicKey = errors.New("signature: malformed public key")

	// ErrMalformedSignature is the error returned when a signature is
	// malformed.
	ErrMalformedSignature = errors.New("signature: malformed signature")

	// ErrPublicKeyMismatch is the error returned when a signature was
	// not produced by the expected public key.
	ErrPublicKeyMismatch = errors.New("signature: public key mismatch")

	// ErrVerifyFailed is the error return when a signature verification
	// fails when opening a signed blob.
	ErrVerifyFailed = errors.New("signed: signature verification failed")

	_ encoding.BinaryMarshaler   = PublicKey{}
	_ encoding.BinaryUnmarshaler = (*PublicKey)(nil)
	_ encoding.TextMarshaler     = PublicKey{}
	_ encoding.TextUnmarshaler   = (*PublicKey)(nil)
	_ encoding.BinaryMarshaler   = RawSignature{}
	_ encoding.BinaryUnmarshaler = (*RawSignature)(nil)
)

// PublicKey is a public key used for signing.
type PublicKey [PublicKeySize]byte

// Verify returns true iff the signature is valid for the public key
// over the context and message.
func (k PublicKey) Verify(context Context, message, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}

	data, err := PrepareSignerMessage(context, message)
	if err != nil {
		return false
	}

	return ed25519.Verify(k[:], data, sig)
}

// MarshalBinary encodes a public key into binary form.
func (k PublicKey) MarshalBinary() (data []byte, err error) {
	data = append([]byte{}, k[:]...)
	return
}

// UnmarshalBinary decodes a binary marshaled public key.
func (k *PublicKey) UnmarshalBinary(data []byte) error {
	if len(data) != PublicKeySize {
		return ErrMalformedPublicKey
	}

	copy(k[:], data)

	return nil
}

// MarshalText encodes a public key into hex form.
func (k PublicKey) MarshalText() (data []byte, err error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a text marshaled public key.
func (k *PublicKey) UnmarshalText(text []byte) error {
	return k.UnmarshalHex(string(text))
}

// UnmarshalHex deserializes a hexadecimal text string into the given type.
func (k *PublicKey) UnmarshalHex(text string) error {
	b, err := hex.DecodeString(text)
	if err != nil {
		return err
	}

	return k.UnmarshalBinary(b)
}

// Equal compares vs another public key for equality.
func (k PublicKey) Equal(cmp PublicKey) bool {
	return bytes.Equal(k[:], cmp[:])
}

// String returns a string representation of the public key.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// RawSignature is a raw signature.
type RawSignature [SignatureSize]byte

// MarshalBinary encodes a signature into binary form.
func (r RawSignature) MarshalBinary() (data []byte, err error) {
	data = append([]byte{}, r[:]...)
	return
}

// UnmarshalBinary decodes a binary marshaled signature.
func (r *RawSignature) UnmarshalBinary(data []byte) error {
	if len(data) != SignatureSize {
		return ErrMalformedSignature
	}

	copy(r[:], data)

	return nil
}

// Signature is a signature, bundled with the signing public key.
type Signature struct {
	// PublicKey is the public key that produced the signature.
	PublicKey PublicKey `json:"public_key"`

	// Signature is the actual raw signature.
	Signature RawSignature `json:"signature"`
}

// Sign generates a signature with the private key over the context and
// message.
func Sign(signer Signer, context Context, message []byte) (*Signature, error) {
	signature, err := signer.ContextSign(context, message)
	if err != nil {
		return nil, err
	}

	var rawSignature RawSignature
	if err = rawSignature.UnmarshalBinary(signature); err != nil {
		return nil, err
	}

	return &Signature{PublicKey: signer.Public(), Signature: rawSignature}, nil
}

// Verify returns true iff the signature is valid over the given
// context and message.
func (s *Signature) Verify(context Context, message []byte) bool {
	return s.PublicKey.Verify(context, message, s.Signature[:])
}

// SanityCheck checks if the signature appears to be well formed.
func (s *Signature) SanityCheck(expectedPubKey PublicKey) error {
	if !s.PublicKey.Equal(expectedPubKey) {
		return ErrPublicKeyMismatch
	}
	return nil
}

// Signed is a signed blob.
type Signed struct {
	// Blob is the signed blob.
	Blob []byte `json:"untrusted_raw_value"`

	// Signature is the signature over blob.
	Signature Signature `json:"signature"`
}

// SignSigned generates a Signed with the Signer over the context and
// CBOR-serialized message.
func SignSigned(signer Signer, context Context, src interface{}) (*Signed, error) {
	data := cbor.Marshal(src)
	signature, err := Sign(signer, context, data)
	if err != nil {
		return nil, err
	}

	return &Signed{Blob: data, Signature: *signature}, nil
}

// Open first verifies the blob signature and then unmarshals the blob.
func (s *Signed) Open(context Context, dst interface{}) error {
	// Verify signature first.
	if !s.Signature.Verify(context, s.Blob) {
		return ErrVerifyFailed
	}

	return cbor.Unmarshal(s.Blob, dst)
}

// MultiSigned is a blob signed by multiple public keys.
type MultiSigned struct {
	// Blob is the signed blob.
	Blob []byte `json:"untrusted_raw_value"`

	// Signatures are the signatures over the blob.
	Signatures []Signature `json:"signatures"`
}

// SignMultiSigned generates a MultiSigned with the Signers over the context
// and CBOR-serialized message.
func SignMultiSigned(signers []Signer, context Context, src interface{}) (*MultiSigned, error) {
	data := cbor.Marshal(src)
	ms := &MultiSigned{
		Blob:       data,
		Signatures: make([]Signature, 0, len(signers)),
	}
	for _, signer := range signers {
		signature, err := Sign(signer, context, data)
		if err != nil {
			return nil, err
		}
		ms.Signatures = append(ms.Signatures, *signature)
	}

	return ms, nil
}

// IsSignedBy returns true iff the MultiSigned includes a signature by the
// public key.
func (s *MultiSigned) IsSignedBy(publicKey PublicKey) bool {
	for _, v := range s.Signatures {
		if v.PublicKey.Equal(publicKey) {
			return true
		}
	}
	return false
}

// Open first verifies all of the blob signatures and then unmarshals the
// blob.
func (s *MultiSigned) Open(context Context, dst interface{}) error {
	for i := range s.Signatures {
		if !s.Signatures[i].Verify(context, s.Blob) {
			return ErrVerifyFailed
		}
	}

	return cbor.Unmarshal(s.Blob, dst)
}
