// Package cbor provides helpers for encoding and decoding canonical CBOR.
//
// Using this package will produce canonical encodings which can be used
// in cryptographic contexts like signing as the same message is guaranteed
// to always have the same serialization.
package cbor

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// RawMessage is a raw encoded CBOR value.
type RawMessage = cbor.RawMessage

var (
	encOptions = func() cbor.EncOptions {
		opts := cbor.CoreDetEncOptions()
		opts.Time = cbor.TimeUnix
		opts.IndefLength = cbor.IndefLengthForbidden
		opts.TagsMd = cbor.TagsForbidden
		return opts
	}()

	decOptions = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		TagsMd:      cbor.TagsForbidden,
	}

	encMode cbor.EncMode
	decMode cbor.DecMode
)

// FixSliceForSerde will convert `nil` to `[]byte` so that the value is
// encoded as an empty byte string instead of null.
func FixSliceForSerde(b []byte) []byte {
	if b != nil {
		return b
	}
	return []byte{}
}

// Marshal serializes a given type into a CBOR byte vector.
func Marshal(src interface{}) []byte {
	b, err := encMode.Marshal(src)
	if err != nil {
		panic("common/cbor: failed to marshal: " + err.Error())
	}
	return b
}

// Unmarshal deserializes a CBOR byte vector into a given type.
func Unmarshal(data []byte, dst interface{}) error {
	if data == nil {
		return nil
	}

	return decMode.Unmarshal(data, dst)
}

// MustUnmarshal deserializes a CBOR byte vector into a given type.
// Panics if unmarshal fails.
func MustUnmarshal(data []byte, dst interface{}) {
	if err := Unmarshal(data, dst); err != nil {
		panic(err)
	}
}

// Encoder is a CBOR encoder.
type Encoder struct {
	*cbor.Encoder
}

// NewEncoder creates a new CBOR encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{encMode.NewEncoder(w)}
}

// Decoder is a CBOR decoder.
type Decoder struct {
	*cbor.Decoder
}

// NewDecoder creates a new CBOR decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{decMode.NewDecoder(r)}
}

func init() {
	var err error
	if encMode, err = encOptions.EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = decOptions.DecMode(); err != nil {
		panic(err)
	}
}
