// Package keyformat implements a prefix-byte key layout helper for
// key-value storage backends.
package keyformat

import (
	"encoding"
	"encoding/binary"
	"fmt"
)

// KeyFormat is a key formatting helper to be used together with key-value
// backends for constructing keys.
type KeyFormat struct {
	// prefix is the one-byte key prefix that denotes the type of the key.
	prefix byte
	// layout is a list of bytes sizes of all elements in the key format.
	layout []int
	// size is the total size of the fixed-size elements in bytes.
	size int
}

// New constructs a new key format.
//
// Supported layout elements are uint64, uint32, fixed-size
// encoding.BinaryMarshaler implementations and at most one variable-sized
// []byte element.
func New(prefix byte, layout ...interface{}) *KeyFormat {
	kf := &KeyFormat{
		prefix: prefix,
		layout: make([]int, len(layout)),
	}

	hasVarSize := false
	for i, item := range layout {
		size := elementSize(item)
		if size == -1 {
			if hasVarSize {
				panic("key format: there can be only one variable-sized element")
			}
			hasVarSize = true
		} else {
			kf.size += size
		}

		kf.layout[i] = size
	}

	return kf
}

// Prefix returns the key prefix byte.
func (k *KeyFormat) Prefix() byte {
	return k.prefix
}

// Size returns the minimum size in bytes of the resulting key.
func (k *KeyFormat) Size() int {
	return 1 + k.size
}

// Encode encodes values into a key.
//
// You can pass either the same amount of values as specified in the layout
// or less. In case less values are specified this will generate a shorter
// key containing only the specified values, usable as an iteration prefix.
func (k *KeyFormat) Encode(values ...interface{}) []byte {
	if len(values) > len(k.layout) {
		panic("key format: number of values greater than layout")
	}

	result := make([]byte, 1, k.Size())
	result[0] = k.prefix
	for i, v := range values {
		var elem []byte
		switch t := v.(type) {
		case uint64:
			// Big endian so that keys sort correctly in range queries.
			elem = make([]byte, 8)
			binary.BigEndian.PutUint64(elem, t)
		case *uint64:
			elem = make([]byte, 8)
			binary.BigEndian.PutUint64(elem, *t)
		case uint32:
			elem = make([]byte, 4)
			binary.BigEndian.PutUint32(elem, t)
		case *uint32:
			elem = make([]byte, 4)
			binary.BigEndian.PutUint32(elem, *t)
		case encoding.BinaryMarshaler:
			data, err := t.MarshalBinary()
			if err != nil {
				panic(fmt.Sprintf("key format: failed to marshal: %s", err))
			}
			elem = data
		case []byte:
			elem = t
		default:
			panic(fmt.Sprintf("key format: unsupported type: %T", t))
		}

		if k.layout[i] != -1 && len(elem) != k.layout[i] {
			panic(fmt.Sprintf("key format: element %d has size %d, expected %d", i, len(elem), k.layout[i]))
		}
		result = append(result, elem...)
	}

	return result
}

// Decode decodes a key into its individual values.
//
// Returns false and doesn't modify the passed values if the key prefix
// doesn't match or the key is too short for the layout.
func (k *KeyFormat) Decode(data []byte, values ...interface{}) bool {
	if len(data) == 0 || data[0] != k.prefix {
		return false
	}
	if len(values) > len(k.layout) {
		panic("key format: number of values greater than layout")
	}
	if len(data) < k.Size() {
		return false
	}

	offset := 1
	for i, v := range values {
		elemLen := k.layout[i]
		if elemLen == -1 {
			elemLen = len(data) - k.Size()
		}
		buf := data[offset : offset+elemLen]
		offset += elemLen

		switch t := v.(type) {
		case *uint64:
			*t = binary.BigEndian.Uint64(buf)
		case *uint32:
			*t = binary.BigEndian.Uint32(buf)
		case encoding.BinaryUnmarshaler:
			if err := t.UnmarshalBinary(buf); err != nil {
				panic(fmt.Sprintf("key format: failed to unmarshal: %s", err))
			}
		case *[]byte:
			*t = make([]byte, elemLen)
			copy(*t, buf)
		default:
			panic(fmt.Sprintf("key format: unsupported type: %T", t))
		}
	}

	return true
}

func elementSize(l interface{}) int {
	switch t := l.(type) {
	case uint64, *uint64:
		return 8
	case uint32, *uint32:
		return 4
	case encoding.BinaryMarshaler:
		// Make sure that the type supports both marshalling and unmarshalling.
		_ = l.(encoding.BinaryUnmarshaler)

		data, _ := t.MarshalBinary()
		return len(data)
	case []byte:
		return -1
	default:
		panic(fmt.Sprintf("key format: unsupported type: %T", l))
	}
}
