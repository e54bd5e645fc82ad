package signature

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"sync"
)

// ContextMaxSize is the maximum allowed length of a signature context in bytes.
const ContextMaxSize = 255

var (
	errMalformedContext    = errors.New("signature: malformed context")
	errUnregisteredContext = errors.New("signature: unregistered context")

	registeredContexts sync.Map
)

// Context is a domain separation context.
type Context string

// NewContext creates and registers a new context. This routine will panic if
// the context is malformed or is already registered.
func NewContext(rawContext string) Context {
	l := len(rawContext)
	if l == 0 {
		panic(errMalformedContext)
	}
	if l > ContextMaxSize {
		panic(fmt.Errorf("%w: too long: %d", errMalformedContext, l))
	}

	ctx := Context(rawContext)
	if _, isRegistered := registeredContexts.LoadOrStore(ctx, true); isRegistered {
		panic("signature: context already registered: '" + rawContext + "'")
	}

	return ctx
}

// Signer is an opaque interface for private keys that is capable of producing
// signatures, in the spirit of `crypto.Signer`.
type Signer interface {
	// Public returns the PublicKey corresponding to the signer.
	Public() PublicKey

	// ContextSign generates a signature with the private key over the context and
	// message.
	ContextSign(context Context, message []byte) ([]byte, error)

	// String returns the string representation of a Signer, which MUST not
	// include any sensitive information.
	String() string

	// Reset tears down the Signer and obliterates any sensitive state if any.
	Reset()
}

// PrepareSignerMessage prepares a context and message for signing by a Signer.
func PrepareSignerMessage(context Context, message []byte) ([]byte, error) {
	if _, isRegistered := registeredContexts.Load(context); !isRegistered {
		return nil, errUnregisteredContext
	}

	h := sha512.New512_256()
	_, _ = h.Write([]byte{byte(len(context))})
	_, _ = h.Write([]byte(context))
	_, _ = h.Write(message)
	sum := h.Sum(nil)

	return sum[:], nil
}
