package api

import (
	"bytes"
	"encoding"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/oasisprotocol/ismp/common/crypto/hash"
)

// ConsensusClientIDSize is the size of a consensus client identifier in bytes.
const ConsensusClientIDSize = 4

var (
	_ encoding.TextMarshaler   = ConsensusClientID{}
	_ encoding.TextUnmarshaler = (*ConsensusClientID)(nil)
)

// StateMachine is the canonical identifier of a state machine, e.g. "EVM-1"
// or "POLKADOT-2000".
type StateMachine string

// String returns the canonical string form of the state machine identifier.
func (s StateMachine) String() string {
	return string(s)
}

// ConsensusClientID is the static identifier of a consensus client instance
// and its trusted state.
type ConsensusClientID [ConsensusClientIDSize]byte

// NewConsensusClientID creates an identifier from its 4 character text form.
func NewConsensusClientID(s string) (id ConsensusClientID, err error) {
	err = id.UnmarshalText([]byte(s))
	return
}

// MustConsensusClientID is NewConsensusClientID that panics on failure.
func MustConsensusClientID(s string) ConsensusClientID {
	id, err := NewConsensusClientID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalText encodes the identifier as 4 printable characters if
// possible, otherwise as 0x-prefixed hex.
func (id ConsensusClientID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes either the 4 character or the 0x-prefixed hex form.
func (id *ConsensusClientID) UnmarshalText(text []byte) error {
	s := string(text)
	if strings.HasPrefix(s, "0x") {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return fmt.Errorf("ismp: malformed consensus client id: %w", err)
		}
		text = b
	}
	if len(text) != ConsensusClientIDSize {
		return fmt.Errorf("ismp: malformed consensus client id: '%s'", s)
	}
	copy(id[:], text)
	return nil
}

// String returns a string representation of the identifier.
func (id ConsensusClientID) String() string {
	for _, c := range id {
		if c < 0x20 || c > 0x7e {
			return "0x" + hex.EncodeToString(id[:])
		}
	}
	return string(id[:])
}

// StateMachineID identifies a state machine governed by a consensus client.
type StateMachineID struct {
	StateID           StateMachine      `json:"state_id"`
	ConsensusClientID ConsensusClientID `json:"consensus_client_id"`
}

// String returns a string representation of the state machine identifier.
func (id StateMachineID) String() string {
	return fmt.Sprintf("%s/%s", id.ConsensusClientID, id.StateID)
}

// Less orders state machine identifiers by consensus client and state id.
func (id StateMachineID) Less(other StateMachineID) bool {
	if c := bytes.Compare(id.ConsensusClientID[:], other.ConsensusClientID[:]); c != 0 {
		return c < 0
	}
	return id.StateID < other.StateID
}

// StateMachineHeight is the addressing key for a state commitment.
type StateMachineHeight struct {
	ID     StateMachineID `json:"id"`
	Height uint64         `json:"height"`
}

// String returns a string representation of the state machine height.
func (h StateMachineHeight) String() string {
	return fmt.Sprintf("%s@%d", h.ID, h.Height)
}

// StateCommitment is the canonical snapshot of a counterparty height.
type StateCommitment struct {
	// Timestamp is the state machine timestamp at this height in seconds
	// since the UNIX epoch.
	Timestamp uint64 `json:"timestamp"`
	// OverlayRoot is an optional root of a cheaper overlay trie holding
	// request and response commitments.
	OverlayRoot *hash.Hash `json:"overlay_root,omitempty"`
	// StateRoot is the root of the full state trie.
	StateRoot hash.Hash `json:"state_root"`
}

// MembershipRoot returns the root that request and response commitments
// are proven against.
func (c *StateCommitment) MembershipRoot() hash.Hash {
	if c.OverlayRoot != nil {
		return *c.OverlayRoot
	}
	return c.StateRoot
}

// StateCommitmentHeight is a state commitment together with its height.
type StateCommitmentHeight struct {
	Commitment StateCommitment `json:"commitment"`
	Height     uint64          `json:"height"`
}

// StateMachineCommitment is an initial commitment of a state machine
// supplied when creating a consensus client.
type StateMachineCommitment struct {
	ID         StateMachineID        `json:"id"`
	Commitment StateCommitmentHeight `json:"commitment"`
}

// Proof is a state machine proof at a given height. The payload is opaque
// and interpreted by the state machine client.
type Proof struct {
	Height StateMachineHeight `json:"height"`
	Proof  []byte             `json:"proof"`
}

// StorageValue is a key and its value recovered from a state proof. A nil
// value means the key is provably absent.
type StorageValue struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// IsAbsent returns true iff the key was proven absent.
func (v *StorageValue) IsAbsent() bool {
	return v.Value == nil
}
