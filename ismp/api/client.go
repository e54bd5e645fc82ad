package api

import (
	"context"
	"sort"
	"time"
)

// VerifiedCommitments are the state commitments finalized by a consensus
// proof, per state machine.
type VerifiedCommitments map[StateMachineID][]StateCommitmentHeight

// StateMachines returns the state machines in a deterministic order.
func (vc VerifiedCommitments) StateMachines() []StateMachineID {
	ids := make([]StateMachineID, 0, len(vc))
	for id := range vc {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Less(ids[j])
	})
	return ids
}

// ConsensusClient verifies the consensus proofs of a counterparty chain.
// There is one implementation per consensus algorithm.
//
// Implementations must not mutate any external state, the caller persists
// the returned trusted state.
type ConsensusClient interface {
	// VerifyConsensus verifies a consensus proof against the trusted state
	// and returns the new trusted state and the finalized commitments.
	VerifyConsensus(ctx context.Context, trustedState, proof []byte) ([]byte, VerifiedCommitments, error)

	// VerifyFraudProof succeeds iff both proofs verify against the trusted
	// state and assert conflicting finalized histories.
	VerifyFraudProof(ctx context.Context, trustedState, proof1, proof2 []byte) error

	// UnbondingPeriod is the maximum allowed staleness of the client.
	UnbondingPeriod() time.Duration

	// StateMachine returns the client for the given state machine, or
	// ErrUnknownStateMachine.
	StateMachine(id StateMachine) (StateMachineClient, error)
}

// RequestResponse is the set of items whose membership is proven. Exactly
// one of the fields is set.
type RequestResponse struct {
	Requests  []*Request
	Responses []*Response
}

// StateMachineClient verifies state proofs of a counterparty state machine.
// There is one implementation per proof scheme.
type StateMachineClient interface {
	// VerifyMembership proves that every item's commitment is present under
	// the root. Requests and responses live under separate keys.
	VerifyMembership(ctx context.Context, items RequestResponse, root *StateCommitment, proof *Proof) error

	// StateTrieKey maps requests to the storage keys of their commitments
	// on the destination state machine.
	StateTrieKey(requests []*Request) [][]byte

	// VerifyStateProof verifies the values of the keys under the state root.
	// Values are returned in key order, absent keys have a nil value.
	VerifyStateProof(ctx context.Context, keys [][]byte, root *StateCommitment, proof *Proof) ([]StorageValue, error)
}
