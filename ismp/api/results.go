package api

import (
	"github.com/hashicorp/go-multierror"

	"github.com/oasisprotocol/ismp/common/crypto/hash"
)

// MessageResult is the outcome of a successfully processed message.
// Exactly one of the fields is set.
type MessageResult struct {
	ConsensusClientCreated *ConsensusClientCreatedResult `json:"consensus_client_created,omitempty"`
	ConsensusUpdated       *ConsensusUpdatedResult       `json:"consensus_updated,omitempty"`
	FrozenConsensusClient  *FrozenConsensusClientResult  `json:"frozen_consensus_client,omitempty"`
	Request                DispatchResults               `json:"request,omitempty"`
	Response               DispatchResults               `json:"response,omitempty"`
	Timeout                DispatchResults               `json:"timeout,omitempty"`
}

// Dispatched returns the per-item results, if any.
func (r *MessageResult) Dispatched() DispatchResults {
	switch {
	case r.Request != nil:
		return r.Request
	case r.Response != nil:
		return r.Response
	default:
		return r.Timeout
	}
}

// ConsensusClientCreatedResult is the result of creating a consensus client.
type ConsensusClientCreatedResult struct {
	ConsensusClientID ConsensusClientID `json:"consensus_client_id"`
}

// FrozenConsensusClientResult is the result of a successful fraud proof.
type FrozenConsensusClientResult struct {
	ConsensusClientID ConsensusClientID `json:"consensus_client_id"`
}

// StateMachineUpdate records the previous and new latest height of a state
// machine advanced by a consensus update.
type StateMachineUpdate struct {
	ID         StateMachineID `json:"id"`
	PrevHeight uint64         `json:"prev_height"`
	NewHeight  uint64         `json:"new_height"`
}

// ConsensusUpdatedResult is the result of a consensus update.
type ConsensusUpdatedResult struct {
	ConsensusClientID ConsensusClientID    `json:"consensus_client_id"`
	StateMachines     []StateMachineUpdate `json:"state_machines"`
}

// DispatchResult is the outcome of routing a single batch item.
type DispatchResult struct {
	// Commitment is the digest of the item.
	Commitment hash.Hash    `json:"commitment"`
	Source     StateMachine `json:"source"`
	Dest       StateMachine `json:"dest"`
	Nonce      uint64       `json:"nonce"`
	// Error is the router failure for this item, nil on success.
	Error error `json:"-"`
}

// DispatchResults are the ordered per-item outcomes of a batch.
type DispatchResults []*DispatchResult

// Err aggregates the item failures, nil if all items succeeded.
func (r DispatchResults) Err() error {
	var result *multierror.Error
	for _, d := range r {
		if d.Error != nil {
			result = multierror.Append(result, d.Error)
		}
	}
	return result.ErrorOrNil()
}

// Succeeded returns the number of items that were routed successfully.
func (r DispatchResults) Succeeded() int {
	var n int
	for _, d := range r {
		if d.Error == nil {
			n++
		}
	}
	return n
}
