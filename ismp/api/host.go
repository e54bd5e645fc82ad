package api

import (
	"context"
	"time"

	"github.com/oasisprotocol/ismp/common/crypto/hash"
)

// Host is the facade through which handlers access storage, the clock and
// the registered consensus clients of the local state machine.
//
// Handlers assume that all mutations performed while processing a single
// message are committed atomically.
type Host interface {
	// HostStateMachine returns the identifier of the local state machine.
	HostStateMachine() StateMachine

	// Timestamp returns the current local time.
	Timestamp(ctx context.Context) time.Time

	// ConsensusState returns the trusted state of a consensus client, or
	// ErrConsensusStateNotFound.
	ConsensusState(ctx context.Context, id ConsensusClientID) ([]byte, error)
	// StoreConsensusState stores the trusted state of a consensus client.
	StoreConsensusState(ctx context.Context, id ConsensusClientID, state []byte) error

	// ConsensusUpdateTime returns the time of the last consensus update.
	ConsensusUpdateTime(ctx context.Context, id ConsensusClientID) (time.Time, error)
	// StoreConsensusUpdateTime stores the time of the last consensus update.
	StoreConsensusUpdateTime(ctx context.Context, id ConsensusClientID, t time.Time) error

	// ChallengePeriod returns the challenge period of a consensus client.
	ChallengePeriod(ctx context.Context, id ConsensusClientID) (time.Duration, error)
	// StoreChallengePeriod stores the challenge period of a consensus client.
	StoreChallengePeriod(ctx context.Context, id ConsensusClientID, period time.Duration) error

	// IsConsensusClientFrozen returns true iff the consensus client is frozen.
	IsConsensusClientFrozen(ctx context.Context, id ConsensusClientID) (bool, error)
	// FreezeConsensusClient freezes the consensus client.
	FreezeConsensusClient(ctx context.Context, id ConsensusClientID) error

	// IsStateMachineFrozen returns true iff the state machine is frozen at
	// the given height.
	IsStateMachineFrozen(ctx context.Context, height StateMachineHeight) (bool, error)
	// FreezeStateMachine freezes the state machine at and above the height.
	FreezeStateMachine(ctx context.Context, height StateMachineHeight) error

	// StateMachineCommitment returns the state commitment at a height, or
	// ErrStateCommitmentNotFound.
	StateMachineCommitment(ctx context.Context, height StateMachineHeight) (*StateCommitment, error)
	// StoreStateMachineCommitment stores the state commitment at a height.
	StoreStateMachineCommitment(ctx context.Context, height StateMachineHeight, commitment *StateCommitment) error

	// LatestCommitmentHeight returns the latest stored height of a state
	// machine, zero if there is none.
	LatestCommitmentHeight(ctx context.Context, id StateMachineID) (uint64, error)
	// StoreLatestCommitmentHeight stores the latest height of a state machine.
	StoreLatestCommitmentHeight(ctx context.Context, height StateMachineHeight) error

	// RequestCommitment returns the commitment of an outgoing request, or
	// ErrCommitmentNotFound.
	RequestCommitment(ctx context.Context, id RequestID) (hash.Hash, error)
	// StoreRequestCommitment stores the commitment of an outgoing request.
	StoreRequestCommitment(ctx context.Context, id RequestID, commitment hash.Hash) error
	// DeleteRequestCommitment deletes the commitment of an outgoing request.
	DeleteRequestCommitment(ctx context.Context, id RequestID) error

	// ResponseCommitment returns true iff an outgoing response with the
	// commitment was dispatched.
	ResponseCommitment(ctx context.Context, commitment hash.Hash) (bool, error)
	// StoreResponseCommitment stores the commitment of an outgoing response.
	StoreResponseCommitment(ctx context.Context, commitment hash.Hash) error

	// RequestReceipt returns true iff the incoming request was processed.
	RequestReceipt(ctx context.Context, commitment hash.Hash) (bool, error)
	// StoreRequestReceipt marks the incoming request as processed.
	StoreRequestReceipt(ctx context.Context, commitment hash.Hash) error

	// ResponseReceipt returns true iff the incoming response was processed.
	ResponseReceipt(ctx context.Context, commitment hash.Hash) (bool, error)
	// StoreResponseReceipt marks the incoming response as processed.
	StoreResponseReceipt(ctx context.Context, commitment hash.Hash) error

	// NextNonce allocates the nonce of the next outgoing request.
	NextNonce(ctx context.Context) (uint64, error)

	// ConsensusClient returns the registered implementation of a consensus
	// client, or ErrUnknownConsensusClient.
	ConsensusClient(id ConsensusClientID) (ConsensusClient, error)

	// Router returns the router verified items are dispatched to.
	Router() Router
}

// Router dispatches verified items to the destination modules.
type Router interface {
	// HandleRequest dispatches an incoming request.
	HandleRequest(ctx context.Context, req *Request) error
	// HandleResponse dispatches an incoming response.
	HandleResponse(ctx context.Context, res *Response) error
	// HandleTimeout dispatches a timed out outgoing request.
	HandleTimeout(ctx context.Context, req *Request) error
}

// Module is an application consuming requests, responses and timeouts.
type Module interface {
	// OnAccept is called for an incoming request addressed to the module.
	OnAccept(ctx context.Context, req *Request) error
	// OnResponse is called for a response to a request sent by the module.
	OnResponse(ctx context.Context, res *Response) error
	// OnTimeout is called for a timed out request sent by the module.
	OnTimeout(ctx context.Context, req *Request) error
}
