package api

import (
	"fmt"
	"time"

	"github.com/oasisprotocol/ismp/common/errors"
)

// ModuleName is a unique module name for the ismp module.
const ModuleName = "ismp"

var (
	// ErrFrozenConsensusClient is the error returned when the consensus
	// client governing a proof height is frozen.
	ErrFrozenConsensusClient = errors.New(ModuleName, 1, "ismp: consensus client is frozen")

	// ErrFrozenStateMachine is the error returned when the state machine is
	// frozen at the proof height.
	ErrFrozenStateMachine = errors.New(ModuleName, 2, "ismp: state machine is frozen")

	// ErrChallengePeriodNotElapsed is the error returned when a state
	// commitment is used before its challenge period elapsed.
	ErrChallengePeriodNotElapsed = errors.NewRetryable(ModuleName, 3, "ismp: challenge period has not elapsed")

	// ErrRequestCommitmentNotFound is the error returned when a referenced
	// request has no matching stored commitment.
	ErrRequestCommitmentNotFound = errors.New(ModuleName, 4, "ismp: request commitment not found")

	// ErrRequestTimeoutNotElapsed is the error returned when a timeout is
	// submitted before the request timed out.
	ErrRequestTimeoutNotElapsed = errors.NewRetryable(ModuleName, 5, "ismp: request timeout has not elapsed")

	// ErrUnbondingPeriodElapsed is the error returned when a consensus
	// client has not been updated within its unbonding period.
	ErrUnbondingPeriodElapsed = errors.New(ModuleName, 6, "ismp: unbonding period elapsed")

	// ErrMembershipVerificationFailed is the error returned when a
	// membership proof does not verify.
	ErrMembershipVerificationFailed = errors.New(ModuleName, 7, "ismp: membership proof verification failed")

	// ErrRequestTimeoutVerificationFailed is the error returned when a
	// non-membership proof for a timeout does not verify or a request
	// commitment key resolves present.
	ErrRequestTimeoutVerificationFailed = errors.New(ModuleName, 8, "ismp: request timeout verification failed")

	// ErrStateProofVerificationFailed is the error returned when a state
	// proof does not verify.
	ErrStateProofVerificationFailed = errors.New(ModuleName, 9, "ismp: state proof verification failed")

	// ErrFraudProofVerificationFailed is the error returned when a fraud
	// proof does not prove misbehaviour.
	ErrFraudProofVerificationFailed = errors.New(ModuleName, 10, "ismp: fraud proof verification failed")

	// ErrConsensusProofVerificationFailed is the error returned when a
	// consensus proof does not verify against the trusted state.
	ErrConsensusProofVerificationFailed = errors.New(ModuleName, 11, "ismp: consensus proof verification failed")

	// ErrImplementationSpecific is the catch-all error for scheme specific
	// failures. It is always wrapped with context.
	ErrImplementationSpecific = errors.New(ModuleName, 12, "ismp: implementation specific error")

	// ErrUnknownConsensusClient is the error returned when no consensus
	// client implementation is registered for an identifier.
	ErrUnknownConsensusClient = errors.New(ModuleName, 13, "ismp: unknown consensus client")

	// ErrUnknownStateMachine is the error returned when a consensus client
	// does not support a state machine.
	ErrUnknownStateMachine = errors.New(ModuleName, 14, "ismp: unknown state machine")

	// ErrInsufficientProofHeight is the error returned when a get response
	// proof is older than the requested height.
	ErrInsufficientProofHeight = errors.New(ModuleName, 15, "ismp: insufficient proof height")

	// ErrInvalidMessage is the error returned when a message is malformed.
	ErrInvalidMessage = errors.New(ModuleName, 16, "ismp: invalid message")

	// ErrModuleNotFound is the error returned when the router can not
	// resolve a destination module.
	ErrModuleNotFound = errors.New(ModuleName, 17, "ismp: module not found")

	// ErrConsensusClientExists is the error returned when creating a
	// consensus client that already exists.
	ErrConsensusClientExists = errors.New(ModuleName, 18, "ismp: consensus client already exists")

	// ErrRequestTimedOut is the per-item error reported for an incoming
	// request that already timed out.
	ErrRequestTimedOut = errors.New(ModuleName, 19, "ismp: request timed out")

	// ErrConsensusStateNotFound is the error returned when no trusted
	// consensus state is stored for a consensus client.
	ErrConsensusStateNotFound = errors.New(ModuleName, 20, "ismp: consensus state not found")

	// ErrStateCommitmentNotFound is the error returned when no state
	// commitment is stored for a state machine height.
	ErrStateCommitmentNotFound = errors.New(ModuleName, 21, "ismp: state commitment not found")

	// ErrInvalidProofMetadata is the error returned when a batch item does
	// not originate from the proof state machine or is not addressed to
	// this host.
	ErrInvalidProofMetadata = errors.New(ModuleName, 22, "ismp: request does not match proof metadata")

	// ErrCommitmentNotFound is the error returned by hosts when no
	// commitment is stored under a key.
	ErrCommitmentNotFound = errors.New(ModuleName, 23, "ismp: commitment not found")
)

// IsNotFound returns true iff the error is one of the host lookup misses.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCommitmentNotFound) ||
		errors.Is(err, ErrConsensusStateNotFound) ||
		errors.Is(err, ErrStateCommitmentNotFound)
}

// FrozenConsensusClientError is returned when a consensus client is frozen.
type FrozenConsensusClientError struct {
	ID ConsensusClientID
}

func (e *FrozenConsensusClientError) Error() string {
	return fmt.Sprintf("%s: %s", ErrFrozenConsensusClient, e.ID)
}

func (e *FrozenConsensusClientError) Unwrap() error {
	return ErrFrozenConsensusClient
}

// FrozenStateMachineError is returned when a state machine is frozen.
type FrozenStateMachineError struct {
	Height StateMachineHeight
}

func (e *FrozenStateMachineError) Error() string {
	return fmt.Sprintf("%s: %s", ErrFrozenStateMachine, e.Height)
}

func (e *FrozenStateMachineError) Unwrap() error {
	return ErrFrozenStateMachine
}

// ChallengePeriodNotElapsedError is returned when the challenge period of
// a consensus client has not elapsed since its last update.
type ChallengePeriodNotElapsedError struct {
	ID              ConsensusClientID
	CurrentTime     time.Time
	UpdateTime      time.Time
	ChallengePeriod time.Duration
}

func (e *ChallengePeriodNotElapsedError) Error() string {
	return fmt.Sprintf("%s: client %s updated at %d, now %d, challenge period %s",
		ErrChallengePeriodNotElapsed,
		e.ID,
		e.UpdateTime.Unix(),
		e.CurrentTime.Unix(),
		e.ChallengePeriod,
	)
}

func (e *ChallengePeriodNotElapsedError) Unwrap() error {
	return ErrChallengePeriodNotElapsed
}

// RequestCommitmentNotFoundError is returned when a referenced request is
// unknown or its stored commitment does not match.
type RequestCommitmentNotFoundError struct {
	Nonce  uint64
	Source StateMachine
	Dest   StateMachine
}

func (e *RequestCommitmentNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s->%s#%d", ErrRequestCommitmentNotFound, e.Source, e.Dest, e.Nonce)
}

func (e *RequestCommitmentNotFoundError) Unwrap() error {
	return ErrRequestCommitmentNotFound
}

// RequestTimeoutNotElapsedError is returned when a request is timed out
// prematurely.
type RequestTimeoutNotElapsedError struct {
	Nonce            uint64
	Source           StateMachine
	Dest             StateMachine
	TimeoutTimestamp uint64
	Now              uint64
}

func (e *RequestTimeoutNotElapsedError) Error() string {
	return fmt.Sprintf("%s: %s->%s#%d times out at %d, now %d",
		ErrRequestTimeoutNotElapsed,
		e.Source,
		e.Dest,
		e.Nonce,
		e.TimeoutTimestamp,
		e.Now,
	)
}

func (e *RequestTimeoutNotElapsedError) Unwrap() error {
	return ErrRequestTimeoutNotElapsed
}

// UnbondingPeriodElapsedError is returned when a consensus client expired.
type UnbondingPeriodElapsedError struct {
	ID ConsensusClientID
}

func (e *UnbondingPeriodElapsedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnbondingPeriodElapsed, e.ID)
}

func (e *UnbondingPeriodElapsedError) Unwrap() error {
	return ErrUnbondingPeriodElapsed
}

// ImplementationSpecific wraps a scheme specific failure reason.
func ImplementationSpecific(format string, a ...interface{}) error {
	return errors.WithContext(ErrImplementationSpecific, fmt.Sprintf(format, a...))
}
