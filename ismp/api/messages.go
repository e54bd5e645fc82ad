package api

import (
	"fmt"
	"time"
)

// Message is an inbound message. Exactly one of the fields is set.
type Message struct {
	CreateConsensusClient *CreateConsensusClientMessage `json:"create_consensus_client,omitempty"`
	Consensus             *ConsensusMessage             `json:"consensus,omitempty"`
	FraudProof            *FraudProofMessage            `json:"fraud_proof,omitempty"`
	Request               *RequestMessage               `json:"request,omitempty"`
	Response              *ResponseMessage              `json:"response,omitempty"`
	Timeout               *TimeoutMessage               `json:"timeout,omitempty"`
}

// Kind returns the name of the message variant.
func (m *Message) Kind() string {
	switch {
	case m.CreateConsensusClient != nil:
		return "create_consensus_client"
	case m.Consensus != nil:
		return "consensus"
	case m.FraudProof != nil:
		return "fraud_proof"
	case m.Request != nil:
		return "request"
	case m.Response != nil:
		return "response"
	case m.Timeout != nil:
		return "timeout"
	default:
		return "invalid"
	}
}

// ValidateBasic performs stateless sanity checks on the message.
func (m *Message) ValidateBasic() error {
	var n int
	for _, set := range []bool{
		m.CreateConsensusClient != nil,
		m.Consensus != nil,
		m.FraudProof != nil,
		m.Request != nil,
		m.Response != nil,
		m.Timeout != nil,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: message must have exactly one variant, has %d", ErrInvalidMessage, n)
	}

	switch {
	case m.Request != nil:
		if len(m.Request.Requests) == 0 {
			return fmt.Errorf("%w: empty request batch", ErrInvalidMessage)
		}
	case m.Response != nil:
		return m.Response.ValidateBasic()
	case m.Timeout != nil:
		return m.Timeout.ValidateBasic()
	}
	return nil
}

// CreateConsensusClientMessage creates a consensus client from a trusted
// state. It is not proof checked.
type CreateConsensusClientMessage struct {
	ConsensusState          []byte                   `json:"consensus_state"`
	ConsensusClientID       ConsensusClientID        `json:"consensus_client_id"`
	ChallengePeriod         time.Duration            `json:"challenge_period"`
	StateMachineCommitments []StateMachineCommitment `json:"state_machine_commitments"`
}

// ConsensusMessage advances a consensus client.
type ConsensusMessage struct {
	ConsensusProof    []byte            `json:"consensus_proof"`
	ConsensusClientID ConsensusClientID `json:"consensus_client_id"`
}

// FraudProofMessage proves misbehaviour of a consensus client's
// counterparty.
type FraudProofMessage struct {
	Proof1            []byte            `json:"proof_1"`
	Proof2            []byte            `json:"proof_2"`
	ConsensusClientID ConsensusClientID `json:"consensus_client_id"`
}

// RequestMessage is a batch of incoming requests with a membership proof.
type RequestMessage struct {
	Requests []PostRequest `json:"requests"`
	Proof    Proof         `json:"proof"`
}

// ResponseMessage is either a batch of post responses with a membership
// proof, or a batch of get requests with a state proof.
type ResponseMessage struct {
	Post *PostResponseMessage `json:"post,omitempty"`
	Get  *GetResponseMessage  `json:"get,omitempty"`
}

// ValidateBasic checks that exactly one non-empty variant is set.
func (m *ResponseMessage) ValidateBasic() error {
	switch {
	case (m.Post == nil) == (m.Get == nil):
		return fmt.Errorf("%w: response message must be exactly one of post or get", ErrInvalidMessage)
	case m.Post != nil && len(m.Post.Responses) == 0:
		return fmt.Errorf("%w: empty response batch", ErrInvalidMessage)
	case m.Get != nil && len(m.Get.Requests) == 0:
		return fmt.Errorf("%w: empty get request batch", ErrInvalidMessage)
	}
	return nil
}

// PostResponseMessage is a batch of post responses.
type PostResponseMessage struct {
	Responses []PostResponse `json:"responses"`
	Proof     Proof          `json:"proof"`
}

// GetResponseMessage is a batch of get requests answered by a state proof.
type GetResponseMessage struct {
	Requests []GetRequest `json:"requests"`
	Proof    Proof        `json:"proof"`
}

// TimeoutMessage is either a batch of post requests with a non-membership
// proof, or a batch of get requests.
type TimeoutMessage struct {
	Post *PostTimeoutMessage `json:"post,omitempty"`
	Get  *GetTimeoutMessage  `json:"get,omitempty"`
}

// ValidateBasic checks that exactly one non-empty variant is set.
func (m *TimeoutMessage) ValidateBasic() error {
	switch {
	case (m.Post == nil) == (m.Get == nil):
		return fmt.Errorf("%w: timeout message must be exactly one of post or get", ErrInvalidMessage)
	case m.Post != nil && len(m.Post.Requests) == 0:
		return fmt.Errorf("%w: empty timeout batch", ErrInvalidMessage)
	case m.Get != nil && len(m.Get.Requests) == 0:
		return fmt.Errorf("%w: empty timeout batch", ErrInvalidMessage)
	}
	return nil
}

// PostTimeoutMessage is a batch of timed out post requests.
type PostTimeoutMessage struct {
	Requests     []PostRequest `json:"requests"`
	TimeoutProof Proof         `json:"timeout_proof"`
}

// GetTimeoutMessage is a batch of timed out get requests.
type GetTimeoutMessage struct {
	Requests []GetRequest `json:"requests"`
}
