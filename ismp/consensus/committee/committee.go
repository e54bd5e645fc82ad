// Package committee implements a consensus client for chains finalized by a
// fixed-weight committee of ed25519 signers, where a header is final once
// signed by more than two thirds of the trusted committee.
package committee

import (
	"context"
	"fmt"
	"time"

	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/common/crypto/hash"
	"github.com/oasisprotocol/ismp/common/crypto/signature"
	"github.com/oasisprotocol/ismp/common/logging"
	"github.com/oasisprotocol/ismp/ismp/api"
)

// HeaderSignatureContext is the context used for signing headers.
var HeaderSignatureContext = signature.NewContext("ismp/committee: header")

var _ api.ConsensusClient = (*Client)(nil)

// TrustedState is the consensus state of a committee client.
type TrustedState struct {
	// Height is the height of the last verified header.
	Height uint64 `json:"height"`
	// Timestamp is the timestamp of the last verified header.
	Timestamp uint64 `json:"timestamp"`
	// Committee are the public keys of the committee trusted to sign the
	// next header.
	Committee []signature.PublicKey `json:"committee"`
}

// StateMachineHeader is a state commitment finalized by a header.
type StateMachineHeader struct {
	StateID    api.StateMachine    `json:"state_id"`
	Height     uint64              `json:"height"`
	Commitment api.StateCommitment `json:"commitment"`
}

// Header is a finalized block header of the counterparty chain.
type Header struct {
	Height    uint64 `json:"height"`
	Timestamp uint64 `json:"timestamp"`

	// StateMachines are the state commitments finalized by the header.
	StateMachines []StateMachineHeader `json:"state_machines,omitempty"`

	// NextCommittee is the committee signing subsequent headers, if it
	// changes.
	NextCommittee []signature.PublicKey `json:"next_committee,omitempty"`
}

// Config is the committee client configuration.
type Config struct {
	// UnbondingPeriod is the maximum allowed staleness of the client.
	UnbondingPeriod time.Duration
	// StateMachines are the clients of the state machines the committee
	// finalizes.
	StateMachines map[api.StateMachine]api.StateMachineClient
}

// Client is a committee consensus client.
type Client struct {
	logger *logging.Logger

	id  api.ConsensusClientID
	cfg Config
}

// VerifyConsensus implements api.ConsensusClient.
func (c *Client) VerifyConsensus(ctx context.Context, trustedState, proof []byte) ([]byte, api.VerifiedCommitments, error) {
	var trusted TrustedState
	if err := cbor.Unmarshal(trustedState, &trusted); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed trusted state: %s", api.ErrImplementationSpecific, err)
	}

	header, err := c.verifyHeader(&trusted, proof)
	if err != nil {
		return nil, nil, err
	}
	if header.Height <= trusted.Height {
		return nil, nil, fmt.Errorf("%w: header height %d is not above trusted height %d",
			api.ErrConsensusProofVerificationFailed,
			header.Height,
			trusted.Height,
		)
	}
	if header.Timestamp < trusted.Timestamp {
		return nil, nil, fmt.Errorf("%w: header timestamp %d precedes trusted timestamp %d",
			api.ErrConsensusProofVerificationFailed,
			header.Timestamp,
			trusted.Timestamp,
		)
	}

	next := TrustedState{
		Height:    header.Height,
		Timestamp: header.Timestamp,
		Committee: trusted.Committee,
	}
	if len(header.NextCommittee) > 0 {
		next.Committee = header.NextCommittee
	}

	commitments := make(api.VerifiedCommitments)
	for _, sm := range header.StateMachines {
		id := api.StateMachineID{
			StateID:           sm.StateID,
			ConsensusClientID: c.id,
		}
		commitments[id] = append(commitments[id], api.StateCommitmentHeight{
			Commitment: sm.Commitment,
			Height:     sm.Height,
		})
	}

	c.logger.Debug("verified header",
		"client", c.id,
		"height", header.Height,
		"state_machines", len(header.StateMachines),
		"committee_changed", len(header.NextCommittee) > 0,
	)

	return cbor.Marshal(&next), commitments, nil
}

// VerifyFraudProof implements api.ConsensusClient.
//
// The proofs are two headers signed by a quorum of the trusted committee for
// the same height but with different contents.
func (c *Client) VerifyFraudProof(ctx context.Context, trustedState, proof1, proof2 []byte) error {
	var trusted TrustedState
	if err := cbor.Unmarshal(trustedState, &trusted); err != nil {
		return fmt.Errorf("%w: malformed trusted state: %s", api.ErrImplementationSpecific, err)
	}

	h1, err := c.verifyHeader(&trusted, proof1)
	if err != nil {
		return fmt.Errorf("%w: first header: %s", api.ErrFraudProofVerificationFailed, err)
	}
	h2, err := c.verifyHeader(&trusted, proof2)
	if err != nil {
		return fmt.Errorf("%w: second header: %s", api.ErrFraudProofVerificationFailed, err)
	}

	if h1.Height != h2.Height {
		return fmt.Errorf("%w: headers are at different heights %d and %d",
			api.ErrFraudProofVerificationFailed,
			h1.Height,
			h2.Height,
		)
	}
	d1, d2 := hash.NewFrom(h1), hash.NewFrom(h2)
	if d1.Equal(&d2) {
		return fmt.Errorf("%w: headers are identical", api.ErrFraudProofVerificationFailed)
	}

	c.logger.Warn("verified equivocation",
		"client", c.id,
		"height", h1.Height,
		"header1", d1,
		"header2", d2,
	)
	return nil
}

// UnbondingPeriod implements api.ConsensusClient.
func (c *Client) UnbondingPeriod() time.Duration {
	return c.cfg.UnbondingPeriod
}

// StateMachine implements api.ConsensusClient.
func (c *Client) StateMachine(id api.StateMachine) (api.StateMachineClient, error) {
	smc, ok := c.cfg.StateMachines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownStateMachine, id)
	}
	return smc, nil
}

// verifyHeader checks that the header is signed by a quorum of the trusted
// committee.
func (c *Client) verifyHeader(trusted *TrustedState, proof []byte) (*Header, error) {
	var signed signature.MultiSigned
	if err := cbor.Unmarshal(proof, &signed); err != nil {
		return nil, fmt.Errorf("%w: malformed signed header: %s", api.ErrConsensusProofVerificationFailed, err)
	}

	members := make(map[signature.PublicKey]bool, len(trusted.Committee))
	for _, pk := range trusted.Committee {
		members[pk] = true
	}
	signers := make(map[signature.PublicKey]bool, len(signed.Signatures))
	for _, sig := range signed.Signatures {
		if !members[sig.PublicKey] {
			return nil, fmt.Errorf("%w: signer %s is not a committee member",
				api.ErrConsensusProofVerificationFailed,
				sig.PublicKey,
			)
		}
		signers[sig.PublicKey] = true
	}
	if !HasQuorum(len(signers), len(members)) {
		return nil, fmt.Errorf("%w: %d of %d committee signatures",
			api.ErrConsensusProofVerificationFailed,
			len(signers),
			len(members),
		)
	}

	var header Header
	if err := signed.Open(HeaderSignatureContext, &header); err != nil {
		return nil, fmt.Errorf("%w: %s", api.ErrConsensusProofVerificationFailed, err)
	}
	return &header, nil
}

// HasQuorum returns true iff the signers are more than two thirds of the
// committee.
func HasQuorum(signers, committee int) bool {
	return committee > 0 && 3*signers > 2*committee
}

// New creates a new committee consensus client.
func New(id api.ConsensusClientID, cfg Config) *Client {
	return &Client{
		logger: logging.GetLogger("ismp/consensus/committee"),
		id:     id,
		cfg:    cfg,
	}
}
