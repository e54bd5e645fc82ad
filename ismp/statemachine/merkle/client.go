// Package merkle implements a state machine client for state machines that
// commit to their ISMP storage with a binary merkle tree over sorted
// key-value pairs.
package merkle

import (
	"bytes"
	"context"
	"fmt"

	"github.com/oasisprotocol/ismp/common/logging"
	"github.com/oasisprotocol/ismp/ismp/api"
)

var _ api.StateMachineClient = (*Client)(nil)

// Client verifies merkle state proofs of a counterparty state machine.
type Client struct {
	logger *logging.Logger
}

// VerifyMembership implements api.StateMachineClient.
func (c *Client) VerifyMembership(ctx context.Context, items api.RequestResponse, root *api.StateCommitment, proof *api.Proof) error {
	values, err := verifiedValues(proof.Proof, root.MembershipRoot())
	if err != nil {
		return fmt.Errorf("%w: %s", api.ErrMembershipVerificationFailed, err)
	}

	check := func(key, value []byte) error {
		proven, ok := values[string(key)]
		switch {
		case !ok:
			return fmt.Errorf("%w: key %X not covered by proof", api.ErrMembershipVerificationFailed, key)
		case proven == nil:
			return fmt.Errorf("%w: key %X is absent", api.ErrMembershipVerificationFailed, key)
		case !bytes.Equal(proven, value):
			return fmt.Errorf("%w: key %X has unexpected value", api.ErrMembershipVerificationFailed, key)
		}
		return nil
	}

	for _, req := range items.Requests {
		if err = check(requestLeaf(req)); err != nil {
			return err
		}
	}
	for _, res := range items.Responses {
		if err = check(responseLeaf(res)); err != nil {
			return err
		}
	}

	c.logger.Debug("verified membership",
		"requests", len(items.Requests),
		"responses", len(items.Responses),
		"height", proof.Height,
	)
	return nil
}

// StateTrieKey implements api.StateMachineClient.
//
// The keys are the receipt keys of the requests on their destination.
func (c *Client) StateTrieKey(requests []*api.Request) [][]byte {
	keys := make([][]byte, 0, len(requests))
	for _, req := range requests {
		keys = append(keys, RequestReceiptKey(api.HashRequest(req)))
	}
	return keys
}

// VerifyStateProof implements api.StateMachineClient.
func (c *Client) VerifyStateProof(ctx context.Context, keys [][]byte, root *api.StateCommitment, proof *api.Proof) ([]api.StorageValue, error) {
	values, err := verifiedValues(proof.Proof, root.StateRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", api.ErrStateProofVerificationFailed, err)
	}

	result := make([]api.StorageValue, 0, len(keys))
	for _, key := range keys {
		value, ok := values[string(key)]
		if !ok {
			return nil, fmt.Errorf("%w: key %X not covered by proof", api.ErrStateProofVerificationFailed, key)
		}
		result = append(result, api.StorageValue{
			Key:   key,
			Value: value,
		})
	}
	return result, nil
}

// NewClient creates a new merkle state machine client.
func NewClient() *Client {
	return &Client{
		logger: logging.GetLogger("ismp/statemachine/merkle"),
	}
}
