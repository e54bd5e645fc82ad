package committee

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/common/crypto/hash"
	"github.com/oasisprotocol/ismp/common/crypto/signature"
	"github.com/oasisprotocol/ismp/common/crypto/signature/signers/memory"
	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/statemachine/merkle"
)

var testClientID = api.MustConsensusClientID("CMTE")

func testCommittee(prefix string, n int) []signature.Signer {
	signers := make([]signature.Signer, 0, n)
	for i := 0; i < n; i++ {
		signers = append(signers, memory.NewTestSigner(fmt.Sprintf("ismp/committee test: %s %d", prefix, i)))
	}
	return signers
}

func testClient() *Client {
	return New(testClientID, Config{
		UnbondingPeriod: time.Hour,
		StateMachines: map[api.StateMachine]api.StateMachineClient{
			"EVM-1": merkle.NewClient(),
		},
	})
}

func testHeader(height uint64, root byte) *Header {
	return &Header{
		Height:    height,
		Timestamp: 1000 + height,
		StateMachines: []StateMachineHeader{
			{
				StateID: "EVM-1",
				Height:  height * 10,
				Commitment: api.StateCommitment{
					Timestamp: 1000 + height,
					StateRoot: hash.NewFromBytes([]byte{root}),
				},
			},
		},
	}
}

func TestHasQuorum(t *testing.T) {
	require := require.New(t)

	require.False(HasQuorum(0, 0))
	require.True(HasQuorum(1, 1))
	require.False(HasQuorum(2, 3))
	require.True(HasQuorum(3, 4))
	require.False(HasQuorum(2, 4))
	require.True(HasQuorum(7, 10))
	require.False(HasQuorum(6, 9))
}

func TestVerifyConsensus(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	committee := testCommittee("basic", 4)
	client := testClient()
	trusted := NewTrustedState(1, 1001, PublicKeys(committee))

	proof, err := SignHeader(committee[:3], testHeader(2, 0xaa))
	require.NoError(err, "SignHeader")

	newState, commitments, err := client.VerifyConsensus(ctx, trusted, proof)
	require.NoError(err, "VerifyConsensus")

	var ts TrustedState
	require.NoError(cbor.Unmarshal(newState, &ts))
	require.EqualValues(2, ts.Height)
	require.EqualValues(1002, ts.Timestamp)
	require.Equal(PublicKeys(committee), ts.Committee)

	smID := api.StateMachineID{StateID: "EVM-1", ConsensusClientID: testClientID}
	require.Len(commitments, 1)
	require.Len(commitments[smID], 1)
	require.EqualValues(20, commitments[smID][0].Height)
	require.Equal(hash.NewFromBytes([]byte{0xaa}), commitments[smID][0].Commitment.StateRoot)

	// The same header is stale against the new state.
	_, _, err = client.VerifyConsensus(ctx, newState, proof)
	require.ErrorIs(err, api.ErrConsensusProofVerificationFailed)
}

func TestVerifyConsensusQuorum(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	committee := testCommittee("quorum", 4)
	client := testClient()
	trusted := NewTrustedState(1, 1001, PublicKeys(committee))

	// Two of four is not enough.
	proof, err := SignHeader(committee[:2], testHeader(2, 0xaa))
	require.NoError(err, "SignHeader")
	_, _, err = client.VerifyConsensus(ctx, trusted, proof)
	require.ErrorIs(err, api.ErrConsensusProofVerificationFailed)

	// Duplicate signatures count once.
	proof, err = SignHeader([]signature.Signer{committee[0], committee[0], committee[1]}, testHeader(2, 0xaa))
	require.NoError(err, "SignHeader")
	_, _, err = client.VerifyConsensus(ctx, trusted, proof)
	require.ErrorIs(err, api.ErrConsensusProofVerificationFailed)

	// Outsiders are rejected.
	outsider := testCommittee("outsider", 1)[0]
	proof, err = SignHeader(append(committee[:3:3], outsider), testHeader(2, 0xaa))
	require.NoError(err, "SignHeader")
	_, _, err = client.VerifyConsensus(ctx, trusted, proof)
	require.ErrorIs(err, api.ErrConsensusProofVerificationFailed)

	// Tampered header.
	proof, err = SignHeader(committee, testHeader(2, 0xaa))
	require.NoError(err, "SignHeader")
	var signed signature.MultiSigned
	require.NoError(cbor.Unmarshal(proof, &signed))
	signed.Blob = cbor.Marshal(testHeader(2, 0xbb))
	_, _, err = client.VerifyConsensus(ctx, trusted, cbor.Marshal(&signed))
	require.ErrorIs(err, api.ErrConsensusProofVerificationFailed)

	// Garbage.
	_, _, err = client.VerifyConsensus(ctx, trusted, []byte{0xff})
	require.ErrorIs(err, api.ErrConsensusProofVerificationFailed)
	_, _, err = client.VerifyConsensus(ctx, []byte{0xff}, proof)
	require.ErrorIs(err, api.ErrImplementationSpecific)
}

func TestCommitteeRotation(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	old := testCommittee("rotation old", 3)
	next := testCommittee("rotation new", 3)
	client := testClient()
	trusted := NewTrustedState(1, 1001, PublicKeys(old))

	header := testHeader(2, 0xaa)
	header.NextCommittee = PublicKeys(next)
	proof, err := SignHeader(old, header)
	require.NoError(err, "SignHeader")
	state, _, err := client.VerifyConsensus(ctx, trusted, proof)
	require.NoError(err, "VerifyConsensus")

	// The old committee is no longer trusted.
	proof, err = SignHeader(old, testHeader(3, 0xbb))
	require.NoError(err, "SignHeader")
	_, _, err = client.VerifyConsensus(ctx, state, proof)
	require.ErrorIs(err, api.ErrConsensusProofVerificationFailed)

	proof, err = SignHeader(next, testHeader(3, 0xbb))
	require.NoError(err, "SignHeader")
	_, _, err = client.VerifyConsensus(ctx, state, proof)
	require.NoError(err, "VerifyConsensus")
}

func TestVerifyFraudProof(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	committee := testCommittee("fraud", 4)
	client := testClient()
	trusted := NewTrustedState(1, 1001, PublicKeys(committee))

	p1, err := SignHeader(committee[:3], testHeader(2, 0xaa))
	require.NoError(err, "SignHeader")
	p2, err := SignHeader(committee[1:], testHeader(2, 0xbb))
	require.NoError(err, "SignHeader")

	require.NoError(client.VerifyFraudProof(ctx, trusted, p1, p2), "equivocation")

	// The same header twice is not fraud.
	p3, err := SignHeader(committee[1:], testHeader(2, 0xaa))
	require.NoError(err, "SignHeader")
	require.ErrorIs(client.VerifyFraudProof(ctx, trusted, p1, p3), api.ErrFraudProofVerificationFailed)

	// Different heights are not fraud.
	p4, err := SignHeader(committee[1:], testHeader(3, 0xbb))
	require.NoError(err, "SignHeader")
	require.ErrorIs(client.VerifyFraudProof(ctx, trusted, p1, p4), api.ErrFraudProofVerificationFailed)

	// Both headers need a quorum.
	p5, err := SignHeader(committee[:1], testHeader(2, 0xbb))
	require.NoError(err, "SignHeader")
	require.ErrorIs(client.VerifyFraudProof(ctx, trusted, p1, p5), api.ErrFraudProofVerificationFailed)
}

func TestStateMachine(t *testing.T) {
	require := require.New(t)

	client := testClient()
	require.Equal(time.Hour, client.UnbondingPeriod())

	smc, err := client.StateMachine("EVM-1")
	require.NoError(err, "StateMachine")
	require.NotNil(smc)

	_, err = client.StateMachine("EVM-2")
	require.ErrorIs(err, api.ErrUnknownStateMachine)
}
