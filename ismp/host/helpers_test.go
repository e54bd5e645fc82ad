package host

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/ismp/common/crypto/hash"
	"github.com/oasisprotocol/ismp/common/crypto/signature"
	"github.com/oasisprotocol/ismp/common/crypto/signature/signers/memory"
	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/consensus/committee"
	"github.com/oasisprotocol/ismp/ismp/host/store"
	"github.com/oasisprotocol/ismp/ismp/router"
	"github.com/oasisprotocol/ismp/ismp/statemachine/merkle"
)

const (
	testChallengePeriod = 10 * time.Second
	testUnbondingPeriod = time.Hour
)

var genesisTime = time.Unix(1_700_000_000, 0)

type testClock struct {
	sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.now = c.now.Add(d)
}

// testModule records the items it receives. If forward is set, every
// accepted post request is forwarded there from within the callback.
type testModule struct {
	sync.Mutex

	host    *Host
	forward api.StateMachine

	accepted  []*api.Request
	responses []*api.Response
	timeouts  []*api.Request
}

func (m *testModule) OnAccept(ctx context.Context, req *api.Request) error {
	m.Lock()
	m.accepted = append(m.accepted, req)
	m.Unlock()

	if m.forward != "" && req.Post != nil {
		_, err := m.host.DispatchPost(ctx, api.PostRequest{
			Dest: m.forward,
			From: testModuleID,
			To:   testModuleID,
			Data: req.Post.Data,
		})
		return err
	}
	return nil
}

func (m *testModule) OnResponse(_ context.Context, res *api.Response) error {
	m.Lock()
	defer m.Unlock()
	m.responses = append(m.responses, res)
	return nil
}

func (m *testModule) OnTimeout(_ context.Context, req *api.Request) error {
	m.Lock()
	defer m.Unlock()
	m.timeouts = append(m.timeouts, req)
	return nil
}

// testChain is a host together with the committee finalizing it.
type testChain struct {
	t *testing.T

	host      *Host
	clock     *testClock
	module    *testModule
	committee []signature.Signer
	clientID  api.ConsensusClientID
	height    uint64
}

var testModuleID = []byte("module")

func newTestChain(t *testing.T, sm api.StateMachine, clientID string) *testChain {
	require := require.New(t)

	clock := &testClock{now: genesisTime}
	r := router.New()
	h, err := New(Config{StateMachine: sm, Clock: clock.Now}, store.NewMemory(), r)
	require.NoError(err, "New")
	t.Cleanup(func() {
		_ = h.Close()
	})

	module := &testModule{host: h}
	require.NoError(r.RegisterModule(testModuleID, module), "RegisterModule")

	signers := make([]signature.Signer, 0, 4)
	for i := 0; i < 4; i++ {
		signers = append(signers, memory.NewTestSigner(fmt.Sprintf("ismp/host test: %s %d", sm, i)))
	}

	return &testChain{
		t:         t,
		host:      h,
		clock:     clock,
		module:    module,
		committee: signers,
		clientID:  api.MustConsensusClientID(clientID),
	}
}

func (c *testChain) stateMachineID() api.StateMachineID {
	return api.StateMachineID{
		StateID:           c.host.StateMachine(),
		ConsensusClientID: c.clientID,
	}
}

// track makes other verify this chain.
func (c *testChain) track(other *testChain) {
	require := require.New(c.t)

	client := committee.New(c.clientID, committee.Config{
		UnbondingPeriod: testUnbondingPeriod,
		StateMachines: map[api.StateMachine]api.StateMachineClient{
			c.host.StateMachine(): merkle.NewClient(),
		},
	})
	require.NoError(other.host.RegisterConsensusClient(c.clientID, client), "RegisterConsensusClient")

	_, err := other.host.Process(context.Background(), &api.Message{
		CreateConsensusClient: &api.CreateConsensusClientMessage{
			ConsensusState:    committee.NewTrustedState(0, uint64(genesisTime.Unix()), committee.PublicKeys(c.committee)),
			ConsensusClientID: c.clientID,
			ChallengePeriod:   testChallengePeriod,
		},
	})
	require.NoError(err, "CreateConsensusClient")
}

// finalize finalizes the current state of this chain on other and lets the
// challenge period elapse there.
func (c *testChain) finalize(other *testChain) api.StateMachineHeight {
	require := require.New(c.t)
	ctx := context.Background()

	commitment, err := c.host.StateCommitment(ctx)
	require.NoError(err, "StateCommitment")

	c.height++
	proof, err := committee.SignHeader(c.committee[:3], &committee.Header{
		Height:    c.height,
		Timestamp: commitment.Timestamp,
		StateMachines: []committee.StateMachineHeader{
			{
				StateID:    c.host.StateMachine(),
				Height:     c.height,
				Commitment: *commitment,
			},
		},
	})
	require.NoError(err, "SignHeader")

	_, err = other.host.Process(ctx, &api.Message{
		Consensus: &api.ConsensusMessage{
			ConsensusProof:    proof,
			ConsensusClientID: c.clientID,
		},
	})
	require.NoError(err, "Consensus")
	other.clock.Advance(testChallengePeriod + time.Second)

	return api.StateMachineHeight{ID: c.stateMachineID(), Height: c.height}
}

func (c *testChain) prove(height api.StateMachineHeight, keys [][]byte) api.Proof {
	raw, err := c.host.ProveState(context.Background(), keys)
	require.NoError(c.t, err, "ProveState")
	return api.Proof{Height: height, Proof: raw}
}

func (c *testChain) signHeader(height uint64, root byte) []byte {
	proof, err := committee.SignHeader(c.committee[:3], &committee.Header{
		Height:    height,
		Timestamp: uint64(genesisTime.Unix()),
		StateMachines: []committee.StateMachineHeader{
			{
				StateID: c.host.StateMachine(),
				Height:  height,
				Commitment: api.StateCommitment{
					Timestamp: uint64(genesisTime.Unix()),
					StateRoot: hash.NewFromBytes([]byte{root}),
				},
			},
		},
	})
	require.NoError(c.t, err, "SignHeader")
	return proof
}

func requestReceiptKeyFor(req *api.PostRequest) []byte {
	return merkle.RequestReceiptKey(api.HashPostRequest(req))
}

func requestKeys(reqs ...*api.Request) [][]byte {
	keys := make([][]byte, 0, len(reqs))
	for _, req := range reqs {
		keys = append(keys, merkle.RequestCommitmentKey(api.HashRequest(req)))
	}
	return keys
}

func responseKeys(res ...*api.Response) [][]byte {
	keys := make([][]byte, 0, len(res))
	for _, r := range res {
		keys = append(keys, merkle.ResponseCommitmentKey(api.HashResponse(r)))
	}
	return keys
}
