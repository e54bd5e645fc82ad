package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/common/crypto/hash"
	"github.com/oasisprotocol/ismp/ismp/api"
)

const (
	hostChain    api.StateMachine = "POLKADOT-2000"
	counterChain api.StateMachine = "EVM-1"

	challengePeriod = 100 * time.Second
	unbondingPeriod = 24 * time.Hour
)

var (
	testClientID = api.MustConsensusClientID("MOCK")
	testSMID     = api.StateMachineID{StateID: counterChain, ConsensusClientID: testClientID}
	genesisTime  = time.Unix(1_000_000, 0)
)

// testHost is an in-memory host with a controllable clock.
type testHost struct {
	now time.Time

	clients map[api.ConsensusClientID]api.ConsensusClient
	router  *testRouter

	consensusStates  map[api.ConsensusClientID][]byte
	updateTimes      map[api.ConsensusClientID]time.Time
	challengePeriods map[api.ConsensusClientID]time.Duration
	frozenClients    map[api.ConsensusClientID]bool
	frozenHeights    map[api.StateMachineID]uint64
	commitments      map[api.StateMachineHeight]api.StateCommitment
	latestHeights    map[api.StateMachineID]uint64
	requestCommits   map[api.RequestID]hash.Hash
	responseCommits  map[hash.Hash]bool
	requestReceipts  map[hash.Hash]bool
	responseReceipts map[hash.Hash]bool
	nonce            uint64
}

func newTestHost(client api.ConsensusClient) *testHost {
	return &testHost{
		now:              genesisTime,
		clients:          map[api.ConsensusClientID]api.ConsensusClient{testClientID: client},
		router:           newTestRouter(),
		consensusStates:  make(map[api.ConsensusClientID][]byte),
		updateTimes:      make(map[api.ConsensusClientID]time.Time),
		challengePeriods: make(map[api.ConsensusClientID]time.Duration),
		frozenClients:    make(map[api.ConsensusClientID]bool),
		frozenHeights:    make(map[api.StateMachineID]uint64),
		commitments:      make(map[api.StateMachineHeight]api.StateCommitment),
		latestHeights:    make(map[api.StateMachineID]uint64),
		requestCommits:   make(map[api.RequestID]hash.Hash),
		responseCommits:  make(map[hash.Hash]bool),
		requestReceipts:  make(map[hash.Hash]bool),
		responseReceipts: make(map[hash.Hash]bool),
	}
}

func (h *testHost) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *testHost) HostStateMachine() api.StateMachine { return hostChain }

func (h *testHost) Timestamp(context.Context) time.Time { return h.now }

func (h *testHost) ConsensusState(_ context.Context, id api.ConsensusClientID) ([]byte, error) {
	state, ok := h.consensusStates[id]
	if !ok {
		return nil, api.ErrConsensusStateNotFound
	}
	return state, nil
}

func (h *testHost) StoreConsensusState(_ context.Context, id api.ConsensusClientID, state []byte) error {
	h.consensusStates[id] = state
	return nil
}

func (h *testHost) ConsensusUpdateTime(_ context.Context, id api.ConsensusClientID) (time.Time, error) {
	t, ok := h.updateTimes[id]
	if !ok {
		return time.Time{}, api.ErrConsensusStateNotFound
	}
	return t, nil
}

func (h *testHost) StoreConsensusUpdateTime(_ context.Context, id api.ConsensusClientID, t time.Time) error {
	h.updateTimes[id] = t
	return nil
}

func (h *testHost) ChallengePeriod(_ context.Context, id api.ConsensusClientID) (time.Duration, error) {
	return h.challengePeriods[id], nil
}

func (h *testHost) StoreChallengePeriod(_ context.Context, id api.ConsensusClientID, period time.Duration) error {
	h.challengePeriods[id] = period
	return nil
}

func (h *testHost) IsConsensusClientFrozen(_ context.Context, id api.ConsensusClientID) (bool, error) {
	return h.frozenClients[id], nil
}

func (h *testHost) FreezeConsensusClient(_ context.Context, id api.ConsensusClientID) error {
	h.frozenClients[id] = true
	return nil
}

func (h *testHost) IsStateMachineFrozen(_ context.Context, height api.StateMachineHeight) (bool, error) {
	frozenAt, ok := h.frozenHeights[height.ID]
	return ok && height.Height >= frozenAt, nil
}

func (h *testHost) FreezeStateMachine(_ context.Context, height api.StateMachineHeight) error {
	h.frozenHeights[height.ID] = height.Height
	return nil
}

func (h *testHost) StateMachineCommitment(_ context.Context, height api.StateMachineHeight) (*api.StateCommitment, error) {
	c, ok := h.commitments[height]
	if !ok {
		return nil, api.ErrStateCommitmentNotFound
	}
	return &c, nil
}

func (h *testHost) StoreStateMachineCommitment(_ context.Context, height api.StateMachineHeight, c *api.StateCommitment) error {
	h.commitments[height] = *c
	return nil
}

func (h *testHost) LatestCommitmentHeight(_ context.Context, id api.StateMachineID) (uint64, error) {
	return h.latestHeights[id], nil
}

func (h *testHost) StoreLatestCommitmentHeight(_ context.Context, height api.StateMachineHeight) error {
	h.latestHeights[height.ID] = height.Height
	return nil
}

func (h *testHost) RequestCommitment(_ context.Context, id api.RequestID) (hash.Hash, error) {
	c, ok := h.requestCommits[id]
	if !ok {
		return hash.Hash{}, api.ErrCommitmentNotFound
	}
	return c, nil
}

func (h *testHost) StoreRequestCommitment(_ context.Context, id api.RequestID, c hash.Hash) error {
	h.requestCommits[id] = c
	return nil
}

func (h *testHost) DeleteRequestCommitment(_ context.Context, id api.RequestID) error {
	delete(h.requestCommits, id)
	return nil
}

func (h *testHost) ResponseCommitment(_ context.Context, c hash.Hash) (bool, error) {
	return h.responseCommits[c], nil
}

func (h *testHost) StoreResponseCommitment(_ context.Context, c hash.Hash) error {
	h.responseCommits[c] = true
	return nil
}

func (h *testHost) RequestReceipt(_ context.Context, c hash.Hash) (bool, error) {
	return h.requestReceipts[c], nil
}

func (h *testHost) StoreRequestReceipt(_ context.Context, c hash.Hash) error {
	h.requestReceipts[c] = true
	return nil
}

func (h *testHost) ResponseReceipt(_ context.Context, c hash.Hash) (bool, error) {
	return h.responseReceipts[c], nil
}

func (h *testHost) StoreResponseReceipt(_ context.Context, c hash.Hash) error {
	h.responseReceipts[c] = true
	return nil
}

func (h *testHost) NextNonce(context.Context) (uint64, error) {
	n := h.nonce
	h.nonce++
	return n, nil
}

func (h *testHost) ConsensusClient(id api.ConsensusClientID) (api.ConsensusClient, error) {
	client, ok := h.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownConsensusClient, id)
	}
	return client, nil
}

func (h *testHost) Router() api.Router { return h.router }

// testRouter records dispatched items and fails those listed in failNonces.
type testRouter struct {
	requests   []*api.Request
	responses  []*api.Response
	timeouts   []*api.Request
	failNonces map[uint64]bool
}

func newTestRouter() *testRouter {
	return &testRouter{failNonces: make(map[uint64]bool)}
}

func (r *testRouter) HandleRequest(_ context.Context, req *api.Request) error {
	if r.failNonces[req.Nonce()] {
		return api.ErrModuleNotFound
	}
	r.requests = append(r.requests, req)
	return nil
}

func (r *testRouter) HandleResponse(_ context.Context, res *api.Response) error {
	if r.failNonces[res.Request().Nonce()] {
		return api.ErrModuleNotFound
	}
	r.responses = append(r.responses, res)
	return nil
}

func (r *testRouter) HandleTimeout(_ context.Context, req *api.Request) error {
	if r.failNonces[req.Nonce()] {
		return api.ErrModuleNotFound
	}
	r.timeouts = append(r.timeouts, req)
	return nil
}

// mockHeader is the consensus proof understood by mockConsensusClient.
type mockHeader struct {
	Height    uint64
	Timestamp uint64
	Root      hash.Hash
}

// mockConsensusClient finalizes the header carried by the proof if its
// height is above the trusted one.
type mockConsensusClient struct {
	sm *mockStateMachineClient
}

func (c *mockConsensusClient) VerifyConsensus(_ context.Context, trustedState, proof []byte) ([]byte, api.VerifiedCommitments, error) {
	var trusted, header mockHeader
	if err := cbor.Unmarshal(trustedState, &trusted); err != nil {
		return nil, nil, api.ImplementationSpecific("malformed trusted state: %s", err)
	}
	if err := cbor.Unmarshal(proof, &header); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", api.ErrConsensusProofVerificationFailed, err)
	}
	if header.Height <= trusted.Height {
		return nil, nil, fmt.Errorf("%w: stale header", api.ErrConsensusProofVerificationFailed)
	}
	return proof, api.VerifiedCommitments{
		testSMID: {{
			Height: header.Height,
			Commitment: api.StateCommitment{
				Timestamp: header.Timestamp,
				StateRoot: header.Root,
			},
		}},
	}, nil
}

func (c *mockConsensusClient) VerifyFraudProof(_ context.Context, _, proof1, proof2 []byte) error {
	var h1, h2 mockHeader
	if cbor.Unmarshal(proof1, &h1) != nil || cbor.Unmarshal(proof2, &h2) != nil {
		return api.ErrFraudProofVerificationFailed
	}
	if h1.Height != h2.Height || h1.Root.Equal(&h2.Root) {
		return api.ErrFraudProofVerificationFailed
	}
	return nil
}

func (c *mockConsensusClient) UnbondingPeriod() time.Duration { return unbondingPeriod }

func (c *mockConsensusClient) StateMachine(id api.StateMachine) (api.StateMachineClient, error) {
	if id != counterChain {
		return nil, api.ErrUnknownStateMachine
	}
	return c.sm, nil
}

// mockStateMachineClient treats the proof payload as irrelevant and checks
// items against sets of committed digests and state keys.
type mockStateMachineClient struct {
	requests  map[hash.Hash]bool
	responses map[hash.Hash]bool
	state     map[string][]byte
}

func newMockStateMachineClient() *mockStateMachineClient {
	return &mockStateMachineClient{
		requests:  make(map[hash.Hash]bool),
		responses: make(map[hash.Hash]bool),
		state:     make(map[string][]byte),
	}
}

func (c *mockStateMachineClient) VerifyMembership(_ context.Context, items api.RequestResponse, _ *api.StateCommitment, _ *api.Proof) error {
	for _, req := range items.Requests {
		if !c.requests[api.HashRequest(req)] {
			return api.ErrMembershipVerificationFailed
		}
	}
	for _, res := range items.Responses {
		if !c.responses[api.HashResponse(res)] {
			return api.ErrMembershipVerificationFailed
		}
	}
	return nil
}

func (c *mockStateMachineClient) StateTrieKey(requests []*api.Request) [][]byte {
	keys := make([][]byte, 0, len(requests))
	for _, req := range requests {
		digest := api.HashRequest(req)
		keys = append(keys, append([]byte("receipt/"), digest[:]...))
	}
	return keys
}

func (c *mockStateMachineClient) VerifyStateProof(_ context.Context, keys [][]byte, _ *api.StateCommitment, _ *api.Proof) ([]api.StorageValue, error) {
	values := make([]api.StorageValue, 0, len(keys))
	for _, key := range keys {
		values = append(values, api.StorageValue{Key: key, Value: c.state[string(key)]})
	}
	return values, nil
}

func (c *mockStateMachineClient) markDelivered(req *api.Request) {
	key := c.StateTrieKey([]*api.Request{req})[0]
	c.state[string(key)] = []byte{1}
}

// fixture wires a test host to mock clients with a created consensus
// client and one finalized height whose challenge period elapsed.
type fixture struct {
	host   *testHost
	client *mockConsensusClient
	sm     *mockStateMachineClient
	height api.StateMachineHeight
}

func newFixture() *fixture {
	sm := newMockStateMachineClient()
	client := &mockConsensusClient{sm: sm}
	host := newTestHost(client)

	ctx := context.Background()
	if _, err := CreateConsensusClient(ctx, host, &api.CreateConsensusClientMessage{
		ConsensusState:    cbor.Marshal(&mockHeader{}),
		ConsensusClientID: testClientID,
		ChallengePeriod:   challengePeriod,
	}); err != nil {
		panic(err)
	}

	f := &fixture{host: host, client: client, sm: sm}
	f.height = f.update(10, uint64(genesisTime.Unix()))
	host.advance(challengePeriod + time.Second)
	return f
}

// update finalizes a new height of the counterparty at the current time.
func (f *fixture) update(height, timestamp uint64) api.StateMachineHeight {
	if _, err := UpdateConsensusClient(context.Background(), f.host, &api.ConsensusMessage{
		ConsensusClientID: testClientID,
		ConsensusProof: cbor.Marshal(&mockHeader{
			Height:    height,
			Timestamp: timestamp,
			Root:      hash.NewFromBytes([]byte(fmt.Sprintf("root-%d", height))),
		}),
	}); err != nil {
		panic(err)
	}
	return api.StateMachineHeight{ID: testSMID, Height: height}
}

func (f *fixture) proof() api.Proof {
	return api.Proof{Height: f.height, Proof: []byte("opaque")}
}

// incoming returns a post request from the counterparty committed in its
// state.
func (f *fixture) incoming(nonce uint64, timeout uint64) api.PostRequest {
	req := api.PostRequest{
		Source:           counterChain,
		Dest:             hostChain,
		Nonce:            nonce,
		From:             []byte("sender"),
		To:               []byte("module"),
		TimeoutTimestamp: timeout,
		Data:             []byte(fmt.Sprintf("data-%d", nonce)),
	}
	f.sm.requests[api.HashPostRequest(&req)] = true
	return req
}

// outgoing returns a post request from this host with a stored commitment.
func (f *fixture) outgoing(nonce uint64, timeout uint64) api.PostRequest {
	req := api.PostRequest{
		Source:           hostChain,
		Dest:             counterChain,
		Nonce:            nonce,
		From:             []byte("module"),
		To:               []byte("receiver"),
		TimeoutTimestamp: timeout,
		Data:             []byte(fmt.Sprintf("data-%d", nonce)),
	}
	f.host.requestCommits[api.NewPostRequest(&req).ID()] = api.HashPostRequest(&req)
	return req
}

// outgoingGet returns a get request from this host with a stored commitment.
func (f *fixture) outgoingGet(nonce, height, timeout uint64, keys ...[]byte) api.GetRequest {
	req := api.GetRequest{
		Source:           hostChain,
		Dest:             counterChain,
		Nonce:            nonce,
		From:             []byte("module"),
		Keys:             keys,
		Height:           height,
		TimeoutTimestamp: timeout,
	}
	f.host.requestCommits[api.NewGetRequest(&req).ID()] = api.HashGetRequest(&req)
	return req
}

func nowSecs(h *testHost) uint64 {
	return uint64(h.now.Unix())
}
