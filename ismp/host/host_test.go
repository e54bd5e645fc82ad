package host

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/host/store"
	"github.com/oasisprotocol/ismp/ismp/router"
)

const (
	alphaChain api.StateMachine = "ALPHA-1"
	betaChain  api.StateMachine = "BETA-1"
)

func TestNew(t *testing.T) {
	_, err := New(Config{}, store.NewMemory(), router.New())
	require.Error(t, err, "state machine is required")
}

func TestRegisterConsensusClient(t *testing.T) {
	require := require.New(t)

	alpha := newTestChain(t, alphaChain, "ALPH")
	beta := newTestChain(t, betaChain, "BETA")
	alpha.track(beta)

	err := beta.host.RegisterConsensusClient(alpha.clientID, nil)
	require.Error(err, "duplicate registration")

	// Creating the same client twice fails and leaves the store untouched.
	_, err = beta.host.Process(context.Background(), &api.Message{
		CreateConsensusClient: &api.CreateConsensusClientMessage{
			ConsensusState:    []byte("other"),
			ConsensusClientID: alpha.clientID,
		},
	})
	require.ErrorIs(err, api.ErrConsensusClientExists)

	ids, err := beta.host.ConsensusClients(context.Background())
	require.NoError(err, "ConsensusClients")
	require.Equal([]api.ConsensusClientID{alpha.clientID}, ids)
}

func TestDispatch(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	alpha := newTestChain(t, alphaChain, "ALPH")
	ch, sub := alpha.host.WatchEvents()
	defer sub.Close()

	req1, err := alpha.host.DispatchPost(ctx, api.PostRequest{
		Dest: betaChain,
		From: testModuleID,
		To:   testModuleID,
		Data: []byte("one"),
	})
	require.NoError(err, "DispatchPost")
	require.Equal(alphaChain, req1.Source)
	require.EqualValues(0, req1.Nonce)

	req2, err := alpha.host.DispatchGet(ctx, api.GetRequest{
		Dest:   betaChain,
		From:   testModuleID,
		Keys:   [][]byte{[]byte("key")},
		Height: 5,
	})
	require.NoError(err, "DispatchGet")
	require.EqualValues(1, req2.Nonce, "nonces are shared between request kinds")

	for _, nonce := range []uint64{0, 1} {
		select {
		case ev := <-ch:
			require.NotNil(ev.Request)
			require.Equal(alphaChain, ev.Request.SourceChain)
			require.Equal(betaChain, ev.Request.DestChain)
			require.Equal(nonce, ev.Request.Nonce)
		case <-time.After(time.Second):
			t.Fatalf("failed to receive request event")
		}
	}

	ids, err := alpha.host.OutgoingRequests(ctx)
	require.NoError(err, "OutgoingRequests")
	require.ElementsMatch([]api.RequestID{
		api.NewPostRequest(req1).ID(),
		api.NewGetRequest(req2).ID(),
	}, ids)

	_, err = alpha.host.DispatchPost(ctx, api.PostRequest{})
	require.ErrorIs(err, api.ErrInvalidMessage, "missing destination")
	_, err = alpha.host.DispatchGet(ctx, api.GetRequest{Dest: betaChain})
	require.ErrorIs(err, api.ErrInvalidMessage, "missing keys")

	// Responses can only be dispatched for received requests.
	err = alpha.host.DispatchPostResponse(ctx, api.PostResponse{Post: *req1, Response: []byte("no")})
	require.ErrorIs(err, api.ErrInvalidMessage, "not addressed to the host")
	incoming := api.PostRequest{Source: betaChain, Dest: alphaChain, Nonce: 7}
	err = alpha.host.DispatchPostResponse(ctx, api.PostResponse{Post: incoming, Response: []byte("no")})
	require.ErrorIs(err, api.ErrInvalidMessage, "not received")
}

func TestRequestResponseRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	alpha := newTestChain(t, alphaChain, "ALPH")
	beta := newTestChain(t, betaChain, "BETA")
	alpha.track(beta)
	beta.track(alpha)
	beta.module.forward = "GAMMA-1"

	req, err := alpha.host.DispatchPost(ctx, api.PostRequest{
		Dest:             betaChain,
		From:             testModuleID,
		To:               testModuleID,
		TimeoutTimestamp: uint64(genesisTime.Add(time.Hour).Unix()),
		Data:             []byte("hello"),
	})
	require.NoError(err, "DispatchPost")

	// Deliver the request to beta.
	height := alpha.finalize(beta)
	msg := &api.Message{
		Request: &api.RequestMessage{
			Requests: []api.PostRequest{*req},
			Proof:    alpha.prove(height, requestKeys(api.NewPostRequest(req))),
		},
	}
	result, err := beta.host.Process(ctx, msg)
	require.NoError(err, "Process request")
	require.NoError(result.Request.Err())
	require.Len(beta.module.accepted, 1)
	require.Equal(req, beta.module.accepted[0].Post)

	// The module forwarded the request from within its callback, which
	// was committed together with the receipt.
	forwarded, err := beta.host.OutgoingRequests(ctx)
	require.NoError(err, "OutgoingRequests")
	require.Len(forwarded, 1)
	require.Equal(api.StateMachine("GAMMA-1"), forwarded[0].Dest)

	res := &api.Response{Post: &api.PostResponse{Post: *req, Response: []byte("ack hello")}}
	require.NoError(beta.host.DispatchPostResponse(ctx, *res.Post), "DispatchPostResponse")
	err = beta.host.DispatchPostResponse(ctx, *res.Post)
	require.ErrorIs(err, api.ErrInvalidMessage, "only one response per request")
	other := *res.Post
	other.Response = []byte("a different response")
	err = beta.host.DispatchPostResponse(ctx, other)
	require.ErrorIs(err, api.ErrInvalidMessage, "only one response per request, whatever the body")

	tree, err := beta.host.StateTree(ctx)
	require.NoError(err, "StateTree")
	require.EqualValues(3, tree.Len(), "receipt, forwarded request and response")

	// Redelivery is a no-op.
	result, err = beta.host.Process(ctx, msg)
	require.NoError(err, "Process request again")
	require.Len(beta.module.accepted, 1)
	require.Zero(result.Request.Succeeded())
	require.Empty(result.Request, "received requests are skipped")

	// Deliver the response back to alpha.
	height = beta.finalize(alpha)
	result, err = alpha.host.Process(ctx, &api.Message{
		Response: &api.ResponseMessage{
			Post: &api.PostResponseMessage{
				Responses: []api.PostResponse{*res.Post},
				Proof:     beta.prove(height, responseKeys(res)),
			},
		},
	})
	require.NoError(err, "Process response")
	require.NoError(result.Response.Err())
	require.Len(alpha.module.responses, 1)
	require.Equal([]byte("ack hello"), alpha.module.responses[0].Post.Response)

	// A request that was delivered can not be timed out.
	beta.clock.Advance(2 * time.Hour)
	height = beta.finalize(alpha)
	_, err = alpha.host.Process(ctx, &api.Message{
		Timeout: &api.TimeoutMessage{
			Post: &api.PostTimeoutMessage{
				Requests:     []api.PostRequest{*req},
				TimeoutProof: beta.prove(height, [][]byte{requestReceiptKeyFor(req)}),
			},
		},
	})
	require.ErrorIs(err, api.ErrRequestTimeoutVerificationFailed)
	require.Empty(alpha.module.timeouts)
}

func TestTimeout(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	alpha := newTestChain(t, alphaChain, "ALPH")
	beta := newTestChain(t, betaChain, "BETA")
	beta.track(alpha)

	timeout := genesisTime.Add(time.Minute)
	req, err := alpha.host.DispatchPost(ctx, api.PostRequest{
		Dest:             betaChain,
		From:             testModuleID,
		To:               testModuleID,
		TimeoutTimestamp: uint64(timeout.Unix()),
		Data:             []byte("late"),
	})
	require.NoError(err, "DispatchPost")

	timeoutMsg := func(height api.StateMachineHeight) *api.Message {
		return &api.Message{
			Timeout: &api.TimeoutMessage{
				Post: &api.PostTimeoutMessage{
					Requests:     []api.PostRequest{*req},
					TimeoutProof: beta.prove(height, [][]byte{requestReceiptKeyFor(req)}),
				},
			},
		}
	}

	// Beta's clock has not passed the timeout yet.
	height := beta.finalize(alpha)
	_, err = alpha.host.Process(ctx, timeoutMsg(height))
	require.ErrorIs(err, api.ErrRequestTimeoutNotElapsed)

	beta.clock.Advance(2 * time.Minute)
	height = beta.finalize(alpha)
	result, err := alpha.host.Process(ctx, timeoutMsg(height))
	require.NoError(err, "Process timeout")
	require.NoError(result.Timeout.Err())
	require.Len(alpha.module.timeouts, 1)

	ids, err := alpha.host.OutgoingRequests(ctx)
	require.NoError(err, "OutgoingRequests")
	require.Empty(ids, "timed out commitments are deleted")

	// Timing out again fails as the commitment is gone.
	_, err = alpha.host.Process(ctx, timeoutMsg(height))
	require.ErrorIs(err, api.ErrRequestCommitmentNotFound)
}

func TestRejectedMessageIsDiscarded(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	alpha := newTestChain(t, alphaChain, "ALPH")
	beta := newTestChain(t, betaChain, "BETA")
	alpha.track(beta)

	req, err := alpha.host.DispatchPost(ctx, api.PostRequest{
		Dest: betaChain,
		From: testModuleID,
		To:   testModuleID,
		Data: []byte("hello"),
	})
	require.NoError(err, "DispatchPost")
	height := alpha.finalize(beta)

	// The second request is not covered by the proof, so the whole batch
	// is rejected and the first one is not delivered either.
	other := *req
	other.Nonce = 99
	_, err = beta.host.Process(ctx, &api.Message{
		Request: &api.RequestMessage{
			Requests: []api.PostRequest{*req, other},
			Proof:    alpha.prove(height, requestKeys(api.NewPostRequest(req))),
		},
	})
	require.ErrorIs(err, api.ErrMembershipVerificationFailed)

	tree, err := beta.host.StateTree(ctx)
	require.NoError(err, "StateTree")
	require.EqualValues(0, tree.Len(), "no receipts")
}

func TestFraudProofAndGovernance(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	alpha := newTestChain(t, alphaChain, "ALPH")
	beta := newTestChain(t, betaChain, "BETA")
	alpha.track(beta)

	_, err := beta.host.Process(ctx, &api.Message{
		FraudProof: &api.FraudProofMessage{
			Proof1:            alpha.signHeader(1, 0x01),
			Proof2:            alpha.signHeader(1, 0x02),
			ConsensusClientID: alpha.clientID,
		},
	})
	require.NoError(err, "FraudProof")

	status, err := beta.host.ConsensusClientStatus(ctx, alpha.clientID)
	require.NoError(err, "ConsensusClientStatus")
	require.True(status.Frozen)

	// Frozen clients can not be updated.
	_, err = beta.host.Process(ctx, &api.Message{
		Consensus: &api.ConsensusMessage{
			ConsensusProof:    alpha.signHeader(1, 0x01),
			ConsensusClientID: alpha.clientID,
		},
	})
	require.ErrorIs(err, api.ErrFrozenConsensusClient)

	require.NoError(beta.host.UnfreezeConsensusClient(ctx, alpha.clientID), "UnfreezeConsensusClient")
	status, err = beta.host.ConsensusClientStatus(ctx, alpha.clientID)
	require.NoError(err, "ConsensusClientStatus")
	require.False(status.Frozen)

	err = beta.host.UnfreezeConsensusClient(ctx, api.MustConsensusClientID("NONE"))
	require.ErrorIs(err, api.ErrConsensusStateNotFound)

	// State machine freezing.
	height := alpha.finalize(beta)
	require.NoError(beta.host.FreezeStateMachine(ctx, height), "FreezeStateMachine")
	status, err = beta.host.ConsensusClientStatus(ctx, alpha.clientID)
	require.NoError(err, "ConsensusClientStatus")
	require.Len(status.StateMachines, 1)
	require.Equal(height.Height, status.StateMachines[0].LatestHeight)
	require.NotNil(status.StateMachines[0].FrozenHeight)
	require.Equal(height.Height, *status.StateMachines[0].FrozenHeight)
	require.Equal(testChallengePeriod, status.ChallengePeriod)
	require.False(status.Expired)

	req, err := alpha.host.DispatchPost(ctx, api.PostRequest{Dest: betaChain, From: testModuleID, To: testModuleID})
	require.NoError(err, "DispatchPost")
	height = alpha.finalize(beta)
	msg := &api.Message{
		Request: &api.RequestMessage{
			Requests: []api.PostRequest{*req},
			Proof:    alpha.prove(height, requestKeys(api.NewPostRequest(req))),
		},
	}
	_, err = beta.host.Process(ctx, msg)
	require.ErrorIs(err, api.ErrFrozenStateMachine)

	require.NoError(beta.host.UnfreezeStateMachine(ctx, height.ID), "UnfreezeStateMachine")
	_, err = beta.host.Process(ctx, msg)
	require.NoError(err, "Process after unfreeze")

	// Expiry.
	beta.clock.Advance(testUnbondingPeriod + time.Second)
	status, err = beta.host.ConsensusClientStatus(ctx, alpha.clientID)
	require.NoError(err, "ConsensusClientStatus")
	require.True(status.Expired)
}

func TestProcessWithRetry(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	alpha := newTestChain(t, alphaChain, "ALPH")
	beta := newTestChain(t, betaChain, "BETA")
	alpha.track(beta)

	req, err := alpha.host.DispatchPost(ctx, api.PostRequest{Dest: betaChain, From: testModuleID, To: testModuleID})
	require.NoError(err, "DispatchPost")
	height := alpha.finalize(beta)
	// Restart the challenge period.
	beta.clock.Advance(-(testChallengePeriod + time.Second))

	msg := &api.Message{
		Request: &api.RequestMessage{
			Requests: []api.PostRequest{*req},
			Proof:    alpha.prove(height, requestKeys(api.NewPostRequest(req))),
		},
	}

	// Retryable errors are retried until the backoff gives up.
	_, err = beta.host.ProcessWithRetry(ctx, msg, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2))
	require.ErrorIs(err, api.ErrChallengePeriodNotElapsed)

	// Permanent errors are returned immediately.
	attempts := 0
	bo := &countingBackOff{BackOff: backoff.NewConstantBackOff(time.Millisecond), calls: &attempts}
	bad := &api.Message{Request: &api.RequestMessage{}}
	_, err = beta.host.ProcessWithRetry(ctx, bad, bo)
	require.ErrorIs(err, api.ErrInvalidMessage)
	require.Equal(0, attempts, "no retries for permanent errors")

	// The message goes through once the challenge period elapsed.
	go func() {
		time.Sleep(10 * time.Millisecond)
		beta.clock.Advance(testChallengePeriod + time.Second)
	}()
	result, err := beta.host.ProcessWithRetry(ctx, msg, backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 1000))
	require.NoError(err, "ProcessWithRetry")
	require.NoError(result.Request.Err())
	require.Len(beta.module.accepted, 1)
}

type countingBackOff struct {
	backoff.BackOff
	calls *int
}

func (b *countingBackOff) NextBackOff() time.Duration {
	*b.calls++
	return b.BackOff.NextBackOff()
}
