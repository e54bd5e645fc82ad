package handlers

import (
	"context"
	"fmt"

	"github.com/oasisprotocol/ismp/ismp/api"
)

const kindTimeout = "timeout"

// HandleTimeouts verifies that outgoing requests timed out without being
// delivered and routes the timeouts. The commitment of a request is
// deleted once its timeout was routed successfully.
func HandleTimeouts(ctx context.Context, host api.Host, msg *api.TimeoutMessage) (api.DispatchResults, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}

	switch {
	case msg.Post != nil:
		return handlePostTimeouts(ctx, host, msg.Post)
	default:
		return handleGetTimeouts(ctx, host, msg.Get)
	}
}

func handlePostTimeouts(ctx context.Context, host api.Host, msg *api.PostTimeoutMessage) (api.DispatchResults, error) {
	proof := &msg.TimeoutProof
	smClient, err := ValidateStateMachine(ctx, host, proof.Height)
	if err != nil {
		return nil, err
	}

	// Post requests time out by the clock of the destination.
	root, err := host.StateMachineCommitment(ctx, proof.Height)
	if err != nil {
		return nil, err
	}

	requests := make([]*api.Request, 0, len(msg.Requests))
	for i := range msg.Requests {
		req := api.NewPostRequest(&msg.Requests[i])
		if err = checkRequestCommitment(ctx, host, req); err != nil {
			return nil, err
		}
		if err = checkProofMetadata(host, proof, req.Dest(), req.Source()); err != nil {
			return nil, err
		}
		if !req.TimedOut(root.Timestamp) {
			return nil, timeoutNotElapsed(req, root.Timestamp)
		}
		requests = append(requests, req)
	}
	if err = checkDuplicates(requests); err != nil {
		return nil, err
	}

	keys := smClient.StateTrieKey(requests)
	values, err := smClient.VerifyStateProof(ctx, keys, root, proof)
	if err != nil {
		logger.Debug("timeout state proof verification failed",
			"err", err,
			"height", proof.Height,
		)
		return nil, err
	}
	if len(values) != len(keys) {
		return nil, fmt.Errorf("%w: state proof returned %d values for %d keys",
			api.ErrRequestTimeoutVerificationFailed,
			len(values),
			len(keys),
		)
	}
	for i, v := range values {
		if !v.IsAbsent() {
			// A single delivered request fails the whole batch.
			return nil, fmt.Errorf("%w: request %s was delivered",
				api.ErrRequestTimeoutVerificationFailed,
				requests[i].ID(),
			)
		}
	}

	return dispatchTimeouts(ctx, host, requests)
}

func handleGetTimeouts(ctx context.Context, host api.Host, msg *api.GetTimeoutMessage) (api.DispatchResults, error) {
	// Get requests are never delivered so only the local clock matters.
	now := host.Timestamp(ctx)
	nowSecs := uint64(now.Unix())

	requests := make([]*api.Request, 0, len(msg.Requests))
	for i := range msg.Requests {
		req := api.NewGetRequest(&msg.Requests[i])
		if err := checkRequestCommitment(ctx, host, req); err != nil {
			return nil, err
		}
		if req.Source() != host.HostStateMachine() {
			return nil, fmt.Errorf("%w: get request %s was not sent by %s",
				api.ErrInvalidProofMetadata,
				req.ID(),
				host.HostStateMachine(),
			)
		}
		if !req.TimedOutAt(now) {
			return nil, timeoutNotElapsed(req, nowSecs)
		}
		requests = append(requests, req)
	}
	if err := checkDuplicates(requests); err != nil {
		return nil, err
	}

	return dispatchTimeouts(ctx, host, requests)
}

func dispatchTimeouts(ctx context.Context, host api.Host, requests []*api.Request) (api.DispatchResults, error) {
	router := host.Router()
	results := make(api.DispatchResults, 0, len(requests))
	for _, req := range requests {
		result := &api.DispatchResult{
			Commitment: api.HashRequest(req),
			Source:     req.Source(),
			Dest:       req.Dest(),
			Nonce:      req.Nonce(),
		}
		results = append(results, result)

		if result.Error = router.HandleTimeout(ctx, req); result.Error != nil {
			logger.Warn("router failed to handle timeout",
				"err", result.Error,
				"request", req.ID(),
			)
			observeItem(kindTimeout, result.Error)
			continue
		}
		if err := host.DeleteRequestCommitment(ctx, req.ID()); err != nil {
			return nil, err
		}
		observeItem(kindTimeout, nil)
	}

	return results, nil
}

func timeoutNotElapsed(req *api.Request, now uint64) error {
	return &api.RequestTimeoutNotElapsedError{
		Nonce:            req.Nonce(),
		Source:           req.Source(),
		Dest:             req.Dest(),
		TimeoutTimestamp: req.TimeoutTimestamp(),
		Now:              now,
	}
}

func checkDuplicates(requests []*api.Request) error {
	seen := make(map[api.RequestID]bool, len(requests))
	for _, req := range requests {
		id := req.ID()
		if seen[id] {
			return fmt.Errorf("%w: duplicate timeout for %s", api.ErrInvalidMessage, id)
		}
		seen[id] = true
	}
	return nil
}
