package handlers

import (
	"context"
	"fmt"

	"github.com/oasisprotocol/ismp/ismp/api"
)

const kindResponse = "response"

// HandleResponses verifies a batch of incoming responses to requests sent
// by this host and routes them.
func HandleResponses(ctx context.Context, host api.Host, msg *api.ResponseMessage) (api.DispatchResults, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}

	switch {
	case msg.Post != nil:
		return handlePostResponses(ctx, host, msg.Post)
	default:
		return handleGetResponses(ctx, host, msg.Get)
	}
}

func handlePostResponses(ctx context.Context, host api.Host, msg *api.PostResponseMessage) (api.DispatchResults, error) {
	proof := &msg.Proof

	responses := make([]*api.Response, 0, len(msg.Responses))
	for i := range msg.Responses {
		res := &api.Response{Post: &msg.Responses[i]}
		if err := checkRequestCommitment(ctx, host, res.Request()); err != nil {
			return nil, err
		}
		responses = append(responses, res)
	}

	smClient, err := ValidateStateMachine(ctx, host, proof.Height)
	if err != nil {
		return nil, err
	}
	for _, res := range responses {
		req := res.Post.Post
		if err = checkProofMetadata(host, proof, req.Dest, req.Source); err != nil {
			return nil, err
		}
	}

	root, err := host.StateMachineCommitment(ctx, proof.Height)
	if err != nil {
		return nil, err
	}
	if err = smClient.VerifyMembership(ctx, api.RequestResponse{Responses: responses}, root, proof); err != nil {
		logger.Debug("response membership verification failed",
			"err", err,
			"height", proof.Height,
		)
		return nil, err
	}

	router := host.Router()
	results := make(api.DispatchResults, 0, len(responses))
	for _, res := range responses {
		req := res.Request()
		digest := api.HashResponse(res)
		seen, err := host.ResponseReceipt(ctx, digest)
		if err != nil {
			return nil, err
		}
		if seen {
			logger.Debug("skipping already processed response",
				"request", req.ID(),
			)
			observeSkipped(kindResponse)
			continue
		}

		result := &api.DispatchResult{
			Commitment: digest,
			Source:     req.Dest(),
			Dest:       req.Source(),
			Nonce:      req.Nonce(),
		}
		results = append(results, result)

		if result.Error = router.HandleResponse(ctx, res); result.Error != nil {
			logger.Warn("router failed to handle response",
				"err", result.Error,
				"request", req.ID(),
			)
			observeItem(kindResponse, result.Error)
			continue
		}
		if err = host.StoreResponseReceipt(ctx, digest); err != nil {
			return nil, err
		}
		observeItem(kindResponse, nil)
	}

	return results, nil
}

func handleGetResponses(ctx context.Context, host api.Host, msg *api.GetResponseMessage) (api.DispatchResults, error) {
	proof := &msg.Proof

	for i := range msg.Requests {
		if err := checkRequestCommitment(ctx, host, api.NewGetRequest(&msg.Requests[i])); err != nil {
			return nil, err
		}
	}

	smClient, err := ValidateStateMachine(ctx, host, proof.Height)
	if err != nil {
		return nil, err
	}
	for i := range msg.Requests {
		req := &msg.Requests[i]
		if err = checkProofMetadata(host, proof, req.Dest, req.Source); err != nil {
			return nil, err
		}
		if proof.Height.Height < req.Height {
			return nil, fmt.Errorf("%w: request %d wants height %d, proof is at %d",
				api.ErrInsufficientProofHeight,
				req.Nonce,
				req.Height,
				proof.Height.Height,
			)
		}
	}

	root, err := host.StateMachineCommitment(ctx, proof.Height)
	if err != nil {
		return nil, err
	}

	// Verify every state proof before dispatching anything.
	responses := make([]*api.Response, 0, len(msg.Requests))
	for i := range msg.Requests {
		req := &msg.Requests[i]
		if len(req.Keys) == 0 {
			return nil, api.ImplementationSpecific("get request %d has no keys", req.Nonce)
		}
		values, err := smClient.VerifyStateProof(ctx, req.Keys, root, proof)
		if err != nil {
			logger.Debug("get response state proof verification failed",
				"err", err,
				"height", proof.Height,
				"nonce", req.Nonce,
			)
			return nil, err
		}
		if len(values) != len(req.Keys) {
			return nil, api.ImplementationSpecific("state proof returned %d values for %d keys", len(values), len(req.Keys))
		}
		responses = append(responses, &api.Response{Get: &api.GetResponse{
			Get:    *req,
			Values: values,
		}})
	}

	now := host.Timestamp(ctx)
	router := host.Router()
	results := make(api.DispatchResults, 0, len(responses))
	for _, res := range responses {
		req := res.Request()
		result := &api.DispatchResult{
			Commitment: api.HashRequest(req),
			Source:     req.Dest(),
			Dest:       req.Source(),
			Nonce:      req.Nonce(),
		}
		results = append(results, result)

		if req.TimedOutAt(now) {
			result.Error = api.ErrRequestTimedOut
			observeItem(kindResponse, result.Error)
			continue
		}

		if result.Error = router.HandleResponse(ctx, res); result.Error != nil {
			logger.Warn("router failed to handle get response",
				"err", result.Error,
				"request", req.ID(),
			)
		}
		observeItem(kindResponse, result.Error)
	}

	return results, nil
}
