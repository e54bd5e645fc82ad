package handlers

import (
	"context"

	"github.com/oasisprotocol/ismp/ismp/api"
)

const kindRequest = "request"

// HandleRequests verifies a batch of incoming requests and routes every
// request that was not processed before.
//
// Requests that already have a receipt are skipped. Requests that timed
// out relative to the host clock are reported as failed items and are not
// routed. A receipt is stored for every successfully routed request.
func HandleRequests(ctx context.Context, host api.Host, msg *api.RequestMessage) (api.DispatchResults, error) {
	proof := &msg.Proof
	smClient, err := ValidateStateMachine(ctx, host, proof.Height)
	if err != nil {
		return nil, err
	}

	requests := make([]*api.Request, 0, len(msg.Requests))
	for i := range msg.Requests {
		req := &msg.Requests[i]
		if err = checkProofMetadata(host, proof, req.Source, req.Dest); err != nil {
			return nil, err
		}
		requests = append(requests, api.NewPostRequest(req))
	}

	root, err := host.StateMachineCommitment(ctx, proof.Height)
	if err != nil {
		return nil, err
	}
	if err = smClient.VerifyMembership(ctx, api.RequestResponse{Requests: requests}, root, proof); err != nil {
		logger.Debug("request membership verification failed",
			"err", err,
			"height", proof.Height,
		)
		return nil, err
	}

	now := host.Timestamp(ctx)
	router := host.Router()
	results := make(api.DispatchResults, 0, len(requests))
	for _, req := range requests {
		digest := api.HashRequest(req)
		seen, err := host.RequestReceipt(ctx, digest)
		if err != nil {
			return nil, err
		}
		if seen {
			logger.Debug("skipping already processed request",
				"request", req.ID(),
			)
			observeSkipped(kindRequest)
			continue
		}

		result := &api.DispatchResult{
			Commitment: digest,
			Source:     req.Source(),
			Dest:       req.Dest(),
			Nonce:      req.Nonce(),
		}
		results = append(results, result)

		if req.TimedOutAt(now) {
			result.Error = api.ErrRequestTimedOut
			observeItem(kindRequest, result.Error)
			continue
		}

		if result.Error = router.HandleRequest(ctx, req); result.Error != nil {
			logger.Warn("router failed to handle request",
				"err", result.Error,
				"request", req.ID(),
			)
			observeItem(kindRequest, result.Error)
			continue
		}
		if err = host.StoreRequestReceipt(ctx, digest); err != nil {
			return nil, err
		}
		observeItem(kindRequest, nil)
	}

	return results, nil
}
