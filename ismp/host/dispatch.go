package host

import (
	"context"
	"fmt"

	"github.com/oasisprotocol/ismp/ismp/api"
)

// DispatchPost dispatches an outgoing post request. The source and nonce of
// the request are assigned by the host.
func (h *Host) DispatchPost(ctx context.Context, req api.PostRequest) (*api.PostRequest, error) {
	if req.Dest == "" {
		return nil, fmt.Errorf("%w: missing destination", api.ErrInvalidMessage)
	}

	err := h.update(ctx, func(tx *transaction) error {
		nonce, err := tx.NextNonce(ctx)
		if err != nil {
			return err
		}
		req.Source = h.cfg.StateMachine
		req.Nonce = nonce

		if err = tx.StoreRequestCommitment(ctx, api.NewPostRequest(&req).ID(), api.HashPostRequest(&req)); err != nil {
			return err
		}
		tx.emit(requestEvent(req.Source, req.Dest, nonce))
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Debug("dispatched post request",
		"dest", req.Dest,
		"nonce", req.Nonce,
	)
	return &req, nil
}

// DispatchGet dispatches an outgoing get request. The source and nonce of
// the request are assigned by the host.
func (h *Host) DispatchGet(ctx context.Context, req api.GetRequest) (*api.GetRequest, error) {
	switch {
	case req.Dest == "":
		return nil, fmt.Errorf("%w: missing destination", api.ErrInvalidMessage)
	case len(req.Keys) == 0:
		return nil, fmt.Errorf("%w: get request without keys", api.ErrInvalidMessage)
	}

	err := h.update(ctx, func(tx *transaction) error {
		nonce, err := tx.NextNonce(ctx)
		if err != nil {
			return err
		}
		req.Source = h.cfg.StateMachine
		req.Nonce = nonce

		if err = tx.StoreRequestCommitment(ctx, api.NewGetRequest(&req).ID(), api.HashGetRequest(&req)); err != nil {
			return err
		}
		tx.emit(requestEvent(req.Source, req.Dest, nonce))
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Debug("dispatched get request",
		"dest", req.Dest,
		"nonce", req.Nonce,
		"keys", len(req.Keys),
	)
	return &req, nil
}

// DispatchPostResponse dispatches the response to a received post request.
//
// The request must have been received by this host, must not have timed out
// and may only be responded to once.
func (h *Host) DispatchPostResponse(ctx context.Context, res api.PostResponse) error {
	req := &res.Post
	if req.Dest != h.cfg.StateMachine {
		return fmt.Errorf("%w: request %s is not addressed to %s",
			api.ErrInvalidMessage,
			api.NewPostRequest(req).ID(),
			h.cfg.StateMachine,
		)
	}

	return h.update(ctx, func(tx *transaction) error {
		reqCommitment := api.HashPostRequest(req)
		received, err := tx.RequestReceipt(ctx, reqCommitment)
		if err != nil {
			return err
		}
		if !received {
			return fmt.Errorf("%w: request %s was not received", api.ErrInvalidMessage, api.NewPostRequest(req).ID())
		}
		if api.NewPostRequest(req).TimedOutAt(tx.Timestamp(ctx)) {
			return fmt.Errorf("%w: %s", api.ErrRequestTimedOut, api.NewPostRequest(req).ID())
		}

		respondedKey := respondedKeyFmt.Encode(&reqCommitment)
		responded, err := tx.has(respondedKey)
		if err != nil {
			return err
		}
		if responded {
			return fmt.Errorf("%w: request %s was already responded to", api.ErrInvalidMessage, api.NewPostRequest(req).ID())
		}

		commitment := api.HashPostResponse(&res)
		if err = tx.StoreResponseCommitment(ctx, commitment); err != nil {
			return err
		}
		tx.set(respondedKey, commitment[:])

		tx.emit(&api.Event{
			Response: &api.ResponseEvent{
				DestChain:   req.Source,
				SourceChain: req.Dest,
				Nonce:       req.Nonce,
			},
		})
		return nil
	})
}

func requestEvent(source, dest api.StateMachine, nonce uint64) *api.Event {
	return &api.Event{
		Request: &api.RequestEvent{
			DestChain:   dest,
			SourceChain: source,
			Nonce:       nonce,
		},
	}
}
