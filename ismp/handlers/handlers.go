// Package handlers implements the message handlers that verify inbound
// messages against a host and dispatch verified items to its router.
package handlers

import (
	"context"

	"github.com/oasisprotocol/ismp/common/logging"
	"github.com/oasisprotocol/ismp/ismp/api"
)

var logger = logging.GetLogger("ismp/handlers")

// HandleMessage processes a single inbound message.
//
// Any returned error means the message was rejected as a whole. Per-item
// router failures of a verified batch are reported in the result instead.
// The host is expected to discard all mutations when an error is returned.
func HandleMessage(ctx context.Context, host api.Host, msg *api.Message) (*api.MessageResult, error) {
	kind := msg.Kind()
	if err := msg.ValidateBasic(); err != nil {
		processedMessages.WithLabelValues(kind, outcomeFailure).Inc()
		return nil, err
	}

	var (
		result api.MessageResult
		err    error
	)
	switch {
	case msg.CreateConsensusClient != nil:
		result.ConsensusClientCreated, err = CreateConsensusClient(ctx, host, msg.CreateConsensusClient)
	case msg.Consensus != nil:
		result.ConsensusUpdated, err = UpdateConsensusClient(ctx, host, msg.Consensus)
	case msg.FraudProof != nil:
		result.FrozenConsensusClient, err = HandleFraudProof(ctx, host, msg.FraudProof)
	case msg.Request != nil:
		result.Request, err = HandleRequests(ctx, host, msg.Request)
	case msg.Response != nil:
		result.Response, err = HandleResponses(ctx, host, msg.Response)
	case msg.Timeout != nil:
		result.Timeout, err = HandleTimeouts(ctx, host, msg.Timeout)
	}
	if err != nil {
		logger.Debug("message rejected",
			"err", err,
			"kind", kind,
		)
		processedMessages.WithLabelValues(kind, outcomeFailure).Inc()
		return nil, err
	}
	processedMessages.WithLabelValues(kind, outcomeSuccess).Inc()

	return &result, nil
}
