package handlers

import (
	"context"
	"fmt"

	"github.com/oasisprotocol/ismp/ismp/api"
)

// ValidateStateMachine checks that proofs at the given height may be
// verified and returns the state machine client to verify them with.
//
// It fails if the governing consensus client is frozen, if the state
// machine is frozen at the height, or unless strictly more than the
// challenge period passed since the last consensus update.
func ValidateStateMachine(ctx context.Context, host api.Host, height api.StateMachineHeight) (api.StateMachineClient, error) {
	id := height.ID.ConsensusClientID

	frozen, err := host.IsConsensusClientFrozen(ctx, id)
	if err != nil {
		return nil, err
	}
	if frozen {
		return nil, &api.FrozenConsensusClientError{ID: id}
	}

	frozen, err = host.IsStateMachineFrozen(ctx, height)
	if err != nil {
		return nil, err
	}
	if frozen {
		return nil, &api.FrozenStateMachineError{Height: height}
	}

	now := host.Timestamp(ctx)
	updateTime, err := host.ConsensusUpdateTime(ctx, id)
	if err != nil {
		return nil, err
	}
	challengePeriod, err := host.ChallengePeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if now.Sub(updateTime) <= challengePeriod {
		return nil, &api.ChallengePeriodNotElapsedError{
			ID:              id,
			CurrentTime:     now,
			UpdateTime:      updateTime,
			ChallengePeriod: challengePeriod,
		}
	}

	client, err := host.ConsensusClient(id)
	if err != nil {
		return nil, err
	}
	smClient, err := client.StateMachine(height.ID.StateID)
	if err != nil {
		return nil, fmt.Errorf("ismp: state machine %s: %w", height.ID, err)
	}
	return smClient, nil
}

// checkRequestCommitment fails unless the stored commitment of an outgoing
// request equals its digest.
func checkRequestCommitment(ctx context.Context, host api.Host, req *api.Request) error {
	stored, err := host.RequestCommitment(ctx, req.ID())
	switch {
	case err == nil:
	case api.IsNotFound(err):
		return commitmentNotFound(req)
	default:
		return err
	}

	if digest := api.HashRequest(req); !stored.Equal(&digest) {
		return commitmentNotFound(req)
	}
	return nil
}

func commitmentNotFound(req *api.Request) error {
	return &api.RequestCommitmentNotFoundError{
		Nonce:  req.Nonce(),
		Source: req.Source(),
		Dest:   req.Dest(),
	}
}

// checkProofMetadata fails unless the remote end of a batch item is the
// proof state machine and the local end is this host.
func checkProofMetadata(host api.Host, proof *api.Proof, remote, local api.StateMachine) error {
	if remote != proof.Height.ID.StateID || local != host.HostStateMachine() {
		return fmt.Errorf("%w: remote %s, local %s, proof from %s",
			api.ErrInvalidProofMetadata,
			remote,
			local,
			proof.Height.ID,
		)
	}
	return nil
}
