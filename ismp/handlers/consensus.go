package handlers

import (
	"context"
	"fmt"
	"sort"

	"github.com/oasisprotocol/ismp/common/errors"
	"github.com/oasisprotocol/ismp/common/logging"
	"github.com/oasisprotocol/ismp/ismp/api"
)

// LogEventConsensusClientFrozen is a log event value that signals a
// consensus client was frozen by a fraud proof.
const LogEventConsensusClientFrozen = "ismp/handlers/consensus-client-frozen"

// CreateConsensusClient initializes a consensus client from a trusted state
// and its initial state commitments. The message is not proof checked.
func CreateConsensusClient(ctx context.Context, host api.Host, msg *api.CreateConsensusClientMessage) (*api.ConsensusClientCreatedResult, error) {
	id := msg.ConsensusClientID
	if _, err := host.ConsensusClient(id); err != nil {
		return nil, err
	}

	_, err := host.ConsensusState(ctx, id)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", api.ErrConsensusClientExists, id)
	case errors.Is(err, api.ErrConsensusStateNotFound):
	default:
		return nil, err
	}

	for _, smc := range msg.StateMachineCommitments {
		if smc.ID.ConsensusClientID != id {
			return nil, fmt.Errorf("%w: state machine %s is not governed by %s", api.ErrInvalidMessage, smc.ID, id)
		}
	}

	if err = host.StoreConsensusState(ctx, id, msg.ConsensusState); err != nil {
		return nil, err
	}
	if err = host.StoreChallengePeriod(ctx, id, msg.ChallengePeriod); err != nil {
		return nil, err
	}
	if err = host.StoreConsensusUpdateTime(ctx, id, host.Timestamp(ctx)); err != nil {
		return nil, err
	}

	for _, smc := range msg.StateMachineCommitments {
		height := api.StateMachineHeight{ID: smc.ID, Height: smc.Commitment.Height}
		commitment := smc.Commitment.Commitment
		if err = host.StoreStateMachineCommitment(ctx, height, &commitment); err != nil {
			return nil, err
		}

		latest, err := host.LatestCommitmentHeight(ctx, smc.ID)
		if err != nil {
			return nil, err
		}
		if height.Height > latest {
			if err = host.StoreLatestCommitmentHeight(ctx, height); err != nil {
				return nil, err
			}
		}
	}

	logger.Info("created consensus client",
		"consensus_client_id", id,
		"challenge_period", msg.ChallengePeriod,
		"state_machines", len(msg.StateMachineCommitments),
	)

	return &api.ConsensusClientCreatedResult{ConsensusClientID: id}, nil
}

// UpdateConsensusClient verifies a consensus proof against the trusted
// state and persists the new trusted state and the finalized commitments.
//
// Only commitments above the latest stored height of a state machine are
// stored and existing commitments are never overwritten.
func UpdateConsensusClient(ctx context.Context, host api.Host, msg *api.ConsensusMessage) (*api.ConsensusUpdatedResult, error) {
	id := msg.ConsensusClientID
	client, err := host.ConsensusClient(id)
	if err != nil {
		return nil, err
	}

	frozen, err := host.IsConsensusClientFrozen(ctx, id)
	if err != nil {
		return nil, err
	}
	if frozen {
		return nil, &api.FrozenConsensusClientError{ID: id}
	}

	trustedState, err := host.ConsensusState(ctx, id)
	if err != nil {
		return nil, err
	}

	expired, err := IsExpired(ctx, host, id)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, &api.UnbondingPeriodElapsedError{ID: id}
	}

	newState, verified, err := client.VerifyConsensus(ctx, trustedState, msg.ConsensusProof)
	if err != nil {
		logger.Debug("consensus proof verification failed",
			"err", err,
			"consensus_client_id", id,
		)
		return nil, err
	}

	if err = host.StoreConsensusState(ctx, id, newState); err != nil {
		return nil, err
	}
	if err = host.StoreConsensusUpdateTime(ctx, id, host.Timestamp(ctx)); err != nil {
		return nil, err
	}

	result := &api.ConsensusUpdatedResult{ConsensusClientID: id}
	for _, smID := range verified.StateMachines() {
		if smID.ConsensusClientID != id {
			return nil, api.ImplementationSpecific("consensus client %s finalized foreign state machine %s", id, smID)
		}

		update, err := storeCommitments(ctx, host, smID, verified[smID])
		if err != nil {
			return nil, err
		}
		if update != nil {
			result.StateMachines = append(result.StateMachines, *update)
		}
	}

	logger.Info("updated consensus client",
		"consensus_client_id", id,
		"updated_state_machines", len(result.StateMachines),
	)

	return result, nil
}

func storeCommitments(
	ctx context.Context,
	host api.Host,
	id api.StateMachineID,
	commitments []api.StateCommitmentHeight,
) (*api.StateMachineUpdate, error) {
	prev, err := host.LatestCommitmentHeight(ctx, id)
	if err != nil {
		return nil, err
	}

	sorted := append([]api.StateCommitmentHeight{}, commitments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Height < sorted[j].Height
	})

	latest := prev
	for i := range sorted {
		ch := &sorted[i]
		if ch.Height <= latest {
			logger.Debug("ignoring stale state commitment",
				"state_machine", id,
				"height", ch.Height,
				"latest", latest,
			)
			continue
		}

		height := api.StateMachineHeight{ID: id, Height: ch.Height}
		if err = host.StoreStateMachineCommitment(ctx, height, &ch.Commitment); err != nil {
			return nil, err
		}
		latest = ch.Height
	}

	if latest == prev {
		return nil, nil
	}
	if err = host.StoreLatestCommitmentHeight(ctx, api.StateMachineHeight{ID: id, Height: latest}); err != nil {
		return nil, err
	}
	return &api.StateMachineUpdate{
		ID:         id,
		PrevHeight: prev,
		NewHeight:  latest,
	}, nil
}

// HandleFraudProof verifies a fraud proof and freezes the consensus client
// on success. Nothing in this package unfreezes a client.
func HandleFraudProof(ctx context.Context, host api.Host, msg *api.FraudProofMessage) (*api.FrozenConsensusClientResult, error) {
	id := msg.ConsensusClientID
	client, err := host.ConsensusClient(id)
	if err != nil {
		return nil, err
	}

	trustedState, err := host.ConsensusState(ctx, id)
	if err != nil {
		return nil, err
	}

	frozen, err := host.IsConsensusClientFrozen(ctx, id)
	if err != nil {
		return nil, err
	}
	if frozen {
		return nil, &api.FrozenConsensusClientError{ID: id}
	}

	if err = client.VerifyFraudProof(ctx, trustedState, msg.Proof1, msg.Proof2); err != nil {
		logger.Debug("fraud proof verification failed",
			"err", err,
			"consensus_client_id", id,
		)
		return nil, err
	}

	if err = host.FreezeConsensusClient(ctx, id); err != nil {
		return nil, err
	}
	frozenConsensusClients.Inc()

	logger.Warn("froze consensus client on fraud proof",
		"consensus_client_id", id,
		logging.LogEvent, LogEventConsensusClientFrozen,
	)

	return &api.FrozenConsensusClientResult{ConsensusClientID: id}, nil
}

// IsExpired returns true iff the consensus client was not updated within
// its unbonding period.
func IsExpired(ctx context.Context, host api.Host, id api.ConsensusClientID) (bool, error) {
	client, err := host.ConsensusClient(id)
	if err != nil {
		return false, err
	}
	updateTime, err := host.ConsensusUpdateTime(ctx, id)
	if err != nil {
		return false, err
	}
	return host.Timestamp(ctx).Sub(updateTime) > client.UnbondingPeriod(), nil
}
