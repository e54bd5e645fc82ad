package host

import (
	"context"
	"time"

	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/handlers"
)

// StateMachineStatus is the status of a state machine tracked by a consensus
// client.
type StateMachineStatus struct {
	ID           api.StateMachineID `json:"id"`
	LatestHeight uint64             `json:"latest_height"`
	FrozenHeight *uint64            `json:"frozen_height,omitempty"`
}

// ConsensusClientStatus is the status of a consensus client.
type ConsensusClientStatus struct {
	ID              api.ConsensusClientID `json:"id"`
	Frozen          bool                  `json:"frozen"`
	Expired         bool                  `json:"expired"`
	UpdateTime      time.Time             `json:"update_time"`
	ChallengePeriod time.Duration         `json:"challenge_period"`
	StateMachines   []StateMachineStatus  `json:"state_machines"`
}

// ConsensusClients returns the identifiers of all created consensus clients.
func (h *Host) ConsensusClients(ctx context.Context) ([]api.ConsensusClientID, error) {
	var ids []api.ConsensusClientID
	err := h.view(ctx, func(tx *transaction) error {
		return tx.iterate(consensusStateKeyFmt.Encode(), func(key, _ []byte) bool {
			var raw uint32
			if consensusStateKeyFmt.Decode(key, &raw) {
				ids = append(ids, clientFromKey(raw))
			}
			return true
		})
	})
	return ids, err
}

// ConsensusClientStatus returns the status of a created consensus client.
func (h *Host) ConsensusClientStatus(ctx context.Context, id api.ConsensusClientID) (*ConsensusClientStatus, error) {
	var status *ConsensusClientStatus
	err := h.view(ctx, func(tx *transaction) error {
		if _, err := tx.ConsensusState(ctx, id); err != nil {
			return err
		}

		st := ConsensusClientStatus{ID: id}
		var err error
		if st.Frozen, err = tx.IsConsensusClientFrozen(ctx, id); err != nil {
			return err
		}
		if st.UpdateTime, err = tx.ConsensusUpdateTime(ctx, id); err != nil {
			return err
		}
		if st.ChallengePeriod, err = tx.ChallengePeriod(ctx, id); err != nil {
			return err
		}
		if st.Expired, err = handlers.IsExpired(ctx, tx, id); err != nil {
			return err
		}

		var iterErr error
		err = tx.iterate(latestHeightKeyFmt.Encode(clientKey(id)), func(key, value []byte) bool {
			var (
				raw     uint32
				stateID []byte
				height  uint64
			)
			if !latestHeightKeyFmt.Decode(key, &raw, &stateID) {
				return true
			}
			if iterErr = cbor.Unmarshal(value, &height); iterErr != nil {
				return false
			}
			st.StateMachines = append(st.StateMachines, StateMachineStatus{
				ID: api.StateMachineID{
					StateID:           api.StateMachine(stateID),
					ConsensusClientID: id,
				},
				LatestHeight: height,
			})
			return true
		})
		if err != nil {
			return err
		}
		if iterErr != nil {
			return iterErr
		}

		for i := range st.StateMachines {
			frozenAt, ok, err := tx.frozenHeight(st.StateMachines[i].ID)
			if err != nil {
				return err
			}
			if ok {
				st.StateMachines[i].FrozenHeight = &frozenAt
			}
		}

		status = &st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// StateMachineCommitment returns a stored state commitment.
func (h *Host) StateMachineCommitment(ctx context.Context, height api.StateMachineHeight) (*api.StateCommitment, error) {
	var commitment *api.StateCommitment
	err := h.view(ctx, func(tx *transaction) error {
		var err error
		commitment, err = tx.StateMachineCommitment(ctx, height)
		return err
	})
	return commitment, err
}

// OutgoingRequests returns the identifiers of all outgoing requests whose
// commitments are stored, timed out requests excluded.
func (h *Host) OutgoingRequests(ctx context.Context) ([]api.RequestID, error) {
	var ids []api.RequestID
	err := h.view(ctx, func(tx *transaction) error {
		var iterErr error
		err := tx.iterate(requestCommitmentKeyFmt.Encode(), func(_, value []byte) bool {
			var rc requestCommitment
			if iterErr = cbor.Unmarshal(value, &rc); iterErr != nil {
				return false
			}
			ids = append(ids, rc.ID)
			return true
		})
		if err != nil {
			return err
		}
		return iterErr
	})
	return ids, err
}
