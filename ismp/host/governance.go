package host

import (
	"context"

	"github.com/oasisprotocol/ismp/ismp/api"
)

// UnfreezeConsensusClient unfreezes a consensus client frozen by a fraud
// proof.
func (h *Host) UnfreezeConsensusClient(ctx context.Context, id api.ConsensusClientID) error {
	err := h.update(ctx, func(tx *transaction) error {
		if _, err := tx.ConsensusState(ctx, id); err != nil {
			return err
		}
		tx.remove(frozenClientKeyFmt.Encode(clientKey(id)))
		return nil
	})
	if err != nil {
		return err
	}

	h.logger.Info("unfroze consensus client",
		"client", id,
	)
	return nil
}

// FreezeStateMachine freezes a state machine at and above the height.
func (h *Host) FreezeStateMachine(ctx context.Context, height api.StateMachineHeight) error {
	err := h.update(ctx, func(tx *transaction) error {
		return tx.FreezeStateMachine(ctx, height)
	})
	if err != nil {
		return err
	}

	h.logger.Info("froze state machine",
		"height", height,
	)
	return nil
}

// UnfreezeStateMachine unfreezes a frozen state machine.
func (h *Host) UnfreezeStateMachine(ctx context.Context, id api.StateMachineID) error {
	err := h.update(ctx, func(tx *transaction) error {
		tx.remove(frozenStateMachineKeyFmt.Encode(clientKey(id.ConsensusClientID), []byte(id.StateID)))
		return nil
	})
	if err != nil {
		return err
	}

	h.logger.Info("unfroze state machine",
		"state_machine", id,
	)
	return nil
}
