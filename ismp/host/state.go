package host

import (
	"context"

	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/common/crypto/hash"
	"github.com/oasisprotocol/ismp/common/keyformat"
	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/statemachine/merkle"
)

// StateTree returns a merkle tree over the committed request and response
// commitments and receipts, as seen by counterparties verifying this host
// with the merkle state machine client.
func (h *Host) StateTree(ctx context.Context) (*merkle.Tree, error) {
	tree := merkle.NewTree()
	err := h.view(ctx, func(tx *transaction) error {
		var iterErr error
		err := tx.iterate(requestCommitmentKeyFmt.Encode(), func(_, value []byte) bool {
			var rc requestCommitment
			if iterErr = cbor.Unmarshal(value, &rc); iterErr != nil {
				return false
			}
			tree.Insert(merkle.RequestCommitmentKey(rc.Commitment), rc.Commitment[:])
			return true
		})
		if err != nil {
			return err
		}
		if iterErr != nil {
			return iterErr
		}

		for _, m := range []struct {
			kf    *keyformat.KeyFormat
			key   func(hash.Hash) []byte
			value func(hash.Hash) []byte
		}{
			{responseCommitmentKeyFmt, merkle.ResponseCommitmentKey, func(h hash.Hash) []byte { return h[:] }},
			{requestReceiptKeyFmt, merkle.RequestReceiptKey, func(hash.Hash) []byte { return merkle.ReceiptValue }},
			{responseReceiptKeyFmt, merkle.ResponseReceiptKey, func(hash.Hash) []byte { return merkle.ReceiptValue }},
		} {
			m := m
			err = tx.iterate(m.kf.Encode(), func(key, _ []byte) bool {
				var commitment hash.Hash
				if m.kf.Decode(key, &commitment) {
					tree.Insert(m.key(commitment), m.value(commitment))
				}
				return true
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// StateCommitment returns the current state commitment of this host.
func (h *Host) StateCommitment(ctx context.Context) (*api.StateCommitment, error) {
	tree, err := h.StateTree(ctx)
	if err != nil {
		return nil, err
	}
	return &api.StateCommitment{
		Timestamp: uint64(h.cfg.Clock().Unix()),
		StateRoot: tree.Root(),
	}, nil
}

// ProveState returns a merkle proof for the keys against the current state
// commitment.
func (h *Host) ProveState(ctx context.Context, keys [][]byte) ([]byte, error) {
	tree, err := h.StateTree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Prove(keys)
}
