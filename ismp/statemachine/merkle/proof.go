package merkle

import (
	"bytes"
	"fmt"

	tmmerkle "github.com/tendermint/tendermint/crypto/merkle"

	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/common/crypto/hash"
)

// StateProof is a batch proof of presence and absence of keys.
type StateProof struct {
	Present []*proofLeaf    `json:"present,omitempty"`
	Absent  []*absenceProof `json:"absent,omitempty"`
}

type proofLeaf struct {
	Key   []byte          `json:"key"`
	Value []byte          `json:"value"`
	Proof *tmmerkle.Proof `json:"proof"`
}

// absenceProof proves a key absent by the adjacent leaves around it. A
// missing neighbour means the key sorts before the first or after the last
// leaf, both missing means the tree is empty.
type absenceProof struct {
	Key   []byte     `json:"key"`
	Left  *proofLeaf `json:"left,omitempty"`
	Right *proofLeaf `json:"right,omitempty"`
}

func (l *proofLeaf) verify(root hash.Hash) error {
	if l.Proof == nil {
		return fmt.Errorf("merkle: missing proof for key %X", l.Key)
	}
	if err := l.Proof.Verify(root[:], encodeLeaf(l.Key, l.Value)); err != nil {
		return fmt.Errorf("merkle: key %X: %w", l.Key, err)
	}
	return nil
}

func (ap *absenceProof) verify(root hash.Hash) error {
	switch {
	case ap.Left == nil && ap.Right == nil:
		if !root.Equal(&emptyRoot) {
			return fmt.Errorf("merkle: key %X: missing neighbours in a non-empty tree", ap.Key)
		}
		return nil
	case ap.Left == nil:
		if ap.Right.Proof == nil || ap.Right.Proof.Index != 0 {
			return fmt.Errorf("merkle: key %X: right neighbour is not the first leaf", ap.Key)
		}
	case ap.Right == nil:
		if ap.Left.Proof == nil || ap.Left.Proof.Index != ap.Left.Proof.Total-1 {
			return fmt.Errorf("merkle: key %X: left neighbour is not the last leaf", ap.Key)
		}
	default:
		if ap.Left.Proof == nil || ap.Right.Proof == nil {
			return fmt.Errorf("merkle: key %X: missing neighbour proof", ap.Key)
		}
		if ap.Left.Proof.Total != ap.Right.Proof.Total || ap.Right.Proof.Index != ap.Left.Proof.Index+1 {
			return fmt.Errorf("merkle: key %X: neighbours are not adjacent", ap.Key)
		}
	}

	if ap.Left != nil {
		if bytes.Compare(ap.Left.Key, ap.Key) >= 0 {
			return fmt.Errorf("merkle: key %X: left neighbour does not sort before", ap.Key)
		}
		if err := ap.Left.verify(root); err != nil {
			return err
		}
	}
	if ap.Right != nil {
		if bytes.Compare(ap.Right.Key, ap.Key) <= 0 {
			return fmt.Errorf("merkle: key %X: right neighbour does not sort after", ap.Key)
		}
		if err := ap.Right.verify(root); err != nil {
			return err
		}
	}
	return nil
}

// leaves returns all leaf proofs carried by the state proof.
func (sp *StateProof) leaves() []*proofLeaf {
	leaves := append([]*proofLeaf{}, sp.Present...)
	for _, ap := range sp.Absent {
		for _, l := range []*proofLeaf{ap.Left, ap.Right} {
			if l != nil {
				leaves = append(leaves, l)
			}
		}
	}
	return leaves
}

// checkTotals ensures all leaf proofs are for a tree of the same size. A
// proof relabelled to another leaf count can still verify against the root,
// which would break neighbour adjacency.
func (sp *StateProof) checkTotals() error {
	total := int64(-1)
	for _, l := range sp.leaves() {
		if l.Proof == nil {
			return fmt.Errorf("merkle: missing proof for key %X", l.Key)
		}
		switch {
		case total == -1:
			total = l.Proof.Total
		case l.Proof.Total != total:
			return fmt.Errorf("merkle: key %X: inconsistent leaf count %d, expected %d", l.Key, l.Proof.Total, total)
		}
	}
	return nil
}

// verifiedValues verifies a serialized state proof and returns the values
// of all keys it covers, absent keys map to nil.
func verifiedValues(raw []byte, root hash.Hash) (map[string][]byte, error) {
	var sp StateProof
	if err := cbor.Unmarshal(raw, &sp); err != nil {
		return nil, fmt.Errorf("merkle: malformed proof: %w", err)
	}
	if err := sp.checkTotals(); err != nil {
		return nil, err
	}

	values := make(map[string][]byte, len(sp.Present)+len(sp.Absent))
	for _, l := range sp.Present {
		if err := l.verify(root); err != nil {
			return nil, err
		}
		values[string(l.Key)] = l.Value
	}
	for _, ap := range sp.Absent {
		if _, ok := values[string(ap.Key)]; ok {
			return nil, fmt.Errorf("merkle: key %X proven both present and absent", ap.Key)
		}
		if err := ap.verify(root); err != nil {
			return nil, err
		}
		values[string(ap.Key)] = nil
	}
	return values, nil
}

var emptyRoot = rootFromBytes(tmmerkle.HashFromByteSlices(nil))
