package merkle

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/google/btree"
	tmmerkle "github.com/tendermint/tendermint/crypto/merkle"

	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/common/crypto/hash"
)

const btreeDegree = 16

type treeEntry struct {
	key   []byte
	value []byte
}

func (e *treeEntry) Less(than btree.Item) bool {
	return bytes.Compare(e.key, than.(*treeEntry).key) < 0
}

// Tree is an in-memory sorted key-value map committed to by a binary
// merkle tree over its entries in key order.
type Tree struct {
	entries *btree.BTree
}

// Insert inserts or replaces the value of a key.
func (t *Tree) Insert(key, value []byte) {
	t.entries.ReplaceOrInsert(&treeEntry{
		key:   append([]byte{}, key...),
		value: append([]byte{}, value...),
	})
}

// Remove removes a key.
func (t *Tree) Remove(key []byte) {
	t.entries.Delete(&treeEntry{key: key})
}

// Get returns the value of a key, nil if the key is absent.
func (t *Tree) Get(key []byte) []byte {
	item := t.entries.Get(&treeEntry{key: key})
	if item == nil {
		return nil
	}
	return item.(*treeEntry).value
}

// Len returns the number of entries.
func (t *Tree) Len() int {
	return t.entries.Len()
}

// Root returns the merkle root over all entries.
func (t *Tree) Root() hash.Hash {
	_, leaves := t.leaves()
	return rootFromBytes(tmmerkle.HashFromByteSlices(leaves))
}

// Prove generates a proof for the presence or absence of each of the keys.
func (t *Tree) Prove(keys [][]byte) ([]byte, error) {
	entries, leaves := t.leaves()

	var proofs []*tmmerkle.Proof
	if len(leaves) > 0 {
		_, proofs = tmmerkle.ProofsFromByteSlices(leaves)
	}
	leafAt := func(i int) *proofLeaf {
		return &proofLeaf{
			Key:   entries[i].key,
			Value: entries[i].value,
			Proof: proofs[i],
		}
	}

	var sp StateProof
	for _, key := range keys {
		i := sort.Search(len(entries), func(i int) bool {
			return bytes.Compare(entries[i].key, key) >= 0
		})
		if i < len(entries) && bytes.Equal(entries[i].key, key) {
			sp.Present = append(sp.Present, leafAt(i))
			continue
		}

		ap := &absenceProof{Key: key}
		if i > 0 {
			ap.Left = leafAt(i - 1)
		}
		if i < len(entries) {
			ap.Right = leafAt(i)
		}
		sp.Absent = append(sp.Absent, ap)
	}

	return cbor.Marshal(&sp), nil
}

func (t *Tree) leaves() ([]*treeEntry, [][]byte) {
	entries := make([]*treeEntry, 0, t.entries.Len())
	leaves := make([][]byte, 0, t.entries.Len())
	t.entries.Ascend(func(item btree.Item) bool {
		e := item.(*treeEntry)
		entries = append(entries, e)
		leaves = append(leaves, encodeLeaf(e.key, e.value))
		return true
	})
	return entries, leaves
}

// NewTree creates a new empty tree.
func NewTree() *Tree {
	return &Tree{
		entries: btree.New(btreeDegree),
	}
}

// encodeLeaf encodes an entry as a length-prefixed key followed by the value.
func encodeLeaf(key, value []byte) []byte {
	leaf := make([]byte, 4, 4+len(key)+len(value))
	binary.BigEndian.PutUint32(leaf, uint32(len(key)))
	leaf = append(leaf, key...)
	return append(leaf, value...)
}

func rootFromBytes(b []byte) (h hash.Hash) {
	copy(h[:], b)
	return
}
