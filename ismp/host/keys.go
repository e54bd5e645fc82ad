package host

import (
	"encoding/binary"

	"github.com/oasisprotocol/ismp/common/crypto/hash"
	"github.com/oasisprotocol/ismp/common/keyformat"
	"github.com/oasisprotocol/ismp/ismp/api"
)

var (
	// consensusStateKeyFmt is the key format used for trusted consensus
	// states.
	//
	// Value is the opaque consensus state.
	consensusStateKeyFmt = keyformat.New(0x10, uint32(0))
	// updateTimeKeyFmt is the key format used for the time of the last
	// consensus update.
	//
	// Value is CBOR-serialized unix nanoseconds.
	updateTimeKeyFmt = keyformat.New(0x11, uint32(0))
	// challengePeriodKeyFmt is the key format used for challenge periods.
	//
	// Value is a CBOR-serialized time.Duration.
	challengePeriodKeyFmt = keyformat.New(0x12, uint32(0))
	// frozenClientKeyFmt is the key format used for frozen consensus
	// clients.
	frozenClientKeyFmt = keyformat.New(0x13, uint32(0))
	// frozenStateMachineKeyFmt is the key format used for frozen state
	// machines (consensus client, state id).
	//
	// Value is the CBOR-serialized height the state machine is frozen at.
	frozenStateMachineKeyFmt = keyformat.New(0x14, uint32(0), []byte{})
	// stateCommitmentKeyFmt is the key format used for state commitments
	// (consensus client, height, state id).
	//
	// Value is a CBOR-serialized api.StateCommitment.
	stateCommitmentKeyFmt = keyformat.New(0x15, uint32(0), uint64(0), []byte{})
	// latestHeightKeyFmt is the key format used for latest state machine
	// heights (consensus client, state id).
	//
	// Value is the CBOR-serialized height.
	latestHeightKeyFmt = keyformat.New(0x16, uint32(0), []byte{})
	// requestCommitmentKeyFmt is the key format used for outgoing request
	// commitments, keyed by the hash of the request identifier.
	//
	// Value is a CBOR-serialized requestCommitment.
	requestCommitmentKeyFmt = keyformat.New(0x17, &hash.Hash{})
	// responseCommitmentKeyFmt is the key format used for outgoing response
	// commitments.
	responseCommitmentKeyFmt = keyformat.New(0x18, &hash.Hash{})
	// requestReceiptKeyFmt is the key format used for incoming request
	// receipts.
	requestReceiptKeyFmt = keyformat.New(0x19, &hash.Hash{})
	// responseReceiptKeyFmt is the key format used for incoming response
	// receipts.
	responseReceiptKeyFmt = keyformat.New(0x1a, &hash.Hash{})
	// nonceKeyFmt is the key format used for the next outgoing nonce.
	//
	// Value is the CBOR-serialized nonce.
	nonceKeyFmt = keyformat.New(0x1b)
	// respondedKeyFmt is the key format used for received requests that
	// were responded to, keyed by the request commitment.
	//
	// Value is the response commitment.
	respondedKeyFmt = keyformat.New(0x1c, &hash.Hash{})

	flagValue = []byte{0x01}
)

type requestCommitment struct {
	ID         api.RequestID `json:"id"`
	Commitment hash.Hash     `json:"commitment"`
}

func clientKey(id api.ConsensusClientID) uint32 {
	return binary.BigEndian.Uint32(id[:])
}

func clientFromKey(v uint32) (id api.ConsensusClientID) {
	binary.BigEndian.PutUint32(id[:], v)
	return
}

func requestIDKey(id api.RequestID) *hash.Hash {
	h := hash.NewFrom(id)
	return &h
}
