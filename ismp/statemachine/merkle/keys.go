package merkle

import (
	"github.com/oasisprotocol/ismp/common/crypto/hash"
	"github.com/oasisprotocol/ismp/common/keyformat"
	"github.com/oasisprotocol/ismp/ismp/api"
)

var (
	// requestCommitmentKeyFmt is the key format used for outgoing request
	// commitments.
	//
	// Value is the commitment.
	requestCommitmentKeyFmt = keyformat.New(0x01, &hash.Hash{})
	// responseCommitmentKeyFmt is the key format used for outgoing response
	// commitments.
	//
	// Value is the commitment.
	responseCommitmentKeyFmt = keyformat.New(0x02, &hash.Hash{})
	// requestReceiptKeyFmt is the key format used for receipts of
	// processed incoming requests.
	//
	// Value is ReceiptValue.
	requestReceiptKeyFmt = keyformat.New(0x03, &hash.Hash{})
	// responseReceiptKeyFmt is the key format used for receipts of
	// processed incoming responses.
	//
	// Value is ReceiptValue.
	responseReceiptKeyFmt = keyformat.New(0x04, &hash.Hash{})
)

// ReceiptValue is the value stored under receipt keys.
var ReceiptValue = []byte{0x01}

// RequestCommitmentKey returns the key of an outgoing request commitment.
func RequestCommitmentKey(commitment hash.Hash) []byte {
	return requestCommitmentKeyFmt.Encode(&commitment)
}

// ResponseCommitmentKey returns the key of an outgoing response commitment.
func ResponseCommitmentKey(commitment hash.Hash) []byte {
	return responseCommitmentKeyFmt.Encode(&commitment)
}

// RequestReceiptKey returns the key of an incoming request receipt.
func RequestReceiptKey(commitment hash.Hash) []byte {
	return requestReceiptKeyFmt.Encode(&commitment)
}

// ResponseReceiptKey returns the key of an incoming response receipt.
func ResponseReceiptKey(commitment hash.Hash) []byte {
	return responseReceiptKeyFmt.Encode(&commitment)
}

func requestLeaf(req *api.Request) (key, value []byte) {
	commitment := api.HashRequest(req)
	return RequestCommitmentKey(commitment), commitment[:]
}

func responseLeaf(res *api.Response) (key, value []byte) {
	commitment := api.HashResponse(res)
	return ResponseCommitmentKey(commitment), commitment[:]
}
