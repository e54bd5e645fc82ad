package committee

import (
	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/common/crypto/signature"
)

// SignHeader signs a header with the given committee members and returns the
// serialized consensus proof.
func SignHeader(signers []signature.Signer, header *Header) ([]byte, error) {
	signed, err := signature.SignMultiSigned(signers, HeaderSignatureContext, header)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(signed), nil
}

// NewTrustedState returns the serialized initial consensus state trusting the
// given committee.
func NewTrustedState(height, timestamp uint64, committee []signature.PublicKey) []byte {
	return cbor.Marshal(&TrustedState{
		Height:    height,
		Timestamp: timestamp,
		Committee: committee,
	})
}

// PublicKeys returns the public keys of the signers.
func PublicKeys(signers []signature.Signer) []signature.PublicKey {
	pks := make([]signature.PublicKey, 0, len(signers))
	for _, s := range signers {
		pks = append(pks, s.Public())
	}
	return pks
}
