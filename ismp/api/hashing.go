package api

import (
	"encoding/binary"

	"github.com/oasisprotocol/ismp/common/crypto/hash"
)

// HashRequest computes the commitment of a request.
//
// The encoding is the concatenation of the source and destination state
// machine identifiers, the nonce and the timeout timestamp followed by the
// request payload. Integers are big-endian 64-bit and every variable length
// field is prefixed with its big-endian 64-bit length.
func HashRequest(req *Request) hash.Hash {
	b := hash.NewBuilder()
	encodeRequest(b, req)
	return b.Build()
}

// HashResponse computes the commitment of a response.
//
// Post responses hash the encoding of the request followed by the response
// bytes. Get responses are never committed and hash to the zero digest.
func HashResponse(res *Response) hash.Hash {
	if res.Post == nil {
		return hash.Hash{}
	}

	b := hash.NewBuilder()
	encodeRequest(b, NewPostRequest(&res.Post.Post))
	writeBytes(b, res.Post.Response)
	return b.Build()
}

// HashPostRequest is HashRequest for a bare post request.
func HashPostRequest(req *PostRequest) hash.Hash {
	return HashRequest(NewPostRequest(req))
}

// HashGetRequest is HashRequest for a bare get request.
func HashGetRequest(req *GetRequest) hash.Hash {
	return HashRequest(NewGetRequest(req))
}

// HashPostResponse is HashResponse for a bare post response.
func HashPostResponse(res *PostResponse) hash.Hash {
	return HashResponse(&Response{Post: res})
}

func encodeRequest(b *hash.Builder, req *Request) {
	writeBytes(b, []byte(req.Source()))
	writeBytes(b, []byte(req.Dest()))
	writeUint64(b, req.Nonce())
	writeUint64(b, req.TimeoutTimestamp())

	switch {
	case req.Post != nil:
		writeBytes(b, req.Post.From)
		writeBytes(b, req.Post.To)
		writeBytes(b, req.Post.Data)
	case req.Get != nil:
		writeBytes(b, req.Get.From)
		writeUint64(b, uint64(len(req.Get.Keys)))
		for _, key := range req.Get.Keys {
			writeBytes(b, key)
		}
		writeUint64(b, req.Get.Height)
	}
}

func writeUint64(b *hash.Builder, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, _ = b.Write(buf[:])
}

func writeBytes(b *hash.Builder, data []byte) {
	writeUint64(b, uint64(len(data)))
	_, _ = b.Write(data)
}
