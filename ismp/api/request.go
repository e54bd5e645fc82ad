package api

import (
	"fmt"
	"time"
)

// PostRequest is a request carrying an opaque payload to a module on the
// destination state machine.
type PostRequest struct {
	Source           StateMachine `json:"source"`
	Dest             StateMachine `json:"dest"`
	Nonce            uint64       `json:"nonce"`
	From             []byte       `json:"from"`
	To               []byte       `json:"to"`
	TimeoutTimestamp uint64       `json:"timeout_timestamp"`
	Data             []byte       `json:"data"`
}

// GetRequest is a request to read keys from the destination state machine
// at a given height.
type GetRequest struct {
	Source           StateMachine `json:"source"`
	Dest             StateMachine `json:"dest"`
	Nonce            uint64       `json:"nonce"`
	From             []byte       `json:"from"`
	Keys             [][]byte     `json:"keys"`
	Height           uint64       `json:"height"`
	TimeoutTimestamp uint64       `json:"timeout_timestamp"`
}

// Request is either a PostRequest or a GetRequest.
type Request struct {
	Post *PostRequest `json:"post,omitempty"`
	Get  *GetRequest  `json:"get,omitempty"`
}

// NewPostRequest wraps a post request.
func NewPostRequest(req *PostRequest) *Request {
	return &Request{Post: req}
}

// NewGetRequest wraps a get request.
func NewGetRequest(req *GetRequest) *Request {
	return &Request{Get: req}
}

// ValidateBasic checks that exactly one variant is set.
func (r *Request) ValidateBasic() error {
	if (r.Post == nil) == (r.Get == nil) {
		return fmt.Errorf("%w: request must be exactly one of post or get", ErrInvalidMessage)
	}
	return nil
}

// Source returns the state machine the request originates from.
func (r *Request) Source() StateMachine {
	if r.Get != nil {
		return r.Get.Source
	}
	return r.Post.Source
}

// Dest returns the state machine the request is sent to.
func (r *Request) Dest() StateMachine {
	if r.Get != nil {
		return r.Get.Dest
	}
	return r.Post.Dest
}

// Nonce returns the request nonce.
func (r *Request) Nonce() uint64 {
	if r.Get != nil {
		return r.Get.Nonce
	}
	return r.Post.Nonce
}

// From returns the sending module identifier.
func (r *Request) From() []byte {
	if r.Get != nil {
		return r.Get.From
	}
	return r.Post.From
}

// TimeoutTimestamp returns the timeout in seconds since the UNIX epoch,
// zero meaning the request never times out.
func (r *Request) TimeoutTimestamp() uint64 {
	if r.Get != nil {
		return r.Get.TimeoutTimestamp
	}
	return r.Post.TimeoutTimestamp
}

// ID returns the identifier the request commitment is stored under.
func (r *Request) ID() RequestID {
	return RequestID{
		Source: r.Source(),
		Dest:   r.Dest(),
		Nonce:  r.Nonce(),
	}
}

// TimedOut returns true iff the request has timed out at the given time,
// expressed in seconds since the UNIX epoch.
func (r *Request) TimedOut(now uint64) bool {
	timeout := r.TimeoutTimestamp()
	return timeout != 0 && timeout <= now
}

// TimedOutAt is TimedOut for a wall clock time.
func (r *Request) TimedOutAt(now time.Time) bool {
	return r.TimedOut(unixSeconds(now))
}

// RequestID identifies an outgoing request.
type RequestID struct {
	Source StateMachine `json:"source"`
	Dest   StateMachine `json:"dest"`
	Nonce  uint64       `json:"nonce"`
}

// String returns a string representation of the request identifier.
func (id RequestID) String() string {
	return fmt.Sprintf("%s->%s#%d", id.Source, id.Dest, id.Nonce)
}

// PostResponse is a response to a PostRequest.
type PostResponse struct {
	Post     PostRequest `json:"post"`
	Response []byte      `json:"response"`
}

// GetResponse is a response to a GetRequest with the values recovered from
// a state proof.
type GetResponse struct {
	Get    GetRequest     `json:"get"`
	Values []StorageValue `json:"values"`
}

// Response is either a PostResponse or a GetResponse.
type Response struct {
	Post *PostResponse `json:"post,omitempty"`
	Get  *GetResponse  `json:"get,omitempty"`
}

// ValidateBasic checks that exactly one variant is set.
func (r *Response) ValidateBasic() error {
	if (r.Post == nil) == (r.Get == nil) {
		return fmt.Errorf("%w: response must be exactly one of post or get", ErrInvalidMessage)
	}
	return nil
}

// Request returns the request this is a response to.
func (r *Response) Request() *Request {
	if r.Get != nil {
		return NewGetRequest(&r.Get.Get)
	}
	return NewPostRequest(&r.Post.Post)
}

func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
