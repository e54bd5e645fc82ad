// Package pubsub implements a generic publish-subscribe interface.
package pubsub

import (
	"reflect"
	"sync"

	"github.com/eapache/channels"
)

// OnSubscribeHook is a hook invoked with the new subscription's channel,
// under the broker lock, before the subscription is handed to the caller.
type OnSubscribeHook func(channels.Channel)

// Subscription is a Broker subscription instance.
type Subscription struct {
	b  *Broker
	ch channels.Channel
}

// Untyped returns the subscription's untyped output.  Effort should be
// made to use Unwrap instead.
func (s *Subscription) Untyped() <-chan interface{} {
	return s.ch.Out()
}

// Unwrap ties the read end of the provided channel to the subscription's
// output.  The provided channel is closed once the subscription is closed.
func (s *Subscription) Unwrap(ch interface{}) {
	chv := reflect.ValueOf(ch)
	if chv.Kind() != reflect.Chan || chv.Type().ChanDir()&reflect.SendDir == 0 {
		panic("pubsub: Unwrap called with a non-sendable channel")
	}

	go func() {
		defer chv.Close()
		for v := range s.ch.Out() {
			chv.Send(reflect.ValueOf(v))
		}
	}()
}

// Close unsubscribes from the Broker.
func (s *Subscription) Close() {
	s.b.Lock()
	defer s.b.Unlock()

	if _, ok := s.b.subscribers[s.ch]; !ok {
		return
	}
	delete(s.b.subscribers, s.ch)
	s.ch.Close()
}

// Broker is a pub/sub broker instance.
type Broker struct {
	sync.Mutex

	subscribers map[channels.Channel]bool

	onSubscribeHook    OnSubscribeHook
	pubLastOnSubscribe bool
	lastValue          interface{}
	hasLastValue       bool
}

// Subscribe subscribes to the Broker's broadcasts, and returns a
// subscription handle that can be used to receive broadcasts.
//
// Note: The returned subscription's channel will have an unbounded
// capacity, use SubscribeBuffered to use a bounded ring channel.
func (b *Broker) Subscribe() *Subscription {
	return b.SubscribeBuffered(int64(channels.Infinity))
}

// SubscribeBuffered subscribes to the Broker's broadcasts, and returns a
// subscription handle that can be used to receive broadcasts.
//
// Buffer controls the capacity of a ring buffer, when the buffer is full,
// older items are removed to make room for the new item.
func (b *Broker) SubscribeBuffered(buffer int64) *Subscription {
	return b.SubscribeEx(buffer, nil)
}

// SubscribeEx subscribes to the Broker's broadcasts, and returns a
// subscription handle that can be used to receive broadcasts.  In
// addition it invokes a hook on the new subscription channel.
func (b *Broker) SubscribeEx(buffer int64, onSubscribeHook OnSubscribeHook) *Subscription {
	var ch channels.Channel
	switch {
	case buffer == int64(channels.Infinity):
		ch = channels.NewInfiniteChannel()
	case buffer > 0:
		ch = channels.NewRingChannel(channels.BufferCap(buffer))
	default:
		panic("pubsub: invalid subscription buffer size")
	}

	b.Lock()
	defer b.Unlock()

	b.subscribers[ch] = true
	if b.pubLastOnSubscribe && b.hasLastValue {
		ch.In() <- b.lastValue
	}
	if b.onSubscribeHook != nil {
		b.onSubscribeHook(ch)
	}
	if onSubscribeHook != nil {
		onSubscribeHook(ch)
	}

	return &Subscription{
		b:  b,
		ch: ch,
	}
}

// Broadcast broadcasts an interface{} to all subscribers.
func (b *Broker) Broadcast(v interface{}) {
	b.Lock()
	defer b.Unlock()

	b.lastValue = v
	b.hasLastValue = true
	for ch := range b.subscribers {
		ch.In() <- v
	}
}

// NewBroker creates a new pub/sub broker.  If pubLastOnSubscribe is set,
// the last broadcasted value will automatically be published to new
// subscribers, if one exists.
func NewBroker(pubLastOnSubscribe bool) *Broker {
	return &Broker{
		subscribers:        make(map[channels.Channel]bool),
		pubLastOnSubscribe: pubLastOnSubscribe,
	}
}

// NewBrokerEx creates a new pub/sub broker that invokes a hook on every
// new subscription channel.
func NewBrokerEx(onSubscribeHook OnSubscribeHook) *Broker {
	b := NewBroker(false)
	b.onSubscribeHook = onSubscribeHook
	return b
}
