// Package host implements a reference ISMP host backed by a key-value store.
//
// Every message is processed in its own transaction: handler writes are
// buffered and only committed if the message is accepted, after which the
// resulting events are published to subscribers.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oasisprotocol/ismp/common/errors"
	"github.com/oasisprotocol/ismp/common/logging"
	"github.com/oasisprotocol/ismp/common/pubsub"
	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/handlers"
	"github.com/oasisprotocol/ismp/ismp/host/store"
)

// Config is the host configuration.
type Config struct {
	// StateMachine is the identifier of the local state machine.
	StateMachine api.StateMachine

	// Clock returns the current local time, time.Now if nil.
	Clock func() time.Time
}

// Host is a store backed api.Host.
type Host struct {
	sync.Mutex

	logger *logging.Logger

	cfg     Config
	store   store.Store
	router  api.Router
	clients map[api.ConsensusClientID]api.ConsensusClient

	eventNotifier *pubsub.Broker
}

// RegisterConsensusClient registers the implementation of a consensus
// client. The client still needs to be created by a message before use.
func (h *Host) RegisterConsensusClient(id api.ConsensusClientID, client api.ConsensusClient) error {
	h.Lock()
	defer h.Unlock()

	if _, ok := h.clients[id]; ok {
		return fmt.Errorf("host: consensus client %s already registered", id)
	}
	h.clients[id] = client
	return nil
}

// StateMachine returns the identifier of the local state machine.
func (h *Host) StateMachine() api.StateMachine {
	return h.cfg.StateMachine
}

// Process processes a single inbound message.
//
// All state changes are discarded if an error is returned.
func (h *Host) Process(ctx context.Context, msg *api.Message) (*api.MessageResult, error) {
	h.Lock()
	defer h.Unlock()

	tx := newTransaction(h)
	result, err := handlers.HandleMessage(withTransaction(ctx, tx), tx, msg)
	if err != nil {
		return nil, err
	}

	events := append(api.EventsFromResult(result), tx.events...)
	if err = tx.commit(); err != nil {
		h.logger.Error("failed to commit message",
			"err", err,
			"kind", msg.Kind(),
		)
		return nil, fmt.Errorf("host: failed to commit: %w", err)
	}
	h.publish(events)

	return result, nil
}

// ProcessWithRetry processes a message, retrying with the given backoff for
// as long as it is rejected with a retryable error.
func (h *Host) ProcessWithRetry(ctx context.Context, msg *api.Message, bo backoff.BackOff) (*api.MessageResult, error) {
	var result *api.MessageResult
	op := func() error {
		var err error
		result, err = h.Process(ctx, msg)
		if err != nil && !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		h.logger.Debug("message rejected, retrying",
			"err", err,
			"kind", msg.Kind(),
			"backoff", d,
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return result, nil
}

// WatchEvents returns a channel that produces the events of committed
// messages and dispatched items.
func (h *Host) WatchEvents() (<-chan *api.Event, *pubsub.Subscription) {
	typedCh := make(chan *api.Event)
	sub := h.eventNotifier.Subscribe()
	sub.Unwrap(typedCh)

	return typedCh, sub
}

// Close closes the host and its store.
func (h *Host) Close() error {
	h.Lock()
	defer h.Unlock()

	return h.store.Close()
}

// update runs fn in a write transaction. If the context carries the
// transaction of a message being processed, fn joins it instead.
func (h *Host) update(ctx context.Context, fn func(*transaction) error) error {
	if tx := transactionFromContext(ctx, h); tx != nil {
		return fn(tx)
	}

	h.Lock()
	defer h.Unlock()

	tx := newTransaction(h)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.commit(); err != nil {
		return fmt.Errorf("host: failed to commit: %w", err)
	}
	h.publish(tx.events)
	return nil
}

// view runs fn in a read-only transaction.
func (h *Host) view(ctx context.Context, fn func(*transaction) error) error {
	if tx := transactionFromContext(ctx, h); tx != nil {
		return fn(tx)
	}

	h.Lock()
	defer h.Unlock()

	return fn(newTransaction(h))
}

func (h *Host) publish(events []*api.Event) {
	for _, ev := range events {
		h.eventNotifier.Broadcast(ev)
	}
}

// New creates a new host over the store, dispatching verified items to the
// router.
func New(cfg Config, st store.Store, router api.Router) (*Host, error) {
	if cfg.StateMachine == "" {
		return nil, fmt.Errorf("host: state machine identifier must be set")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Host{
		logger:        logging.GetLogger("ismp/host").With("state_machine", cfg.StateMachine),
		cfg:           cfg,
		store:         st,
		router:        router,
		clients:       make(map[api.ConsensusClientID]api.ConsensusClient),
		eventNotifier: pubsub.NewBroker(false),
	}, nil
}
