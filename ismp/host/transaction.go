package host

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oasisprotocol/ismp/common/cbor"
	"github.com/oasisprotocol/ismp/common/crypto/hash"
	"github.com/oasisprotocol/ismp/ismp/api"
)

var _ api.Host = (*transaction)(nil)

type txContextKey struct{}

// transaction buffers all writes made while processing a single message
// so that they are committed atomically or not at all.
type transaction struct {
	host *Host

	writes  map[string][]byte
	deleted map[string]bool

	events []*api.Event
}

func (tx *transaction) get(key []byte) ([]byte, error) {
	k := string(key)
	if tx.deleted[k] {
		return nil, nil
	}
	if v, ok := tx.writes[k]; ok {
		return v, nil
	}
	return tx.host.store.Get(key)
}

func (tx *transaction) getCBOR(key []byte, dst interface{}) (bool, error) {
	raw, err := tx.get(key)
	if err != nil || raw == nil {
		return false, err
	}
	if err = cbor.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("host: corrupted value under key %X: %w", key, err)
	}
	return true, nil
}

func (tx *transaction) has(key []byte) (bool, error) {
	raw, err := tx.get(key)
	return raw != nil, err
}

func (tx *transaction) set(key, value []byte) {
	k := string(key)
	delete(tx.deleted, k)
	tx.writes[k] = value
}

func (tx *transaction) setCBOR(key []byte, src interface{}) {
	tx.set(key, cbor.Marshal(src))
}

func (tx *transaction) remove(key []byte) {
	k := string(key)
	delete(tx.writes, k)
	tx.deleted[k] = true
}

func (tx *transaction) emit(ev *api.Event) {
	tx.events = append(tx.events, ev)
}

// commit writes the buffered mutations to the store in key order.
func (tx *transaction) commit() error {
	if len(tx.writes) == 0 && len(tx.deleted) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tx.writes)+len(tx.deleted))
	for k := range tx.writes {
		keys = append(keys, k)
	}
	for k := range tx.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := tx.host.store.NewBatch()
	defer batch.Close()

	for _, k := range keys {
		var err error
		if tx.deleted[k] {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Set([]byte(k), tx.writes[k])
		}
		if err != nil {
			return err
		}
	}
	return batch.Write()
}

func (tx *transaction) HostStateMachine() api.StateMachine {
	return tx.host.cfg.StateMachine
}

func (tx *transaction) Timestamp(context.Context) time.Time {
	return tx.host.cfg.Clock()
}

func (tx *transaction) ConsensusState(_ context.Context, id api.ConsensusClientID) ([]byte, error) {
	state, err := tx.get(consensusStateKeyFmt.Encode(clientKey(id)))
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", api.ErrConsensusStateNotFound, id)
	}
	return state, nil
}

func (tx *transaction) StoreConsensusState(_ context.Context, id api.ConsensusClientID, state []byte) error {
	tx.set(consensusStateKeyFmt.Encode(clientKey(id)), state)
	return nil
}

func (tx *transaction) ConsensusUpdateTime(_ context.Context, id api.ConsensusClientID) (time.Time, error) {
	var nanos int64
	ok, err := tx.getCBOR(updateTimeKeyFmt.Encode(clientKey(id)), &nanos)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", api.ErrConsensusStateNotFound, id)
	}
	return time.Unix(0, nanos), nil
}

func (tx *transaction) StoreConsensusUpdateTime(_ context.Context, id api.ConsensusClientID, t time.Time) error {
	tx.setCBOR(updateTimeKeyFmt.Encode(clientKey(id)), t.UnixNano())
	return nil
}

func (tx *transaction) ChallengePeriod(_ context.Context, id api.ConsensusClientID) (time.Duration, error) {
	var period time.Duration
	if _, err := tx.getCBOR(challengePeriodKeyFmt.Encode(clientKey(id)), &period); err != nil {
		return 0, err
	}
	return period, nil
}

func (tx *transaction) StoreChallengePeriod(_ context.Context, id api.ConsensusClientID, period time.Duration) error {
	tx.setCBOR(challengePeriodKeyFmt.Encode(clientKey(id)), period)
	return nil
}

func (tx *transaction) IsConsensusClientFrozen(_ context.Context, id api.ConsensusClientID) (bool, error) {
	return tx.has(frozenClientKeyFmt.Encode(clientKey(id)))
}

func (tx *transaction) FreezeConsensusClient(_ context.Context, id api.ConsensusClientID) error {
	tx.set(frozenClientKeyFmt.Encode(clientKey(id)), flagValue)
	return nil
}

func (tx *transaction) frozenHeight(id api.StateMachineID) (uint64, bool, error) {
	var height uint64
	ok, err := tx.getCBOR(frozenStateMachineKeyFmt.Encode(clientKey(id.ConsensusClientID), []byte(id.StateID)), &height)
	return height, ok, err
}

func (tx *transaction) IsStateMachineFrozen(_ context.Context, height api.StateMachineHeight) (bool, error) {
	frozenAt, ok, err := tx.frozenHeight(height.ID)
	if err != nil {
		return false, err
	}
	return ok && height.Height >= frozenAt, nil
}

func (tx *transaction) FreezeStateMachine(_ context.Context, height api.StateMachineHeight) error {
	tx.setCBOR(frozenStateMachineKeyFmt.Encode(clientKey(height.ID.ConsensusClientID), []byte(height.ID.StateID)), height.Height)
	return nil
}

func (tx *transaction) StateMachineCommitment(_ context.Context, height api.StateMachineHeight) (*api.StateCommitment, error) {
	var commitment api.StateCommitment
	ok, err := tx.getCBOR(stateCommitmentKeyFmt.Encode(clientKey(height.ID.ConsensusClientID), height.Height, []byte(height.ID.StateID)), &commitment)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrStateCommitmentNotFound, height)
	}
	return &commitment, nil
}

func (tx *transaction) StoreStateMachineCommitment(_ context.Context, height api.StateMachineHeight, commitment *api.StateCommitment) error {
	tx.setCBOR(stateCommitmentKeyFmt.Encode(clientKey(height.ID.ConsensusClientID), height.Height, []byte(height.ID.StateID)), commitment)
	return nil
}

func (tx *transaction) LatestCommitmentHeight(_ context.Context, id api.StateMachineID) (uint64, error) {
	var height uint64
	if _, err := tx.getCBOR(latestHeightKeyFmt.Encode(clientKey(id.ConsensusClientID), []byte(id.StateID)), &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (tx *transaction) StoreLatestCommitmentHeight(_ context.Context, height api.StateMachineHeight) error {
	tx.setCBOR(latestHeightKeyFmt.Encode(clientKey(height.ID.ConsensusClientID), []byte(height.ID.StateID)), height.Height)
	return nil
}

func (tx *transaction) RequestCommitment(_ context.Context, id api.RequestID) (hash.Hash, error) {
	var rc requestCommitment
	ok, err := tx.getCBOR(requestCommitmentKeyFmt.Encode(requestIDKey(id)), &rc)
	if err != nil {
		return hash.Hash{}, err
	}
	if !ok {
		return hash.Hash{}, fmt.Errorf("%w: request %s", api.ErrCommitmentNotFound, id)
	}
	return rc.Commitment, nil
}

func (tx *transaction) StoreRequestCommitment(_ context.Context, id api.RequestID, commitment hash.Hash) error {
	tx.setCBOR(requestCommitmentKeyFmt.Encode(requestIDKey(id)), &requestCommitment{
		ID:         id,
		Commitment: commitment,
	})
	return nil
}

func (tx *transaction) DeleteRequestCommitment(_ context.Context, id api.RequestID) error {
	tx.remove(requestCommitmentKeyFmt.Encode(requestIDKey(id)))
	return nil
}

func (tx *transaction) ResponseCommitment(_ context.Context, commitment hash.Hash) (bool, error) {
	return tx.has(responseCommitmentKeyFmt.Encode(&commitment))
}

func (tx *transaction) StoreResponseCommitment(_ context.Context, commitment hash.Hash) error {
	tx.set(responseCommitmentKeyFmt.Encode(&commitment), flagValue)
	return nil
}

func (tx *transaction) RequestReceipt(_ context.Context, commitment hash.Hash) (bool, error) {
	return tx.has(requestReceiptKeyFmt.Encode(&commitment))
}

func (tx *transaction) StoreRequestReceipt(_ context.Context, commitment hash.Hash) error {
	tx.set(requestReceiptKeyFmt.Encode(&commitment), flagValue)
	return nil
}

func (tx *transaction) ResponseReceipt(_ context.Context, commitment hash.Hash) (bool, error) {
	return tx.has(responseReceiptKeyFmt.Encode(&commitment))
}

func (tx *transaction) StoreResponseReceipt(_ context.Context, commitment hash.Hash) error {
	tx.set(responseReceiptKeyFmt.Encode(&commitment), flagValue)
	return nil
}

func (tx *transaction) NextNonce(context.Context) (uint64, error) {
	var nonce uint64
	if _, err := tx.getCBOR(nonceKeyFmt.Encode(), &nonce); err != nil {
		return 0, err
	}
	tx.setCBOR(nonceKeyFmt.Encode(), nonce+1)
	return nonce, nil
}

func (tx *transaction) ConsensusClient(id api.ConsensusClientID) (api.ConsensusClient, error) {
	client, ok := tx.host.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownConsensusClient, id)
	}
	return client, nil
}

func (tx *transaction) Router() api.Router {
	return tx.host.router
}

// iterate calls fn for every committed key with the prefix. Buffered writes
// are not visible.
func (tx *transaction) iterate(prefix []byte, fn func(key, value []byte) bool) error {
	return tx.host.store.IteratePrefix(prefix, fn)
}

func newTransaction(h *Host) *transaction {
	return &transaction{
		host:    h,
		writes:  make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func withTransaction(ctx context.Context, tx *transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func transactionFromContext(ctx context.Context, h *Host) *transaction {
	tx, _ := ctx.Value(txContextKey{}).(*transaction)
	if tx == nil || tx.host != h {
		return nil
	}
	return tx
}
