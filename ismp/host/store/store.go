// Package store implements the key-value backends of the reference host.
package store

import (
	"fmt"
	"strings"
)

const (
	// BackendMemory is the in-memory tm-db backend.
	BackendMemory = "memory"
	// BackendGoLevelDB is the goleveldb tm-db backend.
	BackendGoLevelDB = "goleveldb"
	// BackendBadger is the BadgerDB backend.
	BackendBadger = "badger"

	dbName = "ismp"
)

// Store is a key-value store.
type Store interface {
	// Get returns the value of the key, nil if the key does not exist.
	Get(key []byte) ([]byte, error)

	// IteratePrefix calls fn for every key with the given prefix in
	// ascending key order until fn returns false.
	IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error

	// NewBatch creates a new atomic write batch.
	NewBatch() Batch

	// Close closes the store.
	Close() error
}

// Batch is an atomic set of writes.
type Batch interface {
	// Set sets the value of a key.
	Set(key, value []byte) error
	// Delete deletes a key.
	Delete(key []byte) error
	// Write atomically applies the batch.
	Write() error
	// Close releases the batch, discarding it if it was not written.
	Close() error
}

// Config is the store configuration.
type Config struct {
	// Backend is the name of the backend.
	Backend string
	// DataDir is the directory of persistent backends.
	DataDir string
}

// New opens a store with the configured backend.
func New(cfg *Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendGoLevelDB:
		return NewGoLevelDB(cfg.DataDir)
	case BackendBadger:
		return NewBadger(cfg.DataDir)
	default:
		return nil, fmt.Errorf("store: unsupported backend: '%s'", cfg.Backend)
	}
}

// prefixEnd returns the smallest key greater than all keys with the prefix,
// nil if there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
