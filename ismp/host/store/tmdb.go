package store

import (
	"fmt"

	dbm "github.com/tendermint/tm-db"
)

type tmdbStore struct {
	db dbm.DB
}

func (s *tmdbStore) Get(key []byte) ([]byte, error) {
	return s.db.Get(key)
}

func (s *tmdbStore) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	it, err := s.db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

func (s *tmdbStore) NewBatch() Batch {
	return s.db.NewBatch()
}

func (s *tmdbStore) Close() error {
	return s.db.Close()
}

// NewMemory creates a new in-memory store.
func NewMemory() Store {
	return &tmdbStore{db: dbm.NewMemDB()}
}

// NewGoLevelDB opens a goleveldb backed store in the given directory.
func NewGoLevelDB(dataDir string) (Store, error) {
	db, err := dbm.NewDB(dbName, dbm.GoLevelDBBackend, dataDir)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open goleveldb: %w", err)
	}
	return &tmdbStore{db: db}, nil
}
