package store

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/multierr"

	cmnBadger "github.com/oasisprotocol/ismp/common/badger"
	"github.com/oasisprotocol/ismp/common/logging"
)

type badgerStore struct {
	logger *logging.Logger

	db *badger.DB
	gc *cmnBadger.GCWorker
}

func (s *badgerStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch err {
		case nil:
		case badger.ErrKeyNotFound:
			return nil
		default:
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

func (s *badgerStore) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				return nil
			}
		}
		return nil
	})
}

func (s *badgerStore) NewBatch() Batch {
	return &badgerBatch{wb: s.db.NewWriteBatch()}
}

func (s *badgerStore) Close() error {
	if s.gc != nil {
		s.gc.Close()
	}
	return s.db.Close()
}

type badgerBatch struct {
	wb      *badger.WriteBatch
	written bool
}

func (b *badgerBatch) Set(key, value []byte) error {
	return b.wb.Set(append([]byte{}, key...), append([]byte{}, value...))
}

func (b *badgerBatch) Delete(key []byte) error {
	return b.wb.Delete(append([]byte{}, key...))
}

func (b *badgerBatch) Write() error {
	b.written = true
	return b.wb.Flush()
}

func (b *badgerBatch) Close() error {
	if !b.written {
		b.wb.Cancel()
	}
	return nil
}

// NewBadger opens a BadgerDB backed store in the given directory. An empty
// directory opens an in-memory database.
func NewBadger(dataDir string) (Store, error) {
	logger := logging.GetLogger("ismp/host/store/badger")

	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(dataDir, dbName+".badger.db"))
	}
	opts = opts.WithLogger(cmnBadger.NewLogAdapter(logger))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open badger: %w", err)
	}

	s := &badgerStore{
		logger: logger,
		db:     db,
	}
	if dataDir != "" {
		s.gc = cmnBadger.NewGCWorker(logger, db, 0)
	}
	return s, nil
}

// CloseAll closes every store, aggregating the errors.
func CloseAll(stores ...Store) error {
	var err error
	for _, s := range stores {
		err = multierr.Append(err, s.Close())
	}
	return err
}
