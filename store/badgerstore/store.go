package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"

	"github.com/viant/sqlite-kd/store"
)

// Options contains configuration for the store.
type Options struct {
	// Dir is the directory where the data will be stored.
	Dir string

	// InMemory keeps all data in memory; Dir is ignored.
	InMemory bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{Dir: "data/badger"}
}

// Store is a Badger database holding index snapshots.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the Badger database.
func Open(options Options) (*Store, error) {
	var opts badger.Options
	if options.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(options.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("badgerstore: failed to create data directory: %w", err)
		}
		opts = badger.DefaultOptions(options.Dir)
	}
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error { return s.db.Close() }

// Snapshots returns a store.SnapshotStore scoped to a point table.
func (s *Store) Snapshots(table string) *Snapshots {
	return &Snapshots{db: s.db, prefix: "kd/" + table + "/"}
}

// Snapshots implements store.SnapshotStore for one point table.
type Snapshots struct {
	db     *badger.DB
	prefix string
}

func (s *Snapshots) key(dataset string) []byte { return []byte(s.prefix + dataset) }

// SaveSnapshot stores blob for dataset.
func (s *Snapshots) SaveSnapshot(_ context.Context, dataset string, blob []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(dataset), blob)
	})
}

// LoadSnapshot retrieves the blob stored for dataset.
func (s *Snapshots) LoadSnapshot(_ context.Context, dataset string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(dataset))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, len(value) > 0, nil
}

// DeleteSnapshot removes the blob stored for dataset.
func (s *Snapshots) DeleteSnapshot(_ context.Context, dataset string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(dataset))
	})
}

// Datasets lists the datasets that have a snapshot.
func (s *Snapshots) Datasets() ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(s.prefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return out, err
}

var _ store.SnapshotStore = (*Snapshots)(nil)
