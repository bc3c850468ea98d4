package persistence

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// snapshotKeyPrefix namespaces every blob this backend stores under a
// single reserved byte, leaving the rest of the keyspace to hosts
// that share the store.
const snapshotKeyPrefix = byte(0xE0)

func snapshotKey(name string) []byte {
	key := make([]byte, 1+len(name))
	key[0] = snapshotKeyPrefix
	copy(key[1:], name)
	return key
}

// BadgerBackend stores persistence blobs in a single embedded BadgerDB
// store, keyed by a reserved-prefix + name scheme. An alternative to
// FileBackend for hosts that already keep other state in badger and
// want transactional writes instead of flat files.
type BadgerBackend struct {
	db *badger.DB
}

// BadgerBackendOptions configures OpenBadgerBackend.
type BadgerBackendOptions struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
}

// OpenBadgerBackend opens (creating if necessary) a badger store at
// opts.Dir, or an in-memory instance when opts.InMemory is set.
func OpenBadgerBackend(opts BadgerBackendOptions) (*BadgerBackend, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("persistence: open badger backend: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Read(name string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("persistence: read %q: %w", name, os.ErrNotExist)
		}
		return nil, fmt.Errorf("persistence: read %q: %w", name, err)
	}
	return out, nil
}

func (b *BadgerBackend) WriteAtomic(name string, data []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(name), data)
	})
	if err != nil {
		return fmt.Errorf("persistence: write %q: %w", name, err)
	}
	return nil
}

func (b *BadgerBackend) Exists(name string) bool {
	found := false
	_ = b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(snapshotKey(name))
		found = err == nil
		return nil
	})
	return found
}

// Close releases the underlying badger store.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

var _ Backend = (*BadgerBackend)(nil)
