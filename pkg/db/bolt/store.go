package bolt

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	bbolt "go.etcd.io/bbolt"

	"github.com/eigerco/objstore/pkg/db"
)

// rootBucket holds every key; ordering and prefixes are the caller's concern.
var rootBucket = []byte("objstore")

// KVStore is a db.KVStore backed by a single bbolt file. bbolt allows one
// writable transaction at a time and any number of readers.
type KVStore struct {
	bdb    *bbolt.DB
	closed atomic.Bool
}

var _ db.KVStore = (*KVStore)(nil)

// Open opens a database file, creating it if it doesn't exist.
func Open(path string) (*KVStore, error) {
	opts := &bbolt.Options{Timeout: 10 * time.Second}
	bdb, err := bbolt.Open(path, 0600, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt at %q", path)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, errors.Wrap(err, "create root bucket")
	}
	return &KVStore{bdb: bdb}, nil
}

func (s *KVStore) Get(key []byte) (value []byte, err error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	err = s.bdb.View(func(tx *bbolt.Tx) error {
		value, err = get(tx.Bucket(rootBucket), key)
		return err
	})
	return value, err
}

func (s *KVStore) Put(key, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(rootBucket).Put(key, value)
	})
}

func (s *KVStore) Delete(key []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(rootBucket).Delete(key)
	})
}

// NewIterator iterates over a read-only view taken now. The view is
// released when the iterator is closed.
func (s *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	tx, err := s.bdb.Begin(false)
	if err != nil {
		return nil, errors.Wrap(err, "begin read transaction")
	}
	it := newIterator(tx.Bucket(rootBucket), start, end)
	it.release = tx.Rollback
	return it, nil
}

func (s *KVStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.bdb.Close()
}

// get copies the value out, since bbolt memory is only valid for the
// lifetime of the transaction.
func get(b *bbolt.Bucket, key []byte) ([]byte, error) {
	v := b.Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	result := make([]byte, len(v))
	copy(result, v)
	return result, nil
}
