package bolt

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	bbolt "go.etcd.io/bbolt"

	"github.com/eigerco/objstore/pkg/db"
)

// Txn is a db.Txn over a native bbolt transaction.
type Txn struct {
	btx  *bbolt.Tx
	done atomic.Bool
}

// NewTxn begins a bbolt transaction. Beginning a writable transaction
// blocks while another writable transaction is open.
func (s *KVStore) NewTxn(writable bool) (db.Txn, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	return &Txn{btx: btx}, nil
}

func (t *Txn) bucket() *bbolt.Bucket {
	return t.btx.Bucket(rootBucket)
}

func (t *Txn) Writable() bool {
	return t.btx.Writable()
}

func (t *Txn) Get(key []byte) ([]byte, error) {
	if t.done.Load() {
		return nil, ErrTxnDone
	}
	return get(t.bucket(), key)
}

func (t *Txn) NewIterator(start, end []byte) (db.Iterator, error) {
	if t.done.Load() {
		return nil, ErrTxnDone
	}
	return newIterator(t.bucket(), start, end), nil
}

func (t *Txn) Put(key, value []byte) error {
	if t.done.Load() {
		return ErrTxnDone
	}
	if !t.btx.Writable() {
		return ErrReadOnly
	}
	// bbolt keeps references to key and value until commit
	return t.bucket().Put(clone(key), clone(value))
}

func (t *Txn) Delete(key []byte) error {
	if t.done.Load() {
		return ErrTxnDone
	}
	if !t.btx.Writable() {
		return ErrReadOnly
	}
	return t.bucket().Delete(key)
}

// Commit commits a writable transaction and releases a read-only one.
func (t *Txn) Commit() error {
	if !t.done.CompareAndSwap(false, true) {
		return ErrTxnDone
	}
	if !t.btx.Writable() {
		return t.btx.Rollback()
	}
	return t.btx.Commit()
}

// Close rolls back an unfinished transaction.
func (t *Txn) Close() error {
	if !t.done.CompareAndSwap(false, true) {
		return nil
	}
	return t.btx.Rollback()
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
