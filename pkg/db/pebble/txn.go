package pebble

import (
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/objstore/pkg/db"
)

// Txn is a db.Txn over pebble. A writable Txn is an indexed batch, so its
// reads see its own writes; a read-only Txn reads from a snapshot.
type Txn struct {
	store *KVStore
	batch *pebble.Batch
	snap  *pebble.Snapshot
	done  atomic.Bool
}

// NewTxn begins a transaction. A writable transaction holds the store's
// writer lock until it is committed or closed.
func (p *KVStore) NewTxn(writable bool) (db.Txn, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if !writable {
		return &Txn{store: p, snap: p.db.NewSnapshot()}, nil
	}

	p.writer.Lock()
	if p.closed.Load() {
		p.writer.Unlock()
		return nil, ErrClosed
	}
	return &Txn{store: p, batch: p.db.NewIndexedBatch()}, nil
}

func (t *Txn) reader() pebble.Reader {
	if t.batch != nil {
		return t.batch
	}
	return t.snap
}

func (t *Txn) Writable() bool {
	return t.batch != nil
}

func (t *Txn) Get(key []byte) ([]byte, error) {
	if t.done.Load() {
		return nil, ErrTxnDone
	}
	return get(t.reader(), key)
}

func (t *Txn) NewIterator(start, end []byte) (db.Iterator, error) {
	if t.done.Load() {
		return nil, ErrTxnDone
	}
	return newIterator(t.reader(), start, end)
}

func (t *Txn) Put(key, value []byte) error {
	if t.done.Load() {
		return ErrTxnDone
	}
	if t.batch == nil {
		return ErrReadOnly
	}
	return t.batch.Set(key, value, nil)
}

func (t *Txn) Delete(key []byte) error {
	if t.done.Load() {
		return ErrTxnDone
	}
	if t.batch == nil {
		return ErrReadOnly
	}
	return t.batch.Delete(key, nil)
}

// Commit applies the batch atomically. The Txn is finished afterwards
// whether or not the commit succeeded.
func (t *Txn) Commit() error {
	if !t.done.CompareAndSwap(false, true) {
		return ErrTxnDone
	}
	if t.batch == nil {
		return t.snap.Close()
	}
	defer t.store.writer.Unlock()

	err := t.batch.Commit(pebble.Sync)
	closeErr := t.batch.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// Close discards an uncommitted Txn. Closing a finished Txn is a no-op.
func (t *Txn) Close() error {
	if !t.done.CompareAndSwap(false, true) {
		return nil
	}
	if t.batch == nil {
		return t.snap.Close()
	}
	defer t.store.writer.Unlock()
	return t.batch.Close()
}
