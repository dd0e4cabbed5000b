package idb

import (
	"github.com/cockroachdb/errors"

	"github.com/eigerco/objstore/pkg/db"
)

// Index is a handle to a secondary index of an object store.
type Index struct {
	store *ObjectStore
	name  string
	meta  *indexSchema
}

func (i *Index) Name() string { return i.name }
func (i *Index) KeyPath() any { return i.meta.KeyPath.native() }
func (i *Index) Unique() bool { return i.meta.Unique }
func (i *Index) MultiEntry() bool { return i.meta.MultiEntry }
func (i *Index) ObjectStore() *ObjectStore { return i.store }

func (i *Index) valid() error {
	if err := i.store.valid(); err != nil {
		return err
	}
	i.store.tx.schemaMu.RLock()
	defer i.store.tx.schemaMu.RUnlock()
	if i.store.meta.Indexes[i.name] != i.meta {
		return newError(InvalidStateError, "index %q has been deleted", i.name)
	}
	return nil
}

// Get resolves to the value of the record with the lowest index key in
// rng, or nil.
func (i *Index) Get(rng *KeyRange) (*Request, error) {
	if rng == nil {
		return nil, newError(DataError, "get needs a key range")
	}
	return i.collect(rng, 1, func(out []any) any {
		if len(out) == 0 {
			return nil
		}
		return out[0]
	}, true)
}

// GetKey resolves to the primary key of the record with the lowest index
// key in rng, or nil.
func (i *Index) GetKey(rng *KeyRange) (*Request, error) {
	if rng == nil {
		return nil, newError(DataError, "get needs a key range")
	}
	return i.collect(rng, 1, func(out []any) any {
		if len(out) == 0 {
			return nil
		}
		return out[0]
	}, false)
}

// GetAll resolves to the values of the records in rng in index key order,
// at most count of them when count is positive.
func (i *Index) GetAll(rng *KeyRange, count uint32) (*Request, error) {
	return i.collect(rng, count, func(out []any) any { return out }, true)
}

// Count resolves to the number of index entries in rng as a uint64.
func (i *Index) Count(rng *KeyRange) (*Request, error) {
	if err := i.valid(); err != nil {
		return nil, err
	}
	storeID, indexID := i.store.meta.ID, i.meta.ID
	return i.store.tx.submit(func(t *Transaction) (any, error) {
		start, end := rng.bounds(indexPrefix(storeID, indexID))
		var n uint64
		err := t.scan(start, end, func(_, _ []byte) (bool, error) {
			n++
			return true, nil
		})
		return n, err
	})
}

// collect walks index entries in rng, resolving each to its record value,
// or to its primary key when values is false.
func (i *Index) collect(rng *KeyRange, count uint32, shape func([]any) any, values bool) (*Request, error) {
	if err := i.valid(); err != nil {
		return nil, err
	}
	storeID, indexID := i.store.meta.ID, i.meta.ID
	return i.store.tx.submit(func(t *Transaction) (any, error) {
		start, end := rng.bounds(indexPrefix(storeID, indexID))
		out := []any{}
		err := t.scan(start, end, func(_, pk []byte) (bool, error) {
			var item any
			var err error
			if values {
				item, err = t.recordValue(storeID, pk)
			} else {
				item, err = decodeWholeKey(pk)
			}
			if err != nil {
				return false, err
			}
			out = append(out, item)
			return count == 0 || uint32(len(out)) < count, nil
		})
		if err != nil {
			return nil, err
		}
		return shape(out), nil
	})
}

func (t *Transaction) recordValue(storeID uint32, pk []byte) (any, error) {
	raw, err := t.kv.Get(recordKey(storeID, pk))
	if errors.Is(err, db.ErrNotFound) {
		return nil, newError(UnknownError, "index entry points at a missing record")
	}
	if err != nil {
		return nil, wrapError(UnknownError, err, "read record")
	}
	return decodeValue(raw)
}
