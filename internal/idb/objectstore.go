package idb

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"github.com/eigerco/objstore/pkg/db"
	"github.com/eigerco/objstore/pkg/log"
)

// maxGeneratedKey is the largest key a key generator issues, 2^53.
const maxGeneratedKey = 1 << 53

// ObjectStore is a handle to one store within a transaction.
type ObjectStore struct {
	tx   *Transaction
	name string
	meta *storeSchema
}

// IndexOptions configure a new index.
type IndexOptions struct {
	Unique     bool
	MultiEntry bool
}

func (s *ObjectStore) Name() string {
	return s.name
}

// KeyPath returns nil, a string or a []string.
func (s *ObjectStore) KeyPath() any {
	return s.meta.KeyPath.native()
}

func (s *ObjectStore) AutoIncrement() bool {
	return s.meta.AutoIncrement
}

func (s *ObjectStore) IndexNames() []string {
	s.tx.schemaMu.RLock()
	defer s.tx.schemaMu.RUnlock()
	return s.meta.indexNames()
}

func (s *ObjectStore) Transaction() *Transaction {
	return s.tx
}

// valid fails once the store has been deleted by the running upgrade.
func (s *ObjectStore) valid() error {
	s.tx.schemaMu.RLock()
	defer s.tx.schemaMu.RUnlock()
	if s.tx.schema.Stores[s.name] != s.meta {
		return newError(InvalidStateError, "object store %q has been deleted", s.name)
	}
	return nil
}

func (s *ObjectStore) writable() error {
	if err := s.valid(); err != nil {
		return err
	}
	if s.tx.mode == ReadOnly {
		return newError(ReadOnlyError, "transaction %s is read-only", s.tx.id)
	}
	return nil
}

// Add stores value, failing the request with ConstraintError if its key
// already exists. key must be nil for stores with in-line keys. The
// request's result is the record's key.
func (s *ObjectStore) Add(value any, key any) (*Request, error) {
	return s.store(value, key, false)
}

// Put stores value, replacing any record with the same key.
func (s *ObjectStore) Put(value any, key any) (*Request, error) {
	return s.store(value, key, true)
}

func (s *ObjectStore) store(value, key any, overwrite bool) (*Request, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	clone, err := cloneValue(value)
	if err != nil {
		return nil, err
	}

	var k Key
	kp := s.meta.KeyPath
	switch {
	case key != nil && kp.set:
		return nil, newError(DataError, "object store %q uses in-line keys; no key may be given", s.name)
	case key != nil:
		if k, err = NormalizeKey(key); err != nil {
			return nil, err
		}
	case kp.set:
		evaluated, ok, err := kp.evaluate(clone)
		switch {
		case err != nil:
			return nil, err
		case ok:
			k = evaluated
		case !s.meta.AutoIncrement:
			return nil, newError(DataError, "key path %v of object store %q yields no key", kp.native(), s.name)
		case !kp.canInject(clone):
			return nil, newError(DataError, "a generated key cannot be written at %v", kp.native())
		}
	case !s.meta.AutoIncrement:
		return nil, newError(DataError, "object store %q has out-of-line keys and no key generator; a key is required", s.name)
	}

	meta := s.meta
	return s.tx.submit(func(t *Transaction) (any, error) {
		return t.storeRecord(meta, clone, k, overwrite)
	})
}

// Delete removes every record whose key lies in rng.
func (s *ObjectStore) Delete(rng *KeyRange) (*Request, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, newError(DataError, "delete needs a key range")
	}
	meta := s.meta
	return s.tx.submit(func(t *Transaction) (any, error) {
		return nil, t.deleteRecords(meta, rng)
	})
}

// Get resolves to the value of the first record in rng, or nil.
func (s *ObjectStore) Get(rng *KeyRange) (*Request, error) {
	if err := s.valid(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, newError(DataError, "get needs a key range")
	}
	meta := s.meta
	return s.tx.submit(func(t *Transaction) (any, error) {
		start, end := rng.bounds(recordPrefix(meta.ID))
		var out any
		err := t.scan(start, end, func(_, v []byte) (bool, error) {
			val, err := decodeValue(v)
			out = val
			return false, err
		})
		return out, err
	})
}

// GetAll resolves to the values of the records in rng in key order, at
// most count of them when count is positive. A nil rng selects every
// record.
func (s *ObjectStore) GetAll(rng *KeyRange, count uint32) (*Request, error) {
	if err := s.valid(); err != nil {
		return nil, err
	}
	meta := s.meta
	return s.tx.submit(func(t *Transaction) (any, error) {
		start, end := rng.bounds(recordPrefix(meta.ID))
		out := []any{}
		err := t.scan(start, end, func(_, v []byte) (bool, error) {
			val, err := decodeValue(v)
			if err != nil {
				return false, err
			}
			out = append(out, val)
			return count == 0 || uint32(len(out)) < count, nil
		})
		return out, err
	})
}

// Clear removes every record. The key generator keeps its position.
func (s *ObjectStore) Clear() (*Request, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	meta := s.meta
	return s.tx.submit(func(t *Transaction) (any, error) {
		if err := t.deletePrefix(recordPrefix(meta.ID)); err != nil {
			return nil, err
		}
		return nil, t.deletePrefix(storeIndexesPrefix(meta.ID))
	})
}

// Count resolves to the number of records in rng as a uint64. A nil rng
// counts every record.
func (s *ObjectStore) Count(rng *KeyRange) (*Request, error) {
	if err := s.valid(); err != nil {
		return nil, err
	}
	meta := s.meta
	return s.tx.submit(func(t *Transaction) (any, error) {
		start, end := rng.bounds(recordPrefix(meta.ID))
		var n uint64
		err := t.scan(start, end, func(_, _ []byte) (bool, error) {
			n++
			return true, nil
		})
		return n, err
	})
}

// Index returns a handle to the named index.
func (s *ObjectStore) Index(name string) (*Index, error) {
	if err := s.valid(); err != nil {
		return nil, err
	}
	s.tx.schemaMu.RLock()
	meta, ok := s.meta.Indexes[name]
	s.tx.schemaMu.RUnlock()
	if !ok {
		return nil, newError(NotFoundError, "index %q does not exist on object store %q", name, s.name)
	}
	return &Index{store: s, name: name, meta: meta}, nil
}

// CreateIndex adds an index and populates it from the existing records.
// It is only valid inside an upgrade. Existing records that violate a
// unique index fail the upgrade with ConstraintError.
func (s *ObjectStore) CreateIndex(name string, keyPath any, opts IndexOptions) (*Index, error) {
	if err := s.schemaChange(); err != nil {
		return nil, err
	}
	kp, err := parseKeyPath(keyPath)
	if err != nil {
		return nil, err
	}
	if !kp.set {
		return nil, newError(SyntaxError, "an index needs a key path")
	}
	if opts.MultiEntry && kp.array {
		return nil, newError(InvalidAccessError, "a multi-entry index cannot have an array key path")
	}

	s.tx.schemaMu.Lock()
	if _, ok := s.meta.Indexes[name]; ok {
		s.tx.schemaMu.Unlock()
		return nil, newError(ConstraintError, "index %q already exists on object store %q", name, s.name)
	}
	meta := &indexSchema{ID: s.meta.NextIndexID, KeyPath: kp, Unique: opts.Unique, MultiEntry: opts.MultiEntry}
	s.meta.NextIndexID++
	s.meta.Indexes[name] = meta
	s.tx.schemaMu.Unlock()

	store := s.meta
	if _, err := s.tx.submit(func(t *Transaction) (any, error) {
		return nil, t.buildIndex(store, meta, name)
	}); err != nil {
		return nil, err
	}
	return &Index{store: s, name: name, meta: meta}, nil
}

// DeleteIndex removes an index and its entries. It is only valid inside an
// upgrade.
func (s *ObjectStore) DeleteIndex(name string) error {
	if err := s.schemaChange(); err != nil {
		return err
	}
	s.tx.schemaMu.Lock()
	meta, ok := s.meta.Indexes[name]
	if ok {
		delete(s.meta.Indexes, name)
	}
	s.tx.schemaMu.Unlock()
	if !ok {
		return newError(NotFoundError, "index %q does not exist on object store %q", name, s.name)
	}

	storeID := s.meta.ID
	_, err := s.tx.submit(func(t *Transaction) (any, error) {
		return nil, t.deletePrefix(indexPrefix(storeID, meta.ID))
	})
	return err
}

func (s *ObjectStore) schemaChange() error {
	if s.tx.mode != VersionChange {
		return newError(InvalidStateError, "schema changes need a version change transaction")
	}
	if err := s.valid(); err != nil {
		return err
	}
	if !s.tx.active() {
		return newError(TransactionInactiveError, "version change transaction %s is not active", s.tx.id)
	}
	return nil
}

// cloneValue deep-copies value through its JSON form, the form records are
// stored in.
func cloneValue(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, &Error{Name: DataCloneError, Message: "value cannot be stored: " + err.Error(), cause: err}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &Error{Name: DataCloneError, Message: "value cannot be stored: " + err.Error(), cause: err}
	}
	return out, nil
}

func decodeValue(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, wrapError(UnknownError, err, "decode record")
	}
	return v, nil
}

func (t *Transaction) storeRecord(meta *storeSchema, value any, key Key, overwrite bool) (any, error) {
	if key == nil {
		generated, err := t.generateKey(meta)
		if err != nil {
			return nil, err
		}
		key = generated
		if meta.KeyPath.set {
			meta.KeyPath.inject(value, key)
		}
	} else if f, ok := key.(float64); ok && meta.AutoIncrement {
		if err := t.advanceKeyGenerator(meta, f); err != nil {
			return nil, err
		}
	}

	pk := EncodeKey(key)
	rkey := recordKey(meta.ID, pk)
	old, err := t.kv.Get(rkey)
	found := err == nil
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, wrapError(UnknownError, err, "read record")
	}
	if found && !overwrite {
		return nil, newError(ConstraintError, "key %v already exists in object store", key)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, &Error{Name: DataCloneError, Message: "value cannot be stored: " + err.Error(), cause: err}
	}

	if len(meta.Indexes) > 0 {
		entries := make(map[*indexSchema][][]byte, len(meta.Indexes))
		for _, idx := range meta.Indexes {
			keys := indexKeys(idx, value)
			if idx.Unique {
				for _, ik := range keys {
					if err := t.checkUnique(meta.ID, idx, ik, pk); err != nil {
						return nil, err
					}
				}
			}
			entries[idx] = keys
		}
		if found {
			if err := t.removeIndexEntries(meta, old, pk); err != nil {
				return nil, err
			}
		}
		for idx, keys := range entries {
			for _, ik := range keys {
				if err := t.kv.Put(indexEntryKey(meta.ID, idx.ID, ik, pk), pk); err != nil {
					return nil, wrapError(UnknownError, err, "write index entry")
				}
			}
		}
	}

	if err := t.kv.Put(rkey, raw); err != nil {
		return nil, wrapError(UnknownError, err, "write record")
	}
	return key, nil
}

func (t *Transaction) deleteRecords(meta *storeSchema, rng *KeyRange) error {
	prefix := recordPrefix(meta.ID)
	start, end := rng.bounds(prefix)

	type record struct{ key, value []byte }
	var doomed []record
	err := t.scan(start, end, func(k, v []byte) (bool, error) {
		doomed = append(doomed, record{key: bytes.Clone(k), value: bytes.Clone(v)})
		return true, nil
	})
	if err != nil {
		return err
	}

	for _, r := range doomed {
		if len(meta.Indexes) > 0 {
			if err := t.removeIndexEntries(meta, r.value, r.key[len(prefix):]); err != nil {
				return err
			}
		}
		if err := t.kv.Delete(r.key); err != nil {
			return wrapError(UnknownError, err, "delete record")
		}
	}
	return nil
}

// removeIndexEntries deletes the index entries derived from a stored
// record.
func (t *Transaction) removeIndexEntries(meta *storeSchema, raw, pk []byte) error {
	value, err := decodeValue(raw)
	if err != nil {
		return err
	}
	for _, idx := range meta.Indexes {
		for _, ik := range indexKeys(idx, value) {
			if err := t.kv.Delete(indexEntryKey(meta.ID, idx.ID, ik, pk)); err != nil {
				return wrapError(UnknownError, err, "delete index entry")
			}
		}
	}
	return nil
}

// checkUnique fails if a record other than pk already holds index key ik.
func (t *Transaction) checkUnique(storeID uint32, idx *indexSchema, ik, pk []byte) error {
	prefix := append(indexPrefix(storeID, idx.ID), ik...)
	var conflict bool
	err := t.scan(prefix, prefixSuccessor(prefix), func(_, v []byte) (bool, error) {
		if !bytes.Equal(v, pk) {
			conflict = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if conflict {
		return newError(ConstraintError, "unique index already holds the key")
	}
	return nil
}

func (t *Transaction) buildIndex(meta *storeSchema, idx *indexSchema, name string) error {
	prefix := recordPrefix(meta.ID)

	type entry struct{ ik, pk []byte }
	var entries []entry
	err := t.scan(prefix, prefixSuccessor(prefix), func(k, v []byte) (bool, error) {
		value, err := decodeValue(v)
		if err != nil {
			return false, err
		}
		pk := bytes.Clone(k[len(prefix):])
		for _, ik := range indexKeys(idx, value) {
			entries = append(entries, entry{ik: ik, pk: pk})
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	for _, e := range entries {
		if idx.Unique {
			if err := t.checkUnique(meta.ID, idx, e.ik, e.pk); err != nil {
				return newError(ConstraintError, "existing records violate unique index %q", name)
			}
		}
		if err := t.kv.Put(indexEntryKey(meta.ID, idx.ID, e.ik, e.pk), e.pk); err != nil {
			return wrapError(UnknownError, err, "write index entry")
		}
	}
	log.Engine.Info().Str("txn", t.id).Str("index", name).Int("entries", len(entries)).Msg("index backfilled")
	return nil
}

// indexKeys returns the encoded index keys value contributes to idx. A
// missing or invalid key contributes none. A multi-entry index over an
// array contributes each distinct valid element.
func indexKeys(idx *indexSchema, value any) [][]byte {
	if idx.MultiEntry {
		raw, ok := lookup(value, idx.KeyPath.paths[0])
		if !ok {
			return nil
		}
		if arr, isArr := raw.([]any); isArr {
			var out [][]byte
			seen := map[string]struct{}{}
			for _, e := range arr {
				k, err := NormalizeKey(e)
				if err != nil {
					continue
				}
				enc := EncodeKey(k)
				if _, dup := seen[string(enc)]; dup {
					continue
				}
				seen[string(enc)] = struct{}{}
				out = append(out, enc)
			}
			return out
		}
	}

	k, ok, err := idx.KeyPath.evaluate(value)
	if !ok || err != nil {
		return nil
	}
	return [][]byte{EncodeKey(k)}
}

func (t *Transaction) keyGenerator(meta *storeSchema) (uint64, error) {
	raw, err := t.kv.Get(keyGenKey(meta.ID))
	if errors.Is(err, db.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, wrapError(UnknownError, err, "read key generator")
	}
	if len(raw) != 8 {
		return 0, newError(UnknownError, "corrupt key generator for store %d", meta.ID)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (t *Transaction) setKeyGenerator(meta *storeSchema, next uint64) error {
	if err := t.kv.Put(keyGenKey(meta.ID), binary.BigEndian.AppendUint64(nil, next)); err != nil {
		return wrapError(UnknownError, err, "write key generator")
	}
	return nil
}

func (t *Transaction) generateKey(meta *storeSchema) (Key, error) {
	next, err := t.keyGenerator(meta)
	if err != nil {
		return nil, err
	}
	if next > maxGeneratedKey {
		return nil, newError(ConstraintError, "key generator is exhausted")
	}
	if err := t.setKeyGenerator(meta, next+1); err != nil {
		return nil, err
	}
	return float64(next), nil
}

// advanceKeyGenerator moves the generator past an explicit numeric key.
func (t *Transaction) advanceKeyGenerator(meta *storeSchema, key float64) error {
	next, err := t.keyGenerator(meta)
	if err != nil {
		return err
	}
	if key < float64(next) {
		return nil
	}
	candidate := math.Floor(key) + 1
	if candidate > maxGeneratedKey+1 {
		candidate = maxGeneratedKey + 1
	}
	return t.setKeyGenerator(meta, uint64(candidate))
}
