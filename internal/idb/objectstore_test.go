package idb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openPeople opens a database with:
//
//	people   key path "id", unique index byName, multi-entry index byTag
//	notes    out-of-line keys
//	counters key generator, out-of-line keys
//	items    key generator, key path "id"
func openPeople(t *testing.T) *Database {
	t.Helper()
	conn, err := memoryFactory().Open("test", 1, func(conn *Database, _ *Transaction, _, _ uint64) error {
		people, err := conn.CreateObjectStore("people", ObjectStoreOptions{KeyPath: "id"})
		if err != nil {
			return err
		}
		if _, err := people.CreateIndex("byName", "name", IndexOptions{Unique: true}); err != nil {
			return err
		}
		if _, err := people.CreateIndex("byTag", "tags", IndexOptions{MultiEntry: true}); err != nil {
			return err
		}
		if _, err := conn.CreateObjectStore("notes", ObjectStoreOptions{}); err != nil {
			return err
		}
		if _, err := conn.CreateObjectStore("counters", ObjectStoreOptions{AutoIncrement: true}); err != nil {
			return err
		}
		_, err = conn.CreateObjectStore("items", ObjectStoreOptions{KeyPath: "id", AutoIncrement: true})
		return err
	})
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func person(id int, name string, tags ...string) map[string]any {
	ts := make([]any, len(tags))
	for i, tag := range tags {
		ts[i] = tag
	}
	return map[string]any{"id": id, "name": name, "tags": ts}
}

func store(t *testing.T, tx *Transaction, name string) *ObjectStore {
	t.Helper()
	s, err := tx.ObjectStore(name)
	require.NoError(t, err)
	return s
}

func keyRange(t *testing.T) func(r *KeyRange, err error) *KeyRange {
	return func(r *KeyRange, err error) *KeyRange {
		t.Helper()
		require.NoError(t, err)
		return r
	}
}

func TestObjectStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, conn *Database)
	}{
		{name: "put_get", fn: testPutGet},
		{name: "add_existing_key_errors", fn: testAddExisting},
		{name: "key_sources", fn: testKeySources},
		{name: "key_generator", fn: testKeyGenerator},
		{name: "ranges", fn: testRanges},
		{name: "delete_range", fn: testDeleteRange},
		{name: "clear_keeps_generator", fn: testClearKeepsGenerator},
		{name: "read_only", fn: testReadOnly},
		{name: "unique_index", fn: testUniqueIndex},
		{name: "index_queries", fn: testIndexQueries},
		{name: "abort_discards_writes", fn: testAbortDiscards},
		{name: "requests_see_earlier_writes", fn: testRequestOrder},
		{name: "handler_chains_requests", fn: testHandlerChain},
		{name: "values_are_cloned", fn: testValuesCloned},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, openPeople(t))
		})
	}
}

func testPutGet(t *testing.T, conn *Database) {
	term, err := within(t, conn, []string{"people"}, ReadWrite, func(tx *Transaction) {
		s := store(t, tx, "people")
		assert.Equal(t, 1.0, result(t)(s.Put(person(1, "ann"), nil)))
		assert.Equal(t, 1.0, result(t)(s.Put(person(1, "ann b"), nil)))
	})
	require.NoError(t, err)
	assert.Equal(t, Complete, term)

	_, err = within(t, conn, []string{"people"}, ReadOnly, func(tx *Transaction) {
		s := store(t, tx, "people")
		got := result(t)(s.Get(keyRange(t)(Only(1))))
		assert.Equal(t, map[string]any{"id": 1.0, "name": "ann b", "tags": []any{}}, got)
		assert.Nil(t, result(t)(s.Get(keyRange(t)(Only(2)))))
	})
	require.NoError(t, err)
}

func testAddExisting(t *testing.T, conn *Database) {
	tx, err := conn.Transaction([]string{"people"}, ReadWrite)
	require.NoError(t, err)
	s := store(t, tx, "people")

	first, err := s.Add(person(1, "ann"), nil)
	require.NoError(t, err)
	second, err := s.Add(person(1, "bob"), nil)
	require.NoError(t, err)

	term, txErr := tx.Wait()
	assert.Equal(t, Errored, term)
	assert.Equal(t, ConstraintError, ErrorName(txErr))

	_, err = first.Result()
	assert.NoError(t, err)
	_, err = second.Result()
	assert.Equal(t, ConstraintError, ErrorName(err))

	// Nothing from the failed transaction is visible.
	_, err = within(t, conn, []string{"people"}, ReadOnly, func(tx *Transaction) {
		assert.Equal(t, uint64(0), result(t)(store(t, tx, "people").Count(nil)))
	})
	require.NoError(t, err)
}

func testKeySources(t *testing.T, conn *Database) {
	_, err := within(t, conn, []string{"people", "notes", "items"}, ReadWrite, func(tx *Transaction) {
		people := store(t, tx, "people")
		_, err := people.Put(person(1, "ann"), 1)
		assert.Equal(t, DataError, ErrorName(err))
		_, err = people.Put(map[string]any{"name": "keyless"}, nil)
		assert.Equal(t, DataError, ErrorName(err))
		_, err = people.Put(map[string]any{"id": true}, nil)
		assert.Equal(t, DataError, ErrorName(err))

		notes := store(t, tx, "notes")
		_, err = notes.Put("text", nil)
		assert.Equal(t, DataError, ErrorName(err))
		assert.Equal(t, "k", result(t)(notes.Put("text", "k")))
		_, err = notes.Put(func() {}, "k")
		assert.Equal(t, DataCloneError, ErrorName(err))

		items := store(t, tx, "items")
		_, err = items.Put("not an object", nil)
		assert.Equal(t, DataError, ErrorName(err))
	})
	require.NoError(t, err)
}

func testKeyGenerator(t *testing.T, conn *Database) {
	_, err := within(t, conn, []string{"counters", "items"}, ReadWrite, func(tx *Transaction) {
		counters := store(t, tx, "counters")
		assert.Equal(t, 1.0, result(t)(counters.Add("a", nil)))
		assert.Equal(t, 2.0, result(t)(counters.Add("b", nil)))
		assert.Equal(t, 10.0, result(t)(counters.Put("c", 10)))
		assert.Equal(t, 11.0, result(t)(counters.Add("d", nil)))
		// Keys below the generator and non-numeric keys leave it alone.
		assert.Equal(t, 5.0, result(t)(counters.Put("e", 5)))
		assert.Equal(t, "s", result(t)(counters.Put("f", "s")))
		assert.Equal(t, 12.0, result(t)(counters.Add("g", nil)))

		items := store(t, tx, "items")
		assert.Equal(t, 1.0, result(t)(items.Add(map[string]any{"v": "x"}, nil)))
		got := result(t)(items.Get(keyRange(t)(Only(1))))
		assert.Equal(t, map[string]any{"id": 1.0, "v": "x"}, got)
	})
	require.NoError(t, err)
}

func testRanges(t *testing.T, conn *Database) {
	_, err := within(t, conn, []string{"notes"}, ReadWrite, func(tx *Transaction) {
		notes := store(t, tx, "notes")
		for i := 1; i <= 5; i++ {
			result(t)(notes.Put(i*10, i))
		}
		result(t)(notes.Put("str", "a"))

		assert.Equal(t, []any{10.0, 20.0, 30.0, 40.0, 50.0, "str"}, result(t)(notes.GetAll(nil, 0)))
		assert.Equal(t, []any{10.0, 20.0}, result(t)(notes.GetAll(nil, 2)))
		assert.Equal(t, []any{30.0, 40.0}, result(t)(notes.GetAll(keyRange(t)(Bound(2, 4, true, false)), 0)))
		// Numbers sort before strings, so the string key "a" is above 100.
		assert.Equal(t, []any{"str"}, result(t)(notes.GetAll(keyRange(t)(LowerBound(100, false)), 0)))

		assert.Equal(t, uint64(6), result(t)(notes.Count(nil)))
		assert.Equal(t, uint64(2), result(t)(notes.Count(keyRange(t)(UpperBound(3, true)))))
		assert.Equal(t, uint64(1), result(t)(notes.Count(keyRange(t)(LowerBound(5, true)))))

		assert.Equal(t, 30.0, result(t)(notes.Get(keyRange(t)(LowerBound(2, true)))))
	})
	require.NoError(t, err)
}

func testDeleteRange(t *testing.T, conn *Database) {
	_, err := within(t, conn, []string{"people"}, ReadWrite, func(tx *Transaction) {
		people := store(t, tx, "people")
		for i, name := range []string{"a", "b", "c", "d"} {
			result(t)(people.Put(person(i+1, name, "t"), nil))
		}
		result(t)(people.Delete(keyRange(t)(Bound(2, 3, false, false))))
		assert.Equal(t, uint64(2), result(t)(people.Count(nil)))

		_, err := people.Delete(nil)
		assert.Equal(t, DataError, ErrorName(err))

		// Index entries of deleted records are gone too.
		byTag, err := people.Index("byTag")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), result(t)(byTag.Count(nil)))

		// The freed unique name can be reused.
		result(t)(people.Put(person(9, "b"), nil))
	})
	require.NoError(t, err)
}

func testClearKeepsGenerator(t *testing.T, conn *Database) {
	_, err := within(t, conn, []string{"counters"}, ReadWrite, func(tx *Transaction) {
		counters := store(t, tx, "counters")
		result(t)(counters.Add("a", nil))
		result(t)(counters.Add("b", nil))
		result(t)(counters.Clear())
		assert.Equal(t, uint64(0), result(t)(counters.Count(nil)))
		assert.Equal(t, 3.0, result(t)(counters.Add("c", nil)))
	})
	require.NoError(t, err)
}

func testReadOnly(t *testing.T, conn *Database) {
	_, err := within(t, conn, []string{"notes"}, ReadOnly, func(tx *Transaction) {
		notes := store(t, tx, "notes")
		_, err := notes.Put("x", 1)
		assert.Equal(t, ReadOnlyError, ErrorName(err))
		_, err = notes.Add("x", 1)
		assert.Equal(t, ReadOnlyError, ErrorName(err))
		_, err = notes.Delete(keyRange(t)(Only(1)))
		assert.Equal(t, ReadOnlyError, ErrorName(err))
		_, err = notes.Clear()
		assert.Equal(t, ReadOnlyError, ErrorName(err))
	})
	require.NoError(t, err)
}

func testUniqueIndex(t *testing.T, conn *Database) {
	term, err := within(t, conn, []string{"people"}, ReadWrite, func(tx *Transaction) {
		people := store(t, tx, "people")
		result(t)(people.Put(person(1, "ann"), nil))
		// Rewriting a record keeps its own index key.
		result(t)(people.Put(person(1, "ann"), nil))
		req, err := people.Put(person(2, "ann"), nil)
		require.NoError(t, err)
		_, err = req.Result()
		assert.Equal(t, ConstraintError, ErrorName(err))
	})
	assert.Equal(t, Errored, term)
	assert.Equal(t, ConstraintError, ErrorName(err))
}

func testIndexQueries(t *testing.T, conn *Database) {
	_, err := within(t, conn, []string{"people"}, ReadWrite, func(tx *Transaction) {
		people := store(t, tx, "people")
		result(t)(people.Put(person(1, "cat", "x", "y", "x"), nil))
		result(t)(people.Put(person(2, "ann", "y"), nil))
		result(t)(people.Put(person(3, "bob"), nil))
		result(t)(people.Put(map[string]any{"id": 4}, nil))

		byName, err := people.Index("byName")
		require.NoError(t, err)
		assert.True(t, byName.Unique())
		assert.Equal(t, "name", byName.KeyPath())
		assert.Equal(t, uint64(3), result(t)(byName.Count(nil)))

		got := result(t)(byName.GetAll(nil, 0)).([]any)
		require.Len(t, got, 3)
		assert.Equal(t, "ann", got[0].(map[string]any)["name"])
		assert.Equal(t, "cat", got[2].(map[string]any)["name"])
		assert.Equal(t, 3.0, result(t)(byName.GetKey(keyRange(t)(Only("bob")))))
		assert.Nil(t, result(t)(byName.Get(keyRange(t)(Only("zed")))))

		byTag, err := people.Index("byTag")
		require.NoError(t, err)
		// Duplicate array elements yield one entry.
		assert.Equal(t, uint64(3), result(t)(byTag.Count(nil)))
		assert.Equal(t, uint64(2), result(t)(byTag.Count(keyRange(t)(Only("y")))))
		ys := result(t)(byTag.GetAll(keyRange(t)(Only("y")), 0)).([]any)
		require.Len(t, ys, 2)
		assert.Equal(t, 1.0, ys[0].(map[string]any)["id"])

		_, err = people.Index("nope")
		assert.Equal(t, NotFoundError, ErrorName(err))
		assert.Equal(t, []string{"byName", "byTag"}, people.IndexNames())
	})
	require.NoError(t, err)
}

func testAbortDiscards(t *testing.T, conn *Database) {
	tx, err := conn.Transaction([]string{"notes"}, ReadWrite)
	require.NoError(t, err)
	notes := store(t, tx, "notes")
	result(t)(notes.Put("x", 1))
	require.NoError(t, tx.Abort())

	term, err := tx.Wait()
	assert.Equal(t, Aborted, term)
	assert.Equal(t, AbortError, ErrorName(err))

	_, err = notes.Put("y", 2)
	assert.Equal(t, TransactionInactiveError, ErrorName(err))

	_, err = within(t, conn, []string{"notes"}, ReadOnly, func(tx *Transaction) {
		assert.Equal(t, uint64(0), result(t)(store(t, tx, "notes").Count(nil)))
	})
	require.NoError(t, err)
}

func testRequestOrder(t *testing.T, conn *Database) {
	tx, err := conn.Transaction([]string{"notes"}, ReadWrite)
	require.NoError(t, err)
	notes := store(t, tx, "notes")

	put, err := notes.Put("x", 1)
	require.NoError(t, err)
	count, err := notes.Count(nil)
	require.NoError(t, err)
	del, err := notes.Delete(keyRange(t)(Only(1)))
	require.NoError(t, err)
	after, err := notes.Count(nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	term, err := tx.Wait()
	require.NoError(t, err)
	assert.Equal(t, Complete, term)

	for _, req := range []*Request{put, count, del, after} {
		select {
		case <-req.Done():
		default:
			t.Fatal("request not completed before the transaction finished")
		}
	}
	n, _ := count.Result()
	assert.Equal(t, uint64(1), n)
	n, _ = after.Result()
	assert.Equal(t, uint64(0), n)
}

func testHandlerChain(t *testing.T, conn *Database) {
	tx, err := conn.Transaction([]string{"notes"}, ReadWrite)
	require.NoError(t, err)
	notes := store(t, tx, "notes")

	var chained *Request
	put, err := notes.Put("x", 1)
	require.NoError(t, err)
	put.OnComplete(func(_ any, err error) {
		require.NoError(t, err)
		chained, err = notes.Get(keyRange(t)(Only(1)))
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	})

	term, err := tx.Wait()
	require.NoError(t, err)
	assert.Equal(t, Complete, term)
	require.NotNil(t, chained)
	assert.Equal(t, "x", result(t)(chained, nil))

	// A handler registered late runs immediately.
	ran := false
	put.OnComplete(func(any, error) { ran = true })
	assert.True(t, ran)
}

func testValuesCloned(t *testing.T, conn *Database) {
	value := map[string]any{"n": 1}
	_, err := within(t, conn, []string{"notes"}, ReadWrite, func(tx *Transaction) {
		notes := store(t, tx, "notes")
		req, err := notes.Put(value, 1)
		require.NoError(t, err)
		value["n"] = 2
		result(t)(req, nil)
		assert.Equal(t, map[string]any{"n": 1.0}, result(t)(notes.Get(keyRange(t)(Only(1)))))
	})
	require.NoError(t, err)
}

func TestSchemaEvolution(t *testing.T) {
	f := memoryFactory()
	keep, err := f.Open("evolve", 1, func(conn *Database, _ *Transaction, _, _ uint64) error {
		s, err := conn.CreateObjectStore("s", ObjectStoreOptions{KeyPath: "id"})
		if err != nil {
			return err
		}
		_, err = s.Put(map[string]any{"id": 1, "tag": "a"}, nil)
		return err
	})
	require.NoError(t, err)
	defer keep.Close()

	// An index added later is populated from existing records.
	conn, err := f.Open("evolve", 2, func(_ *Database, tx *Transaction, _, _ uint64) error {
		s, err := tx.ObjectStore("s")
		if err != nil {
			return err
		}
		_, err = s.CreateIndex("byTag", "tag", IndexOptions{})
		return err
	})
	require.NoError(t, err)
	conn.Close()

	_, err = within(t, keep, []string{"s"}, ReadOnly, func(tx *Transaction) {
		idx, err := store(t, tx, "s").Index("byTag")
		require.NoError(t, err)
		assert.Equal(t, 1.0, result(t)(idx.GetKey(keyRange(t)(Only("a")))))
	})
	require.NoError(t, err)

	// Deleting and recreating a store leaves no old data behind.
	conn, err = f.Open("evolve", 3, func(conn *Database, tx *Transaction, _, _ uint64) error {
		s, err := tx.ObjectStore("s")
		if err != nil {
			return err
		}
		if err := s.DeleteIndex("byTag"); err != nil {
			return err
		}
		if err := conn.DeleteObjectStore("s"); err != nil {
			return err
		}
		if _, err := s.Put(map[string]any{"id": 2}, nil); ErrorName(err) != InvalidStateError {
			t.Errorf("put on deleted store: %v", err)
		}
		_, err = conn.CreateObjectStore("s", ObjectStoreOptions{KeyPath: "id"})
		return err
	})
	require.NoError(t, err)
	conn.Close()

	_, err = within(t, keep, []string{"s"}, ReadOnly, func(tx *Transaction) {
		s := store(t, tx, "s")
		assert.Equal(t, uint64(0), result(t)(s.Count(nil)))
		assert.Empty(t, s.IndexNames())
	})
	require.NoError(t, err)
}
