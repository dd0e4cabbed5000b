package pebble

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/objstore/pkg/db"
)

func TestTxn(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{
			name: "read_your_writes",
			fn:   testReadYourWrites,
		},
		{
			name: "commit_and_close",
			fn:   testTxnCommitAndClose,
		},
		{
			name: "discard_on_close",
			fn:   testTxnDiscard,
		},
		{
			name: "read_only",
			fn:   testReadOnlyTxn,
		},
		{
			name: "writers_serialised",
			fn:   testWritersSerialised,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewKVStore()
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck

			tc.fn(t, store)
		})
	}
}

func testReadYourWrites(t *testing.T, store db.KVStore) {
	txn, err := store.NewTxn(true)
	require.NoError(t, err)
	defer txn.Close() //nolint:errcheck

	require.NoError(t, txn.Put([]byte("key1"), []byte("value1")))
	require.NoError(t, txn.Put([]byte("key2"), []byte("value2")))
	require.NoError(t, txn.Delete([]byte("key2")))

	value, err := txn.Get([]byte("key1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), value)

	_, err = txn.Get([]byte("key2"))
	assert.ErrorIs(t, err, ErrNotFound)

	iter, err := txn.NewIterator(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"key1": "value1"}, collect(t, iter))
	require.NoError(t, iter.Close())

	// Nothing is visible outside the transaction before commit
	_, err = store.Get([]byte("key1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func testTxnCommitAndClose(t *testing.T, store db.KVStore) {
	txn, err := store.NewTxn(true)
	require.NoError(t, err)
	assert.True(t, txn.Writable())

	require.NoError(t, txn.Put([]byte("key"), []byte("value")))
	require.NoError(t, txn.Commit())

	value, err := store.Get([]byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	// Operations after commit fail
	assert.ErrorIs(t, txn.Put([]byte("key2"), []byte("value2")), ErrTxnDone)
	assert.ErrorIs(t, txn.Delete([]byte("key2")), ErrTxnDone)
	assert.ErrorIs(t, txn.Commit(), ErrTxnDone)
	_, err = txn.Get([]byte("key"))
	assert.ErrorIs(t, err, ErrTxnDone)

	// Close after commit is a no-op, twice
	assert.NoError(t, txn.Close())
	assert.NoError(t, txn.Close())
}

func testTxnDiscard(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte("kept"), []byte("old")))

	txn, err := store.NewTxn(true)
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("kept"), []byte("new")))
	require.NoError(t, txn.Put([]byte("dropped"), []byte("x")))
	require.NoError(t, txn.Close())

	value, err := store.Get([]byte("kept"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), value)

	_, err = store.Get([]byte("dropped"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func testReadOnlyTxn(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte("a"), []byte("1")))

	txn, err := store.NewTxn(false)
	require.NoError(t, err)
	defer txn.Close() //nolint:errcheck
	assert.False(t, txn.Writable())

	// The snapshot does not observe later writes
	require.NoError(t, store.Put([]byte("b"), []byte("2")))

	value, err := txn.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	_, err = txn.Get([]byte("b"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, txn.Put([]byte("c"), []byte("3")), ErrReadOnly)
	assert.ErrorIs(t, txn.Delete([]byte("a")), ErrReadOnly)
	assert.NoError(t, txn.Commit())
}

func testWritersSerialised(t *testing.T, store db.KVStore) {
	first, err := store.NewTxn(true)
	require.NoError(t, err)

	started := make(chan struct{})
	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		second, err := store.NewTxn(true)
		if err != nil {
			return
		}
		close(acquired)
		_ = second.Close()
	}()

	<-started
	select {
	case <-acquired:
		t.Fatal("second writer acquired while the first was open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Commit())
	wg.Wait()

	select {
	case <-acquired:
	default:
		t.Fatal("second writer never acquired")
	}
}
