package db

// KVStore represents an ordered key-value storage interface providing basic
// operations for data manipulation, iteration and transactions.
type KVStore interface {
	Reader
	Writer
	Delete(key []byte) error
	NewTxn(writable bool) (Txn, error)
	Close() error
}

type Reader interface {
	Get(key []byte) ([]byte, error)
	NewIterator(start, end []byte) (Iterator, error)
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Txn represents an atomic unit of reads and writes.
// Reads observe the transaction's own earlier writes. All writes are
// applied together on Commit; Close without Commit discards them.
// A read-only Txn rejects writes.
type Txn interface {
	Reader
	Writer
	Delete(key []byte) error
	Writable() bool
	Commit() error
	Close() error
}

// Iterator provides sequential access over a range of key-value pairs.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}
