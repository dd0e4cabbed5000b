package db

import "github.com/cockroachdb/errors"

// Backend-independent sentinels. Each backend marks its own errors with
// these, so callers can test with errors.Is regardless of the backend.
var (
	ErrClosed   = errors.New("db: store is closed")
	ErrNotFound = errors.New("db: key not found")
	ErrTxnDone  = errors.New("db: transaction is finished")
	ErrReadOnly = errors.New("db: transaction is read-only")
)
