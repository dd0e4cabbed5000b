package bolt

import (
	"github.com/cockroachdb/errors"

	"github.com/eigerco/objstore/pkg/db"
)

var (
	ErrClosed          = errors.Mark(errors.New("bolt-store: database is closed"), db.ErrClosed)
	ErrNotFound        = errors.Mark(errors.New("bolt-store: key not found"), db.ErrNotFound)
	ErrTxnDone         = errors.Mark(errors.New("bolt-store: transaction already committed or closed"), db.ErrTxnDone)
	ErrReadOnly        = errors.Mark(errors.New("bolt-store: write in read-only transaction"), db.ErrReadOnly)
	ErrIteratorInvalid = errors.New("bolt-store: iterator is not positioned")
)
