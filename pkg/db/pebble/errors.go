package pebble

import (
	"github.com/cockroachdb/errors"

	"github.com/eigerco/objstore/pkg/db"
)

var (
	ErrClosed          = errors.Mark(errors.New("kv-store: database is closed"), db.ErrClosed)
	ErrNotFound        = errors.Mark(errors.New("kv-store: key not found"), db.ErrNotFound)
	ErrTxnDone         = errors.Mark(errors.New("kv-store: transaction already committed or closed"), db.ErrTxnDone)
	ErrReadOnly        = errors.Mark(errors.New("kv-store: write in read-only transaction"), db.ErrReadOnly)
	ErrIteratorInvalid = errors.New("kv-store: iterator is not positioned")
)
