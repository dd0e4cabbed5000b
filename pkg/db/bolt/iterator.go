package bolt

import (
	"bytes"

	bbolt "go.etcd.io/bbolt"
)

// Iterator walks a bucket cursor over [start, end). A nil end is unbounded.
type Iterator struct {
	cursor  *bbolt.Cursor
	start   []byte
	end     []byte
	key     []byte
	value   []byte
	started bool
	release func() error
}

func newIterator(b *bbolt.Bucket, start, end []byte) *Iterator {
	return &Iterator{cursor: b.Cursor(), start: start, end: end}
}

func (it *Iterator) Next() bool {
	var k, v []byte
	switch {
	case !it.started:
		it.started = true
		if it.start == nil {
			k, v = it.cursor.First()
		} else {
			k, v = it.cursor.Seek(it.start)
		}
	case it.key == nil:
		return false
	default:
		k, v = it.cursor.Next()
	}
	if k == nil || (it.end != nil && bytes.Compare(k, it.end) >= 0) {
		it.key, it.value = nil, nil
		return false
	}
	it.key, it.value = k, v
	return true
}

func (it *Iterator) Key() []byte {
	return clone(it.key)
}

func (it *Iterator) Value() ([]byte, error) {
	if it.key == nil {
		return nil, ErrIteratorInvalid
	}
	return clone(it.value), nil
}

func (it *Iterator) Valid() bool {
	return it.key != nil
}

func (it *Iterator) Close() error {
	it.key, it.value = nil, nil
	if it.release == nil {
		return nil
	}
	release := it.release
	it.release = nil
	return release()
}
