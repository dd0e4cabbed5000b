package bridge

import (
	"github.com/cockroachdb/errors"

	"github.com/eigerco/objstore/internal/idb"
)

// EncodeKeyPath returns the engine form of p: nil, a string or a []string.
func EncodeKeyPath(p KeyPath) any {
	switch kp := p.(type) {
	case nil, NoKeyPath:
		return nil
	case SingleKeyPath:
		return kp.Path
	case MultiKeyPath:
		return append([]string(nil), kp.Paths...)
	default:
		panic(errors.Wrapf(ErrInvalidAction, "key path %T", p))
	}
}

// EncodeKeyRange builds the engine range for r. A nil r yields a nil
// range. Bounds the engine rejects come back as its DataError.
func EncodeKeyRange(r KeyRange) (*idb.KeyRange, error) {
	switch kr := r.(type) {
	case nil:
		return nil, nil
	case UpperBound:
		return idb.UpperBound(kr.Value, kr.Exclusive)
	case LowerBound:
		return idb.LowerBound(kr.Value, kr.Exclusive)
	case Bound:
		return idb.Bound(kr.Lower, kr.Upper, kr.LowerExclusive, kr.UpperExclusive)
	case Only:
		return idb.Only(kr.Value)
	default:
		panic(errors.Wrapf(ErrInvalidAction, "key range %T", r))
	}
}

// DecodeOptional turns a nullable engine result into an Option. Only nil is
// absent; zero values such as 0, false and "" are present.
func DecodeOptional(v any) Option[any] {
	if v == nil {
		return None[any]()
	}
	return Some(v)
}
