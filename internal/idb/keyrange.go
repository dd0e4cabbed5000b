package idb

import "bytes"

// KeyRange selects a contiguous interval of keys. A nil bound is unbounded.
type KeyRange struct {
	lower, upper         Key
	lowerOpen, upperOpen bool
}

// Only selects exactly one key.
func Only(key any) (*KeyRange, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return &KeyRange{lower: k, upper: k}, nil
}

// LowerBound selects every key above key; open excludes key itself.
func LowerBound(key any, open bool) (*KeyRange, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return &KeyRange{lower: k, lowerOpen: open}, nil
}

// UpperBound selects every key below key; open excludes key itself.
func UpperBound(key any, open bool) (*KeyRange, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return &KeyRange{upper: k, upperOpen: open}, nil
}

// Bound selects keys between lower and upper. lower must not sort after
// upper, and equal bounds must both be closed.
func Bound(lower, upper any, lowerOpen, upperOpen bool) (*KeyRange, error) {
	l, err := NormalizeKey(lower)
	if err != nil {
		return nil, err
	}
	u, err := NormalizeKey(upper)
	if err != nil {
		return nil, err
	}
	switch c := CompareKeys(l, u); {
	case c > 0:
		return nil, newError(DataError, "lower bound %v is greater than upper bound %v", l, u)
	case c == 0 && (lowerOpen || upperOpen):
		return nil, newError(DataError, "equal bounds %v must both be closed", l)
	}
	return &KeyRange{lower: l, upper: u, lowerOpen: lowerOpen, upperOpen: upperOpen}, nil
}

func (r *KeyRange) Lower() Key      { return r.lower }
func (r *KeyRange) Upper() Key      { return r.upper }
func (r *KeyRange) LowerOpen() bool { return r.lowerOpen }
func (r *KeyRange) UpperOpen() bool { return r.upperOpen }

// Includes reports whether key lies inside the range.
func (r *KeyRange) Includes(key any) (bool, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return false, err
	}
	enc := EncodeKey(k)
	if r.lower != nil {
		c := bytes.Compare(enc, EncodeKey(r.lower))
		if c < 0 || (c == 0 && r.lowerOpen) {
			return false, nil
		}
	}
	if r.upper != nil {
		c := bytes.Compare(enc, EncodeKey(r.upper))
		if c > 0 || (c == 0 && r.upperOpen) {
			return false, nil
		}
	}
	return true, nil
}

// bounds returns the half-open KV interval [start, end) holding every
// entry under prefix whose next encoded key lies in r. A nil r covers the
// whole prefix. Entries may carry suffixes after the key, as index entries
// do, so bounds are computed on key prefixes.
func (r *KeyRange) bounds(prefix []byte) (start, end []byte) {
	start = prefix
	end = prefixSuccessor(prefix)
	if r == nil {
		return start, end
	}
	if r.lower != nil {
		start = append(append([]byte(nil), prefix...), EncodeKey(r.lower)...)
		if r.lowerOpen {
			start = prefixSuccessor(start)
		}
	}
	if r.upper != nil {
		end = append(append([]byte(nil), prefix...), EncodeKey(r.upper)...)
		if !r.upperOpen {
			end = prefixSuccessor(end)
		}
	}
	return start, end
}

// prefixSuccessor returns the smallest key greater than every key with
// the given prefix, or nil if there is none.
func prefixSuccessor(prefix []byte) []byte {
	s := append([]byte(nil), prefix...)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != 0xff {
			s[i]++
			return s[:i+1]
		}
	}
	return nil
}
