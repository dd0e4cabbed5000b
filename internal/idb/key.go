package idb

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// Key is a valid object-store key: a float64, a time.Time, a string, a
// []byte or a []any of keys. Keys produced by the engine are always in this
// normalised form.
type Key = any

// Key type tags. Their order is the cross-type key order.
const (
	tagNumber byte = 0x10
	tagDate   byte = 0x20
	tagString byte = 0x30
	tagBinary byte = 0x40
	tagArray  byte = 0x50
)

const (
	escapeByte  byte = 0x00
	escapedZero byte = 0xff
	arrayEnd    byte = 0x00
)

// NormalizeKey validates v as a key and converts it to normalised form.
// Every Go integer and float kind is a number.
func NormalizeKey(v any) (Key, error) {
	return normalizeKey(v, 0)
}

func normalizeKey(v any, depth int) (Key, error) {
	if depth > 64 {
		return nil, newError(DataError, "key nesting is too deep")
	}
	switch k := v.(type) {
	case nil:
		return nil, newError(DataError, "a key cannot be null")
	case float64:
		if math.IsNaN(k) {
			return nil, newError(DataError, "NaN is not a valid key")
		}
		return k, nil
	case float32:
		return normalizeKey(float64(k), depth)
	case int:
		return float64(k), nil
	case int8:
		return float64(k), nil
	case int16:
		return float64(k), nil
	case int32:
		return float64(k), nil
	case int64:
		return float64(k), nil
	case uint:
		return float64(k), nil
	case uint8:
		return float64(k), nil
	case uint16:
		return float64(k), nil
	case uint32:
		return float64(k), nil
	case uint64:
		return float64(k), nil
	case string:
		return k, nil
	case time.Time:
		return time.UnixMilli(k.UnixMilli()).UTC(), nil
	case []byte:
		return k, nil
	case []any:
		out := make([]any, len(k))
		for i, e := range k {
			n, err := normalizeKey(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(k))
		for i, e := range k {
			out[i] = e
		}
		return out, nil
	default:
		return nil, newError(DataError, "%T is not a valid key type", v)
	}
}

// CompareKeys orders two normalised keys, returning -1, 0 or 1.
func CompareKeys(a, b Key) int {
	return bytes.Compare(EncodeKey(a), EncodeKey(b))
}

// EncodeKey encodes a normalised key into a byte string whose
// lexicographic order is the key order. Encodings are prefix-free: no
// encoded key is a proper prefix of another.
func EncodeKey(k Key) []byte {
	return appendKey(nil, k)
}

func appendKey(buf []byte, k Key) []byte {
	switch v := k.(type) {
	case float64:
		buf = append(buf, tagNumber)
		return appendFloat(buf, v)
	case time.Time:
		buf = append(buf, tagDate)
		return appendFloat(buf, float64(v.UnixMilli()))
	case string:
		buf = append(buf, tagString)
		return appendEscaped(buf, []byte(v))
	case []byte:
		buf = append(buf, tagBinary)
		return appendEscaped(buf, v)
	case []any:
		buf = append(buf, tagArray)
		for _, e := range v {
			buf = appendKey(buf, e)
		}
		return append(buf, arrayEnd)
	default:
		panic(newError(DataError, "cannot encode non-normalised key of type %T", k))
	}
}

// appendFloat writes f so that unsigned byte order matches numeric order.
func appendFloat(buf []byte, f float64) []byte {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(buf, bits)
}

func appendEscaped(buf, b []byte) []byte {
	for _, c := range b {
		if c == escapeByte {
			buf = append(buf, escapeByte, escapedZero)
			continue
		}
		buf = append(buf, c)
	}
	return append(buf, escapeByte, escapeByte)
}

// DecodeKey decodes one key from the front of b and returns the rest.
func DecodeKey(b []byte) (Key, []byte, error) {
	if len(b) == 0 {
		return nil, nil, newError(DataError, "empty key encoding")
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case tagNumber, tagDate:
		if len(rest) < 8 {
			return nil, nil, newError(DataError, "truncated number key")
		}
		f := decodeFloat(rest[:8])
		if tag == tagDate {
			return time.UnixMilli(int64(f)).UTC(), rest[8:], nil
		}
		return f, rest[8:], nil
	case tagString:
		raw, rest, err := decodeEscaped(rest)
		if err != nil {
			return nil, nil, err
		}
		return string(raw), rest, nil
	case tagBinary:
		return decodeEscaped(rest)
	case tagArray:
		out := []any{}
		for {
			if len(rest) == 0 {
				return nil, nil, newError(DataError, "unterminated array key")
			}
			if rest[0] == arrayEnd {
				return out, rest[1:], nil
			}
			var e Key
			var err error
			e, rest, err = DecodeKey(rest)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, e)
		}
	default:
		return nil, nil, newError(DataError, "unknown key tag 0x%02x", tag)
	}
}

func decodeFloat(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

func decodeEscaped(b []byte) ([]byte, []byte, error) {
	out := []byte{}
	for i := 0; i < len(b); i++ {
		if b[i] != escapeByte {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			break
		}
		switch b[i+1] {
		case escapeByte:
			return out, b[i+2:], nil
		case escapedZero:
			out = append(out, 0)
			i++
		default:
			return nil, nil, newError(DataError, "bad escape in key encoding")
		}
	}
	return nil, nil, newError(DataError, "unterminated key encoding")
}

// decodeWholeKey decodes b, which must hold exactly one key.
func decodeWholeKey(b []byte) (Key, error) {
	k, rest, err := DecodeKey(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, newError(DataError, "trailing bytes after key")
	}
	return k, nil
}
