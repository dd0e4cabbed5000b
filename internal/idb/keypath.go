package idb

import (
	"strings"
	"unicode"

	json "github.com/goccy/go-json"
)

// keyPath is the parsed form of a native key path: nil, a string, or a
// []string.
type keyPath struct {
	set   bool
	array bool
	paths []string
}

// parseKeyPath validates a native key path value.
func parseKeyPath(v any) (keyPath, error) {
	switch p := v.(type) {
	case nil:
		return keyPath{}, nil
	case string:
		if !validPath(p) {
			return keyPath{}, newError(SyntaxError, "invalid key path %q", p)
		}
		return keyPath{set: true, paths: []string{p}}, nil
	case []string:
		if len(p) == 0 {
			return keyPath{}, newError(SyntaxError, "array key path must not be empty")
		}
		for _, s := range p {
			if s == "" || !validPath(s) {
				return keyPath{}, newError(SyntaxError, "invalid key path %q", s)
			}
		}
		return keyPath{set: true, array: true, paths: append([]string(nil), p...)}, nil
	case []any:
		strs := make([]string, len(p))
		for i, e := range p {
			s, ok := e.(string)
			if !ok {
				return keyPath{}, newError(SyntaxError, "key path element %d is %T, not a string", i, e)
			}
			strs[i] = s
		}
		return parseKeyPath(strs)
	default:
		return keyPath{}, newError(SyntaxError, "%T is not a key path", v)
	}
}

// validPath reports whether p is "" or dot-separated identifiers.
func validPath(p string) bool {
	if p == "" {
		return true
	}
	for _, ident := range strings.Split(p, ".") {
		if !validIdentifier(ident) {
			return false
		}
	}
	return true
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// native returns the key path as nil, string or []string.
func (p keyPath) native() any {
	switch {
	case !p.set:
		return nil
	case p.array:
		return append([]string(nil), p.paths...)
	default:
		return p.paths[0]
	}
}

func (p keyPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.native())
}

func (p *keyPath) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := parseKeyPath(v)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// evaluate extracts the key at p from value. ok is false when some
// component of the path is missing; a present but invalid key is a
// DataError.
func (p keyPath) evaluate(value any) (key Key, ok bool, err error) {
	if !p.array {
		v, ok := lookup(value, p.paths[0])
		if !ok {
			return nil, false, nil
		}
		k, err := NormalizeKey(v)
		if err != nil {
			return nil, true, err
		}
		return k, true, nil
	}

	out := make([]any, len(p.paths))
	for i, path := range p.paths {
		v, ok := lookup(value, path)
		if !ok {
			return nil, false, nil
		}
		k, err := NormalizeKey(v)
		if err != nil {
			return nil, true, err
		}
		out[i] = k
	}
	return out, true, nil
}

func lookup(value any, path string) (any, bool) {
	if path == "" {
		return value, true
	}
	cur := value
	for _, ident := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[ident]
			if !ok {
				return nil, false
			}
			cur = next
		case string:
			if ident != "length" {
				return nil, false
			}
			cur = float64(len([]rune(v)))
		case []any:
			if ident != "length" {
				return nil, false
			}
			cur = float64(len(v))
		default:
			return nil, false
		}
	}
	return cur, true
}

// canInject reports whether a generated key could be written into value at
// the single path p.
func (p keyPath) canInject(value any) bool {
	idents := strings.Split(p.paths[0], ".")
	cur := value
	for _, ident := range idents {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		next, ok := m[ident]
		if !ok {
			return true
		}
		cur = next
	}
	return false
}

// inject writes key into value at the single path p, creating
// intermediate objects as needed. canInject must hold.
func (p keyPath) inject(value any, key Key) {
	idents := strings.Split(p.paths[0], ".")
	m := value.(map[string]any)
	for _, ident := range idents[:len(idents)-1] {
		next, ok := m[ident].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[ident] = next
		}
		m = next
	}
	m[idents[len(idents)-1]] = key
}
