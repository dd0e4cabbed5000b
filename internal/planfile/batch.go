package planfile

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"

	"github.com/eigerco/objstore/internal/bridge"
)

// operation is the file form of one batch entry:
//
//	{"store": "users", "op": "put", "value": {"id": 1}, "key": 1}
//	{"store": "users", "op": "get", "range": {"only": 1}}
//	{"store": "users", "op": "count", "range": {"lower": 1, "upper": 9, "upperOpen": true}}
type operation struct {
	Store string          `json:"store"`
	Op    string          `json:"op"`
	Value json.RawMessage `json:"value"`
	Key   json.RawMessage `json:"key"`
	Range *keyRange       `json:"range"`
}

// keyRange holds either only, or one or both of lower and upper.
type keyRange struct {
	Only      json.RawMessage `json:"only"`
	Lower     json.RawMessage `json:"lower"`
	Upper     json.RawMessage `json:"upper"`
	LowerOpen bool            `json:"lowerOpen"`
	UpperOpen bool            `json:"upperOpen"`
}

func LoadBatch(path string) ([]bridge.Operation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read batch")
	}
	return ParseBatch(data)
}

// ParseBatch decodes a JSON array of operations. Numbers decode as float64
// and objects as map[string]any.
func ParseBatch(data []byte) ([]bridge.Operation, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var raw []operation
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "parse batch")
	}

	ops := make([]bridge.Operation, 0, len(raw))
	for i, r := range raw {
		op, err := r.operation()
		if err != nil {
			return nil, errors.Wrapf(err, "operation %d", i)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (o operation) operation() (bridge.Operation, error) {
	if o.Store == "" {
		return bridge.Operation{}, errors.Wrap(ErrInvalidPlan, "missing store")
	}
	value, err := decodeRaw(o.Value)
	if err != nil {
		return bridge.Operation{}, errors.Wrap(err, "value")
	}
	key, err := decodeRaw(o.Key)
	if err != nil {
		return bridge.Operation{}, errors.Wrap(err, "key")
	}
	rng, err := o.Range.decode()
	if err != nil {
		return bridge.Operation{}, errors.Wrap(err, "range")
	}

	var c bridge.Command
	switch o.Op {
	case "add":
		c = bridge.Add{Value: value, Key: key}
	case "put":
		c = bridge.Put{Value: value, Key: key}
	case "delete", "get":
		if rng == nil {
			return bridge.Operation{}, errors.Wrapf(ErrInvalidPlan, "%s needs a range", o.Op)
		}
		if o.Op == "delete" {
			c = bridge.Delete{Range: rng}
		} else {
			c = bridge.Get{Range: rng}
		}
	case "getAll":
		c = bridge.GetAll{}
	case "clear":
		c = bridge.Clear{}
	case "count":
		c = bridge.Count{Range: rng}
	default:
		return bridge.Operation{}, errors.Wrapf(ErrInvalidPlan, "unknown op %q", o.Op)
	}
	return bridge.Operation{Store: o.Store, Command: c}, nil
}

func (r *keyRange) decode() (bridge.KeyRange, error) {
	if r == nil {
		return nil, nil
	}
	only, err := decodeRaw(r.Only)
	if err != nil {
		return nil, err
	}
	lower, err := decodeRaw(r.Lower)
	if err != nil {
		return nil, err
	}
	upper, err := decodeRaw(r.Upper)
	if err != nil {
		return nil, err
	}

	switch {
	case only != nil && lower == nil && upper == nil:
		return bridge.Only{Value: only}, nil
	case only != nil:
		return nil, errors.Wrap(ErrInvalidPlan, "only excludes lower and upper")
	case lower != nil && upper != nil:
		return bridge.Bound{Lower: lower, Upper: upper, LowerExclusive: r.LowerOpen, UpperExclusive: r.UpperOpen}, nil
	case lower != nil:
		return bridge.LowerBound{Value: lower, Exclusive: r.LowerOpen}, nil
	case upper != nil:
		return bridge.UpperBound{Value: upper, Exclusive: r.UpperOpen}, nil
	default:
		return nil, errors.Wrap(ErrInvalidPlan, "empty range")
	}
}

// decodeRaw returns nil for an absent or null field.
func decodeRaw(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
