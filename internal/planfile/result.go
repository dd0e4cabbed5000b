package planfile

import (
	"github.com/goccy/go-json"

	"github.com/eigerco/objstore/internal/bridge"
)

// Slot is the file form of one result slot. A get that matched nothing is
// {"present":true,"value":{"present":false}}.
type Slot struct {
	Present bool `json:"present"`
	Value   any  `json:"value,omitempty"`
}

func ToSlots(results []bridge.Option[any]) []Slot {
	out := make([]Slot, len(results))
	for i, r := range results {
		out[i] = toSlot(r)
	}
	return out
}

func toSlot(o bridge.Option[any]) Slot {
	v, ok := o.Get()
	if !ok {
		return Slot{}
	}
	if inner, nested := v.(bridge.Option[any]); nested {
		return Slot{Present: true, Value: toSlot(inner)}
	}
	return Slot{Present: true, Value: v}
}

// EncodeResults renders results as an indented JSON array of slots.
func EncodeResults(results []bridge.Option[any]) ([]byte, error) {
	return json.MarshalIndent(ToSlots(results), "", "  ")
}
