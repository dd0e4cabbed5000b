package bridge

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/eigerco/objstore/internal/idb"
)

type bogusCommand struct{}

func (bogusCommand) isCommand() {}

func TestPlanTransaction(t *testing.T) {
	tests := []struct {
		name   string
		ops    []Operation
		stores []string
		mode   idb.Mode
	}{
		{
			name:   "empty",
			ops:    nil,
			stores: []string{},
			mode:   idb.ReadOnly,
		},
		{
			name: "reads_only",
			ops: []Operation{
				{Store: "a", Command: Get{Range: Only{Value: 1}}},
				{Store: "b", Command: GetAll{}},
				{Store: "a", Command: Count{}},
			},
			stores: []string{"a", "b"},
			mode:   idb.ReadOnly,
		},
		{
			name: "one_write",
			ops: []Operation{
				{Store: "b", Command: Count{}},
				{Store: "a", Command: Put{Value: 1, Key: 1}},
			},
			stores: []string{"b", "a"},
			mode:   idb.ReadWrite,
		},
		{
			name: "delete_is_a_write",
			ops: []Operation{
				{Store: "a", Command: Delete{Range: Only{Value: "nothing"}}},
			},
			stores: []string{"a"},
			mode:   idb.ReadWrite,
		},
		{
			name: "duplicates_collapse",
			ops: []Operation{
				{Store: "x", Command: Clear{}},
				{Store: "x", Command: Add{Value: 1}},
				{Store: "x", Command: GetAll{}},
			},
			stores: []string{"x"},
			mode:   idb.ReadWrite,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := PlanTransaction(tc.ops)
			assert.Equal(t, tc.stores, plan.Stores)
			assert.Equal(t, tc.mode, plan.Mode)
		})
	}
}

func TestPlanUnknownCommandPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrUnknownOperation))
	}()
	PlanTransaction([]Operation{{Store: "a", Command: bogusCommand{}}})
}

func genStore() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{"a", "b", "c", "d"})
}

func genReadOp() *rapid.Generator[Operation] {
	return rapid.Custom(func(t *rapid.T) Operation {
		store := genStore().Draw(t, "store")
		switch rapid.IntRange(0, 2).Draw(t, "read") {
		case 0:
			return Operation{Store: store, Command: Get{Range: Only{Value: 1}}}
		case 1:
			return Operation{Store: store, Command: GetAll{}}
		default:
			return Operation{Store: store, Command: Count{}}
		}
	})
}

func genWriteOp() *rapid.Generator[Operation] {
	return rapid.Custom(func(t *rapid.T) Operation {
		store := genStore().Draw(t, "store")
		switch rapid.IntRange(0, 3).Draw(t, "write") {
		case 0:
			return Operation{Store: store, Command: Add{Value: 1}}
		case 1:
			return Operation{Store: store, Command: Put{Value: 1}}
		case 2:
			return Operation{Store: store, Command: Delete{Range: Only{Value: 1}}}
		default:
			return Operation{Store: store, Command: Clear{}}
		}
	})
}

func TestPlanProperties(t *testing.T) {
	t.Run("mode_monotonic", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			reads := rapid.SliceOf(genReadOp()).Draw(t, "reads")
			if PlanTransaction(reads).Mode != idb.ReadOnly {
				t.Fatalf("all-read batch planned as read-write")
			}

			write := genWriteOp().Draw(t, "write")
			at := rapid.IntRange(0, len(reads)).Draw(t, "at")
			mixed := append(append(append([]Operation{}, reads[:at]...), write), reads[at:]...)
			if PlanTransaction(mixed).Mode != idb.ReadWrite {
				t.Fatalf("batch with a write planned as read-only")
			}
		})
	})

	t.Run("stores_first_seen_unique", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			ops := rapid.SliceOf(rapid.OneOf(genReadOp(), genWriteOp())).Draw(t, "ops")
			plan := PlanTransaction(ops)

			var want []string
			seen := map[string]bool{}
			for _, op := range ops {
				if !seen[op.Store] {
					seen[op.Store] = true
					want = append(want, op.Store)
				}
			}
			if len(want) != len(plan.Stores) {
				t.Fatalf("stores %v, want %v", plan.Stores, want)
			}
			for i := range want {
				if want[i] != plan.Stores[i] {
					t.Fatalf("stores %v, want %v", plan.Stores, want)
				}
			}

			// Repeating the batch changes nothing.
			again := PlanTransaction(append(append([]Operation{}, ops...), ops...))
			if len(again.Stores) != len(plan.Stores) || again.Mode != plan.Mode {
				t.Fatalf("duplicated batch planned differently")
			}
		})
	})
}
