package bridge

import (
	"github.com/cockroachdb/errors"

	"github.com/eigerco/objstore/internal/idb"
)

// PlanTransaction derives the scope and mode for a batch in one pass. The
// mode is ReadWrite iff some command writes; Delete counts as a write even
// when its range matches nothing.
func PlanTransaction(ops []Operation) Plan {
	plan := Plan{Stores: []string{}, Mode: idb.ReadOnly}
	seen := make(map[string]struct{}, len(ops))

	for _, op := range ops {
		if isWrite(op.Command) {
			plan.Mode = idb.ReadWrite
		}
		if _, ok := seen[op.Store]; !ok {
			seen[op.Store] = struct{}{}
			plan.Stores = append(plan.Stores, op.Store)
		}
	}
	return plan
}

func isWrite(c Command) bool {
	switch c.(type) {
	case Add, Put, Delete, Clear:
		return true
	case Get, GetAll, Count:
		return false
	default:
		panic(errors.Wrapf(ErrUnknownOperation, "command %T", c))
	}
}

func commandName(c Command) string {
	switch c.(type) {
	case Add:
		return "add"
	case Put:
		return "put"
	case Delete:
		return "delete"
	case Get:
		return "get"
	case GetAll:
		return "getAll"
	case Clear:
		return "clear"
	case Count:
		return "count"
	default:
		panic(errors.Wrapf(ErrUnknownOperation, "command %T", c))
	}
}
