package bridge

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/eigerco/objstore/internal/idb"
	"github.com/eigerco/objstore/pkg/log"
)

// Executor runs operation batches. It keeps no state between calls, so one
// Executor may serve concurrent calls on the same connection.
type Executor struct {
	logger zerolog.Logger
}

func NewExecutor(logger zerolog.Logger) *Executor {
	return &Executor{logger: logger}
}

// Execute runs ops with an Executor logging to the bridge logger.
func Execute(conn *idb.Database, ops []Operation) ([]Option[any], error) {
	return NewExecutor(log.Bridge).Execute(conn, ops)
}

// Execute runs ops in one atomic transaction and returns one slot per
// operation, in order. Slots of add, put, delete and clear are None. get
// yields Some(Option) holding the value if one matched, getAll yields
// Some([]any) and count yields Some(int).
//
// Errors are ErrNoConnection, ErrAbort when the transaction was rolled back
// without a failing request, or a *NativeError naming the engine error.
// On any error none of the batch's writes were applied.
func (e *Executor) Execute(conn *idb.Database, ops []Operation) ([]Option[any], error) {
	if conn == nil || conn.Closed() {
		return nil, ErrNoConnection
	}
	if len(ops) == 0 {
		return []Option[any]{}, nil
	}

	plan := PlanTransaction(ops)
	tx, err := conn.Transaction(plan.Stores, plan.Mode)
	if err != nil {
		if conn.Closed() {
			return nil, ErrNoConnection
		}
		e.logger.Debug().Err(err).Strs("stores", plan.Stores).Msg("transaction rejected")
		return nil, translate(err)
	}
	logger := e.logger.With().Str("txn", tx.ID()).Logger()

	// Each handler writes only its own slot, and every handler has run
	// before the transaction reports its terminal signal.
	slots := make([]Option[any], len(ops))
	for i, op := range ops {
		if err := submit(tx, op, &slots[i]); err != nil {
			_ = tx.Abort()
			terminal, txErr := tx.Wait()
			logger.Debug().Err(err).Int("op", i).Str("command", commandName(op.Command)).Msg("operation rejected")
			// An earlier request that failed while this one was being
			// submitted is the batch's real error.
			if terminal == idb.Errored {
				return nil, translate(txErr)
			}
			return nil, translate(err)
		}
	}

	// Commit fails only if a request has already failed; Wait reports that.
	_ = tx.Commit()
	terminal, txErr := tx.Wait()

	logger.Debug().
		Str("terminal", terminal.String()).
		Int("ops", len(ops)).
		Err(txErr).
		Msg("batch finished")

	switch terminal {
	case idb.Complete:
		return slots, nil
	case idb.Aborted:
		return nil, ErrAbort
	default:
		return nil, translate(txErr)
	}
}

// submit issues the engine request for op and arranges for its result to
// land in slot.
func submit(tx *idb.Transaction, op Operation, slot *Option[any]) error {
	s, err := tx.ObjectStore(op.Store)
	if err != nil {
		return err
	}

	var (
		req  *idb.Request
		fill func(v any)
	)
	switch c := op.Command.(type) {
	case Add:
		req, err = s.Add(c.Value, c.Key)
	case Put:
		req, err = s.Put(c.Value, c.Key)
	case Delete:
		var r *idb.KeyRange
		if r, err = EncodeKeyRange(c.Range); err == nil {
			req, err = s.Delete(r)
		}
	case Clear:
		req, err = s.Clear()
	case Get:
		var r *idb.KeyRange
		if r, err = EncodeKeyRange(c.Range); err == nil {
			req, err = s.Get(r)
		}
		fill = func(v any) { *slot = Some[any](DecodeOptional(v)) }
	case GetAll:
		req, err = s.GetAll(nil, 0)
		fill = func(v any) { *slot = Some(v) }
	case Count:
		var r *idb.KeyRange
		if r, err = EncodeKeyRange(c.Range); err == nil {
			req, err = s.Count(r)
		}
		fill = func(v any) { *slot = Some[any](int(v.(uint64))) }
	default:
		panic(errors.Wrapf(ErrUnknownOperation, "command %T", op.Command))
	}
	if err != nil {
		return err
	}

	if fill != nil {
		req.OnComplete(func(v any, err error) {
			if err == nil {
				fill(v)
			}
		})
	}
	return nil
}
