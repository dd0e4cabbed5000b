package idb

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eigerco/objstore/pkg/db"
	"github.com/eigerco/objstore/pkg/log"
)

// Mode is a transaction's access mode.
type Mode uint8

const (
	ReadOnly Mode = iota
	ReadWrite
	VersionChange
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	case VersionChange:
		return "versionchange"
	default:
		return "unknown"
	}
}

// Terminal is the signal a transaction finishes with. Every transaction
// reaches exactly one of Complete, Aborted or Errored.
type Terminal uint8

const (
	Pending Terminal = iota
	// Complete: every request succeeded and the writes are durable.
	Complete
	// Aborted: the transaction was rolled back without a failing request,
	// by Abort or because the commit itself failed.
	Aborted
	// Errored: a request failed; its error bubbled to the transaction,
	// which was rolled back.
	Errored
)

func (t Terminal) String() string {
	switch t {
	case Pending:
		return "pending"
	case Complete:
		return "complete"
	case Aborted:
		return "aborted"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

type txState uint8

const (
	stateActive txState = iota
	stateCommitting
	stateAborting
	stateFinished
)

// Transaction runs its requests one at a time, in submission order, on a
// dedicated worker against a single KV transaction. Requests see the
// writes of earlier requests in the same transaction.
//
// Callers submit requests, then call Commit to declare that no more will
// follow, or Abort to roll back. Done is closed once the terminal signal
// has been decided.
type Transaction struct {
	id     string
	conn   *Database
	mode   Mode
	scope  []string
	schema *schema
	kv     db.Txn

	// schemaMu guards schema while an upgrade mutates it and the worker
	// reads it.
	schemaMu sync.RWMutex

	mu       sync.Mutex
	cond     *sync.Cond
	state    txState
	pending  []*Request
	terminal Terminal
	err      error
	done     chan struct{}
	started  time.Time
}

func newTransaction(conn *Database, scope []string, mode Mode, s *schema, kv db.Txn) *Transaction {
	t := &Transaction{
		id:      uuid.NewString(),
		conn:    conn,
		mode:    mode,
		scope:   scope,
		schema:  s,
		kv:      kv,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	t.cond = sync.NewCond(&t.mu)

	log.Engine.Debug().
		Str("txn", t.id).
		Str("db", conn.name).
		Str("mode", mode.String()).
		Strs("stores", scope).
		Msg("transaction started")

	go t.run()
	return t
}

// ID identifies the transaction in logs.
func (t *Transaction) ID() string {
	return t.id
}

func (t *Transaction) Mode() Mode {
	return t.mode
}

// ObjectStoreNames returns the stores in the transaction's scope, sorted.
func (t *Transaction) ObjectStoreNames() []string {
	if t.mode == VersionChange {
		t.schemaMu.RLock()
		defer t.schemaMu.RUnlock()
		return t.schema.storeNames()
	}
	return append([]string(nil), t.scope...)
}

// Database returns the connection the transaction belongs to.
func (t *Transaction) Database() *Database {
	return t.conn
}

// ObjectStore returns a handle to a store in the transaction's scope.
func (t *Transaction) ObjectStore(name string) (*ObjectStore, error) {
	t.mu.Lock()
	finished := t.state == stateFinished
	t.mu.Unlock()
	if finished {
		return nil, newError(InvalidStateError, "transaction %s has finished", t.id)
	}

	t.schemaMu.RLock()
	meta, ok := t.schema.Stores[name]
	t.schemaMu.RUnlock()
	if !ok || (t.mode != VersionChange && !t.inScope(name)) {
		return nil, newError(NotFoundError, "object store %q is not in the transaction's scope", name)
	}
	return &ObjectStore{tx: t, name: name, meta: meta}, nil
}

func (t *Transaction) inScope(name string) bool {
	i := sort.SearchStrings(t.scope, name)
	return i < len(t.scope) && t.scope[i] == name
}

// Commit declares that no more requests will be submitted. The
// transaction commits once its pending requests have run.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateActive {
		return newError(InvalidStateError, "transaction %s is not active", t.id)
	}
	t.state = stateCommitting
	t.cond.Signal()
	return nil
}

// Abort rolls the transaction back. Pending requests fail with AbortError.
func (t *Transaction) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case stateActive, stateCommitting:
		t.state = stateAborting
		t.cond.Signal()
		return nil
	default:
		return newError(InvalidStateError, "transaction %s has already finished", t.id)
	}
}

// Done is closed when the transaction has reached its terminal signal.
func (t *Transaction) Done() <-chan struct{} {
	return t.done
}

// Terminal returns the terminal signal and its error, Pending before Done
// is closed. The error is nil for Complete.
func (t *Transaction) Terminal() (Terminal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal, t.err
}

// Wait blocks until the transaction has finished.
func (t *Transaction) Wait() (Terminal, error) {
	<-t.done
	return t.Terminal()
}

// active reports whether new requests or schema changes are accepted.
func (t *Transaction) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateActive
}

func (t *Transaction) submit(exec func(t *Transaction) (any, error)) (*Request, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateActive {
		return nil, newError(TransactionInactiveError, "transaction %s is not accepting requests", t.id)
	}
	req := newRequest(exec)
	t.pending = append(t.pending, req)
	t.cond.Signal()
	return req, nil
}

func (t *Transaction) run() {
	for {
		t.mu.Lock()
		for len(t.pending) == 0 && t.state == stateActive {
			t.cond.Wait()
		}
		if t.state == stateAborting {
			pending := t.takePending()
			t.mu.Unlock()
			t.rollback(Aborted, newError(AbortError, "transaction %s was aborted", t.id), pending)
			return
		}
		if len(t.pending) == 0 {
			t.mu.Unlock()
			t.commit()
			return
		}
		req := t.pending[0]
		t.pending = t.pending[1:]
		t.mu.Unlock()

		t.schemaMu.RLock()
		result, err := req.exec(t)
		t.schemaMu.RUnlock()
		if err != nil {
			t.mu.Lock()
			t.state = stateFinished
			pending := t.takePending()
			t.mu.Unlock()

			req.complete(nil, err)
			t.rollback(Errored, err, pending)
			return
		}
		req.complete(result, nil)
	}
}

// takePending must be called with t.mu held.
func (t *Transaction) takePending() []*Request {
	pending := t.pending
	t.pending = nil
	return pending
}

func (t *Transaction) rollback(terminal Terminal, err error, pending []*Request) {
	for _, req := range pending {
		req.complete(nil, newError(AbortError, "transaction %s was rolled back", t.id))
	}
	if closeErr := t.kv.Close(); closeErr != nil {
		log.Engine.Warn().Err(closeErr).Str("txn", t.id).Msg("discard kv transaction")
	}
	t.finish(terminal, err)
}

func (t *Transaction) commit() {
	if t.mode == VersionChange {
		t.schemaMu.RLock()
		err := t.schema.save(t.kv)
		t.schemaMu.RUnlock()
		if err != nil {
			t.rollback(Errored, wrapError(UnknownError, err, "write schema"), nil)
			return
		}
	}
	if err := t.commitKV(); err != nil {
		t.finish(Aborted, wrapError(UnknownError, err, "commit transaction %s", t.id))
		return
	}
	t.finish(Complete, nil)
}

// commitKV commits the KV transaction. A version change installs its
// schema before any later transaction can read the shared one.
func (t *Transaction) commitKV() error {
	if t.mode != VersionChange {
		return t.kv.Commit()
	}
	shared := t.conn.shared
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if err := t.kv.Commit(); err != nil {
		return err
	}
	shared.schema = t.schema
	return nil
}

func (t *Transaction) finish(terminal Terminal, err error) {
	t.mu.Lock()
	t.state = stateFinished
	t.terminal = terminal
	t.err = err
	t.mu.Unlock()

	ev := log.Engine.Debug()
	if terminal != Complete {
		ev = log.Engine.Info().Err(err)
	}
	ev.Str("txn", t.id).
		Str("terminal", terminal.String()).
		Dur("took", time.Since(t.started)).
		Msg("transaction finished")

	t.conn.active.Done()
	close(t.done)
}

// scan calls fn for each KV entry in [start, end) until fn returns false.
func (t *Transaction) scan(start, end []byte, fn func(key, value []byte) (bool, error)) error {
	if end != nil && bytes.Compare(start, end) >= 0 {
		return nil
	}
	iter, err := t.kv.NewIterator(start, end)
	if err != nil {
		return wrapError(UnknownError, err, "open iterator")
	}
	defer iter.Close() //nolint:errcheck

	for iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return wrapError(UnknownError, err, "read entry")
		}
		more, err := fn(iter.Key(), value)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// deletePrefix removes every KV entry under prefix.
func (t *Transaction) deletePrefix(prefix []byte) error {
	var keys [][]byte
	err := t.scan(prefix, prefixSuccessor(prefix), func(key, _ []byte) (bool, error) {
		keys = append(keys, key)
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := t.kv.Delete(k); err != nil {
			return wrapError(UnknownError, err, "delete entry")
		}
	}
	return nil
}
