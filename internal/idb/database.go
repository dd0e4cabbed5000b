package idb

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/eigerco/objstore/pkg/log"
)

// Database is one connection to a named database.
type Database struct {
	name    string
	factory *Factory
	shared  *sharedDB

	closed atomic.Bool
	active sync.WaitGroup

	mu            sync.Mutex
	versionChange *Transaction
}

// ObjectStoreOptions configure a new object store.
type ObjectStoreOptions struct {
	// KeyPath is nil, a string or a []string.
	KeyPath       any
	AutoIncrement bool
}

func (d *Database) Name() string {
	return d.name
}

// Version returns the committed schema version.
func (d *Database) Version() uint64 {
	return d.shared.current().Version
}

// ObjectStoreNames returns the committed store names, sorted. During an
// upgrade it reflects the pending schema.
func (d *Database) ObjectStoreNames() []string {
	if tx := d.upgradeTx(); tx != nil {
		return tx.ObjectStoreNames()
	}
	return d.shared.current().storeNames()
}

func (d *Database) Closed() bool {
	return d.closed.Load()
}

// Transaction starts a transaction over stores. The scope must name at
// least one existing store.
func (d *Database) Transaction(stores []string, mode Mode) (*Transaction, error) {
	if mode == VersionChange {
		return nil, newError(InvalidAccessError, "version change transactions are started by an upgrade")
	}
	if len(stores) == 0 {
		return nil, newError(InvalidAccessError, "transaction scope is empty")
	}

	d.mu.Lock()
	switch {
	case d.closed.Load():
		d.mu.Unlock()
		return nil, newError(InvalidStateError, "connection to %q is closed", d.name)
	case d.versionChange != nil:
		d.mu.Unlock()
		return nil, newError(InvalidStateError, "a version change is running on %q", d.name)
	}
	d.active.Add(1)
	d.mu.Unlock()

	// A writable KV transaction waits for other writers to finish.
	kv, err := d.shared.kv.NewTxn(mode == ReadWrite)
	if err != nil {
		d.active.Done()
		return nil, wrapError(UnknownError, err, "begin transaction")
	}

	// The schema is read after the KV transaction exists so that an
	// upgrade committed in between is visible.
	s := d.shared.current()
	scope := dedupeSorted(stores)
	for _, name := range scope {
		if _, ok := s.Stores[name]; !ok {
			_ = kv.Close()
			d.active.Done()
			return nil, newError(NotFoundError, "object store %q does not exist", name)
		}
	}
	return newTransaction(d, scope, mode, s, kv), nil
}

// Close closes the connection once its running transactions have
// finished. Closing twice is a no-op.
func (d *Database) Close() {
	d.mu.Lock()
	if !d.closed.CompareAndSwap(false, true) {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.active.Wait()
	d.factory.release(d.shared)
}

// CreateObjectStore adds a store to the schema. It is only valid inside an
// upgrade.
func (d *Database) CreateObjectStore(name string, opts ObjectStoreOptions) (*ObjectStore, error) {
	tx, err := d.upgradeScope()
	if err != nil {
		return nil, err
	}
	kp, err := parseKeyPath(opts.KeyPath)
	if err != nil {
		return nil, err
	}
	if opts.AutoIncrement && kp.set && (kp.array || kp.paths[0] == "") {
		return nil, newError(InvalidAccessError, "a key generator needs a non-empty, non-array key path")
	}

	tx.schemaMu.Lock()
	defer tx.schemaMu.Unlock()
	if _, ok := tx.schema.Stores[name]; ok {
		return nil, newError(ConstraintError, "object store %q already exists", name)
	}

	meta := &storeSchema{
		ID:            tx.schema.NextStoreID,
		KeyPath:       kp,
		AutoIncrement: opts.AutoIncrement,
		NextIndexID:   1,
		Indexes:       map[string]*indexSchema{},
	}
	tx.schema.NextStoreID++
	tx.schema.Stores[name] = meta
	return &ObjectStore{tx: tx, name: name, meta: meta}, nil
}

// DeleteObjectStore removes a store and all of its data. It is only valid
// inside an upgrade.
func (d *Database) DeleteObjectStore(name string) error {
	tx, err := d.upgradeScope()
	if err != nil {
		return err
	}
	tx.schemaMu.Lock()
	meta, ok := tx.schema.Stores[name]
	if ok {
		delete(tx.schema.Stores, name)
	}
	tx.schemaMu.Unlock()
	if !ok {
		return newError(NotFoundError, "object store %q does not exist", name)
	}

	_, err = tx.submit(func(t *Transaction) (any, error) {
		return nil, t.purgeStore(meta.ID)
	})
	return err
}

func (d *Database) upgradeTx() *Transaction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.versionChange
}

func (d *Database) upgradeScope() (*Transaction, error) {
	tx := d.upgradeTx()
	if tx == nil {
		return nil, newError(InvalidStateError, "schema changes need a version change transaction")
	}
	if !tx.active() {
		return nil, newError(TransactionInactiveError, "version change transaction %s is not active", tx.id)
	}
	return tx, nil
}

// upgrade runs fn in a version change transaction and installs the new
// schema when it commits.
func (d *Database) upgrade(current *schema, version uint64, fn UpgradeFunc) error {
	kv, err := d.shared.kv.NewTxn(true)
	if err != nil {
		return wrapError(UnknownError, err, "begin version change")
	}

	working := current.clone()
	working.Version = version

	d.active.Add(1)
	tx := newTransaction(d, working.storeNames(), VersionChange, working, kv)

	d.mu.Lock()
	d.versionChange = tx
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.versionChange = nil
		d.mu.Unlock()
	}()

	var cbErr error
	if fn != nil {
		cbErr = fn(d, tx, current.Version, version)
	}
	if cbErr != nil {
		_ = tx.Abort()
	} else {
		// Commit fails only if a request already failed; Wait reports it.
		_ = tx.Commit()
	}

	terminal, txErr := tx.Wait()
	switch {
	case cbErr != nil:
		return &Error{Name: AbortError, Message: "version change aborted: " + cbErr.Error(), cause: cbErr}
	case terminal != Complete:
		return &Error{Name: AbortError, Message: "version change aborted: " + txErr.Error(), cause: txErr}
	}
	log.Engine.Info().Str("db", d.name).Uint64("from", current.Version).Uint64("to", version).Msg("version change committed")
	return nil
}

func (t *Transaction) purgeStore(storeID uint32) error {
	if err := t.deletePrefix(recordPrefix(storeID)); err != nil {
		return err
	}
	if err := t.deletePrefix(storeIndexesPrefix(storeID)); err != nil {
		return err
	}
	if err := t.kv.Delete(keyGenKey(storeID)); err != nil {
		return wrapError(UnknownError, err, "delete key generator")
	}
	return nil
}

func dedupeSorted(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	j := 0
	for i, n := range out {
		if i > 0 && n == out[j-1] {
			continue
		}
		out[j] = n
		j++
	}
	return out[:j]
}
