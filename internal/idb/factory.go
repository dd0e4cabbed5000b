package idb

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/eigerco/objstore/pkg/db"
	"github.com/eigerco/objstore/pkg/log"
)

// ErrNoBackend is returned by a Factory that has no storage to open.
var ErrNoBackend = errors.New("idb: no storage backend")

// OpenFunc opens the KV store backing the named database.
type OpenFunc func(name string) (db.KVStore, error)

// UpgradeFunc runs inside the version change transaction tx of a database
// moving from oldVersion to newVersion. Returning an error aborts the
// upgrade.
type UpgradeFunc func(conn *Database, tx *Transaction, oldVersion, newVersion uint64) error

// Factory opens named databases. Connections to the same name share one
// KV store and one committed schema.
type Factory struct {
	open OpenFunc

	mu  sync.Mutex
	dbs map[string]*sharedDB
}

// sharedDB is the state every connection to one database shares.
type sharedDB struct {
	name string
	kv   db.KVStore
	refs int

	// upgrades serialises opens of this database.
	upgrades sync.Mutex

	mu     sync.RWMutex
	schema *schema
}

func (s *sharedDB) current() *schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

func NewFactory(open OpenFunc) *Factory {
	return &Factory{open: open, dbs: map[string]*sharedDB{}}
}

// Open connects to the named database at version, upgrading it first when
// version is newer than the stored one. Version 0 opens the current
// version, or 1 for a database that does not exist yet.
//
// A failed upgrade leaves the database unchanged and returns an
// AbortError wrapping the cause.
func (f *Factory) Open(name string, version uint64, upgrade UpgradeFunc) (*Database, error) {
	shared, err := f.acquire(name)
	if err != nil {
		return nil, err
	}

	shared.upgrades.Lock()
	defer shared.upgrades.Unlock()

	current := shared.current()
	if version == 0 {
		version = max(current.Version, 1)
	}
	if version < current.Version {
		f.release(shared)
		return nil, newError(VersionError, "requested version %d is less than the existing version %d", version, current.Version)
	}

	conn := &Database{name: name, factory: f, shared: shared}
	if version > current.Version {
		if err := conn.upgrade(current, version, upgrade); err != nil {
			f.release(shared)
			return nil, err
		}
	}

	log.Engine.Debug().Str("db", name).Uint64("version", version).Msg("connection opened")
	return conn, nil
}

func (f *Factory) acquire(name string) (*sharedDB, error) {
	if f.open == nil {
		return nil, ErrNoBackend
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.dbs[name]; ok {
		s.refs++
		return s, nil
	}

	kv, err := f.open(name)
	if err != nil {
		return nil, wrapError(UnknownError, err, "open database %q", name)
	}
	s, err := loadSchema(kv)
	if err != nil {
		_ = kv.Close()
		return nil, wrapError(UnknownError, err, "open database %q", name)
	}

	shared := &sharedDB{name: name, kv: kv, refs: 1, schema: s}
	f.dbs[name] = shared
	return shared, nil
}

func (f *Factory) release(s *sharedDB) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s.refs--
	if s.refs > 0 {
		return
	}
	delete(f.dbs, s.name)
	if err := s.kv.Close(); err != nil {
		log.Engine.Warn().Err(err).Str("db", s.name).Msg("close kv store")
	}
}
