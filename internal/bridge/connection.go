package bridge

import (
	"github.com/eigerco/objstore/internal/idb"
	"github.com/eigerco/objstore/pkg/log"
)

// UpgradeFunc returns the migration plan for moving a database from
// oldVersion to newVersion.
type UpgradeFunc func(oldVersion, newVersion uint64) []UpgradeAction

// OpenConnection opens the named database at version. If version is newer
// than the stored version, upgrade is called once and its plan applied in
// the upgrade transaction; any failure leaves the database as it was.
// Version 0 opens the current version.
func OpenConnection(f *idb.Factory, name string, version uint64, upgrade UpgradeFunc) (*idb.Database, error) {
	if f == nil {
		return nil, ErrNoBackend
	}

	conn, err := f.Open(name, version, func(conn *idb.Database, tx *idb.Transaction, oldVersion, newVersion uint64) error {
		if upgrade == nil {
			return nil
		}
		actions := upgrade(oldVersion, newVersion)
		log.Bridge.Info().
			Str("db", name).
			Uint64("from", oldVersion).
			Uint64("to", newVersion).
			Int("actions", len(actions)).
			Msg("applying migration")
		return ApplyMigration(conn, actions, map[string]*idb.ObjectStore{}, tx)
	})
	if err != nil {
		return nil, translate(err)
	}
	return conn, nil
}
