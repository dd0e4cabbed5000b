package bridge

import (
	"github.com/cockroachdb/errors"

	"github.com/eigerco/objstore/internal/idb"
	"github.com/eigerco/objstore/pkg/log"
)

// ApplyMigration applies actions in order inside the running upgrade
// transaction tx. openStores caches store handles for the duration of one
// upgrade: stores created by the plan are recorded there, and stores that
// already existed are looked up through tx on first use.
//
// The first failure is returned; the caller aborts the upgrade and the
// engine discards every change made so far.
func ApplyMigration(conn *idb.Database, actions []UpgradeAction, openStores map[string]*idb.ObjectStore, tx *idb.Transaction) error {
	for i, action := range actions {
		kind := actionName(action)
		if err := applyAction(conn, action, openStores, tx); err != nil {
			return errors.Wrapf(err, "upgrade action %d (%s)", i, kind)
		}
		log.Bridge.Debug().Str("txn", tx.ID()).Int("action", i).Str("kind", kind).Msg("upgrade action applied")
	}
	return nil
}

func applyAction(conn *idb.Database, action UpgradeAction, openStores map[string]*idb.ObjectStore, tx *idb.Transaction) error {
	switch a := action.(type) {
	case AddStore:
		s, err := conn.CreateObjectStore(a.Name, idb.ObjectStoreOptions{
			KeyPath:       EncodeKeyPath(a.Options.KeyPath),
			AutoIncrement: a.Options.AutoIncrement,
		})
		if err != nil {
			return err
		}
		openStores[a.Name] = s
		return nil

	case DeleteStore:
		if err := conn.DeleteObjectStore(a.Name); err != nil {
			return err
		}
		// A store of the same name created later in the plan is a new store.
		delete(openStores, a.Name)
		return nil

	case AddIndex:
		s, err := storeHandle(a.Store, openStores, tx)
		if err != nil {
			return err
		}
		_, err = s.CreateIndex(a.Index, EncodeKeyPath(a.KeyPath), idb.IndexOptions{
			Unique:     a.Options.Unique,
			MultiEntry: a.Options.MultiEntry,
		})
		return err

	case DeleteIndex:
		s, err := storeHandle(a.Store, openStores, tx)
		if err != nil {
			return err
		}
		return s.DeleteIndex(a.Index)

	default:
		panic(errors.Wrapf(ErrInvalidAction, "upgrade action %T", action))
	}
}

func storeHandle(name string, openStores map[string]*idb.ObjectStore, tx *idb.Transaction) (*idb.ObjectStore, error) {
	if s, ok := openStores[name]; ok {
		return s, nil
	}
	s, err := tx.ObjectStore(name)
	if err != nil {
		return nil, err
	}
	openStores[name] = s
	return s, nil
}

func actionName(action UpgradeAction) string {
	switch action.(type) {
	case AddStore:
		return "addStore"
	case DeleteStore:
		return "deleteStore"
	case AddIndex:
		return "addIndex"
	case DeleteIndex:
		return "deleteIndex"
	default:
		panic(errors.Wrapf(ErrInvalidAction, "upgrade action %T", action))
	}
}
