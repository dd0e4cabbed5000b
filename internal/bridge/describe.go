package bridge

import (
	"github.com/eigerco/objstore/internal/idb"
)

// StoreInfo is a read-only description of one object store.
type StoreInfo struct {
	Name          string      `json:"name" yaml:"name"`
	KeyPath       any         `json:"keyPath" yaml:"keyPath"`
	AutoIncrement bool        `json:"autoIncrement" yaml:"autoIncrement"`
	Records       int         `json:"records" yaml:"records"`
	Indexes       []IndexInfo `json:"indexes" yaml:"indexes"`
}

type IndexInfo struct {
	Name       string `json:"name" yaml:"name"`
	KeyPath    any    `json:"keyPath" yaml:"keyPath"`
	Unique     bool   `json:"unique" yaml:"unique"`
	MultiEntry bool   `json:"multiEntry" yaml:"multiEntry"`
}

// Describe lists every store of conn with its indexes and record count,
// read in one read-only transaction.
func Describe(conn *idb.Database) ([]StoreInfo, error) {
	if conn == nil || conn.Closed() {
		return nil, ErrNoConnection
	}
	names := conn.ObjectStoreNames()
	if len(names) == 0 {
		return []StoreInfo{}, nil
	}

	tx, err := conn.Transaction(names, idb.ReadOnly)
	if err != nil {
		return nil, translate(err)
	}

	infos := make([]StoreInfo, len(names))
	for i, name := range names {
		if err := describeStore(tx, name, &infos[i]); err != nil {
			_ = tx.Abort()
			_, _ = tx.Wait()
			return nil, translate(err)
		}
	}

	_ = tx.Commit()
	if terminal, err := tx.Wait(); terminal != idb.Complete {
		return nil, translate(err)
	}
	return infos, nil
}

func describeStore(tx *idb.Transaction, name string, info *StoreInfo) error {
	s, err := tx.ObjectStore(name)
	if err != nil {
		return err
	}
	info.Name = s.Name()
	info.KeyPath = s.KeyPath()
	info.AutoIncrement = s.AutoIncrement()
	info.Indexes = []IndexInfo{}
	for _, in := range s.IndexNames() {
		idx, err := s.Index(in)
		if err != nil {
			return err
		}
		info.Indexes = append(info.Indexes, IndexInfo{
			Name:       idx.Name(),
			KeyPath:    idx.KeyPath(),
			Unique:     idx.Unique(),
			MultiEntry: idx.MultiEntry(),
		})
	}

	req, err := s.Count(nil)
	if err != nil {
		return err
	}
	req.OnComplete(func(v any, err error) {
		if err == nil {
			info.Records = int(v.(uint64))
		}
	})
	return nil
}
