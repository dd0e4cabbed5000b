package idb

import (
	"sort"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"github.com/eigerco/objstore/pkg/db"
)

// schema is the persisted description of a database. Store and index ids
// are ordinals that are never reused, so data left behind by a deleted
// store can never be mistaken for a newer store's data.
//
// A committed schema is immutable; a version change works on a clone.
type schema struct {
	Version     uint64                  `json:"version"`
	NextStoreID uint32                  `json:"nextStoreID"`
	Stores      map[string]*storeSchema `json:"stores"`
}

type storeSchema struct {
	ID            uint32                  `json:"id"`
	KeyPath       keyPath                 `json:"keyPath"`
	AutoIncrement bool                    `json:"autoIncrement"`
	NextIndexID   uint32                  `json:"nextIndexID"`
	Indexes       map[string]*indexSchema `json:"indexes"`
}

type indexSchema struct {
	ID         uint32  `json:"id"`
	KeyPath    keyPath `json:"keyPath"`
	Unique     bool    `json:"unique"`
	MultiEntry bool    `json:"multiEntry"`
}

func newSchema() *schema {
	return &schema{NextStoreID: 1, Stores: map[string]*storeSchema{}}
}

func (s *schema) clone() *schema {
	c := &schema{Version: s.Version, NextStoreID: s.NextStoreID, Stores: make(map[string]*storeSchema, len(s.Stores))}
	for name, st := range s.Stores {
		cs := *st
		cs.Indexes = make(map[string]*indexSchema, len(st.Indexes))
		for iname, idx := range st.Indexes {
			ci := *idx
			cs.Indexes[iname] = &ci
		}
		c.Stores[name] = &cs
	}
	return c
}

func (s *schema) storeNames() []string {
	names := make([]string, 0, len(s.Stores))
	for name := range s.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (st *storeSchema) indexNames() []string {
	names := make([]string, 0, len(st.Indexes))
	for name := range st.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// loadSchema reads the schema document. A store without one holds a fresh
// database at version 0.
func loadSchema(r db.Reader) (*schema, error) {
	raw, err := r.Get(schemaKey)
	if errors.Is(err, db.ErrNotFound) {
		return newSchema(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read schema")
	}
	s := newSchema()
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, errors.Wrap(err, "decode schema")
	}
	if s.Stores == nil {
		s.Stores = map[string]*storeSchema{}
	}
	for _, st := range s.Stores {
		if st.Indexes == nil {
			st.Indexes = map[string]*indexSchema{}
		}
	}
	return s, nil
}

func (s *schema) save(w db.Writer) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode schema")
	}
	return w.Put(schemaKey, raw)
}
