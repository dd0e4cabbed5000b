package bridge

import "github.com/eigerco/objstore/internal/idb"

// KeyPath names the field or fields of a stored value that form its key.
type KeyPath interface {
	isKeyPath()
}

type NoKeyPath struct{}

type SingleKeyPath struct {
	Path string
}

type MultiKeyPath struct {
	Paths []string
}

func (NoKeyPath) isKeyPath()     {}
func (SingleKeyPath) isKeyPath() {}
func (MultiKeyPath) isKeyPath()  {}

// KeyRange selects a subset of keys. Bounds are checked by the engine.
type KeyRange interface {
	isKeyRange()
}

type UpperBound struct {
	Value     any
	Exclusive bool
}

type LowerBound struct {
	Value     any
	Exclusive bool
}

type Bound struct {
	Lower          any
	Upper          any
	LowerExclusive bool
	UpperExclusive bool
}

type Only struct {
	Value any
}

func (UpperBound) isKeyRange() {}
func (LowerBound) isKeyRange() {}
func (Bound) isKeyRange()      {}
func (Only) isKeyRange()       {}

// StoreOptions configure a store created by AddStore.
type StoreOptions struct {
	KeyPath       KeyPath
	AutoIncrement bool
}

// IndexOptions configure an index created by AddIndex.
type IndexOptions struct {
	Unique     bool
	MultiEntry bool
}

// UpgradeAction is one schema change of a migration plan.
type UpgradeAction interface {
	isUpgradeAction()
}

type AddStore struct {
	Name    string
	Options StoreOptions
}

type DeleteStore struct {
	Name string
}

type AddIndex struct {
	Store   string
	Index   string
	KeyPath KeyPath
	Options IndexOptions
}

type DeleteIndex struct {
	Store string
	Index string
}

func (AddStore) isUpgradeAction()    {}
func (DeleteStore) isUpgradeAction() {}
func (AddIndex) isUpgradeAction()    {}
func (DeleteIndex) isUpgradeAction() {}

// Command is the action an Operation performs on its store.
type Command interface {
	isCommand()
}

// Add inserts Value; it fails if the key exists. A nil Key means the key
// comes from the store's key path or key generator.
type Add struct {
	Value any
	Key   any
}

// Put inserts or replaces Value.
type Put struct {
	Value any
	Key   any
}

type Delete struct {
	Range KeyRange
}

type Get struct {
	Range KeyRange
}

type GetAll struct{}

type Clear struct{}

// Count counts the records in Range, or the whole store when Range is nil.
type Count struct {
	Range KeyRange
}

func (Add) isCommand()    {}
func (Put) isCommand()    {}
func (Delete) isCommand() {}
func (Get) isCommand()    {}
func (GetAll) isCommand() {}
func (Clear) isCommand()  {}
func (Count) isCommand()  {}

// Operation is one command against a named store.
type Operation struct {
	Store   string
	Command Command
}

// Plan is the scope and mode of the transaction a batch runs in.
type Plan struct {
	// Stores in first-seen order, without duplicates.
	Stores []string
	Mode   idb.Mode
}

// Option is a value that may be absent.
type Option[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Option[T]) IsSome() bool {
	return o.ok
}
