package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/eigerco/objstore/pkg/db"
)

// MockKVStore implements the db.KVStore interface for testing
type MockKVStore struct {
	mock.Mock
}

func NewMockKVStore() *MockKVStore {
	return &MockKVStore{}
}

func (m *MockKVStore) Get(key []byte) ([]byte, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	args := m.Called(start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(db.Iterator), args.Error(1)
}

func (m *MockKVStore) Put(key, value []byte) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockKVStore) Delete(key []byte) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockKVStore) NewTxn(writable bool) (db.Txn, error) {
	args := m.Called(writable)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(db.Txn), args.Error(1)
}

func (m *MockKVStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockTxn implements the db.Txn interface for testing
type MockTxn struct {
	mock.Mock
}

func NewMockTxn() *MockTxn {
	return &MockTxn{}
}

func (m *MockTxn) Get(key []byte) ([]byte, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockTxn) NewIterator(start, end []byte) (db.Iterator, error) {
	args := m.Called(start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(db.Iterator), args.Error(1)
}

func (m *MockTxn) Put(key, value []byte) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockTxn) Delete(key []byte) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockTxn) Writable() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTxn) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTxn) Close() error {
	args := m.Called()
	return args.Error(0)
}
