package statestore

import (
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/nel349/midnight-ledger-reader/types"
)

// BadgerStore implements SnapshotStore on badger, keeping only the
// latest snapshot per contract.
type BadgerStore struct {
	db     *badger.DB
	closed bool
	mu     sync.RWMutex
}

var _ SnapshotStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a badger snapshot store at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Save(st *types.ContractState) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.ErrStoreClosed
	}

	data, err := encodeSnapshot(st)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(st.Address), data)
	})
	if err != nil {
		return fmt.Errorf("putting snapshot: %w", err)
	}
	return nil
}

func (s *BadgerStore) Latest(addr types.ContractAddress) (*types.ContractState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrStoreClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(addr))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
