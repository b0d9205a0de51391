package statestore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/nel349/midnight-ledger-reader/types"
)

// LevelDBStore implements SnapshotStore on goleveldb, keeping only the
// latest snapshot per contract.
type LevelDBStore struct {
	db     *leveldb.DB
	closed bool
	mu     sync.RWMutex
}

var _ SnapshotStore = (*LevelDBStore)(nil)

// NewLevelDBStore opens (or creates) a leveldb snapshot store at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Save(st *types.ContractState) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.ErrStoreClosed
	}

	data, err := encodeSnapshot(st)
	if err != nil {
		return err
	}
	if err := s.db.Put(snapshotKey(st.Address), data, nil); err != nil {
		return fmt.Errorf("putting snapshot: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Latest(addr types.ContractAddress) (*types.ContractState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrStoreClosed
	}

	data, err := s.db.Get(snapshotKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

func (s *LevelDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
