package statestore

import (
	"fmt"
	"sync"

	"github.com/cosmos/iavl"
	idb "github.com/cosmos/iavl/db"

	"github.com/nel349/midnight-ledger-reader/types"
)

// IAVLStore implements SnapshotStore on a cosmos/iavl merkle tree,
// keeping a versioned history of snapshots: every Save commits a new
// tree version, so earlier snapshots remain loadable for debugging.
type IAVLStore struct {
	tree   *iavl.MutableTree
	db     idb.DB
	closed bool
	mu     sync.RWMutex
}

var _ SnapshotStore = (*IAVLStore)(nil)

// NewIAVLStore creates a leveldb-backed IAVL snapshot store.
// path is the directory for persistent storage.
// cacheSize is the number of tree nodes to cache in memory.
func NewIAVLStore(path string, cacheSize int) (*IAVLStore, error) {
	db, err := idb.NewGoLevelDB("snapshots", path)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb for iavl: %w", err)
	}

	tree := iavl.NewMutableTree(db, cacheSize, false, iavl.NewNopLogger())
	if _, err := tree.Load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading iavl tree: %w", err)
	}

	return &IAVLStore{tree: tree, db: db}, nil
}

// NewMemoryIAVLStore creates an in-memory IAVL store for testing.
func NewMemoryIAVLStore(cacheSize int) (*IAVLStore, error) {
	db := idb.NewMemDB()
	tree := iavl.NewMutableTree(db, cacheSize, false, iavl.NewNopLogger())
	return &IAVLStore{tree: tree, db: db}, nil
}

// Save stores the snapshot and commits a new tree version.
func (s *IAVLStore) Save(st *types.ContractState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrStoreClosed
	}

	data, err := encodeSnapshot(st)
	if err != nil {
		return err
	}
	if _, err := s.tree.Set(snapshotKey(st.Address), data); err != nil {
		return fmt.Errorf("setting snapshot: %w", err)
	}
	if _, _, err := s.tree.SaveVersion(); err != nil {
		return fmt.Errorf("committing snapshot version: %w", err)
	}
	return nil
}

// Latest returns the stored snapshot for an address.
func (s *IAVLStore) Latest(addr types.ContractAddress) (*types.ContractState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrStoreClosed
	}

	data, err := s.tree.Get(snapshotKey(addr))
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return decodeSnapshot(data)
}

// Version returns the latest committed tree version.
func (s *IAVLStore) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Version()
}

// RootHash returns the root hash of the committed tree.
func (s *IAVLStore) RootHash() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Hash()
}

// Close closes the store.
func (s *IAVLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
