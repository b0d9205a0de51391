package indexer

import (
	"context"
	"sync"

	"github.com/nel349/midnight-ledger-reader/types"
)

// MemoryFetcher is an in-memory StateFetcher for tests and local
// development.
type MemoryFetcher struct {
	mu     sync.RWMutex
	states map[types.ContractAddress]*types.ContractState
}

var _ StateFetcher = (*MemoryFetcher)(nil)

// NewMemoryFetcher creates an empty in-memory fetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{
		states: make(map[types.ContractAddress]*types.ContractState),
	}
}

// SetState stores or replaces the snapshot for an address.
func (m *MemoryFetcher) SetState(st *types.ContractState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Address] = st
}

// Remove deletes the snapshot for an address.
func (m *MemoryFetcher) Remove(addr types.ContractAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, addr)
}

// FetchState returns the stored snapshot, or (nil, nil) when absent.
func (m *MemoryFetcher) FetchState(_ context.Context, addr types.ContractAddress) (*types.ContractState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[addr]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}
