// Package statestore provides local persistence of raw contract state
// snapshots, used as a read-through cache in front of the indexer.
package statestore

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/nel349/midnight-ledger-reader/types"
)

// SnapshotStore persists the latest known raw state per contract.
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Save stores or replaces the snapshot for its address.
	Save(st *types.ContractState) error

	// Latest returns the stored snapshot for an address.
	// Returns nil, nil if no snapshot is stored.
	Latest(addr types.ContractAddress) (*types.ContractState, error)

	// Close closes the store and releases resources.
	Close() error
}

// snapshotRecord is the serialized on-disk form of a snapshot.
type snapshotRecord struct {
	Address     string
	RawState    []byte
	BlockHeight uint64
	Timestamp   int64
}

func encodeSnapshot(st *types.ContractState) ([]byte, error) {
	rec := snapshotRecord{
		Address:     st.Address.String(),
		RawState:    st.RawState,
		BlockHeight: st.BlockHeight,
		Timestamp:   st.Timestamp,
	}
	data, err := cramberry.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*types.ContractState, error) {
	var rec snapshotRecord
	if err := cramberry.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &types.ContractState{
		Address:     types.ContractAddress(rec.Address),
		RawState:    rec.RawState,
		BlockHeight: rec.BlockHeight,
		Timestamp:   rec.Timestamp,
	}, nil
}

func snapshotKey(addr types.ContractAddress) []byte {
	return append([]byte("snapshot:"), []byte(addr)...)
}
