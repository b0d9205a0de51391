// Package types contains shared types and sentinel errors for the
// midnight-ledger-reader core.
package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ContractAddress identifies a deployed contract on the ledger.
// Addresses are hex strings as reported by the indexer; the core treats
// them as opaque identifiers beyond basic well-formedness checks.
type ContractAddress string

// Validate checks that the address is a plausible contract address.
func (a ContractAddress) Validate() error {
	s := strings.TrimPrefix(string(a), "0x")
	if len(s) == 0 {
		return fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, a)
	}
	return nil
}

// String returns the address as a plain string.
func (a ContractAddress) String() string {
	return string(a)
}

// ContractState is a raw contract state snapshot as supplied by the
// state-fetch collaborator (indexer). The RawState byte layout is owned
// by the ledger protocol and passed through opaquely to the runtime
// backend.
type ContractState struct {
	// Address is the contract address this state belongs to.
	Address ContractAddress

	// RawState is the serialized state blob.
	RawState []byte

	// BlockHeight is the height at which the snapshot was taken.
	// Zero if the indexer did not report one.
	BlockHeight uint64

	// Timestamp is the unix timestamp of the snapshot block.
	// Zero if the indexer did not report one.
	Timestamp int64
}

// StateUpdate notifies that a contract's state changed at a height.
// Published by the indexer watcher, consumed by cache invalidation.
type StateUpdate struct {
	Address     ContractAddress
	BlockHeight uint64
}
