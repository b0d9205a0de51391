package types

import (
	"errors"
	"fmt"
)

// Backend errors.
var (
	// ErrBackendUnavailable is returned by the capability probe when the
	// native evaluation primitive cannot be used. It triggers the one-time
	// fallback to the compatibility backend and is never surfaced to
	// callers of the reader.
	ErrBackendUnavailable = errors.New("runtime backend unavailable")

	// ErrFunctionNotFound is returned when a pure function name is not
	// declared by the contract.
	ErrFunctionNotFound = errors.New("pure function not found")
)

// Ledger errors.
var (
	// ErrContractNotFound is returned when no state exists at an address.
	// Callers should treat this as an expected steady state for fresh
	// addresses, not an infrastructure failure.
	ErrContractNotFound = errors.New("contract not found")

	// ErrFieldNotFound is returned when a ledger field name is unknown.
	ErrFieldNotFound = errors.New("ledger field not found")

	// ErrNotACollection is returned when a membership or lookup operation
	// is attempted on a field that does not expose member/lookup.
	ErrNotACollection = errors.New("field is not a collection")
)

// Value errors.
var (
	// ErrMalformedKey is returned when a collection key cannot be
	// normalized to the fixed 32-byte width.
	ErrMalformedKey = errors.New("malformed collection key")

	// ErrInvalidEncoding is returned when a serialized state value cannot
	// be decoded.
	ErrInvalidEncoding = errors.New("invalid state encoding")

	// ErrInvalidAddress is returned when a contract address fails
	// validation.
	ErrInvalidAddress = errors.New("invalid contract address")
)

// Interpreter errors.
var (
	// ErrRecursionGuard indicates the query interpreter refused a
	// re-entrant execution. Resolved locally with a neutral result;
	// logged, never propagated to callers.
	ErrRecursionGuard = errors.New("query interpreter re-entered")

	// ErrBadProgram is returned when a query program cannot be decoded or
	// underflows its operand stack.
	ErrBadProgram = errors.New("bad query program")
)

// Store errors.
var (
	// ErrStoreClosed is returned when operating on a closed snapshot store.
	ErrStoreClosed = errors.New("snapshot store closed")
)

// WrapFieldError wraps an error with ledger field context.
func WrapFieldError(err error, field string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("field %s: %w", field, err)
}

// WrapContractError wraps an error with contract address context.
func WrapContractError(err error, addr ContractAddress) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("contract %s: %w", addr, err)
}

// WrapFunctionError wraps an error with pure-function context.
func WrapFunctionError(err error, name string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("pure function %s: %w", name, err)
}
