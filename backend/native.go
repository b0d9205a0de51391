package backend

import (
	"context"
	"fmt"

	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/state"
)

// Engine is the externally supplied execution engine hosting the
// compiled contract (in deployments that have one, a WASM runtime). The
// core never loads modules or marshals host objects itself; it only
// requires these four operations.
type Engine interface {
	// NullState returns the engine's "empty state" tagged value.
	NullState() (state.Value, error)

	// CallLedger invokes the contract's ledger entry point against a
	// state tree and returns the field names in declared order together
	// with their values.
	CallLedger(ctx context.Context, st state.Value) ([]string, map[string]state.Value, error)

	// CallPure invokes a contract-declared pure function. Unknown names
	// return an error satisfying errors.Is(err, types.ErrFunctionNotFound).
	CallPure(ctx context.Context, name string, args []state.Value) (state.Value, error)

	// DecodeState reconstructs a state value from a raw serialized blob.
	DecodeState(raw []byte) (state.Value, error)
}

// Native is the engine-delegating backend.
type Native struct {
	engine Engine
	log    *logging.Logger
}

var _ Backend = (*Native)(nil)

// NewNative wraps an engine handle.
func NewNative(engine Engine, log *logging.Logger) *Native {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Native{
		engine: engine,
		log:    log.WithComponent("backend.native"),
	}
}

// NewNullState returns the engine's empty state value.
func (n *Native) NewNullState() (state.Value, error) {
	if n.engine == nil {
		return state.Value{}, fmt.Errorf("native backend: no engine")
	}
	return n.engine.NullState()
}

// EvaluateLedgerShape invokes the contract's ledger entry point.
func (n *Native) EvaluateLedgerShape(ctx context.Context, nullState state.Value) (*state.Record, error) {
	fields, values, err := n.engine.CallLedger(ctx, nullState)
	if err != nil {
		return nil, fmt.Errorf("evaluating ledger shape: %w", err)
	}
	return state.NewRecord(fields, values), nil
}

// EvaluatePureFunction delegates to the engine.
func (n *Native) EvaluatePureFunction(ctx context.Context, name string, args []state.Value) (state.Value, error) {
	return n.engine.CallPure(ctx, name, args)
}

// DecodeState delegates to the engine's decoder.
func (n *Native) DecodeState(raw []byte) (state.Value, error) {
	return n.engine.DecodeState(raw)
}

// Kind identifies this backend.
func (n *Native) Kind() string {
	return "native"
}
