// Package backend defines the runtime backend contract: the component
// able to execute a contract's declared ledger and pure-function logic.
//
// Two implementations exist. The native backend delegates to an
// externally supplied execution engine; the compatibility backend
// reproduces the same operations from contract metadata alone, because
// the engine is not guaranteed present on every deployment target. Both
// are drop-in substitutable; callers select one with a single capability
// probe at startup and never special-case afterwards.
package backend

import (
	"context"

	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/state"
)

// Backend evaluates contract logic against ledger state.
type Backend interface {
	// NewNullState returns the "empty state" tagged value, used as a
	// probe input to discover a contract's field layout without data.
	NewNullState() (state.Value, error)

	// EvaluateLedgerShape invokes the contract's ledger-construction
	// entry point with the probe state and returns the field-to-value
	// record describing the declared state layout.
	EvaluateLedgerShape(ctx context.Context, nullState state.Value) (*state.Record, error)

	// EvaluatePureFunction invokes one contract-declared pure function
	// by name with already-converted arguments. Unknown names return an
	// error satisfying errors.Is(err, types.ErrFunctionNotFound).
	EvaluatePureFunction(ctx context.Context, name string, args []state.Value) (state.Value, error)

	// DecodeState reconstructs a tagged state value from the raw
	// serialized blob supplied by the state-fetch collaborator.
	DecodeState(raw []byte) (state.Value, error)

	// Kind identifies the implementation ("native" or "compat").
	Kind() string
}

// Select probes the native backend once and falls back to the
// compatibility backend when the probe fails. The probe calls
// NewNullState and inspects the value's tag; any error selects compat.
func Select(native Backend, meta *Metadata, log *logging.Logger) Backend {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if native != nil {
		probe, err := native.NewNullState()
		if err == nil {
			_ = probe.Tag()
			log.Info("runtime backend selected", logging.Backend(native.Kind()))
			return native
		}
		log.Warn("native backend probe failed, using compatibility backend",
			logging.Error(err))
	}
	compat := NewCompat(meta, log)
	log.Info("runtime backend selected", logging.Backend(compat.Kind()))
	return compat
}

// OverlayState merges a decoded state value onto a ledger shape,
// producing the populated record. Decoded arrays overlay positionally in
// field declaration order; decoded maps overlay by zero-padded field
// name. Null decoded slots keep the shape's typed-empty value.
func OverlayState(shape *state.Record, decoded state.Value) *state.Record {
	if shape == nil {
		return nil
	}
	out := shape

	switch decoded.Tag() {
	case state.TagArray:
		elems, _ := decoded.AsArray()
		for i, name := range shape.Fields() {
			if i >= len(elems) {
				break
			}
			if elems[i].IsNull() {
				continue
			}
			out = out.WithValue(name, elems[i])
		}
	case state.TagMap:
		for _, name := range shape.Fields() {
			key, err := state.NormalizeKey([]byte(name))
			if err != nil {
				continue
			}
			if v, ok := decoded.MapGet(key); ok && !v.IsNull() {
				out = out.WithValue(name, v)
			}
		}
	}
	return out
}
