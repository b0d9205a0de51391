package backend

import (
	"context"
	"fmt"

	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/types"
)

// FieldKind classifies a declared ledger field for shape construction.
type FieldKind uint8

// Field kinds.
const (
	KindCell FieldKind = iota
	KindMap
	KindArray
	KindBoundedMerkleTree
)

// FieldSpec declares one ledger field: its name and collection shape.
type FieldSpec struct {
	Name string
	Kind FieldKind
}

// PureFunc is an invokable handle for a contract-declared pure function.
type PureFunc func(args []state.Value) (state.Value, error)

// Metadata is the contract metadata the compatibility backend works
// from: the declared field layout in order, and the pure-function table.
type Metadata struct {
	Fields        []FieldSpec
	PureFunctions map[string]PureFunc
}

// FieldNames returns the declared field names in order.
func (m *Metadata) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// Compat reproduces the backend operations without an execution engine:
// the shape is constructed manually from metadata with values defaulting
// to typed-empty variants, and raw state decodes through the canonical
// encoding.
type Compat struct {
	meta *Metadata
	log  *logging.Logger
}

var _ Backend = (*Compat)(nil)

// NewCompat builds a compatibility backend from contract metadata.
func NewCompat(meta *Metadata, log *logging.Logger) *Compat {
	if meta == nil {
		meta = &Metadata{}
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Compat{
		meta: meta,
		log:  log.WithComponent("backend.compat"),
	}
}

// NewNullState returns the Null value.
func (c *Compat) NewNullState() (state.Value, error) {
	return state.NewNull(), nil
}

// EvaluateLedgerShape builds the shape record from metadata. Every field
// gets the typed-empty variant of its declared kind.
func (c *Compat) EvaluateLedgerShape(_ context.Context, _ state.Value) (*state.Record, error) {
	values := make(map[string]state.Value, len(c.meta.Fields))
	for _, f := range c.meta.Fields {
		values[f.Name] = emptyValue(f.Kind)
	}
	return state.NewRecord(c.meta.FieldNames(), values), nil
}

// EvaluatePureFunction looks the function up in the metadata table.
func (c *Compat) EvaluatePureFunction(_ context.Context, name string, args []state.Value) (state.Value, error) {
	fn, ok := c.meta.PureFunctions[name]
	if !ok {
		return state.Value{}, types.WrapFunctionError(types.ErrFunctionNotFound, name)
	}
	out, err := fn(args)
	if err != nil {
		return state.Value{}, types.WrapFunctionError(err, name)
	}
	return out, nil
}

// DecodeState decodes the canonical binary encoding. Blobs in a foreign
// engine format fail with ErrInvalidEncoding; callers degrade to the
// bare shape in that case.
func (c *Compat) DecodeState(raw []byte) (state.Value, error) {
	if len(raw) == 0 {
		return state.NewNull(), nil
	}
	v, err := state.Unmarshal(raw)
	if err != nil {
		return state.Value{}, fmt.Errorf("decoding raw state: %w", err)
	}
	return v, nil
}

// Kind identifies this backend.
func (c *Compat) Kind() string {
	return "compat"
}

func emptyValue(kind FieldKind) state.Value {
	switch kind {
	case KindMap:
		return state.NewEmptyMap()
	case KindArray:
		return state.NewArray()
	case KindBoundedMerkleTree:
		return state.NewBoundedMerkleTree(state.NewBoundedTree(nil))
	default:
		return state.NewCell(nil)
	}
}
