package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nel349/midnight-ledger-reader/backend"
	"github.com/nel349/midnight-ledger-reader/indexer"
	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/statestore"
	"github.com/nel349/midnight-ledger-reader/types"
)

const testAddr = types.ContractAddress("0200c0ffee")

func testMeta() *backend.Metadata {
	return &backend.Metadata{
		Fields: []backend.FieldSpec{
			{Name: "accounts", Kind: backend.KindMap},
			{Name: "history", Kind: backend.KindArray},
			{Name: "total", Kind: backend.KindCell},
			{Name: "commitments", Kind: backend.KindBoundedMerkleTree},
		},
		PureFunctions: map[string]backend.PureFunc{
			"echo": func(args []state.Value) (state.Value, error) {
				if len(args) == 0 {
					return state.NewNull(), nil
				}
				return args[0], nil
			},
			"boom": func([]state.Value) (state.Value, error) {
				return state.Value{}, errors.New("boom")
			},
		},
	}
}

func mustKey(t *testing.T, raw []byte) state.Key {
	t.Helper()
	key, err := state.NormalizeKey(raw)
	require.NoError(t, err)
	return key
}

// testRawState serializes a populated state: accounts holds one entry
// under the short key "nel349", total holds "100", commitments holds one
// entry under "c1".
func testRawState(t *testing.T) []byte {
	t.Helper()

	accounts := state.NewMap([]state.MapEntry{
		{Key: mustKey(t, []byte("nel349")), Value: state.NewCell([]byte{0x42})},
	})
	history := state.NewArray()
	history, _ = history.PushElement(state.NewCell([]byte("deposit")))
	total := state.NewCell([]byte("100"))
	commitments := state.NewBoundedMerkleTree(state.NewBoundedTree([]state.MapEntry{
		{Key: mustKey(t, []byte("c1")), Value: state.NewCell([]byte{0x01})},
	}))

	decoded := state.NewArray()
	for _, v := range []state.Value{accounts, history, total, commitments} {
		decoded, _ = decoded.PushElement(v)
	}
	raw, err := state.Marshal(decoded)
	require.NoError(t, err)
	return raw
}

// countingFetcher counts fetches and optionally fails after the first.
type countingFetcher struct {
	inner     *indexer.MemoryFetcher
	fetches   atomic.Int64
	failAfter int64
}

func (c *countingFetcher) FetchState(ctx context.Context, addr types.ContractAddress) (*types.ContractState, error) {
	n := c.fetches.Add(1)
	if c.failAfter > 0 && n > c.failAfter {
		return nil, errors.New("indexer unreachable")
	}
	return c.inner.FetchState(ctx, addr)
}

func populatedFetcher(t *testing.T) *indexer.MemoryFetcher {
	t.Helper()
	m := indexer.NewMemoryFetcher()
	m.SetState(&types.ContractState{
		Address:     testAddr,
		RawState:    testRawState(t),
		BlockHeight: 7,
		Timestamp:   1700000000,
	})
	return m
}

func newTestReader(t *testing.T, fetcher indexer.StateFetcher) *Reader {
	t.Helper()
	r, err := NewReader(testAddr, ReaderOptions{
		Backend: backend.NewCompat(testMeta(), logging.NewNopLogger()),
		Fetcher: fetcher,
	})
	require.NoError(t, err)
	return r
}

func TestReadLedgerStatePopulates(t *testing.T) {
	r := newTestReader(t, populatedFetcher(t))

	st, err := r.ReadLedgerState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)

	assert.Equal(t, uint64(7), st.BlockHeight)
	assert.Equal(t, []string{"accounts", "history", "total", "commitments"}, st.Record.Fields())

	total, ok := st.Record.Get("total")
	require.True(t, ok)
	payload, ok := total.AsCell()
	require.True(t, ok)
	assert.Equal(t, []byte("100"), payload)
}

func TestReadLedgerStateAbsentContract(t *testing.T) {
	r := newTestReader(t, indexer.NewMemoryFetcher())

	st, err := r.ReadLedgerState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = r.ReadField(context.Background(), "total")
	assert.ErrorIs(t, err, types.ErrContractNotFound)
}

func TestReadFieldUnknown(t *testing.T) {
	r := newTestReader(t, populatedFetcher(t))

	_, err := r.ReadField(context.Background(), "no_such_field")
	assert.ErrorIs(t, err, types.ErrFieldNotFound)
}

func TestCollectionMemberKeyForms(t *testing.T) {
	r := newTestReader(t, populatedFetcher(t))
	ctx := context.Background()

	// The short key and its padded 32-byte form name the same entry.
	short := []byte("nel349")
	padded := mustKey(t, short).Bytes()

	ok, err := r.CollectionHasMember(ctx, "accounts", short)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CollectionHasMember(ctx, "accounts", padded)
	require.NoError(t, err)
	assert.True(t, ok)

	// Member and lookup agree.
	v, found, err := r.CollectionLookup(ctx, "accounts", short)
	require.NoError(t, err)
	require.True(t, found)
	payload, _ := v.AsCell()
	assert.Equal(t, []byte{0x42}, payload)
}

func TestCollectionLookupAbsent(t *testing.T) {
	r := newTestReader(t, populatedFetcher(t))

	_, found, err := r.CollectionLookup(context.Background(), "accounts", []byte("nobody"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCollectionMalformedKey(t *testing.T) {
	r := newTestReader(t, populatedFetcher(t))
	tooLong := make([]byte, 33)

	_, err := r.CollectionHasMember(context.Background(), "accounts", tooLong)
	assert.ErrorIs(t, err, types.ErrMalformedKey)

	_, _, err = r.CollectionLookup(context.Background(), "accounts", tooLong)
	assert.ErrorIs(t, err, types.ErrMalformedKey)
}

func TestCollectionOnScalarField(t *testing.T) {
	r := newTestReader(t, populatedFetcher(t))

	_, err := r.CollectionHasMember(context.Background(), "total", []byte("k"))
	assert.ErrorIs(t, err, types.ErrNotACollection)
}

func TestBoundedTreeMember(t *testing.T) {
	r := newTestReader(t, populatedFetcher(t))
	ctx := context.Background()

	ok, err := r.CollectionHasMember(ctx, "commitments", []byte("c1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CollectionHasMember(ctx, "commitments", []byte("c2"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCallPureFunction(t *testing.T) {
	r := newTestReader(t, populatedFetcher(t))
	ctx := context.Background()

	arg := state.NewCell([]byte("hello"))
	v, found, err := r.CallPureFunction(ctx, "echo", []state.Value{arg})
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, state.Equal(arg, v))

	// Undeclared functions are absent, not errors.
	_, found, err = r.CallPureFunction(ctx, "no_such_fn", nil)
	require.NoError(t, err)
	assert.False(t, found)

	// Declared functions that fail propagate the error.
	_, _, err = r.CallPureFunction(ctx, "boom", nil)
	assert.Error(t, err)
}

func TestCallPureFunctionsBatch(t *testing.T) {
	r := newTestReader(t, populatedFetcher(t))

	arg := state.NewCell([]byte("x"))
	results, err := r.CallPureFunctionsBatch(context.Background(), []PureCall{
		{Name: "echo", Args: []state.Value{arg}},
		{Name: "no_such_fn"},
		{Name: "boom"},
		{Name: "echo"},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "echo", results[0].Name)
	assert.True(t, results[0].Found)
	assert.True(t, state.Equal(arg, results[0].Value))

	assert.False(t, results[1].Found)
	assert.True(t, results[1].Value.IsNull())

	// A declared function that fails is null-substituted without
	// aborting the batch.
	assert.Equal(t, "boom", results[2].Name)
	assert.False(t, results[2].Found)
	assert.True(t, results[2].Value.IsNull())

	assert.True(t, results[3].Found)
	assert.True(t, results[3].Value.IsNull())
}

func TestCachedStateIdempotent(t *testing.T) {
	fetcher := &countingFetcher{inner: populatedFetcher(t)}
	r, err := NewReader(testAddr, ReaderOptions{
		Backend: backend.NewCompat(testMeta(), nil),
		Fetcher: fetcher,
	})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := r.ReadLedgerState(ctx)
	require.NoError(t, err)
	second, err := r.ReadLedgerState(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), fetcher.fetches.Load())
	assert.True(t, state.RecordEqual(first.Record, second.Record))

	r.Invalidate()
	_, err = r.ReadLedgerState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetcher.fetches.Load())
}

func TestStoreFallbackWhenFetchFails(t *testing.T) {
	store, err := statestore.NewMemoryIAVLStore(64)
	require.NoError(t, err)
	defer store.Close()

	fetcher := &countingFetcher{inner: populatedFetcher(t), failAfter: 1}
	r, err := NewReader(testAddr, ReaderOptions{
		Backend: backend.NewCompat(testMeta(), nil),
		Fetcher: fetcher,
		Store:   store,
	})
	require.NoError(t, err)
	ctx := context.Background()

	// First read fetches and writes through to the store.
	st, err := r.ReadLedgerState(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)

	// With the indexer down, the stored snapshot still serves reads.
	r.Invalidate()
	st, err = r.ReadLedgerState(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, uint64(7), st.BlockHeight)
}

func TestUndecodableStateServesBareShape(t *testing.T) {
	m := indexer.NewMemoryFetcher()
	m.SetState(&types.ContractState{
		Address:     testAddr,
		RawState:    []byte("not-a-canonical-encoding"),
		BlockHeight: 3,
	})
	r := newTestReader(t, m)

	st, err := r.ReadLedgerState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)

	// The shape is served with typed-empty values.
	total, ok := st.Record.Get("total")
	require.True(t, ok)
	assert.Equal(t, state.TagCell, total.Tag())
	payload, _ := total.AsCell()
	assert.Empty(t, payload)
}

// testEngine is a native execution engine double that mirrors the
// metadata-driven behavior.
type testEngine struct {
	meta *backend.Metadata
}

func (e *testEngine) NullState() (state.Value, error) {
	return state.NewNull(), nil
}

func (e *testEngine) CallLedger(context.Context, state.Value) ([]string, map[string]state.Value, error) {
	values := make(map[string]state.Value, len(e.meta.Fields))
	for _, f := range e.meta.Fields {
		switch f.Kind {
		case backend.KindMap:
			values[f.Name] = state.NewEmptyMap()
		case backend.KindArray:
			values[f.Name] = state.NewArray()
		case backend.KindBoundedMerkleTree:
			values[f.Name] = state.NewBoundedMerkleTree(state.NewBoundedTree(nil))
		default:
			values[f.Name] = state.NewCell(nil)
		}
	}
	return e.meta.FieldNames(), values, nil
}

func (e *testEngine) CallPure(_ context.Context, name string, args []state.Value) (state.Value, error) {
	fn, ok := e.meta.PureFunctions[name]
	if !ok {
		return state.Value{}, types.WrapFunctionError(types.ErrFunctionNotFound, name)
	}
	return fn(args)
}

func (e *testEngine) DecodeState(raw []byte) (state.Value, error) {
	if len(raw) == 0 {
		return state.NewNull(), nil
	}
	return state.Unmarshal(raw)
}

// Both backends answer every query identically for the same state.
func TestReadersSubstitutableAcrossBackends(t *testing.T) {
	ctx := context.Background()

	native, err := NewReader(testAddr, ReaderOptions{
		Backend: backend.NewNative(&testEngine{meta: testMeta()}, nil),
		Fetcher: populatedFetcher(t),
	})
	require.NoError(t, err)
	compat, err := NewReader(testAddr, ReaderOptions{
		Backend: backend.NewCompat(testMeta(), nil),
		Fetcher: populatedFetcher(t),
	})
	require.NoError(t, err)

	for _, r := range []*Reader{native, compat} {
		st, err := r.ReadLedgerState(ctx)
		require.NoError(t, err)
		require.NotNil(t, st)

		ok, err := r.CollectionHasMember(ctx, "accounts", []byte("nel349"))
		require.NoError(t, err)
		assert.True(t, ok)

		v, found, err := r.CollectionLookup(ctx, "accounts", []byte("nel349"))
		require.NoError(t, err)
		require.True(t, found)
		payload, _ := v.AsCell()
		assert.Equal(t, []byte{0x42}, payload)

		_, found, err = r.CallPureFunction(ctx, "no_such_fn", nil)
		require.NoError(t, err)
		assert.False(t, found)
	}

	nSt, _ := native.ReadLedgerState(ctx)
	cSt, _ := compat.ReadLedgerState(ctx)
	assert.True(t, state.RecordEqual(nSt.Record, cSt.Record))
}

func TestNewReaderValidation(t *testing.T) {
	_, err := NewReader("not-hex!", ReaderOptions{
		Backend: backend.NewCompat(testMeta(), nil),
		Fetcher: indexer.NewMemoryFetcher(),
	})
	assert.ErrorIs(t, err, types.ErrInvalidAddress)

	_, err = NewReader(testAddr, ReaderOptions{Fetcher: indexer.NewMemoryFetcher()})
	assert.Error(t, err)

	_, err = NewReader(testAddr, ReaderOptions{Backend: backend.NewCompat(testMeta(), nil)})
	assert.Error(t, err)
}
