package collection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/types"
)

func mustKey(t *testing.T, raw []byte) state.Key {
	t.Helper()
	k, err := state.NormalizeKey(raw)
	require.NoError(t, err)
	return k
}

func testMap(t *testing.T) state.Value {
	t.Helper()
	return state.NewMap([]state.MapEntry{
		{Key: mustKey(t, []byte("nel349")), Value: state.NewCell([]byte("balance"))},
	})
}

func TestMapMemberAndLookupAgree(t *testing.T) {
	adapter := NewAdapter(nil, logging.NewNopLogger())
	coll := testMap(t)

	keys := [][]byte{
		[]byte("nel349"),          // stored key
		[]byte("someone-else"),    // absent key
		mustKey(t, []byte("nel349")).Bytes(), // already-padded form
		{},                        // empty key
	}

	for _, k := range keys {
		member, err := adapter.Member(coll, k)
		require.NoError(t, err)

		_, found, err := adapter.Lookup(coll, k)
		require.NoError(t, err)

		// member(c, k) must be true iff lookup(c, k) finds a value.
		assert.Equal(t, member, found, "member/lookup disagree for key %q", k)
	}
}

func TestShortKeyIsZeroPadded(t *testing.T) {
	adapter := NewAdapter(nil, logging.NewNopLogger())
	coll := testMap(t)

	// The unpadded 6-byte form matches the entry stored under the padded
	// 32-byte key because normalization is applied before comparison.
	ok, err := adapter.Member(coll, []byte("nel349"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, found, err := adapter.Lookup(coll, []byte("nel349"))
	require.NoError(t, err)
	require.True(t, found)
	payload, _ := v.AsCell()
	assert.Equal(t, []byte("balance"), payload)
}

func TestUnpaddedStorageNeverMatches(t *testing.T) {
	// An entry stored under a key that was NOT zero-padded (a raw 6-byte
	// prefix with trailing garbage) must not match the normalized form.
	garbage := state.Key{}
	copy(garbage[:], "nel349")
	garbage[31] = 0xff

	coll := state.NewMap([]state.MapEntry{
		{Key: garbage, Value: state.NewCell([]byte{1})},
	})

	adapter := NewAdapter(nil, logging.NewNopLogger())
	ok, err := adapter.Member(coll, []byte("nel349"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMalformedKeySurfaced(t *testing.T) {
	adapter := NewAdapter(nil, logging.NewNopLogger())
	coll := testMap(t)
	long := make([]byte, state.KeySize+1)

	_, err := adapter.Member(coll, long)
	assert.ErrorIs(t, err, types.ErrMalformedKey)

	_, _, err = adapter.Lookup(coll, long)
	assert.ErrorIs(t, err, types.ErrMalformedKey)
}

func TestNullCollectionIsEmpty(t *testing.T) {
	adapter := NewAdapter(nil, logging.NewNopLogger())

	ok, err := adapter.Member(state.NewNull(), []byte("any"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := adapter.Lookup(state.NewNull(), []byte("any"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNonCollectionRejected(t *testing.T) {
	adapter := NewAdapter(nil, logging.NewNopLogger())

	_, err := adapter.Member(state.NewCell([]byte{1}), []byte("k"))
	assert.ErrorIs(t, err, types.ErrNotACollection)

	_, _, err = adapter.Lookup(state.NewArray(), []byte("k"))
	assert.ErrorIs(t, err, types.ErrNotACollection)
}

func TestBoundedTreeNativePath(t *testing.T) {
	adapter := NewAdapter(nil, logging.NewNopLogger())
	coll := state.NewBoundedMerkleTree(state.NewBoundedTree([]state.MapEntry{
		{Key: mustKey(t, []byte("leaf")), Value: state.NewCell([]byte{7})},
	}))

	ok, err := adapter.Member(coll, []byte("leaf"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, found, err := adapter.Lookup(coll, []byte("leaf"))
	require.NoError(t, err)
	require.True(t, found)
	payload, _ := v.AsCell()
	assert.Equal(t, []byte{7}, payload)
}

// failingHandle simulates a native proxy whose engine is not wired: the
// native methods error, but entries can still be enumerated.
type failingHandle struct {
	entries []state.MapEntry
}

func (failingHandle) Member(state.Key) (bool, error) {
	return false, errors.New("engine not wired")
}

func (failingHandle) Lookup(state.Key) (state.Value, bool, error) {
	return state.Value{}, false, errors.New("engine not wired")
}

func (h failingHandle) Entries() ([]state.MapEntry, error) {
	return h.entries, nil
}

func TestBoundedTreeEntryFallback(t *testing.T) {
	adapter := NewAdapter(nil, logging.NewNopLogger())
	key := mustKey(t, []byte("leaf"))
	coll := state.NewBoundedMerkleTree(failingHandle{
		entries: []state.MapEntry{{Key: key, Value: state.NewCell([]byte{9})}},
	})

	ok, err := adapter.Member(coll, []byte("leaf"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, found, err := adapter.Lookup(coll, []byte("leaf"))
	require.NoError(t, err)
	require.True(t, found)
	payload, _ := v.AsCell()
	assert.Equal(t, []byte{9}, payload)

	ok, err = adapter.Member(coll, []byte("other"))
	require.NoError(t, err)
	assert.False(t, ok)
}

// programHandle simulates a native proxy that only carries its query
// programs; both native calls and entry enumeration are unavailable.
type programHandle struct{}

func (programHandle) Member(state.Key) (bool, error) {
	return false, errors.New("engine not wired")
}

func (programHandle) Lookup(state.Key) (state.Value, bool, error) {
	return state.Value{}, false, errors.New("engine not wired")
}

func (programHandle) MemberProgram() []byte { return []byte(`["member"]`) }
func (programHandle) LookupProgram() []byte { return []byte(`["lookup"]`) }

// stubRunner records program executions.
type stubRunner struct {
	memberCalls int
	lookupCalls int
	memberOut   bool
}

func (r *stubRunner) RunMember(program []byte, root state.Value, key state.Key) (bool, error) {
	r.memberCalls++
	return r.memberOut, nil
}

func (r *stubRunner) RunLookup(program []byte, root state.Value, key state.Key) (state.Value, bool, error) {
	r.lookupCalls++
	return state.NewCell([]byte{5}), true, nil
}

func TestBoundedTreeProgramFallback(t *testing.T) {
	runner := &stubRunner{memberOut: true}
	adapter := NewAdapter(runner, logging.NewNopLogger())
	coll := state.NewBoundedMerkleTree(programHandle{})

	ok, err := adapter.Member(coll, []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, runner.memberCalls)

	v, found, err := adapter.Lookup(coll, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	payload, _ := v.AsCell()
	assert.Equal(t, []byte{5}, payload)
	assert.Equal(t, 1, runner.lookupCalls)
}

func TestBoundedTreeNoFallbackAvailable(t *testing.T) {
	// No entries, no program, no runner: the native error surfaces.
	adapter := NewAdapter(nil, logging.NewNopLogger())
	coll := state.NewBoundedMerkleTree(programHandle{})

	_, err := adapter.Member(coll, []byte("k"))
	assert.Error(t, err)
}

func TestNonComparableHandleNotCached(t *testing.T) {
	// failingHandle carries a slice field, so its dynamic type cannot key
	// the selection cache. The adapter must still answer, uncached.
	adapter := NewAdapter(nil, logging.NewNopLogger())
	key := mustKey(t, []byte("leaf"))
	coll := state.NewBoundedMerkleTree(failingHandle{
		entries: []state.MapEntry{{Key: key, Value: state.NewCell([]byte{3})}},
	})

	for i := 0; i < 2; i++ {
		ok, err := adapter.Member(coll, []byte("leaf"))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Empty(t, adapter.selected)
}

func TestBackendSelectedOncePerHandle(t *testing.T) {
	adapter := NewAdapter(nil, logging.NewNopLogger())
	handle := state.NewBoundedTree(nil)
	coll := state.NewBoundedMerkleTree(handle)

	b1, err := adapter.backendFor(coll)
	require.NoError(t, err)
	b2, err := adapter.backendFor(coll)
	require.NoError(t, err)

	assert.Same(t, b1.(*boundedBackend), b2.(*boundedBackend))
}
