package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nel349/midnight-ledger-reader/types"
)

func mustKey(t *testing.T, raw []byte) Key {
	t.Helper()
	k, err := NormalizeKey(raw)
	require.NoError(t, err)
	return k
}

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	assert.Equal(t, TagNull, v.Tag())
	assert.True(t, v.IsNull())
}

func TestTagString(t *testing.T) {
	tests := []struct {
		tag  Tag
		want string
	}{
		{TagNull, "null"},
		{TagCell, "cell"},
		{TagMap, "map"},
		{TagArray, "array"},
		{TagBoundedMerkleTree, "boundedMerkleTree"},
		{Tag(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.tag.String())
	}
}

func TestAccessorsReturnAbsentOnMismatch(t *testing.T) {
	cell := NewCell([]byte{1, 2, 3})

	_, ok := cell.AsMap()
	assert.False(t, ok)
	_, ok = cell.AsArray()
	assert.False(t, ok)
	_, ok = cell.AsBoundedMerkleTree()
	assert.False(t, ok)

	payload, ok := cell.AsCell()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, payload)

	_, ok = NewNull().AsCell()
	assert.False(t, ok)
}

func TestNewCellCopiesPayload(t *testing.T) {
	raw := []byte{1, 2, 3}
	cell := NewCell(raw)
	raw[0] = 99

	payload, ok := cell.AsCell()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestPushElementImmutable(t *testing.T) {
	arr := NewArray()

	arr2, ok := arr.PushElement(NewCell([]byte{1}))
	require.True(t, ok)
	arr3, ok := arr2.PushElement(NewCell([]byte{2}))
	require.True(t, ok)

	assert.Equal(t, 0, arr.Len())
	assert.Equal(t, 1, arr2.Len())
	assert.Equal(t, 2, arr3.Len())

	// PushElement on a non-array returns the receiver and false.
	_, ok = NewNull().PushElement(NewCell(nil))
	assert.False(t, ok)
}

func TestMapGetAndHas(t *testing.T) {
	k1 := mustKey(t, []byte("alpha"))
	k2 := mustKey(t, []byte("beta"))
	m := NewMap([]MapEntry{
		{Key: k1, Value: NewCell([]byte{1})},
		{Key: k2, Value: NewCell([]byte{2})},
	})

	v, ok := m.MapGet(k1)
	require.True(t, ok)
	payload, _ := v.AsCell()
	assert.Equal(t, []byte{1}, payload)

	assert.True(t, m.MapHas(k2))
	assert.False(t, m.MapHas(mustKey(t, []byte("gamma"))))

	// MapGet on a non-map is absent.
	_, ok = NewCell(nil).MapGet(k1)
	assert.False(t, ok)
}

func TestNewMapDedupLastWins(t *testing.T) {
	k := mustKey(t, []byte("dup"))
	m := NewMap([]MapEntry{
		{Key: k, Value: NewCell([]byte{1})},
		{Key: k, Value: NewCell([]byte{2})},
	})

	require.Equal(t, 1, m.Len())
	v, ok := m.MapGet(k)
	require.True(t, ok)
	payload, _ := v.AsCell()
	assert.Equal(t, []byte{2}, payload)
}

func TestMapEntriesSortedByKey(t *testing.T) {
	kb := mustKey(t, []byte{0xbb})
	ka := mustKey(t, []byte{0xaa})
	m := NewMap([]MapEntry{
		{Key: kb, Value: NewNull()},
		{Key: ka, Value: NewNull()},
	})

	entries, ok := m.AsMap()
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, ka, entries[0].Key)
	assert.Equal(t, kb, entries[1].Key)
}

func TestEqual(t *testing.T) {
	k := mustKey(t, []byte("k"))

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"nulls", NewNull(), NewNull(), true},
		{"cells equal", NewCell([]byte{1}), NewCell([]byte{1}), true},
		{"cells differ", NewCell([]byte{1}), NewCell([]byte{2}), false},
		{"tag mismatch", NewNull(), NewCell(nil), false},
		{
			"maps equal",
			NewMap([]MapEntry{{Key: k, Value: NewCell([]byte{7})}}),
			NewMap([]MapEntry{{Key: k, Value: NewCell([]byte{7})}}),
			true,
		},
		{
			"maps differ",
			NewMap([]MapEntry{{Key: k, Value: NewCell([]byte{7})}}),
			NewEmptyMap(),
			false,
		},
		{
			"bounded trees equal by entries",
			NewBoundedMerkleTree(NewBoundedTree([]MapEntry{{Key: k, Value: NewCell([]byte{7})}})),
			NewBoundedMerkleTree(NewBoundedTree([]MapEntry{{Key: k, Value: NewCell([]byte{7})}})),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

// opaqueHandle cannot enumerate its entries and, carrying a slice field,
// is of a non-comparable dynamic type.
type opaqueHandle struct {
	tag []byte
}

func (opaqueHandle) Member(Key) (bool, error) {
	return false, nil
}

func (opaqueHandle) Lookup(Key) (Value, bool, error) {
	return Value{}, false, nil
}

func TestEqualNonComparableHandles(t *testing.T) {
	a := NewBoundedMerkleTree(opaqueHandle{tag: []byte("a")})
	b := NewBoundedMerkleTree(opaqueHandle{tag: []byte("b")})

	// Identity comparison on non-comparable handle types must answer
	// false, not panic.
	assert.False(t, Equal(a, b))
	assert.False(t, Equal(a, a))
}

func TestNormalizeKeyPadsRight(t *testing.T) {
	k, err := NormalizeKey([]byte("nel349"))
	require.NoError(t, err)

	want := Key{}
	copy(want[:], "nel349")
	assert.Equal(t, want, k)

	// The padded form is distinct from nothing-padded shorter keys only
	// in length, never in prefix.
	assert.Equal(t, byte('n'), k[0])
	assert.Equal(t, byte(0), k[6])
	assert.Equal(t, byte(0), k[31])
}

func TestNormalizeKeyRejectsOversized(t *testing.T) {
	_, err := NormalizeKey(make([]byte, KeySize+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMalformedKey)
}

func TestParseKey(t *testing.T) {
	// Hex-like strings are hex-decoded then padded.
	k, err := ParseKey("0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, k.Bytes()[:4])

	// Non-hex strings are taken as raw bytes.
	k, err = ParseKey("nel349")
	require.NoError(t, err)
	assert.Equal(t, []byte("nel349"), k.Bytes()[:6])

	// Oversized raw strings fail.
	_, err = ParseKey(string(make([]byte, KeySize+1)))
	assert.ErrorIs(t, err, types.ErrMalformedKey)
}

func TestBoundedTree(t *testing.T) {
	k1 := mustKey(t, []byte("one"))
	k2 := mustKey(t, []byte("two"))
	tree := NewBoundedTree([]MapEntry{
		{Key: k1, Value: NewCell([]byte{1})},
	})

	ok, err := tree.Member(k1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tree.Member(k2)
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := tree.Lookup(k1)
	require.NoError(t, err)
	require.True(t, found)
	payload, _ := v.AsCell()
	assert.Equal(t, []byte{1}, payload)

	_, found, err = tree.Lookup(k2)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecord(t *testing.T) {
	rec := NewRecord([]string{"accounts", "total"}, map[string]Value{
		"accounts": NewEmptyMap(),
		"total":    NewCell([]byte{0}),
	})

	require.Equal(t, 2, rec.Len())
	assert.Equal(t, []string{"accounts", "total"}, rec.Fields())

	name, ok := rec.FieldAt(0)
	require.True(t, ok)
	assert.Equal(t, "accounts", name)

	_, ok = rec.FieldAt(5)
	assert.False(t, ok)

	v, ok := rec.Get("accounts")
	require.True(t, ok)
	assert.Equal(t, TagMap, v.Tag())

	_, ok = rec.Get("missing")
	assert.False(t, ok)
}

func TestRecordWithValueImmutable(t *testing.T) {
	rec := NewRecord([]string{"total"}, map[string]Value{"total": NewCell([]byte{1})})

	rec2 := rec.WithValue("total", NewCell([]byte{2}))

	v, _ := rec.Get("total")
	payload, _ := v.AsCell()
	assert.Equal(t, []byte{1}, payload)

	v2, _ := rec2.Get("total")
	payload2, _ := v2.AsCell()
	assert.Equal(t, []byte{2}, payload2)

	// Unknown fields are ignored.
	rec3 := rec.WithValue("missing", NewNull())
	assert.True(t, RecordEqual(rec, rec3))
}

func TestRecordEqual(t *testing.T) {
	a := NewRecord([]string{"x"}, map[string]Value{"x": NewCell([]byte{1})})
	b := NewRecord([]string{"x"}, map[string]Value{"x": NewCell([]byte{1})})
	c := NewRecord([]string{"y"}, map[string]Value{"y": NewCell([]byte{1})})

	assert.True(t, RecordEqual(a, b))
	assert.False(t, RecordEqual(a, c))
	assert.False(t, RecordEqual(a, nil))
	assert.True(t, RecordEqual(nil, nil))
}
