// Package state implements the tagged state value: the closed-variant
// recursive value type representing all contract ledger data, together
// with its canonical encoding and the fixed-width collection key form.
//
// Values are immutable. Every "update" (such as PushElement) returns a
// new value; a constructed tree is read-only for the duration of the
// read operation that produced it.
package state

import (
	"bytes"
	"reflect"
	"sort"
)

// Tag identifies the variant of a Value. Every value has exactly one tag.
type Tag uint8

// Value variants.
const (
	// TagNull is the absence of state. It carries no payload.
	TagNull Tag = iota

	// TagCell is a single scalar/opaque value.
	TagCell

	// TagMap is an ordered mapping from fixed-width byte keys to values.
	TagMap

	// TagArray is a positional sequence of values.
	TagArray

	// TagBoundedMerkleTree is a bounded tree-like structure supporting
	// membership and lookup only; full traversal is not required.
	TagBoundedMerkleTree
)

// String returns the canonical tag name.
func (t Tag) String() string {
	switch t {
	case TagNull:
		return "null"
	case TagCell:
		return "cell"
	case TagMap:
		return "map"
	case TagArray:
		return "array"
	case TagBoundedMerkleTree:
		return "boundedMerkleTree"
	default:
		return "unknown"
	}
}

// MapEntry is one key/value pair of a Map value.
type MapEntry struct {
	Key   Key
	Value Value
}

// Value is a tagged state value. The zero value is Null.
type Value struct {
	tag     Tag
	cell    []byte
	entries []MapEntry
	elems   []Value
	handle  BoundedHandle
}

// NewNull returns the Null value.
func NewNull() Value {
	return Value{tag: TagNull}
}

// NewCell returns a Cell holding the given payload. The payload is copied.
func NewCell(payload []byte) Value {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return Value{tag: TagCell, cell: cp}
}

// NewMap returns a Map over the given entries. Entries are stored in key
// order; duplicate keys keep the last entry.
func NewMap(entries []MapEntry) Value {
	sorted := make([]MapEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key[:], sorted[j].Key[:]) < 0
	})
	dedup := sorted[:0]
	for _, e := range sorted {
		if n := len(dedup); n > 0 && dedup[n-1].Key == e.Key {
			dedup[n-1] = e
			continue
		}
		dedup = append(dedup, e)
	}
	return Value{tag: TagMap, entries: dedup}
}

// NewEmptyMap returns a Map with no entries.
func NewEmptyMap() Value {
	return Value{tag: TagMap}
}

// NewArray returns an empty Array.
func NewArray() Value {
	return Value{tag: TagArray}
}

// NewBoundedMerkleTree returns a BoundedMerkleTree value wrapping the
// given handle. A nil handle behaves as an empty tree.
func NewBoundedMerkleTree(handle BoundedHandle) Value {
	if handle == nil {
		handle = NewBoundedTree(nil)
	}
	return Value{tag: TagBoundedMerkleTree, handle: handle}
}

// Tag returns the value's variant tag.
func (v Value) Tag() Tag {
	return v.tag
}

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool {
	return v.tag == TagNull
}

// AsCell returns the Cell payload. The second result is false if the
// value is not a Cell; accessors never panic on tag mismatch.
func (v Value) AsCell() ([]byte, bool) {
	if v.tag != TagCell {
		return nil, false
	}
	cp := make([]byte, len(v.cell))
	copy(cp, v.cell)
	return cp, true
}

// AsMap returns the Map entries in key order, or false if the value is
// not a Map.
func (v Value) AsMap() ([]MapEntry, bool) {
	if v.tag != TagMap {
		return nil, false
	}
	cp := make([]MapEntry, len(v.entries))
	copy(cp, v.entries)
	return cp, true
}

// AsArray returns the Array elements, or false if the value is not an
// Array.
func (v Value) AsArray() ([]Value, bool) {
	if v.tag != TagArray {
		return nil, false
	}
	cp := make([]Value, len(v.elems))
	copy(cp, v.elems)
	return cp, true
}

// AsBoundedMerkleTree returns the opaque handle, or false if the value is
// not a BoundedMerkleTree.
func (v Value) AsBoundedMerkleTree() (BoundedHandle, bool) {
	if v.tag != TagBoundedMerkleTree {
		return nil, false
	}
	return v.handle, true
}

// PushElement returns a new Array with elem appended. The receiver is
// unchanged. The second result is false if the value is not an Array.
func (v Value) PushElement(elem Value) (Value, bool) {
	if v.tag != TagArray {
		return v, false
	}
	elems := make([]Value, len(v.elems)+1)
	copy(elems, v.elems)
	elems[len(v.elems)] = elem
	return Value{tag: TagArray, elems: elems}, true
}

// MapGet returns the value stored under key, or false if the value is not
// a Map or the key is absent.
func (v Value) MapGet(key Key) (Value, bool) {
	if v.tag != TagMap {
		return Value{}, false
	}
	i := sort.Search(len(v.entries), func(i int) bool {
		return bytes.Compare(v.entries[i].Key[:], key[:]) >= 0
	})
	if i < len(v.entries) && v.entries[i].Key == key {
		return v.entries[i].Value, true
	}
	return Value{}, false
}

// MapHas reports whether key is present in a Map value.
func (v Value) MapHas(key Key) bool {
	_, ok := v.MapGet(key)
	return ok
}

// Len returns the entry count of a Map, the element count of an Array,
// and zero for every other variant.
func (v Value) Len() int {
	switch v.tag {
	case TagMap:
		return len(v.entries)
	case TagArray:
		return len(v.elems)
	default:
		return 0
	}
}

// Equal reports structural equality. BoundedMerkleTree values compare by
// their enumerable entries; handles that cannot enumerate compare by
// identity.
func Equal(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagNull:
		return true
	case TagCell:
		return bytes.Equal(a.cell, b.cell)
	case TagMap:
		if len(a.entries) != len(b.entries) {
			return false
		}
		for i := range a.entries {
			if a.entries[i].Key != b.entries[i].Key {
				return false
			}
			if !Equal(a.entries[i].Value, b.entries[i].Value) {
				return false
			}
		}
		return true
	case TagArray:
		if len(a.elems) != len(b.elems) {
			return false
		}
		for i := range a.elems {
			if !Equal(a.elems[i], b.elems[i]) {
				return false
			}
		}
		return true
	case TagBoundedMerkleTree:
		ae, aok := listEntries(a.handle)
		be, bok := listEntries(b.handle)
		if aok && bok {
			return entriesEqual(ae, be)
		}
		return handlesIdentical(a.handle, b.handle)
	default:
		return false
	}
}

// handlesIdentical compares handles by identity. Handles of a
// non-comparable dynamic type never compare equal; comparing them with
// == would panic.
func handlesIdentical(a, b BoundedHandle) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}

func listEntries(h BoundedHandle) ([]MapEntry, bool) {
	lister, ok := h.(EntryLister)
	if !ok {
		return nil, false
	}
	entries, err := lister.Entries()
	if err != nil {
		return nil, false
	}
	return entries, true
}

func entriesEqual(a, b []MapEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || !Equal(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}
