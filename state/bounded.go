package state

import (
	"bytes"
	"sort"
)

// BoundedHandle is the opaque handle carried by a BoundedMerkleTree
// value. Backends attach their own implementations; the core requires
// only membership and lookup by normalized key.
type BoundedHandle interface {
	// Member reports whether key is present in the tree.
	Member(key Key) (bool, error)

	// Lookup returns the value stored under key. The second result is
	// false when the key is absent.
	Lookup(key Key) (Value, bool, error)
}

// EntryLister is implemented by handles that can enumerate their stored
// entries. The collection adapter falls back to it when a handle's own
// member/lookup cannot run, and the encoder uses it to make
// BoundedMerkleTree values round-trippable.
type EntryLister interface {
	Entries() ([]MapEntry, error)
}

// BoundedTree is the in-memory bounded merkle tree handle. It backs
// values built by the compatibility backend and values decoded from the
// canonical encoding.
type BoundedTree struct {
	entries []MapEntry
}

var (
	_ BoundedHandle = (*BoundedTree)(nil)
	_ EntryLister   = (*BoundedTree)(nil)
)

// NewBoundedTree builds a tree over the given entries. Entries are stored
// in key order; duplicate keys keep the last entry.
func NewBoundedTree(entries []MapEntry) *BoundedTree {
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
	return &BoundedTree{entries: dedup}
}

// Member reports whether key is present.
func (t *BoundedTree) Member(key Key) (bool, error) {
	_, ok := t.find(key)
	return ok, nil
}

// Lookup returns the value stored under key.
func (t *BoundedTree) Lookup(key Key) (Value, bool, error) {
	v, ok := t.find(key)
	return v, ok, nil
}

// Entries returns the stored entries in key order.
func (t *BoundedTree) Entries() ([]MapEntry, error) {
	cp := make([]MapEntry, len(t.entries))
	copy(cp, t.entries)
	return cp, nil
}

func (t *BoundedTree) find(key Key) (Value, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return bytes.Compare(t.entries[i].Key[:], key[:]) >= 0
	})
	if i < len(t.entries) && t.entries[i].Key == key {
		return t.entries[i].Value, true
	}
	return Value{}, false
}
