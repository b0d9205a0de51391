package state

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/nel349/midnight-ledger-reader/types"
)

// Encoded is the canonical {tag, content} representation of a Value,
// suitable for transport and round-trip testing. Exactly one content
// field is populated, matching the tag.
type Encoded struct {
	Tag     string         `json:"tag"`
	Value   []byte         `json:"value,omitempty"`   // cell payload
	Entries []EncodedEntry `json:"entries,omitempty"` // map / bounded tree
	Items   []Encoded      `json:"items,omitempty"`   // array elements
}

// EncodedEntry is one encoded key/value pair.
type EncodedEntry struct {
	Key   []byte  `json:"key"`
	Value Encoded `json:"value"`
}

// Encode produces the canonical representation of the value.
//
// BoundedMerkleTree handles that can enumerate their entries encode those
// entries; opaque handles encode as an empty tree. Decoding always yields
// an in-memory BoundedTree handle, so Decode(v.Encode()) is structurally
// equal to v for every enumerable value.
func (v Value) Encode() Encoded {
	switch v.tag {
	case TagCell:
		payload, _ := v.AsCell()
		return Encoded{Tag: v.tag.String(), Value: payload}
	case TagMap:
		return Encoded{Tag: v.tag.String(), Entries: encodeEntries(v.entries)}
	case TagArray:
		items := make([]Encoded, len(v.elems))
		for i, e := range v.elems {
			items[i] = e.Encode()
		}
		return Encoded{Tag: v.tag.String(), Items: items}
	case TagBoundedMerkleTree:
		entries, _ := listEntries(v.handle)
		return Encoded{Tag: v.tag.String(), Entries: encodeEntries(entries)}
	default:
		return Encoded{Tag: TagNull.String()}
	}
}

// Decode reconstructs a Value from its canonical representation.
func Decode(enc Encoded) (Value, error) {
	switch enc.Tag {
	case TagNull.String():
		return NewNull(), nil
	case TagCell.String():
		return NewCell(enc.Value), nil
	case TagMap.String():
		entries, err := decodeEntries(enc.Entries)
		if err != nil {
			return Value{}, err
		}
		return NewMap(entries), nil
	case TagArray.String():
		arr := NewArray()
		for _, item := range enc.Items {
			elem, err := Decode(item)
			if err != nil {
				return Value{}, err
			}
			arr, _ = arr.PushElement(elem)
		}
		return arr, nil
	case TagBoundedMerkleTree.String():
		entries, err := decodeEntries(enc.Entries)
		if err != nil {
			return Value{}, err
		}
		return NewBoundedMerkleTree(NewBoundedTree(entries)), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown tag %q", types.ErrInvalidEncoding, enc.Tag)
	}
}

// Marshal serializes a value to its canonical binary form.
func Marshal(v Value) ([]byte, error) {
	data, err := cramberry.Marshal(v.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidEncoding, err)
	}
	return data, nil
}

// Unmarshal deserializes a value from its canonical binary form.
func Unmarshal(data []byte) (Value, error) {
	var enc Encoded
	if err := cramberry.Unmarshal(data, &enc); err != nil {
		return Value{}, fmt.Errorf("%w: %v", types.ErrInvalidEncoding, err)
	}
	return Decode(enc)
}

func encodeEntries(entries []MapEntry) []EncodedEntry {
	out := make([]EncodedEntry, len(entries))
	for i, e := range entries {
		out[i] = EncodedEntry{Key: e.Key.Bytes(), Value: e.Value.Encode()}
	}
	return out
}

func decodeEntries(encoded []EncodedEntry) ([]MapEntry, error) {
	entries := make([]MapEntry, 0, len(encoded))
	for _, ee := range encoded {
		if len(ee.Key) != KeySize {
			return nil, fmt.Errorf("%w: entry key is %d bytes, want %d",
				types.ErrInvalidEncoding, len(ee.Key), KeySize)
		}
		key, err := NormalizeKey(ee.Key)
		if err != nil {
			return nil, err
		}
		val, err := Decode(ee.Value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, MapEntry{Key: key, Value: val})
	}
	return entries, nil
}
