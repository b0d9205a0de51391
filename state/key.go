package state

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nel349/midnight-ledger-reader/types"
)

// KeySize is the fixed width of collection keys in the observed contract
// family. Shorter keys are zero-padded on the right before any comparison
// or storage operation.
const KeySize = 32

// Key is a normalized fixed-width collection key.
type Key [KeySize]byte

// NormalizeKey converts raw bytes into the fixed 32-byte key form,
// zero-padding shorter keys on the right. Keys longer than KeySize cannot
// be normalized and are rejected; truncating here would silently produce
// wrong membership answers.
func NormalizeKey(raw []byte) (Key, error) {
	var k Key
	if len(raw) > KeySize {
		return k, fmt.Errorf("%w: %d bytes exceeds %d", types.ErrMalformedKey, len(raw), KeySize)
	}
	copy(k[:], raw)
	return k, nil
}

// ParseKey normalizes a string key. Hex-like strings (with or without an
// "0x" prefix) are hex-decoded first; anything else is taken as raw bytes.
func ParseKey(s string) (Key, error) {
	if isHexLike(s) {
		raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err == nil {
			return NormalizeKey(raw)
		}
	}
	return NormalizeKey([]byte(s))
}

// Bytes returns the key as a byte slice copy.
func (k Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k[:])
	return out
}

// Hex returns the key hex-encoded.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

func isHexLike(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
