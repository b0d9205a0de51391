// Package collection provides uniform membership and lookup over the two
// collection shapes found in ledger state: the ordered map and the
// bounded merkle tree.
//
// A small closed set of collection backends sits behind one interface.
// The backend for a collection value is selected once, when the value is
// first observed, rather than re-probed on every call. Key normalization
// is applied by the adapter itself so that Member and Lookup can never
// disagree about the same logical key.
package collection

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/types"
)

// Backend performs member/lookup over one observed collection value.
type Backend interface {
	Member(key state.Key) (bool, error)
	Lookup(key state.Key) (state.Value, bool, error)
}

// Runner executes a query program on behalf of a collection handle that
// cannot run it natively. Wired to the query interpreter; the adapter
// only ever calls it from the bounded-tree backend's last fallback.
type Runner interface {
	RunMember(program []byte, root state.Value, key state.Key) (bool, error)
	RunLookup(program []byte, root state.Value, key state.Key) (state.Value, bool, error)
}

// ProgramCarrier is implemented by backend-native collection handles that
// expose the query programs backing their member/lookup methods.
type ProgramCarrier interface {
	MemberProgram() []byte
	LookupProgram() []byte
}

// Adapter routes member/lookup operations to the backend selected for
// each collection value. Safe for concurrent use.
type Adapter struct {
	runner Runner
	log    *logging.Logger

	mu       sync.Mutex
	selected map[state.BoundedHandle]Backend
}

// NewAdapter creates an adapter. runner may be nil when no interpreter is
// available; program fallbacks then report failure instead of executing.
func NewAdapter(runner Runner, log *logging.Logger) *Adapter {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Adapter{
		runner:   runner,
		log:      log.WithComponent("collection"),
		selected: make(map[state.BoundedHandle]Backend),
	}
}

// SetRunner installs the program runner. Used to break the construction
// cycle between the adapter and the query interpreter.
func (a *Adapter) SetRunner(r Runner) {
	a.mu.Lock()
	a.runner = r
	a.mu.Unlock()
}

// Member reports whether rawKey is present in the collection. The key is
// normalized to the fixed 32-byte form before any comparison; Lookup
// applies the identical normalization.
func (a *Adapter) Member(coll state.Value, rawKey []byte) (bool, error) {
	key, err := state.NormalizeKey(rawKey)
	if err != nil {
		return false, err
	}
	backend, err := a.backendFor(coll)
	if err != nil {
		return false, err
	}
	return backend.Member(key)
}

// Lookup returns the value stored under rawKey. The second result is
// false when the key is absent.
func (a *Adapter) Lookup(coll state.Value, rawKey []byte) (state.Value, bool, error) {
	key, err := state.NormalizeKey(rawKey)
	if err != nil {
		return state.Value{}, false, err
	}
	backend, err := a.backendFor(coll)
	if err != nil {
		return state.Value{}, false, err
	}
	return backend.Lookup(key)
}

// backendFor selects the backend for a collection value. Bounded-tree
// selections are cached per handle; map values are cheap value types and
// carry their backend inline.
func (a *Adapter) backendFor(coll state.Value) (Backend, error) {
	switch coll.Tag() {
	case state.TagMap:
		return mapBackend{coll: coll}, nil
	case state.TagBoundedMerkleTree:
		handle, _ := coll.AsBoundedMerkleTree()
		return a.boundedBackendFor(coll, handle), nil
	case state.TagNull:
		// Absent state: empty collection semantics.
		return emptyBackend{}, nil
	default:
		return nil, fmt.Errorf("%w: tag %s", types.ErrNotACollection, coll.Tag())
	}
}

func (a *Adapter) boundedBackendFor(coll state.Value, handle state.BoundedHandle) Backend {
	// Handles come from an external collaborator; a non-comparable dynamic
	// type cannot key the cache and gets a fresh backend per call.
	cacheable := handle != nil && reflect.TypeOf(handle).Comparable()

	a.mu.Lock()
	defer a.mu.Unlock()
	if cacheable {
		if b, ok := a.selected[handle]; ok {
			return b
		}
	}
	b := &boundedBackend{
		coll:    coll,
		handle:  handle,
		adapter: a,
		log:     a.log,
	}
	if cacheable {
		a.selected[handle] = b
	}
	return b
}

// currentRunner returns the installed program runner, if any. Callers
// must not hold a.mu.
func (a *Adapter) currentRunner() Runner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runner
}
