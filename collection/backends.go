package collection

import (
	"fmt"

	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/types"
)

// mapBackend serves collections represented as ordered Map values.
type mapBackend struct {
	coll state.Value
}

func (b mapBackend) Member(key state.Key) (bool, error) {
	return b.coll.MapHas(key), nil
}

func (b mapBackend) Lookup(key state.Key) (state.Value, bool, error) {
	v, ok := b.coll.MapGet(key)
	return v, ok, nil
}

// emptyBackend serves Null collection fields: everything is absent.
type emptyBackend struct{}

func (emptyBackend) Member(state.Key) (bool, error) {
	return false, nil
}

func (emptyBackend) Lookup(state.Key) (state.Value, bool, error) {
	return state.Value{}, false, nil
}

// boundedBackend serves bounded merkle tree handles. It tries the
// handle's own member/lookup first; when that fails (the handle is a
// native proxy without its engine wired) it falls back to enumerating
// entries, and finally to executing the handle's query program through
// the interpreter.
type boundedBackend struct {
	coll    state.Value
	handle  state.BoundedHandle
	adapter *Adapter
	log     *logging.Logger
}

func (b *boundedBackend) Member(key state.Key) (bool, error) {
	ok, err := b.handle.Member(key)
	if err == nil {
		return ok, nil
	}
	nativeErr := err

	if entries, lerr := b.entries(); lerr == nil {
		for _, e := range entries {
			if e.Key == key {
				return true, nil
			}
		}
		return false, nil
	}

	if prog := b.memberProgram(); prog != nil {
		if runner := b.adapter.currentRunner(); runner != nil {
			b.log.Debug("native member failed, executing query program",
				logging.Key(key.Bytes()),
				logging.Error(nativeErr))
			return runner.RunMember(prog, b.coll, key)
		}
	}

	return false, fmt.Errorf("bounded member: %w", nativeErr)
}

func (b *boundedBackend) Lookup(key state.Key) (state.Value, bool, error) {
	v, ok, err := b.handle.Lookup(key)
	if err == nil {
		return v, ok, nil
	}
	nativeErr := err

	if entries, lerr := b.entries(); lerr == nil {
		for _, e := range entries {
			if e.Key == key {
				return e.Value, true, nil
			}
		}
		return state.Value{}, false, nil
	}

	if prog := b.lookupProgram(); prog != nil {
		if runner := b.adapter.currentRunner(); runner != nil {
			b.log.Debug("native lookup failed, executing query program",
				logging.Key(key.Bytes()),
				logging.Error(nativeErr))
			return runner.RunLookup(prog, b.coll, key)
		}
	}

	return state.Value{}, false, fmt.Errorf("bounded lookup: %w", nativeErr)
}

func (b *boundedBackend) entries() ([]state.MapEntry, error) {
	lister, ok := b.handle.(state.EntryLister)
	if !ok {
		return nil, types.ErrNotACollection
	}
	return lister.Entries()
}

func (b *boundedBackend) memberProgram() []byte {
	if c, ok := b.handle.(ProgramCarrier); ok {
		return c.MemberProgram()
	}
	return nil
}

func (b *boundedBackend) lookupProgram() []byte {
	if c, ok := b.handle.(ProgramCarrier); ok {
		return c.LookupProgram()
	}
	return nil
}
