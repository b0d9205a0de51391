// Package ledger exposes the query surface over a contract's ledger
// state: reading the populated state, individual fields, collection
// membership and lookup, and pure-function calls. It composes the
// runtime backend, the state fetcher, the collection adapter, and the
// query interpreter behind one facade.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nel349/midnight-ledger-reader/backend"
	"github.com/nel349/midnight-ledger-reader/collection"
	"github.com/nel349/midnight-ledger-reader/indexer"
	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/metrics"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/statestore"
	"github.com/nel349/midnight-ledger-reader/tracing/otel"
	"github.com/nel349/midnight-ledger-reader/types"
	"github.com/nel349/midnight-ledger-reader/vm"
)

// LedgerState is a populated ledger snapshot: the declared shape with
// fetched values overlaid.
type LedgerState struct {
	Record      *state.Record
	BlockHeight uint64
	Timestamp   int64
}

// PureCall names one pure-function invocation in a batch.
type PureCall struct {
	Name string
	Args []state.Value
}

// BatchResult is the outcome of one call in a batch. Found is false when
// the function is not declared by the contract; Value is then Null.
type BatchResult struct {
	Name  string
	Value state.Value
	Found bool
}

// ReaderOptions configures a contract reader. Backend and Fetcher are
// required; everything else defaults to a no-op.
type ReaderOptions struct {
	Backend backend.Backend
	Fetcher indexer.StateFetcher
	Store   statestore.SnapshotStore
	Metrics metrics.Metrics
	Tracer  *otel.Tracer
	Logger  *logging.Logger
}

// Reader answers ledger queries for one contract address. Fetched state
// is cached until Invalidate is called; the declared shape is evaluated
// once per reader. Safe for concurrent use.
type Reader struct {
	addr    types.ContractAddress
	backend backend.Backend
	fetcher indexer.StateFetcher
	store   statestore.SnapshotStore
	adapter *collection.Adapter
	metrics metrics.Metrics
	tracer  *otel.Tracer
	log     *logging.Logger

	mu     sync.Mutex
	shape  *state.Record
	interp *vm.Interpreter
	cached *LedgerState
}

// NewReader creates a reader for the given contract address.
func NewReader(addr types.ContractAddress, opts ReaderOptions) (*Reader, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if opts.Backend == nil {
		return nil, errors.New("reader requires a backend")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("reader requires a state fetcher")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNopMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	log := opts.Logger.WithComponent("ledger").WithContract(addr.String())

	r := &Reader{
		addr:    addr,
		backend: opts.Backend,
		fetcher: opts.Fetcher,
		store:   opts.Store,
		adapter: collection.NewAdapter(nil, log),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		log:     log,
	}
	r.metrics.SetBackendKind(opts.Backend.Kind())
	return r, nil
}

// Address returns the contract address this reader serves.
func (r *Reader) Address() types.ContractAddress {
	return r.addr
}

// Invalidate drops the cached snapshot. The next query refetches.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
	r.log.Debug("cached state invalidated")
}

// ReadLedgerState returns the populated ledger state, or nil when no
// contract exists at the address.
func (r *Reader) ReadLedgerState(ctx context.Context) (*LedgerState, error) {
	ctx, finish := r.begin(ctx, "read_ledger_state")
	st, err := r.currentState(ctx)
	finish(err)
	return st, err
}

// ReadField returns the value of a named ledger field.
func (r *Reader) ReadField(ctx context.Context, field string) (state.Value, error) {
	ctx, finish := r.begin(ctx, "read_field")
	v, err := r.readField(ctx, field)
	finish(err)
	return v, err
}

func (r *Reader) readField(ctx context.Context, field string) (state.Value, error) {
	st, err := r.currentState(ctx)
	if err != nil {
		return state.Value{}, err
	}
	if st == nil {
		return state.Value{}, types.WrapContractError(types.ErrContractNotFound, r.addr)
	}
	v, ok := st.Record.Get(field)
	if !ok {
		r.log.Debug("field not declared", logging.Field(field))
		return state.Value{}, types.WrapFieldError(types.ErrFieldNotFound, field)
	}
	return v, nil
}

// CollectionHasMember reports whether rawKey is present in the named
// collection field. The key is normalized to the fixed 32-byte form.
func (r *Reader) CollectionHasMember(ctx context.Context, field string, rawKey []byte) (bool, error) {
	ctx, finish := r.begin(ctx, "collection_member")
	ok, err := r.hasMember(ctx, field, rawKey)
	finish(err)
	return ok, err
}

func (r *Reader) hasMember(ctx context.Context, field string, rawKey []byte) (bool, error) {
	coll, err := r.readField(ctx, field)
	if err != nil {
		return false, err
	}
	return r.adapter.Member(coll, rawKey)
}

// CollectionLookup returns the value stored under rawKey in the named
// collection field. The second result is false when the key is absent.
// Member and Lookup normalize the key identically and can never disagree
// about the same logical key.
func (r *Reader) CollectionLookup(ctx context.Context, field string, rawKey []byte) (state.Value, bool, error) {
	ctx, finish := r.begin(ctx, "collection_lookup")
	v, found, err := r.lookup(ctx, field, rawKey)
	finish(err)
	return v, found, err
}

func (r *Reader) lookup(ctx context.Context, field string, rawKey []byte) (state.Value, bool, error) {
	coll, err := r.readField(ctx, field)
	if err != nil {
		return state.Value{}, false, err
	}
	return r.adapter.Lookup(coll, rawKey)
}

// CallPureFunction invokes a contract-declared pure function. The second
// result is false when the contract declares no function of that name.
func (r *Reader) CallPureFunction(ctx context.Context, name string, args []state.Value) (state.Value, bool, error) {
	ctx, finish := r.begin(ctx, "call_pure")
	v, found, err := r.callPure(ctx, name, args)
	finish(err)
	return v, found, err
}

func (r *Reader) callPure(ctx context.Context, name string, args []state.Value) (state.Value, bool, error) {
	r.metrics.IncBackendCalls("pure")
	v, err := r.backend.EvaluatePureFunction(ctx, name, args)
	if errors.Is(err, types.ErrFunctionNotFound) {
		r.log.Debug("pure function not declared", logging.Function(name))
		return state.Value{}, false, nil
	}
	if err != nil {
		r.metrics.IncBackendErrors("pure")
		return state.Value{}, false, err
	}
	return v, true, nil
}

// CallPureFunctionsBatch invokes several pure functions and returns one
// result per call, in call order. Each call fails independently:
// undeclared and failing functions yield a Null result with Found false,
// and never affect the other calls in the batch.
func (r *Reader) CallPureFunctionsBatch(ctx context.Context, calls []PureCall) ([]BatchResult, error) {
	ctx, finish := r.begin(ctx, "call_pure_batch")
	results := make([]BatchResult, 0, len(calls))
	for _, call := range calls {
		v, found, err := r.callPure(ctx, call.Name, call.Args)
		if err != nil {
			r.log.Warn("pure call failed in batch, substituting null",
				logging.Function(call.Name),
				logging.Error(err))
			results = append(results, BatchResult{Name: call.Name, Value: state.NewNull()})
			continue
		}
		if !found {
			v = state.NewNull()
		}
		results = append(results, BatchResult{Name: call.Name, Value: v, Found: found})
	}
	finish(nil)
	return results, nil
}

// currentState returns the cached snapshot, fetching and populating it
// on a miss. Returns nil, nil when no contract exists at the address.
func (r *Reader) currentState(ctx context.Context) (*LedgerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		r.metrics.IncCacheHits()
		return r.cached, nil
	}
	r.metrics.IncCacheMisses()

	if err := r.ensureShape(ctx); err != nil {
		return nil, err
	}

	raw, err := r.fetchState(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	st, err := r.populate(raw)
	if err != nil {
		return nil, err
	}
	r.cached = st
	return st, nil
}

// ensureShape evaluates the declared ledger shape once and wires the
// interpreter into the collection adapter. Callers hold r.mu.
func (r *Reader) ensureShape(ctx context.Context) error {
	if r.shape != nil {
		return nil
	}

	nullState, err := r.backend.NewNullState()
	if err != nil {
		r.metrics.IncBackendErrors("null_state")
		return fmt.Errorf("probing null state: %w", err)
	}
	r.metrics.IncBackendCalls("ledger")
	shape, err := r.backend.EvaluateLedgerShape(ctx, nullState)
	if err != nil {
		r.metrics.IncBackendErrors("ledger")
		return fmt.Errorf("evaluating ledger shape: %w", err)
	}

	r.shape = shape
	r.interp = vm.New(shape.Fields(), r.adapter, r.metrics, r.log)
	r.adapter.SetRunner(vm.NewProgramRunner(r.interp))

	r.log.Debug("ledger shape evaluated",
		logging.Backend(r.backend.Kind()),
		logging.Count(shape.Len()))
	return nil
}

// fetchState pulls the raw snapshot, writing through to the local store
// and falling back to it when the fetch fails.
func (r *Reader) fetchState(ctx context.Context) (*types.ContractState, error) {
	start := time.Now()
	raw, err := r.fetcher.FetchState(ctx, r.addr)
	r.metrics.ObserveFetchDuration(time.Since(start))

	if err != nil {
		r.metrics.IncFetches(metrics.FetchResultError)
		if r.store != nil {
			stored, serr := r.store.Latest(r.addr)
			if serr == nil && stored != nil {
				r.metrics.IncSnapshotReads()
				r.log.Warn("state fetch failed, serving stored snapshot",
					logging.Height(stored.BlockHeight),
					logging.Error(err))
				return stored, nil
			}
		}
		return nil, fmt.Errorf("fetching contract state: %w", err)
	}
	if raw == nil {
		r.metrics.IncFetches(metrics.FetchResultAbsent)
		return nil, nil
	}

	r.metrics.IncFetches(metrics.FetchResultFound)
	r.metrics.ObserveStateSize(len(raw.RawState))

	if r.store != nil {
		saveStart := time.Now()
		if serr := r.store.Save(raw); serr != nil {
			r.log.Warn("storing snapshot failed", logging.Error(serr))
		} else {
			r.metrics.IncSnapshotSaves()
			r.metrics.ObserveSnapshotLatency("save", time.Since(saveStart))
		}
	}
	return raw, nil
}

// populate decodes the raw blob and overlays it onto the shape. Blobs the
// backend cannot decode degrade to the bare shape rather than failing the
// query.
func (r *Reader) populate(raw *types.ContractState) (*LedgerState, error) {
	record := r.shape

	decoded, err := r.backend.DecodeState(raw.RawState)
	switch {
	case err == nil:
		record = backend.OverlayState(r.shape, decoded)
	case errors.Is(err, types.ErrInvalidEncoding):
		r.log.Warn("raw state not decodable, serving bare shape",
			logging.Height(raw.BlockHeight),
			logging.Error(err))
	default:
		r.metrics.IncBackendErrors("decode")
		return nil, fmt.Errorf("decoding contract state: %w", err)
	}

	return &LedgerState{
		Record:      record,
		BlockHeight: raw.BlockHeight,
		Timestamp:   raw.Timestamp,
	}, nil
}

// begin starts instrumentation for one public operation and returns the
// completion callback.
func (r *Reader) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	r.metrics.IncQueries(op)

	var span *otel.Span
	if r.tracer != nil {
		ctx, span = r.tracer.StartQuery(ctx, op, r.addr.String())
	}

	return ctx, func(err error) {
		r.metrics.ObserveQueryDuration(op, time.Since(start))
		if err != nil {
			r.metrics.IncQueryErrors(op)
			r.log.Debug("query failed", logging.Op(op), logging.Error(err))
		}
		if span != nil {
			if err != nil {
				span.RecordError(err)
			} else {
				span.OK()
			}
			span.End()
		}
	}
}
