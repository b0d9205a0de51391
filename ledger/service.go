package ledger

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nel349/midnight-ledger-reader/backend"
	"github.com/nel349/midnight-ledger-reader/events"
	"github.com/nel349/midnight-ledger-reader/indexer"
	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/metrics"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/statestore"
	"github.com/nel349/midnight-ledger-reader/tracing/otel"
	"github.com/nel349/midnight-ledger-reader/types"
)

// DefaultReaderCacheSize is the default number of per-contract readers
// kept alive.
const DefaultReaderCacheSize = 256

// BackendProvider yields the runtime backend for a contract address.
// Different contracts carry different metadata and may resolve to
// different backends.
type BackendProvider interface {
	BackendFor(addr types.ContractAddress) (backend.Backend, error)
}

// StaticBackend is a BackendProvider that serves one backend for every
// address. Sufficient when the service fronts a single contract type.
type StaticBackend struct {
	Backend backend.Backend
}

func (s StaticBackend) BackendFor(types.ContractAddress) (backend.Backend, error) {
	if s.Backend == nil {
		return nil, types.ErrBackendUnavailable
	}
	return s.Backend, nil
}

// ServiceConfig configures a Service. Fetcher and Backends are required.
type ServiceConfig struct {
	Fetcher   indexer.StateFetcher
	Backends  BackendProvider
	Store     statestore.SnapshotStore
	Bus       *events.Bus
	Metrics   metrics.Metrics
	Tracer    *otel.Tracer
	Logger    *logging.Logger
	CacheSize int
}

// Service hands out per-contract readers, keeping recently used ones in
// an LRU cache, and invalidates their snapshots on feed updates.
type Service struct {
	cfg     ServiceConfig
	readers *lru.Cache[string, *Reader]
	log     *logging.Logger
}

// NewService creates a service from the configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("service requires a state fetcher")
	}
	if cfg.Backends == nil {
		return nil, errors.New("service requires a backend provider")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNopMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultReaderCacheSize
	}

	readers, err := lru.New[string, *Reader](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:     cfg,
		readers: readers,
		log:     cfg.Logger.WithComponent("ledger.service"),
	}, nil
}

// Reader returns the reader for an address, creating and caching it on
// first use.
func (s *Service) Reader(addr types.ContractAddress) (*Reader, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if r, ok := s.readers.Get(addr.String()); ok {
		return r, nil
	}

	be, err := s.cfg.Backends.BackendFor(addr)
	if err != nil {
		return nil, types.WrapContractError(err, addr)
	}
	r, err := NewReader(addr, ReaderOptions{
		Backend: be,
		Fetcher: s.cfg.Fetcher,
		Store:   s.cfg.Store,
		Metrics: s.cfg.Metrics,
		Tracer:  s.cfg.Tracer,
		Logger:  s.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	s.readers.Add(addr.String(), r)
	s.cfg.Metrics.SetReadersCached(s.readers.Len())
	return r, nil
}

// StartInvalidations subscribes to the bus and returns the consume loop.
// The subscription is live when this returns, so updates published after
// the call are never lost even if the loop has not been scheduled yet.
// The loop invalidates cached readers until ctx is cancelled; run it as a
// goroutine alongside an indexer.Watcher feeding the same bus.
func (s *Service) StartInvalidations() (func(context.Context) error, error) {
	if s.cfg.Bus == nil {
		return nil, errors.New("service has no event bus")
	}
	ch, err := s.cfg.Bus.Subscribe("ledger.service")
	if err != nil {
		return nil, err
	}

	run := func(ctx context.Context) error {
		defer s.cfg.Bus.Unsubscribe("ledger.service")
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case update, ok := <-ch:
				if !ok {
					return events.ErrBusStopped
				}
				if r, cached := s.readers.Peek(update.Address.String()); cached {
					r.Invalidate()
					s.cfg.Metrics.IncCacheInvalidations()
					s.log.Debug("reader invalidated",
						logging.Contract(update.Address.String()),
						logging.Height(update.BlockHeight))
				}
			}
		}
	}
	return run, nil
}

// WatchInvalidations subscribes and consumes in one call. Callers that
// publish right after starting the watcher should use StartInvalidations
// and spawn the returned loop themselves.
func (s *Service) WatchInvalidations(ctx context.Context) error {
	run, err := s.StartInvalidations()
	if err != nil {
		return err
	}
	return run(ctx)
}

// ReadLedgerState reads the populated state for an address.
func (s *Service) ReadLedgerState(ctx context.Context, addr types.ContractAddress) (*LedgerState, error) {
	r, err := s.Reader(addr)
	if err != nil {
		return nil, err
	}
	return r.ReadLedgerState(ctx)
}

// ReadField reads one ledger field for an address.
func (s *Service) ReadField(ctx context.Context, addr types.ContractAddress, field string) (state.Value, error) {
	r, err := s.Reader(addr)
	if err != nil {
		return state.Value{}, err
	}
	return r.ReadField(ctx, field)
}

// CollectionHasMember checks key membership in a collection field.
func (s *Service) CollectionHasMember(ctx context.Context, addr types.ContractAddress, field string, rawKey []byte) (bool, error) {
	r, err := s.Reader(addr)
	if err != nil {
		return false, err
	}
	return r.CollectionHasMember(ctx, field, rawKey)
}

// CollectionLookup looks a key up in a collection field.
func (s *Service) CollectionLookup(ctx context.Context, addr types.ContractAddress, field string, rawKey []byte) (state.Value, bool, error) {
	r, err := s.Reader(addr)
	if err != nil {
		return state.Value{}, false, err
	}
	return r.CollectionLookup(ctx, field, rawKey)
}

// CallPureFunction invokes one pure function for an address.
func (s *Service) CallPureFunction(ctx context.Context, addr types.ContractAddress, name string, args []state.Value) (state.Value, bool, error) {
	r, err := s.Reader(addr)
	if err != nil {
		return state.Value{}, false, err
	}
	return r.CallPureFunction(ctx, name, args)
}

// CallPureFunctionsBatch invokes several pure functions for an address.
func (s *Service) CallPureFunctionsBatch(ctx context.Context, addr types.ContractAddress, calls []PureCall) ([]BatchResult, error) {
	r, err := s.Reader(addr)
	if err != nil {
		return nil, err
	}
	return r.CallPureFunctionsBatch(ctx, calls)
}
