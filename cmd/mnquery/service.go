package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nel349/midnight-ledger-reader/backend"
	"github.com/nel349/midnight-ledger-reader/config"
	"github.com/nel349/midnight-ledger-reader/events"
	"github.com/nel349/midnight-ledger-reader/indexer"
	"github.com/nel349/midnight-ledger-reader/ledger"
	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/metrics"
	"github.com/nel349/midnight-ledger-reader/statestore"
)

// metadataFile is the on-disk contract metadata format: the declared
// field layout in order. Pure functions need an execution engine and are
// not expressible in a metadata file.
type metadataFile struct {
	Fields []struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	} `json:"fields"`
}

// loadMetadata reads contract metadata from the --metadata file.
func loadMetadata(path string) (*backend.Metadata, error) {
	if path == "" {
		return nil, fmt.Errorf("no contract metadata: pass --metadata")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata file: %w", err)
	}

	var mf metadataFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing metadata file: %w", err)
	}

	meta := &backend.Metadata{}
	for _, f := range mf.Fields {
		kind, err := parseFieldKind(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		meta.Fields = append(meta.Fields, backend.FieldSpec{Name: f.Name, Kind: kind})
	}
	return meta, nil
}

func parseFieldKind(s string) (backend.FieldKind, error) {
	switch s {
	case "cell", "":
		return backend.KindCell, nil
	case "map":
		return backend.KindMap, nil
	case "array":
		return backend.KindArray, nil
	case "boundedMerkleTree", "bounded_merkle_tree":
		return backend.KindBoundedMerkleTree, nil
	default:
		return 0, fmt.Errorf("unknown field kind %q", s)
	}
}

// openSnapshotStore opens the configured snapshot store, or nil when
// snapshots are disabled.
func openSnapshotStore(cfg config.SnapshotsConfig) (statestore.SnapshotStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "iavl":
		return statestore.NewIAVLStore(cfg.Path, cfg.CacheSize)
	case "leveldb":
		return statestore.NewLevelDBStore(cfg.Path)
	case "badgerdb":
		return statestore.NewBadgerStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}

// buildService assembles the ledger query service from configuration.
// The returned cleanup closes the snapshot store.
func buildService(cfg *config.Config, log *logging.Logger, m metrics.Metrics, bus *events.Bus) (*ledger.Service, func(), error) {
	meta, err := loadMetadata(metaFile)
	if err != nil {
		return nil, nil, err
	}

	// The CLI carries no execution engine; Select falls through to the
	// compatibility backend.
	be := backend.Select(nil, meta, log)

	store, err := openSnapshotStore(cfg.Snapshots)
	if err != nil {
		return nil, nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	if iavlStore, ok := store.(*statestore.IAVLStore); ok {
		log.Info("snapshot store opened", logging.Version(iavlStore.Version()))
	}

	fetcher := indexer.NewHTTPClient(cfg.Indexer.BaseURL, cfg.Indexer.FetchTimeout.Duration(), log)

	svc, err := ledger.NewService(ledger.ServiceConfig{
		Fetcher:   fetcher,
		Backends:  ledger.StaticBackend{Backend: be},
		Store:     store,
		Bus:       bus,
		Metrics:   m,
		Logger:    log,
		CacheSize: cfg.Cache.Readers,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		if store != nil {
			if cerr := store.Close(); cerr != nil {
				log.Warn("closing snapshot store", logging.Error(cerr))
			}
		}
	}
	return svc, cleanup, nil
}
