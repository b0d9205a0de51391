// Package config defines the service configuration, loaded from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for the ledger reader service.
type Config struct {
	Indexer   IndexerConfig   `toml:"indexer"`
	Backend   BackendConfig   `toml:"backend"`
	Snapshots SnapshotsConfig `toml:"snapshots"`
	Cache     CacheConfig     `toml:"cache"`
	RPC       RPCConfig       `toml:"rpc"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Tracing   TracingConfig   `toml:"tracing"`
	Logging   LoggingConfig   `toml:"logging"`
}

// IndexerConfig locates the network indexer.
type IndexerConfig struct {
	// BaseURL is the indexer's HTTP API root.
	BaseURL string `toml:"base_url"`

	// WatchURL is the websocket state-update feed. Empty disables
	// watching; cached state then only refreshes on explicit
	// invalidation.
	WatchURL string `toml:"watch_url"`

	// FetchTimeout bounds a single state fetch.
	FetchTimeout Duration `toml:"fetch_timeout"`
}

// BackendConfig selects the runtime backend behavior.
type BackendConfig struct {
	// PreferNative probes the native engine at startup when one is
	// supplied. When false the compatibility backend is used directly.
	PreferNative bool `toml:"prefer_native"`
}

// SnapshotsConfig controls local snapshot persistence.
type SnapshotsConfig struct {
	// Enabled turns the local snapshot store on.
	Enabled bool `toml:"enabled"`

	// Backend selects the storage engine: "iavl", "leveldb" or "badgerdb".
	Backend string `toml:"backend"`

	// Path is the storage directory.
	Path string `toml:"path"`

	// CacheSize is the number of tree nodes cached in memory (iavl only).
	CacheSize int `toml:"cache_size"`
}

// CacheConfig controls the per-contract reader cache.
type CacheConfig struct {
	// Readers is the maximum number of per-contract readers kept alive.
	Readers int `toml:"readers"`
}

// RPCConfig configures the JSON-RPC server.
type RPCConfig struct {
	// Enabled turns the server on.
	Enabled bool `toml:"enabled"`

	// ListenAddr is the HTTP listen address.
	ListenAddr string `toml:"listen_addr"`

	// ReadTimeout bounds reading a request.
	ReadTimeout Duration `toml:"read_timeout"`

	// WriteTimeout bounds writing a response.
	WriteTimeout Duration `toml:"write_timeout"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metrics collection and the scrape endpoint on.
	Enabled bool `toml:"enabled"`

	// Namespace prefixes all metric names.
	Namespace string `toml:"namespace"`

	// ListenAddr is the scrape endpoint listen address.
	ListenAddr string `toml:"listen_addr"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `toml:"enabled"`

	// Exporter selects the span exporter: "stdout" or "none".
	Exporter string `toml:"exporter"`

	// SampleRate is the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `toml:"sample_rate"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `toml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `toml:"output"`
}

// Duration wraps time.Duration for TOML text (de)serialization.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			BaseURL:      "http://localhost:8088",
			WatchURL:     "",
			FetchTimeout: Duration(10 * time.Second),
		},
		Backend: BackendConfig{
			PreferNative: true,
		},
		Snapshots: SnapshotsConfig{
			Enabled:   false,
			Backend:   "iavl",
			Path:      "data/snapshots",
			CacheSize: 10000,
		},
		Cache: CacheConfig{
			Readers: 256,
		},
		RPC: RPCConfig{
			Enabled:      false,
			ListenAddr:   ":8545",
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			Namespace:  "mlr",
			ListenAddr: ":9090",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "none",
			SampleRate: 0.1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// LoadConfig loads configuration from a TOML file.
// Missing values are filled with defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validation errors.
var (
	ErrEmptyIndexerURL        = errors.New("indexer base_url cannot be empty")
	ErrInvalidFetchTimeout    = errors.New("indexer fetch_timeout must be positive")
	ErrInvalidSnapshotBackend = errors.New("snapshots backend must be 'iavl', 'leveldb' or 'badgerdb'")
	ErrEmptySnapshotPath      = errors.New("snapshots path cannot be empty")
	ErrInvalidSnapshotCache   = errors.New("snapshots cache_size must be non-negative")
	ErrInvalidReaderCache     = errors.New("cache readers must be positive")
	ErrEmptyRPCListenAddr     = errors.New("rpc listen_addr cannot be empty when enabled")
	ErrEmptyMetricsNamespace  = errors.New("metrics namespace cannot be empty when enabled")
	ErrEmptyMetricsListenAddr = errors.New("metrics listen_addr cannot be empty when enabled")
	ErrInvalidTracingExporter = errors.New("tracing exporter must be 'stdout' or 'none'")
	ErrInvalidSampleRate      = errors.New("tracing sample_rate must be between 0 and 1")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat       = errors.New("log format must be 'text' or 'json'")
	ErrEmptyLogOutput         = errors.New("log output cannot be empty")
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Indexer.Validate(); err != nil {
		return fmt.Errorf("indexer config: %w", err)
	}
	if err := c.Snapshots.Validate(); err != nil {
		return fmt.Errorf("snapshots config: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if err := c.RPC.Validate(); err != nil {
		return fmt.Errorf("rpc config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate checks the indexer configuration for errors.
func (c *IndexerConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrEmptyIndexerURL
	}
	if c.FetchTimeout <= 0 {
		return ErrInvalidFetchTimeout
	}
	return nil
}

// Validate checks the snapshots configuration for errors.
func (c *SnapshotsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Backend {
	case "iavl", "leveldb", "badgerdb":
	default:
		return ErrInvalidSnapshotBackend
	}
	if c.Path == "" {
		return ErrEmptySnapshotPath
	}
	if c.CacheSize < 0 {
		return ErrInvalidSnapshotCache
	}
	return nil
}

// Validate checks the cache configuration for errors.
func (c *CacheConfig) Validate() error {
	if c.Readers <= 0 {
		return ErrInvalidReaderCache
	}
	return nil
}

// Validate checks the RPC configuration for errors.
func (c *RPCConfig) Validate() error {
	if c.Enabled && c.ListenAddr == "" {
		return ErrEmptyRPCListenAddr
	}
	return nil
}

// Validate checks the metrics configuration for errors.
func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Namespace == "" {
		return ErrEmptyMetricsNamespace
	}
	if c.ListenAddr == "" {
		return ErrEmptyMetricsListenAddr
	}
	return nil
}

// Validate checks the tracing configuration for errors.
func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Exporter {
	case "stdout", "none", "":
	default:
		return ErrInvalidTracingExporter
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	return nil
}

// Validate checks the logging configuration for errors.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch c.Format {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	if c.Output == "" {
		return ErrEmptyLogOutput
	}
	return nil
}
