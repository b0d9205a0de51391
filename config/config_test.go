package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Indexer.FetchTimeout.Duration())
	assert.True(t, cfg.Backend.PreferNative)
	assert.Equal(t, 256, cfg.Cache.Readers)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[indexer]
base_url = "http://indexer.example:9000"
watch_url = "ws://indexer.example:9000/feed"
fetch_timeout = "3s"

[snapshots]
enabled = true
backend = "badgerdb"
path = "/var/lib/mlr/snapshots"

[logging]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://indexer.example:9000", cfg.Indexer.BaseURL)
	assert.Equal(t, "ws://indexer.example:9000/feed", cfg.Indexer.WatchURL)
	assert.Equal(t, 3*time.Second, cfg.Indexer.FetchTimeout.Duration())
	assert.Equal(t, "badgerdb", cfg.Snapshots.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Untouched sections keep defaults.
	assert.Equal(t, 256, cfg.Cache.Readers)
	assert.Equal(t, "mlr", cfg.Metrics.Namespace)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty indexer url", func(c *Config) { c.Indexer.BaseURL = "" }, ErrEmptyIndexerURL},
		{"zero fetch timeout", func(c *Config) { c.Indexer.FetchTimeout = 0 }, ErrInvalidFetchTimeout},
		{"bad snapshot backend", func(c *Config) {
			c.Snapshots.Enabled = true
			c.Snapshots.Backend = "flatfile"
		}, ErrInvalidSnapshotBackend},
		{"empty snapshot path", func(c *Config) {
			c.Snapshots.Enabled = true
			c.Snapshots.Path = ""
		}, ErrEmptySnapshotPath},
		{"zero reader cache", func(c *Config) { c.Cache.Readers = 0 }, ErrInvalidReaderCache},
		{"rpc enabled without addr", func(c *Config) {
			c.RPC.Enabled = true
			c.RPC.ListenAddr = ""
		}, ErrEmptyRPCListenAddr},
		{"metrics enabled without namespace", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Namespace = ""
		}, ErrEmptyMetricsNamespace},
		{"bad tracing exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, ErrInvalidTracingExporter},
		{"bad sample rate", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}, ErrInvalidSampleRate},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, ErrInvalidLogLevel},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	var parsed Duration
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, d, parsed)

	assert.Error(t, parsed.UnmarshalText([]byte("soon")))
}
