package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nel349/midnight-ledger-reader/events"
	"github.com/nel349/midnight-ledger-reader/indexer"
	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/metrics"
	"github.com/nel349/midnight-ledger-reader/rpc/jsonrpc"
	"github.com/nel349/midnight-ledger-reader/tracing/otel"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve ledger queries over JSON-RPC",
	Long: `Start the query service: fetches contract state from the indexer,
serves queries over JSON-RPC, and invalidates cached state from the
indexer's update feed.

The service runs until interrupted (Ctrl+C) or a termination signal.

Example:
  mnquery serve --config config.toml --metadata contract.json`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := createLogger(cfg.Logging)

	log.Info("starting ledger query service", "version", Version)

	// Metrics
	var m metrics.Metrics = metrics.NewNopMetrics()
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheusMetrics(cfg.Metrics.Namespace)
		m = prom
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.HTTPHandler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", logging.Error(err))
			}
		}()
		log.Info("metrics server listening", logging.Method(cfg.Metrics.ListenAddr))
	}

	// Tracing
	if cfg.Tracing.Enabled {
		_, shutdown, err := otel.SetupGlobalTracer(otel.ProviderConfig{
			ServiceName:    "mnquery",
			ServiceVersion: Version,
			Exporter:       cfg.Tracing.Exporter,
			SampleRate:     cfg.Tracing.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(ctx)
		}()
	}

	// Service
	bus := events.NewBus()
	defer bus.Stop()

	svc, cleanup, err := buildService(cfg, log, m, bus)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Feed watcher and cache invalidation. Subscribe before the feed
	// connects so no update can slip past the consume loop.
	if cfg.Indexer.WatchURL != "" {
		invalidate, err := svc.StartInvalidations()
		if err != nil {
			return fmt.Errorf("starting invalidation watcher: %w", err)
		}
		go func() {
			if err := invalidate(ctx); err != nil && ctx.Err() == nil {
				log.Error("invalidation watcher stopped", logging.Error(err))
			}
		}()
		watcher := indexer.NewWatcher(cfg.Indexer.WatchURL, bus, log)
		go func() {
			for ctx.Err() == nil {
				if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
					log.Warn("state feed disconnected, reconnecting", logging.Error(err))
					time.Sleep(time.Second)
				}
			}
		}()
	}

	// JSON-RPC server
	var rpcSrv *jsonrpc.Server
	if cfg.RPC.Enabled {
		rpcSrv = jsonrpc.NewServer(svc, jsonrpc.ServerConfig{
			ListenAddr:   cfg.RPC.ListenAddr,
			ReadTimeout:  cfg.RPC.ReadTimeout.Duration(),
			WriteTimeout: cfg.RPC.WriteTimeout.Duration(),
		}, log)
		if err := rpcSrv.Start(); err != nil {
			return fmt.Errorf("starting rpc server: %w", err)
		}
	}

	log.Info("service started")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", logging.Reason(sig.String()))

	cancel()
	if rpcSrv != nil {
		if err := rpcSrv.Stop(); err != nil {
			log.Error("stopping rpc server", logging.Error(err))
		}
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("stopping metrics server", logging.Error(err))
		}
	}

	log.Info("service stopped")
	return nil
}
