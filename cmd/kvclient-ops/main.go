package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/config"
	"github.com/dd0wney/cluso-kvclient/pkg/journal"
	"github.com/dd0wney/cluso-kvclient/pkg/kv"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/ops"
)

var (
	configPath = flag.String("config", "", "Client config file (or set KVCLIENT_CONFIG)")
	seeds      = flag.String("seeds", "", "Comma-separated seed addresses, overriding the config")
	listen     = flag.String("listen", "", "Ops listen address, overriding the config")
)

func main() {
	flag.Parse()

	if *configPath == "" {
		*configPath = os.Getenv("KVCLIENT_CONFIG")
	}
	if *seeds == "" {
		*seeds = os.Getenv("KVCLIENT_SEEDS")
	}

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	} else {
		cfg = config.DefaultConfig()
	}
	if *seeds != "" {
		cfg.Cluster.Seeds = strings.Split(*seeds, ",")
	}
	if *listen != "" {
		cfg.Ops.Listen = *listen
	}
	if cfg.Ops.Listen == "" {
		cfg.Ops.Listen = ":9090"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	logging.SetDefaultLogger(logger)

	jnl := journal.New(cfg.Journal.BufferSize)
	if cfg.Journal.DatabaseURL != "" {
		sinkCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		sink, err := journal.NewPGSink(sinkCtx, cfg.Journal.DatabaseURL)
		cancel()
		if err != nil {
			logger.Warn("postgres journal sink unavailable, keeping events in memory only",
				logging.Error(err))
		} else {
			defer sink.Close()
			jnl.SetSink(sink)
			logger.Info("journal events mirrored to postgres")
		}
	}
	defer jnl.Close()

	opts, err := kv.FromConfig(&cfg)
	if err != nil {
		log.Fatalf("Invalid client options: %v", err)
	}
	opts.EventSink = jnl
	opts.Observer = jnl
	opts.Logger = logger

	client, err := kv.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open client: %v", err)
	}
	defer client.Close()

	// Discover before serving. A down cluster is not fatal: readiness
	// stays red until the first refresh lands.
	discoverCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Refresh(discoverCtx); err != nil {
		logger.Warn("initial discovery failed", logging.Error(err))
	}
	cancel()

	srv := ops.NewServer(ops.Config{
		Listen:         cfg.Ops.Listen,
		StaleAfter:     time.Minute,
		PoolMaxPerNode: cfg.Pool.MaxPerNode,
	}, client, jnl)
	srv.SetLogger(logger.With(logging.Component("ops")))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("ops server error", logging.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server forced to shut down", logging.Error(err))
	}

	logger.Info("exited")
}
