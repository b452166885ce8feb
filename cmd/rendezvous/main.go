// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

// This file contains the rendezvous server, matching the handshake requests of
// participants submitted through the REST and gRPC APIs.

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	rendezvous "github.com/rendezvous/go-rendezvous"
	"github.com/rendezvous/go-rendezvous/feed"
	"github.com/rendezvous/go-rendezvous/rest"
	"github.com/rendezvous/go-rendezvous/rpc"
	"github.com/rendezvous/go-rendezvous/storage"
	"github.com/rendezvous/go-rendezvous/tornet"
)

var (
	configFlag    = flag.String("config", "", "YAML configuration file (flags override it)")
	datadirFlag   = flag.String("datadir", ".", "Data directory for the backend")
	storageFlag   = flag.String("storage", "leveldb", "Database backend (leveldb, pebble, sqlite, memory)")
	apiportFlag   = flag.Int("apiport", 4444, "TCP port to launch the API server on (0 = random)")
	grpcportFlag  = flag.Int("grpcport", -1, "TCP port to launch the gRPC server on (-1 = disabled)")
	verbosityFlag = flag.Int("verbosity", int(log.LvlInfo), "Log level to run with")
	torFlag       = flag.Bool("tor", false, "Publish the API as a Tor onion service")
	embedTorFlag  = flag.Bool("tor.embedded", false, "Run the statically linked Tor instead of the system one")
	feedFlag      = flag.String("feed", "none", "Match feed publisher (none, log, kafka, nats)")
)

func main() {
	flag.Parse()

	cfg, err := LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyFlags(cfg)

	// Enable colored terminal logging
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(cfg.Verbosity), log.StreamHandler(os.Stderr, log.TerminalFormat(true))))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Crit("Rendezvous server failed", "err", err)
	}
}

// applyFlags overrides the configuration with any explicitly set flag.
func applyFlags(cfg *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "datadir":
			cfg.DataDir = *datadirFlag
		case "storage":
			cfg.Storage = *storageFlag
		case "apiport":
			cfg.APIPort = *apiportFlag
		case "grpcport":
			cfg.GRPCPort = *grpcportFlag
		case "verbosity":
			cfg.Verbosity = *verbosityFlag
		case "tor":
			cfg.Tor.Enabled = *torFlag
		case "tor.embedded":
			cfg.Tor.Embedded = *embedTorFlag
		case "feed":
			cfg.Feed.Kind = *feedFlag
		}
	})
}

// openDatabase opens the configured storage backend within the data directory.
func openDatabase(cfg *Config) (storage.Database, error) {
	switch cfg.Storage {
	case "leveldb":
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "ldb"))
	case "pebble":
		return storage.NewPebbleDB(filepath.Join(cfg.DataDir, "pebble"))
	case "sqlite":
		return storage.NewSQLiteDB(filepath.Join(cfg.DataDir, "rendezvous.sqlite"))
	case "memory":
		return storage.NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// openPublisher creates the configured match feed publisher, or nil if the
// feed is disabled.
func openPublisher(cfg *Config) (feed.Publisher, error) {
	switch cfg.Feed.Kind {
	case "", "none":
		return nil, nil
	case "log":
		return feed.NewLogPublisher(), nil
	case "kafka":
		return feed.NewKafkaPublisher(cfg.Feed.Brokers, cfg.Feed.Topic)
	case "nats":
		return feed.NewNATSPublisher(cfg.Feed.URL, cfg.Feed.Subject)
	default:
		return nil, fmt.Errorf("unknown feed publisher %q", cfg.Feed.Kind)
	}
}

// run assembles a rendezvous node from the configuration and serves it until
// the context is cancelled.
func run(ctx context.Context, cfg *Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return err
	}
	// Create the matching engine on top of the chosen database
	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	backend, err := rendezvous.NewBackend(db, rendezvous.Config{Window: cfg.Window, Outbox: publisher != nil})
	if err != nil {
		db.Close()
		return err
	}
	defer backend.Close()

	// Expose the backend via REST, announcing the port for tooling
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", cfg.APIPort))
	if err != nil {
		return err
	}
	apiport := listener.Addr().(*net.TCPAddr).Port
	if err := os.WriteFile(filepath.Join(cfg.DataDir, "apiport"), []byte(strconv.Itoa(apiport)), 0600); err != nil {
		listener.Close()
		return err
	}
	handler := rest.New(backend)
	server := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(listener)
	defer server.Close()

	log.Info("REST API listening", "port", apiport)

	// Expose the backend via gRPC too if requested
	if cfg.GRPCPort >= 0 {
		listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", cfg.GRPCPort))
		if err != nil {
			return err
		}
		srv := rpc.NewServer(backend)
		go srv.Serve(listener)
		defer srv.Stop()

		log.Info("gRPC API listening", "port", listener.Addr().(*net.TCPAddr).Port)
	}
	// Publish the REST API as an onion service if requested
	if cfg.Tor.Enabled {
		key, err := tornet.LoadOnionKey(filepath.Join(cfg.DataDir, "onion.key"))
		if err != nil {
			return err
		}
		gateway, err := tornet.StartTor(ctx, cfg.DataDir, cfg.Tor.Embedded)
		if err != nil {
			return err
		}
		defer gateway.Close()

		service, err := tornet.Publish(ctx, gateway, key, cfg.Tor.Port, handler)
		if err != nil {
			return err
		}
		defer service.Close()
	}
	// Stream completed matches downstream if requested
	if publisher != nil {
		broadcaster := feed.NewBroadcaster(backend, publisher)

		done := make(chan struct{})
		go func() {
			broadcaster.Run(ctx)
			close(done)
		}()
		defer func() { <-done }()
	}
	<-ctx.Done()
	log.Info("Rendezvous server shutting down")
	return nil
}
