// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rendezvous/go-rendezvous/params"
	"gopkg.in/yaml.v3"
)

// Config holds the rendezvous server configuration.
type Config struct {
	DataDir   string `yaml:"datadir"`   // Data directory for the database and keys
	Storage   string `yaml:"storage"`   // Database backend: leveldb, pebble, sqlite or memory
	APIPort   int    `yaml:"apiport"`   // TCP port of the REST API (0 = random)
	GRPCPort  int    `yaml:"grpcport"`  // TCP port of the gRPC API (-1 = disabled, 0 = random)
	Verbosity int    `yaml:"verbosity"` // Log level to run with
	Window    uint64 `yaml:"window"`    // Handshake matching window in seconds

	Tor  TorConfig  `yaml:"tor"`
	Feed FeedConfig `yaml:"feed"`
}

// TorConfig holds the onion service settings.
type TorConfig struct {
	Enabled  bool `yaml:"enabled"`  // Whether to publish the REST API as an onion service
	Embedded bool `yaml:"embedded"` // Whether to run the statically linked Tor instead of the system one
	Port     int  `yaml:"port"`     // Virtual port of the onion service
}

// FeedConfig holds the match feed settings.
type FeedConfig struct {
	Kind    string   `yaml:"kind"`    // Publisher to deliver matches to: none, log, kafka or nats
	Brokers []string `yaml:"brokers"` // Kafka brokers
	Topic   string   `yaml:"topic"`   // Kafka topic
	URL     string   `yaml:"url"`     // NATS server URL
	Subject string   `yaml:"subject"` // NATS subject
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:   ".",
		Storage:   "leveldb",
		APIPort:   4444,
		GRPCPort:  -1,
		Verbosity: int(log.LvlInfo),
		Window:    params.HandshakeWindow,
		Tor: TorConfig{
			Port: 80,
		},
		Feed: FeedConfig{
			Kind:    "none",
			Brokers: []string{"localhost:9092"},
			Topic:   "rendezvous.matches",
			URL:     "nats://localhost:4222",
			Subject: "rendezvous.matches",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults. An
// empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, cfg.validate()
}

// validate checks the enumerated settings for typos.
func (cfg *Config) validate() error {
	switch cfg.Storage {
	case "leveldb", "pebble", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
	if cfg.Window == 0 {
		return fmt.Errorf("handshake window must be positive")
	}
	switch cfg.Feed.Kind {
	case "", "none", "log", "kafka", "nats":
	default:
		return fmt.Errorf("unknown feed publisher %q", cfg.Feed.Kind)
	}
	return nil
}
