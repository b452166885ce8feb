// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

// Package rendezvous implements a proof of presence handshake network: two
// participants who independently submit matching requests naming each other
// within a short time window become permanently connected.
package rendezvous

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rendezvous/go-rendezvous/params"
	"github.com/rendezvous/go-rendezvous/storage"
)

// Config contains the tunables of a rendezvous backend. The zero value is a
// valid configuration using the default matching window and the system clock.
type Config struct {
	Window uint64           // Matching window in seconds (0 = params.HandshakeWindow)
	Outbox bool             // Whether to record matches for the downstream feed
	Clock  func() time.Time // Environment clock to stamp requests with (nil = time.Now)
	Logger log.Logger       // Logger to allow injecting context (nil = root logger)
}

// Backend is the handshake matching engine. It owns the pending and connection
// relations in the injected database and applies every mutating invocation one
// at a time, in the order the writer lock is acquired.
type Backend struct {
	database storage.Database // Key-value store holding both relations
	window   uint64           // Maximum seconds between two matching requests
	outbox   bool             // Whether matches are recorded for the feed
	clock    func() time.Time // Clock to stamp API invocations with
	sequence uint64           // Last outbox sequence number assigned

	logger log.Logger
	lock   sync.RWMutex // Single writer lock serializing invocations
}

// NewBackend creates a handshake matching engine on top of a database. The
// backend takes ownership of the database and closes it on shutdown.
func NewBackend(database storage.Database, config Config) (*Backend, error) {
	backend := &Backend{
		database: database,
		window:   config.Window,
		outbox:   config.Outbox,
		clock:    config.Clock,
		logger:   config.Logger,
	}
	if backend.window == 0 {
		backend.window = params.HandshakeWindow
	}
	if backend.clock == nil {
		backend.clock = time.Now
	}
	if backend.logger == nil {
		backend.logger = log.Root()
	}
	// Resume the outbox sequence from where a previous run left it
	switch blob, err := database.Get(dbOutboxSequenceKey); err {
	case storage.ErrNotFound:
	case nil:
		if len(blob) != 8 {
			return nil, errCorruptSequence
		}
		backend.sequence = binary.BigEndian.Uint64(blob)
	default:
		return nil, err
	}
	backend.logger.Info("Created rendezvous backend", "window", backend.window, "outbox", backend.outbox, "sequence", backend.sequence)
	return backend, nil
}

// Close tears down the backend. It's irreversible, it cannot be used afterwards.
func (b *Backend) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.database == nil {
		return nil
	}
	err := b.database.Close()
	b.database = nil

	return err
}

// Now returns the environment clock in unix seconds, used to stamp handshake
// requests arriving through the APIs.
func (b *Backend) Now() uint64 {
	return uint64(b.clock().Unix())
}

// Window returns the matching window in seconds.
func (b *Backend) Window() uint64 {
	return b.window
}
