// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

// Package bridge exposes a rendezvous node to gomobile, so a phone can act as
// the meeting point for the devices around it.
package bridge

import (
	"path/filepath"
	"strings"

	"github.com/ipsn/go-ghostbridge"
	rendezvous "github.com/rendezvous/go-rendezvous"
	"github.com/rendezvous/go-rendezvous/account"
	"github.com/rendezvous/go-rendezvous/rest"
	"github.com/rendezvous/go-rendezvous/storage"
)

// Bridge is a tiny struct (re)definition so gomobile will export all the built
// in methods of the underlying ghostbridge.Bridge struct.
type Bridge struct {
	*ghostbridge.Bridge
	backend *rendezvous.Backend
}

// NewBridge creates an instance of the ghost bridge, typed such as gomobile to
// generate a Bridge constructor out of it.
func NewBridge(datadir string) (*Bridge, error) {
	db, err := storage.NewLevelDB(filepath.Join(datadir, "ldb"))
	if err != nil {
		return nil, err
	}
	backend, err := rendezvous.NewBackend(db, rendezvous.Config{})
	if err != nil {
		db.Close()
		return nil, err
	}
	bridge, err := ghostbridge.New(rest.New(backend))
	if err != nil {
		backend.Close()
		return nil, err
	}
	return &Bridge{
		Bridge:  bridge,
		backend: backend,
	}, nil
}

// Connections is a pass-through method to allow directly calling Backend.Connections
// via the mobile library. Gomobile cannot export slices of arrays, so the list is
// returned as newline separated hex addresses.
func (b *Bridge) Connections(address string) (string, error) {
	addr, err := account.HexToAddress(address)
	if err != nil {
		return "", err
	}
	conns, err := b.backend.Connections(addr)
	if err != nil {
		return "", err
	}
	list := make([]string, len(conns))
	for i, conn := range conns {
		list[i] = conn.String()
	}
	return strings.Join(list, "\n"), nil
}

// Window returns the matching window of the node in seconds.
func (b *Bridge) Window() int64 {
	return int64(b.backend.Window())
}

// Close tears down the rendezvous node.
func (b *Bridge) Close() error {
	return b.backend.Close()
}
