// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package rendezvous

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/rendezvous/go-rendezvous/account"
	"github.com/rendezvous/go-rendezvous/storage"
)

var (
	// dbConnectionPrefix is the database key for storing an account's connections.
	dbConnectionPrefix = []byte("c:")
)

// connectionKey returns the database key of an account's connection list.
func connectionKey(addr account.Address) []byte {
	return append(append([]byte{}, dbConnectionPrefix...), addr[:]...)
}

// Connections returns all the accounts the caller completed a handshake with,
// in the order the handshakes completed. An account without any connections
// gets an empty list, never an error.
func (b *Backend) Connections(caller account.Address) ([]account.Address, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if b.database == nil {
		return nil, errBackendClosed
	}
	return b.connections(caller)
}

// connections retrieves an account's connection list without locking.
func (b *Backend) connections(addr account.Address) ([]account.Address, error) {
	blob, err := b.database.Get(connectionKey(addr))
	switch err {
	case storage.ErrNotFound:
		return []account.Address{}, nil
	case nil:
	default:
		return nil, err
	}
	var raw [][]byte
	if err := cbor.Unmarshal(blob, &raw); err != nil {
		return nil, err
	}
	conns := make([]account.Address, 0, len(raw))
	for _, peer := range raw {
		addr, err := account.BytesToAddress(peer)
		if err != nil {
			return nil, err
		}
		conns = append(conns, addr)
	}
	return conns, nil
}

// link stages appending peer to the connection list of addr, unless it's already
// present. The caller must hold the write lock.
func (b *Backend) link(batch storage.Batch, addr, peer account.Address) error {
	conns, err := b.connections(addr)
	if err != nil {
		return err
	}
	for _, conn := range conns {
		if conn == peer {
			return nil
		}
	}
	raw := make([][]byte, 0, len(conns)+1)
	for _, conn := range conns {
		raw = append(raw, conn.Bytes())
	}
	raw = append(raw, peer.Bytes())

	blob, err := cbor.Marshal(raw)
	if err != nil {
		return err
	}
	return batch.Put(connectionKey(addr), blob)
}
