// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package rendezvous

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/rendezvous/go-rendezvous/account"
	"github.com/rendezvous/go-rendezvous/storage"
)

var (
	// dbPendingPrefix is the database key for storing an account's outstanding
	// handshake request.
	dbPendingPrefix = []byte("p:")
)

var (
	// ErrPendingNotFound is returned if an account has no outstanding request.
	ErrPendingNotFound = errors.New("pending request not found")

	// errBackendClosed is returned if the backend is used after shutdown.
	errBackendClosed = errors.New("backend closed")
)

// Pending is an outstanding handshake request, waiting for the target to submit
// the mirrored request.
type Pending struct {
	Target      account.Address // Account the request wants to connect with
	Commitment  []byte          // Opaque proof both parties must agree on
	SubmittedAt uint64          // Environment time the request was submitted
}

// pendingRecord is the database representation of a pending request.
type pendingRecord struct {
	_           struct{} `cbor:",toarray"`
	Target      []byte
	Commitment  []byte
	SubmittedAt uint64
}

// pendingKey returns the database key of an account's pending request.
func pendingKey(addr account.Address) []byte {
	return append(append([]byte{}, dbPendingPrefix...), addr[:]...)
}

// encodePending serializes a pending request for storage.
func encodePending(pend *Pending) ([]byte, error) {
	return cbor.Marshal(&pendingRecord{
		Target:      pend.Target.Bytes(),
		Commitment:  pend.Commitment,
		SubmittedAt: pend.SubmittedAt,
	})
}

// Pending retrieves the outstanding handshake request of an account, if any.
// Requests are never expired, an outdated one simply fails to match.
func (b *Backend) Pending(caller account.Address) (*Pending, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if b.database == nil {
		return nil, errBackendClosed
	}
	return b.pending(caller)
}

// pending retrieves an account's pending request without locking.
func (b *Backend) pending(addr account.Address) (*Pending, error) {
	blob, err := b.database.Get(pendingKey(addr))
	switch err {
	case storage.ErrNotFound:
		return nil, ErrPendingNotFound
	case nil:
	default:
		return nil, err
	}
	rec := new(pendingRecord)
	if err := cbor.Unmarshal(blob, rec); err != nil {
		return nil, err
	}
	target, err := account.BytesToAddress(rec.Target)
	if err != nil {
		return nil, err
	}
	commitment := rec.Commitment
	if commitment == nil {
		commitment = []byte{}
	}
	return &Pending{
		Target:      target,
		Commitment:  commitment,
		SubmittedAt: rec.SubmittedAt,
	}, nil
}
