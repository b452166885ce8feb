// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package rendezvous

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rendezvous/go-rendezvous/account"
	"github.com/rendezvous/go-rendezvous/storage"
)

// newTestBackend creates a rendezvous backend on top of an in-memory database.
func newTestBackend(t *testing.T, config Config) *Backend {
	t.Helper()

	backend, err := NewBackend(storage.NewMemoryDB(), config)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

// newTestAccounts creates a batch of random accounts.
func newTestAccounts(t *testing.T, n int) []account.Address {
	t.Helper()

	addrs := make([]account.Address, n)
	for i := 0; i < n; i++ {
		key, err := account.GenerateKey()
		if err != nil {
			t.Fatalf("failed to generate account: %v", err)
		}
		addrs[i] = key.Address()
	}
	return addrs
}

// submit runs a handshake request and fails the test on error.
func submit(t *testing.T, backend *Backend, caller, target account.Address, commitment []byte, now uint64) bool {
	t.Helper()

	matched, err := backend.SubmitHandshake(caller, target, commitment, now)
	if err != nil {
		t.Fatalf("failed to submit handshake: %v", err)
	}
	return matched
}

// checkConnections ensures an account's connection list is exactly the expected one.
func checkConnections(t *testing.T, backend *Backend, addr account.Address, want ...account.Address) {
	t.Helper()

	have, err := backend.Connections(addr)
	if err != nil {
		t.Fatalf("failed to retrieve connections: %v", err)
	}
	if have == nil {
		t.Fatalf("connection list is nil")
	}
	if len(have) != len(want) {
		t.Fatalf("connection count mismatch: have %d, want %d", len(have), len(want))
	}
	for i := range want {
		if have[i] != want[i] {
			t.Errorf("connection %d mismatch: have %v, want %v", i, have[i], want[i])
		}
	}
}

// Tests the canonical request-match-replay scenario.
func TestHandshakeScenario(t *testing.T) {
	backend := newTestBackend(t, Config{Window: 60})
	addrs := newTestAccounts(t, 2)
	a, b := addrs[0], addrs[1]

	if submit(t, backend, a, b, []byte{0xab, 0xcd}, 1000) {
		t.Fatalf("first request matched")
	}
	if !submit(t, backend, b, a, []byte{0xab, 0xcd}, 1050) {
		t.Fatalf("mirrored request failed to match")
	}
	checkConnections(t, backend, a, b)
	checkConnections(t, backend, b, a)

	if _, err := backend.Pending(a); err != ErrPendingNotFound {
		t.Fatalf("matched request not consumed: have %v, want %v", err, ErrPendingNotFound)
	}
	if _, err := backend.Pending(b); err != ErrPendingNotFound {
		t.Fatalf("completing request recorded: have %v, want %v", err, ErrPendingNotFound)
	}
	// Replaying the completing request must not match, only record a new request
	if submit(t, backend, b, a, []byte{0xab, 0xcd}, 1060) {
		t.Fatalf("replayed request matched")
	}
	pend, err := backend.Pending(b)
	if err != nil {
		t.Fatalf("replayed request not recorded: %v", err)
	}
	if pend.Target != a || !bytes.Equal(pend.Commitment, []byte{0xab, 0xcd}) || pend.SubmittedAt != 1060 {
		t.Errorf("pending request mismatch: have %+v", pend)
	}
	checkConnections(t, backend, a, b)
	checkConnections(t, backend, b, a)
}

// Tests that the matching window is inclusive and symmetric in time.
func TestHandshakeWindow(t *testing.T) {
	tests := []struct {
		first  uint64
		second uint64
		match  bool
	}{
		{1000, 1000, true},
		{1000, 1060, true},
		{1000, 1061, false},
		{1060, 1000, true},
		{1061, 1000, false},
		{0, 60, true},
		{0, 1 << 63, false},
	}
	for i, tt := range tests {
		backend := newTestBackend(t, Config{Window: 60})
		addrs := newTestAccounts(t, 2)

		if submit(t, backend, addrs[0], addrs[1], []byte("here"), tt.first) {
			t.Fatalf("test %d: first request matched", i)
		}
		if matched := submit(t, backend, addrs[1], addrs[0], []byte("here"), tt.second); matched != tt.match {
			t.Errorf("test %d: match mismatch: have %v, want %v", i, matched, tt.match)
		}
		if tt.match {
			checkConnections(t, backend, addrs[0], addrs[1])
			checkConnections(t, backend, addrs[1], addrs[0])
		} else {
			checkConnections(t, backend, addrs[0])
			checkConnections(t, backend, addrs[1])
		}
	}
}

// Tests that the default window is used if none is configured.
func TestHandshakeDefaultWindow(t *testing.T) {
	backend := newTestBackend(t, Config{})
	if backend.Window() != 60 {
		t.Fatalf("default window mismatch: have %d, want %d", backend.Window(), 60)
	}
}

// Tests that handshaking with oneself is rejected without touching any state.
func TestHandshakeSelf(t *testing.T) {
	backend := newTestBackend(t, Config{})
	addrs := newTestAccounts(t, 2)
	a, b := addrs[0], addrs[1]

	// Create some state to ensure it's left alone
	submit(t, backend, a, b, []byte{1}, 1000)

	if _, err := backend.SubmitHandshake(a, a, []byte{1}, 1001); err != ErrInvalidRequest {
		t.Fatalf("self handshake error mismatch: have %v, want %v", err, ErrInvalidRequest)
	}
	pend, err := backend.Pending(a)
	if err != nil {
		t.Fatalf("pending request lost: %v", err)
	}
	if pend.Target != b || pend.SubmittedAt != 1000 {
		t.Errorf("pending request modified: have %+v", pend)
	}
	checkConnections(t, backend, a)

	// A fresh account must not gain a pending record either
	if _, err := backend.SubmitHandshake(b, b, []byte{1}, 1001); err != ErrInvalidRequest {
		t.Fatalf("self handshake error mismatch: have %v, want %v", err, ErrInvalidRequest)
	}
	if _, err := backend.Pending(b); err != ErrPendingNotFound {
		t.Fatalf("self handshake recorded: have %v, want %v", err, ErrPendingNotFound)
	}
}

// Tests that commitments must match byte for byte.
func TestHandshakeCommitmentMismatch(t *testing.T) {
	tests := []struct {
		first  []byte
		second []byte
		match  bool
	}{
		{[]byte{0xab, 0xcd}, []byte{0xab, 0xcd}, true},
		{[]byte{0xab, 0xcd}, []byte{0xab}, false},
		{[]byte{0xab}, []byte{0xab, 0xcd}, false},
		{[]byte{0xab, 0xcd}, []byte{0xcd, 0xab}, false},
		{[]byte{}, []byte{}, true},
		{nil, []byte{}, true},
	}
	for i, tt := range tests {
		backend := newTestBackend(t, Config{})
		addrs := newTestAccounts(t, 2)

		submit(t, backend, addrs[0], addrs[1], tt.first, 1000)
		if matched := submit(t, backend, addrs[1], addrs[0], tt.second, 1001); matched != tt.match {
			t.Errorf("test %d: match mismatch: have %v, want %v", i, matched, tt.match)
		}
	}
}

// Tests that a counterparty request addressing someone else is not matched and
// is left untouched.
func TestHandshakeWrongTarget(t *testing.T) {
	backend := newTestBackend(t, Config{})
	addrs := newTestAccounts(t, 3)
	a, b, c := addrs[0], addrs[1], addrs[2]

	submit(t, backend, b, c, []byte{1}, 1000)
	if submit(t, backend, a, b, []byte{1}, 1001) {
		t.Fatalf("request matched a counterparty awaiting someone else")
	}
	pend, err := backend.Pending(b)
	if err != nil {
		t.Fatalf("counterparty request lost: %v", err)
	}
	if pend.Target != c {
		t.Errorf("counterparty request modified: have %v, want %v", pend.Target, c)
	}
	if pend, _ := backend.Pending(a); pend == nil || pend.Target != b {
		t.Errorf("unmatched request not recorded: have %+v", pend)
	}
}

// Tests that a new request replaces the caller's previous one.
func TestHandshakeOverwrite(t *testing.T) {
	backend := newTestBackend(t, Config{})
	addrs := newTestAccounts(t, 3)
	a, b, c := addrs[0], addrs[1], addrs[2]

	submit(t, backend, a, b, []byte{1}, 1000)
	submit(t, backend, a, c, []byte{2}, 1010)

	pend, err := backend.Pending(a)
	if err != nil {
		t.Fatalf("failed to retrieve pending request: %v", err)
	}
	if pend.Target != c || !bytes.Equal(pend.Commitment, []byte{2}) || pend.SubmittedAt != 1010 {
		t.Fatalf("pending request not replaced: have %+v", pend)
	}
	if submit(t, backend, b, a, []byte{1}, 1000) {
		t.Fatalf("superseded request matched")
	}
	checkConnections(t, backend, a)
	checkConnections(t, backend, b)
}

// Tests that expired requests are not garbage collected by others' calls.
func TestHandshakeExpiredLeftInert(t *testing.T) {
	backend := newTestBackend(t, Config{Window: 60})
	addrs := newTestAccounts(t, 3)
	a, b, c := addrs[0], addrs[1], addrs[2]

	submit(t, backend, a, b, []byte{1}, 1000)
	submit(t, backend, c, a, []byte{1}, 5000)
	if submit(t, backend, b, a, []byte{1}, 5000) {
		t.Fatalf("expired request matched")
	}
	if pend, err := backend.Pending(a); err != nil || pend.SubmittedAt != 1000 {
		t.Fatalf("expired request modified: have %+v/%v", pend, err)
	}
}

// Tests that repeated matches between the same pair never duplicate links and
// that connection lists keep their completion order.
func TestHandshakeIdempotentLinks(t *testing.T) {
	backend := newTestBackend(t, Config{})
	addrs := newTestAccounts(t, 3)
	a, b, c := addrs[0], addrs[1], addrs[2]

	for i := 0; i < 3; i++ {
		now := uint64(1000 + 100*i)
		submit(t, backend, a, b, []byte{byte(i)}, now)
		if !submit(t, backend, b, a, []byte{byte(i)}, now+1) {
			t.Fatalf("round %d: handshake failed to match", i)
		}
	}
	submit(t, backend, c, a, []byte{9}, 2000)
	if !submit(t, backend, a, c, []byte{9}, 2001) {
		t.Fatalf("second peer failed to match")
	}
	checkConnections(t, backend, a, b, c)
	checkConnections(t, backend, b, a)
	checkConnections(t, backend, c, a)
}

// Tests that an unknown account has an empty, non-nil connection list.
func TestConnectionsEmpty(t *testing.T) {
	backend := newTestBackend(t, Config{})
	checkConnections(t, backend, newTestAccounts(t, 1)[0])
}

// Tests that the environment clock is exposed in unix seconds.
func TestBackendNow(t *testing.T) {
	backend := newTestBackend(t, Config{
		Clock: func() time.Time { return time.Unix(1234, 999) },
	})
	if now := backend.Now(); now != 1234 {
		t.Fatalf("clock mismatch: have %d, want %d", now, 1234)
	}
}

// Tests that a closed backend refuses service.
func TestBackendClosed(t *testing.T) {
	backend, err := NewBackend(storage.NewMemoryDB(), Config{})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("failed to close backend: %v", err)
	}
	addrs := newTestAccounts(t, 2)
	if _, err := backend.SubmitHandshake(addrs[0], addrs[1], nil, 0); err != errBackendClosed {
		t.Errorf("submit error mismatch: have %v, want %v", err, errBackendClosed)
	}
	if _, err := backend.Connections(addrs[0]); err != errBackendClosed {
		t.Errorf("connections error mismatch: have %v, want %v", err, errBackendClosed)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("double close failed: %v", err)
	}
}

// failingDB is a database whose batches always fail to commit.
type failingDB struct {
	storage.Database
}

var errFailingBatch = errors.New("batch commit failed")

func (db *failingDB) NewBatch() storage.Batch {
	return &failingBatch{Batch: db.Database.NewBatch()}
}

type failingBatch struct {
	storage.Batch
}

func (b *failingBatch) Write() error { return errFailingBatch }

// Tests that a match failing to commit leaves no partial state behind.
func TestHandshakeAtomicity(t *testing.T) {
	backend, err := NewBackend(&failingDB{storage.NewMemoryDB()}, Config{Outbox: true})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	defer backend.Close()

	addrs := newTestAccounts(t, 2)
	a, b := addrs[0], addrs[1]

	submit(t, backend, a, b, []byte{1}, 1000)
	if _, err := backend.SubmitHandshake(b, a, []byte{1}, 1001); err != errFailingBatch {
		t.Fatalf("match error mismatch: have %v, want %v", err, errFailingBatch)
	}
	checkConnections(t, backend, a)
	checkConnections(t, backend, b)

	if pend, err := backend.Pending(a); err != nil || pend.Target != b {
		t.Fatalf("counterparty request consumed: have %+v/%v", pend, err)
	}
	if _, err := backend.Pending(b); err != ErrPendingNotFound {
		t.Fatalf("failed match recorded a request: have %v, want %v", err, ErrPendingNotFound)
	}
	if events, err := backend.OutboxEvents(0); err != nil || len(events) != 0 {
		t.Fatalf("failed match reached the outbox: have %d/%v", len(events), err)
	}
	if backend.sequence != 0 {
		t.Fatalf("sequence advanced: have %d, want %d", backend.sequence, 0)
	}
}
