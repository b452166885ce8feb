// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package rendezvous

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rendezvous/go-rendezvous/storage"
)

// Tests that matches are recorded into the outbox only when enabled.
func TestOutboxDisabled(t *testing.T) {
	backend := newTestBackend(t, Config{})
	addrs := newTestAccounts(t, 2)

	submit(t, backend, addrs[0], addrs[1], []byte{1}, 1000)
	submit(t, backend, addrs[1], addrs[0], []byte{1}, 1000)

	if events, err := backend.OutboxEvents(0); err != nil || len(events) != 0 {
		t.Fatalf("outbox populated while disabled: have %d/%v", len(events), err)
	}
}

// Tests that matches are queued in order, can be paged and acknowledged.
func TestOutboxEvents(t *testing.T) {
	backend := newTestBackend(t, Config{Outbox: true})
	addrs := newTestAccounts(t, 4)

	submit(t, backend, addrs[0], addrs[1], []byte{1}, 1000)
	submit(t, backend, addrs[2], addrs[3], []byte{2}, 1000)
	submit(t, backend, addrs[1], addrs[0], []byte{1}, 1005)
	submit(t, backend, addrs[3], addrs[2], []byte{2}, 1010)

	events, err := backend.OutboxEvents(0)
	if err != nil {
		t.Fatalf("failed to retrieve outbox: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("event count mismatch: have %d, want %d", len(events), 2)
	}
	if ev := events[0]; ev.Sequence != 1 || ev.Initiator != addrs[0] || ev.Responder != addrs[1] || !bytes.Equal(ev.Commitment, []byte{1}) || ev.Time != 1005 {
		t.Errorf("first event mismatch: have %+v", ev)
	}
	if ev := events[1]; ev.Sequence != 2 || ev.Initiator != addrs[2] || ev.Responder != addrs[3] || ev.Time != 1010 {
		t.Errorf("second event mismatch: have %+v", ev)
	}
	if events, _ := backend.OutboxEvents(1); len(events) != 1 || events[0].Sequence != 1 {
		t.Errorf("limited outbox mismatch: have %v", events)
	}
	if err := backend.AckOutboxEvent(1); err != nil {
		t.Fatalf("failed to ack event: %v", err)
	}
	if events, _ := backend.OutboxEvents(0); len(events) != 1 || events[0].Sequence != 2 {
		t.Errorf("acked outbox mismatch: have %v", events)
	}
}

// Tests that the outbox sequence survives a restart.
func TestOutboxSequencePersistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	db, err := storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	backend, err := NewBackend(db, Config{Outbox: true})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	addrs := newTestAccounts(t, 2)
	submit(t, backend, addrs[0], addrs[1], []byte{1}, 1000)
	submit(t, backend, addrs[1], addrs[0], []byte{1}, 1000)
	backend.Close()

	if db, err = storage.NewLevelDB(dir); err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	if backend, err = NewBackend(db, Config{Outbox: true}); err != nil {
		t.Fatalf("failed to recreate backend: %v", err)
	}
	defer backend.Close()

	submit(t, backend, addrs[0], addrs[1], []byte{2}, 2000)
	submit(t, backend, addrs[1], addrs[0], []byte{2}, 2000)

	events, err := backend.OutboxEvents(0)
	if err != nil {
		t.Fatalf("failed to retrieve outbox: %v", err)
	}
	if len(events) != 2 || events[0].Sequence != 1 || events[1].Sequence != 2 {
		t.Fatalf("sequence not resumed: have %v", events)
	}
	checkConnections(t, backend, addrs[0], addrs[1])
}
