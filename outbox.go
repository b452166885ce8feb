// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package rendezvous

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fxamacker/cbor/v2"
	"github.com/rendezvous/go-rendezvous/account"
	"github.com/rendezvous/go-rendezvous/storage"
)

var (
	// dbOutboxPrefix is the database key prefix for storing matches not yet
	// delivered to the feed, suffixed by the big endian sequence number.
	dbOutboxPrefix = []byte("o:")

	// dbOutboxSequenceKey is the database key tracking the last outbox sequence.
	dbOutboxSequenceKey = []byte("m:seq")
)

// errCorruptSequence is returned if the persisted outbox sequence is unreadable.
var errCorruptSequence = errors.New("corrupt outbox sequence")

// MatchEvent is a completed handshake recorded for downstream consumers. It is
// written in the same batch as the connections it announces, so the feed can
// never observe a match that did not happen, nor miss one that did.
type MatchEvent struct {
	Sequence   uint64          `json:"sequence"`   // Monotonic outbox position
	Initiator  account.Address `json:"initiator"`  // Account whose request was pending
	Responder  account.Address `json:"responder"`  // Account whose request completed the match
	Commitment hexutil.Bytes   `json:"commitment"` // Commitment both parties agreed on
	Time       uint64          `json:"time"`       // Environment time of the completing request
}

// matchRecord is the database representation of a match event.
type matchRecord struct {
	_          struct{} `cbor:",toarray"`
	Initiator  []byte
	Responder  []byte
	Commitment []byte
	Time       uint64
}

// outboxKey returns the database key of an outbox entry.
func outboxKey(seq uint64) []byte {
	key := make([]byte, len(dbOutboxPrefix)+8)
	copy(key, dbOutboxPrefix)
	binary.BigEndian.PutUint64(key[len(dbOutboxPrefix):], seq)
	return key
}

// stageMatchEvent adds a match event and the bumped sequence counter to a batch.
func (b *Backend) stageMatchEvent(batch storage.Batch, event *MatchEvent) error {
	blob, err := cbor.Marshal(&matchRecord{
		Initiator:  event.Initiator.Bytes(),
		Responder:  event.Responder.Bytes(),
		Commitment: event.Commitment,
		Time:       event.Time,
	})
	if err != nil {
		return err
	}
	if err := batch.Put(outboxKey(event.Sequence), blob); err != nil {
		return err
	}
	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, event.Sequence)
	return batch.Put(dbOutboxSequenceKey, seq)
}

// OutboxEvents returns up to limit undelivered match events, oldest first.
func (b *Backend) OutboxEvents(limit int) ([]*MatchEvent, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if b.database == nil {
		return nil, errBackendClosed
	}
	it := b.database.NewIterator(dbOutboxPrefix)
	defer it.Release()

	var events []*MatchEvent
	for (limit <= 0 || len(events) < limit) && it.Next() {
		key := it.Key()
		if len(key) != len(dbOutboxPrefix)+8 {
			continue
		}
		rec := new(matchRecord)
		if err := cbor.Unmarshal(it.Value(), rec); err != nil {
			return nil, err
		}
		initiator, err := account.BytesToAddress(rec.Initiator)
		if err != nil {
			return nil, err
		}
		responder, err := account.BytesToAddress(rec.Responder)
		if err != nil {
			return nil, err
		}
		events = append(events, &MatchEvent{
			Sequence:   binary.BigEndian.Uint64(key[len(dbOutboxPrefix):]),
			Initiator:  initiator,
			Responder:  responder,
			Commitment: rec.Commitment,
			Time:       rec.Time,
		})
	}
	return events, it.Error()
}

// AckOutboxEvent drops a delivered match event from the outbox.
func (b *Backend) AckOutboxEvent(seq uint64) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.database == nil {
		return errBackendClosed
	}
	return b.database.Delete(outboxKey(seq))
}
