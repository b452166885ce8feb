// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

// Package feed delivers completed handshakes to downstream operator systems.
//
// Matches are staged into an outbox by the backend atomically with the
// connections they create. A Broadcaster drains that outbox into a Publisher,
// acknowledging each event only after it was delivered, so delivery is at
// least once and in sequence order.
package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	rendezvous "github.com/rendezvous/go-rendezvous"
	"github.com/rendezvous/go-rendezvous/params"
)

// Outbox is the source of undelivered match events, implemented by the backend.
type Outbox interface {
	OutboxEvents(limit int) ([]*rendezvous.MatchEvent, error)
	AckOutboxEvent(seq uint64) error
}

// Publisher is a message sink capable of delivering a single keyed payload.
type Publisher interface {
	Publish(ctx context.Context, key []byte, payload []byte) error
	Close() error
}

// Broadcaster periodically moves match events from an outbox into a publisher.
type Broadcaster struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	limit     int

	logger log.Logger
}

// NewBroadcaster creates an outbox drainer, flushing on the default interval.
func NewBroadcaster(outbox Outbox, publisher Publisher) *Broadcaster {
	return &Broadcaster{
		outbox:    outbox,
		publisher: publisher,
		interval:  params.FeedFlushInterval,
		limit:     params.FeedBatchLimit,
		logger:    log.New("feed", "broadcaster"),
	}
}

// Run drains the outbox until the context is cancelled. Failed deliveries are
// retried on the next tick.
func (b *Broadcaster) Run(ctx context.Context) {
	b.logger.Info("Match feed started", "interval", b.interval)
	defer b.logger.Info("Match feed stopped")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if _, err := b.Flush(ctx); err != nil && ctx.Err() == nil {
			b.logger.Warn("Failed to flush match feed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush delivers a single batch of pending events, stopping at the first
// failure to preserve ordering. It returns the number of events delivered.
func (b *Broadcaster) Flush(ctx context.Context) (int, error) {
	events, err := b.outbox.OutboxEvents(b.limit)
	if err != nil {
		return 0, err
	}
	for i, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return i, err
		}
		key := []byte(strconv.FormatUint(event.Sequence, 10))
		if err := b.publisher.Publish(ctx, key, payload); err != nil {
			return i, err
		}
		if err := b.outbox.AckOutboxEvent(event.Sequence); err != nil {
			return i, err
		}
		b.logger.Debug("Delivered match event", "seq", event.Sequence)
	}
	return len(events), nil
}
