// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package feed

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
)

// logPublisher dumps match events into the log, useful during development.
type logPublisher struct {
	logger log.Logger
}

// NewLogPublisher creates a publisher that logs every event at info level.
func NewLogPublisher() Publisher {
	return &logPublisher{logger: log.New("feed", "log")}
}

func (p *logPublisher) Publish(ctx context.Context, key []byte, payload []byte) error {
	p.logger.Info("Handshake matched", "seq", string(key), "event", string(payload))
	return nil
}

func (p *logPublisher) Close() error { return nil }
