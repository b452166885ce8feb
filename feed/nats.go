// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/nats-io/nats.go"
)

// natsPublisher delivers match events onto a NATS subject.
type natsPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to a NATS server, reconnecting forever on failure.
func NewNATSPublisher(url string, subject string) (Publisher, error) {
	logger := log.New("feed", "nats", "subject", subject)

	conn, err := nats.Connect(url,
		nats.Name("rendezvous"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &natsPublisher{conn: conn, subject: subject}, nil
}

// Publish sends a single event and waits for the server to process it, so an
// acknowledged event has at least reached the server.
func (p *natsPublisher) Publish(ctx context.Context, key []byte, payload []byte) error {
	msg := nats.NewMsg(p.subject)
	msg.Header.Set("Rendezvous-Sequence", string(key))
	msg.Data = payload

	if err := p.conn.PublishMsg(msg); err != nil {
		return err
	}
	return p.conn.FlushWithContext(ctx)
}

// Close drains and closes the connection.
func (p *natsPublisher) Close() error {
	return p.conn.Drain()
}
