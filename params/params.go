// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

// Package params contains constants relevant to all subsystems.
package params

import "time"

const (
	// HandshakeWindow is the maximum number of seconds allowed between the two
	// halves of a handshake for them to be considered a match.
	HandshakeWindow = 60

	// MaxCommitmentSize is the largest commitment (location hash) accepted by
	// the public APIs. The engine itself does not care, but there's no point
	// letting callers stuff megabytes into the database.
	MaxCommitmentSize = 256
)

const (
	// AuthMaxSkew is the maximum difference between a signed request's timestamp
	// and the local clock before it is rejected as stale or replayed.
	AuthMaxSkew = 5 * time.Minute

	// AuthHeaderAccount is the header carrying the caller's account address.
	AuthHeaderAccount = "X-Rendezvous-Account"

	// AuthHeaderTimestamp is the header carrying the signing time in unix seconds.
	AuthHeaderTimestamp = "X-Rendezvous-Timestamp"

	// AuthHeaderSignature is the header carrying the hex request signature.
	AuthHeaderSignature = "X-Rendezvous-Signature"
)

const (
	// FeedFlushInterval is the time between two outbox scans of the match feed.
	FeedFlushInterval = 2 * time.Second

	// FeedBatchLimit is the maximum number of events published in a single scan.
	FeedBatchLimit = 256
)
