// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package rendezvous

import (
	"bytes"
	"errors"

	"github.com/rendezvous/go-rendezvous/account"
)

// ErrInvalidRequest is returned if a handshake request is malformed beyond
// repair, currently only if an account tries to handshake with itself.
var ErrInvalidRequest = errors.New("cannot handshake with self")

// SubmitHandshake records a caller's intent to connect with a target, proven by
// a commitment both parties derived out of band. If the target already has an
// outstanding request towards the caller with the same commitment, submitted
// no further than the matching window away from now, the two accounts become
// mutually connected and the method returns true. Otherwise the caller's single
// pending request is replaced by this one and the method returns false.
//
// The timestamp is supplied by the environment, not the caller. All state
// changes of a single submission are committed atomically.
func (b *Backend) SubmitHandshake(caller, target account.Address, commitment []byte, now uint64) (bool, error) {
	if caller == target {
		return false, ErrInvalidRequest
	}
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.database == nil {
		return false, errBackendClosed
	}
	logger := b.logger.New("caller", caller.TerminalString(), "target", target.TerminalString())

	// Look up the counterparty's request and check whether it completes ours
	pend, err := b.pending(target)
	switch {
	case err == ErrPendingNotFound:
		logger.Debug("No counterparty request pending")
	case err != nil:
		logger.Error("Failed to retrieve counterparty request", "err", err)
		return false, err
	case pend.Target != caller:
		logger.Debug("Counterparty awaiting someone else", "awaiting", pend.Target.TerminalString())
	case !bytes.Equal(pend.Commitment, commitment):
		logger.Debug("Handshake commitment mismatch")
	case distance(now, pend.SubmittedAt) > b.window:
		logger.Debug("Counterparty request outside window", "submitted", pend.SubmittedAt, "now", now, "window", b.window)
	default:
		if err := b.match(caller, target, commitment, now); err != nil {
			logger.Error("Failed to commit handshake match", "err", err)
			return false, err
		}
		logger.Info("Handshake matched", "fingerprint", caller.Fingerprint()+"/"+target.Fingerprint())
		return true, nil
	}
	// No match, replace whatever the caller had outstanding with this request
	blob, err := encodePending(&Pending{
		Target:      target,
		Commitment:  commitment,
		SubmittedAt: now,
	})
	if err != nil {
		return false, err
	}
	if err := b.database.Put(pendingKey(caller), blob); err != nil {
		logger.Error("Failed to store pending request", "err", err)
		return false, err
	}
	logger.Debug("Handshake request pending", "submitted", now)
	return false, nil
}

// match links two accounts together, consumes the counterparty's pending
// request and optionally records the event for the feed, all in one batch.
// The caller must hold the write lock.
func (b *Backend) match(caller, target account.Address, commitment []byte, now uint64) error {
	batch := b.database.NewBatch()

	if err := b.link(batch, caller, target); err != nil {
		return err
	}
	if err := b.link(batch, target, caller); err != nil {
		return err
	}
	if err := batch.Delete(pendingKey(target)); err != nil {
		return err
	}
	seq := b.sequence
	if b.outbox {
		seq++
		if err := b.stageMatchEvent(batch, &MatchEvent{
			Sequence:   seq,
			Initiator:  target,
			Responder:  caller,
			Commitment: commitment,
			Time:       now,
		}); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	b.sequence = seq
	return nil
}

// distance returns the absolute difference between two timestamps. Clocks may
// be skewed between requests, so the earlier request is not necessarily the
// pending one.
func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
