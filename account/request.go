// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package account

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrMissingCredentials is returned if a request carries no proof of
	// account ownership, or only part of it.
	ErrMissingCredentials = errors.New("missing request credentials")

	// ErrInvalidTimestamp is returned if a request's signing time is unparsable.
	ErrInvalidTimestamp = errors.New("invalid request timestamp")

	// ErrStaleRequest is returned if a request was signed too far from the
	// local time, either replayed or produced by a badly skewed clock.
	ErrStaleRequest = errors.New("stale request")
)

// RequestDigest hashes the parts of an API request that the caller signs to
// prove ownership of its account. The timestamp is in unix seconds.
func RequestDigest(method string, path string, timestamp int64, body []byte) []byte {
	hasher := sha3.New256()
	hasher.Write([]byte(method))
	hasher.Write([]byte{'\n'})
	hasher.Write([]byte(path))
	hasher.Write([]byte{'\n'})
	hasher.Write([]byte(strconv.FormatInt(timestamp, 10)))
	hasher.Write([]byte{'\n'})
	hasher.Write(body)
	return hasher.Sum(nil)
}

// SignRequest creates the signature over a request digest.
func (key SecretKey) SignRequest(method string, path string, timestamp int64, body []byte) []byte {
	return key.Sign(RequestDigest(method, path, timestamp, body))
}

// VerifyRequest checks that a request was signed by the owner of an address.
func VerifyRequest(addr Address, method string, path string, timestamp int64, body []byte, signature []byte) error {
	return Verify(addr, RequestDigest(method, path, timestamp, body), signature)
}

// Credentials is the proof of account ownership attached to an API request.
type Credentials struct {
	Address   Address // Account claiming to have made the request
	Timestamp int64   // Unix seconds when the request was signed
	Signature []byte  // Signature over the request digest
}

// ParseCredentials assembles request credentials from their textual forms, as
// carried in HTTP headers or gRPC metadata.
func ParseCredentials(address string, timestamp string, signature string) (*Credentials, error) {
	if address == "" || timestamp == "" || signature == "" {
		return nil, ErrMissingCredentials
	}
	addr, err := HexToAddress(address)
	if err != nil {
		return nil, err
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &Credentials{Address: addr, Timestamp: ts, Signature: sig}, nil
}

// NewCredentials signs a request with the given key at the given time.
func NewCredentials(key SecretKey, method string, path string, body []byte, now time.Time) *Credentials {
	ts := now.Unix()
	return &Credentials{
		Address:   key.Address(),
		Timestamp: ts,
		Signature: key.SignRequest(method, path, ts, body),
	}
}

// Verify checks that the credentials were issued for the given request and
// that they were signed no further than skew away from now.
func (c *Credentials) Verify(method string, path string, body []byte, now time.Time, skew time.Duration) error {
	signed := time.Unix(c.Timestamp, 0)
	if signed.Before(now.Add(-skew)) || signed.After(now.Add(skew)) {
		return ErrStaleRequest
	}
	return VerifyRequest(c.Address, method, path, c.Timestamp, body, c.Signature)
}
