// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

// Package account implements the cryptographic identities of the participants
// in the rendezvous network.
package account

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// AddressLength is the number of bytes in an account address.
const AddressLength = ed25519.PublicKeySize

var (
	// ErrInvalidAddress is returned if an address is attempted to be parsed from
	// a textual or binary form that does not contain exactly 32 bytes.
	ErrInvalidAddress = errors.New("invalid account address")

	// ErrInvalidSignature is returned if a signature does not verify against the
	// address it claims to originate from.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Address is a permanent Ed25519 public key identifying a participant. Equality
// is byte exact, so the type is safe to use as a map key.
type Address [AddressLength]byte

// BytesToAddress converts a binary blob into an address, failing if the length
// does not match.
func BytesToAddress(blob []byte) (Address, error) {
	var addr Address
	if len(blob) != AddressLength {
		return addr, ErrInvalidAddress
	}
	copy(addr[:], blob)
	return addr, nil
}

// HexToAddress parses a 0x prefixed hex string into an address.
func HexToAddress(s string) (Address, error) {
	blob, err := hexutil.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return BytesToAddress(blob)
}

// Bytes returns a copy of the raw public key of the address.
func (a Address) Bytes() []byte {
	return append([]byte{}, a[:]...)
}

// String implements fmt.Stringer, returning the 0x prefixed hex form.
func (a Address) String() string {
	return hexutil.Encode(a[:])
}

// TerminalString returns a shortened form of the address for log output.
func (a Address) TerminalString() string {
	return fmt.Sprintf("%x…%x", a[:3], a[29:])
}

// Fingerprint generates a short universally unique identifier for an address.
// Although the unique id is binary, it's returned base64 encoded to avoid weird
// codec issues in JSON and HTTP.
func (a Address) Fingerprint() string {
	hash := sha3.Sum256(a[:])
	return base64.RawURLEncoding.EncodeToString(hash[:16])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return hexutil.Bytes(a[:]).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(input []byte) error {
	addr, err := HexToAddress(string(input))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// SecretKey is a permanent Ed25519 private key seed owning an account.
type SecretKey []byte

// GenerateKey creates a new random account key.
func GenerateKey() (SecretKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return SecretKey(priv.Seed()), nil
}

// Address derives the public account address from the secret key.
//
// Note, this method is heavy. Cache it.
func (key SecretKey) Address() Address {
	var addr Address
	copy(addr[:], ed25519.NewKeyFromSeed(key).Public().(ed25519.PublicKey))
	return addr
}

// Sign creates an Ed25519 signature over a message.
func (key SecretKey) Sign(message []byte) []byte {
	return ed25519.Sign(ed25519.NewKeyFromSeed(key), message)
}

// Verify checks that a signature over a message was created by the owner of an
// address.
func Verify(addr Address, message []byte, signature []byte) error {
	if len(signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(addr[:]), message, signature) {
		return ErrInvalidSignature
	}
	return nil
}
