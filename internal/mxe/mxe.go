// mxe.go - Confidential compute fabric integration.
//
// The fabric evaluates encrypted trading strategies off-pool and reports
// back through signed callbacks. The engine trusts a callback only after
// the authenticator validates its attestation over a canonical digest of
// the callback fields.

package mxe

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrBadAttestation is returned when a callback's attestation does not
// verify.
var ErrBadAttestation = errors.New("mxe: bad attestation")

// MirrorUpdate is the re-encrypted vault mirror produced by a successful
// computation. The pool stores it wholesale.
type MirrorUpdate struct {
	State [3][32]byte
	Nonce [16]byte
}

// PositionUpdate is the re-encrypted position pair for one vault user.
type PositionUpdate struct {
	Owner [32]byte
	State [2][32]byte
	Nonce [16]byte
}

// Callback is the fabric's report for one queued computation.
type Callback struct {
	RequestID uint64
	Success   bool
	// Result is the encrypted computation output, present on success.
	Result []byte
	// Mirror is the updated vault ciphertext, nil when the computation
	// failed or did not touch the mirror.
	Mirror *MirrorUpdate
	// Position is the requester's updated position ciphertext, nil when
	// the computation did not touch it.
	Position *PositionUpdate
	// Attestation signs the canonical digest of the fields above.
	Attestation []byte
}

// Digest computes the canonical digest the attestation must cover. The
// encoding is injective: the variable-length result carries a length
// prefix and each optional section a presence byte, so no two distinct
// callbacks serialize to the same bytes.
func (c Callback) Digest() [32]byte {
	var buf []byte
	var word [8]byte
	binary.BigEndian.PutUint64(word[:], c.RequestID)
	buf = append(buf, word[:]...)
	if c.Success {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	binary.BigEndian.PutUint64(word[:], uint64(len(c.Result)))
	buf = append(buf, word[:]...)
	buf = append(buf, c.Result...)
	if c.Mirror != nil {
		buf = append(buf, 1)
		for _, w := range c.Mirror.State {
			buf = append(buf, w[:]...)
		}
		buf = append(buf, c.Mirror.Nonce[:]...)
	} else {
		buf = append(buf, 0)
	}
	if c.Position != nil {
		buf = append(buf, 1)
		buf = append(buf, c.Position.Owner[:]...)
		for _, w := range c.Position.State {
			buf = append(buf, w[:]...)
		}
		buf = append(buf, c.Position.Nonce[:]...)
	} else {
		buf = append(buf, 0)
	}
	return ethcrypto.Keccak256Hash(buf)
}

// Request is the encrypted payload handed to the fabric for one queued
// computation.
type Request struct {
	ID            uint64
	Ciphertext    []byte
	Nonce         [12]byte
	EncryptionKey [32]byte
	// Deadline is the unix second after which the computation expires.
	Deadline int64
}

// Fabric accepts computation submissions.
type Fabric interface {
	Submit(ctx context.Context, req Request) error
}

// NopFabric drops every submission. Useful when callbacks are driven
// externally.
type NopFabric struct{}

// Submit always succeeds.
func (NopFabric) Submit(context.Context, Request) error { return nil }

// Authenticator validates that a callback originated from the trusted
// fabric.
type Authenticator interface {
	Authenticate(cb Callback) error
}

// Ed25519Authenticator checks callback attestations against the fabric's
// signing key.
type Ed25519Authenticator struct {
	pub ed25519.PublicKey
}

// NewEd25519Authenticator wraps the fabric's public key.
func NewEd25519Authenticator(pub ed25519.PublicKey) *Ed25519Authenticator {
	return &Ed25519Authenticator{pub: pub}
}

// Authenticate verifies the attestation over the callback digest.
func (a *Ed25519Authenticator) Authenticate(cb Callback) error {
	if len(cb.Attestation) != ed25519.SignatureSize {
		return ErrBadAttestation
	}
	digest := cb.Digest()
	if !ed25519.Verify(a.pub, digest[:], cb.Attestation) {
		return ErrBadAttestation
	}
	return nil
}

// Sign produces an attestation over the callback digest. Intended for tests
// and local fabric deployments.
func Sign(priv ed25519.PrivateKey, cb Callback) []byte {
	digest := cb.Digest()
	return ed25519.Sign(priv, digest[:])
}

// NopAuthenticator accepts every callback. Useful only for development.
type NopAuthenticator struct{}

// Authenticate always succeeds.
func (NopAuthenticator) Authenticate(Callback) error { return nil }
