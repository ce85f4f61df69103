// types.go - Core value types for the shielded pool engine.
//
// All identifiers on the ledger (assets, account addresses, commitments,
// nullifiers, roots) are opaque 32-byte values. The all-zero value is a
// reserved sentinel throughout: the zero asset denotes the native asset,
// the zero commitment denotes "no change output", and the zero root is
// never a valid non-empty tree root.

package zyncx

import (
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte commitment, nullifier, or tree root.
type Hash [32]byte

// Asset identifies a supported asset. The zero asset is the native asset.
type Asset [32]byte

// Address identifies an external account (depositor, recipient, requester,
// vault authority).
type Address [32]byte

// ZeroHash is the reserved all-zero sentinel.
var ZeroHash Hash

// NativeAsset is the asset identifier of the native asset.
var NativeAsset Asset

// IsZero reports whether h is the zero sentinel.
func (h Hash) IsZero() bool { return h == ZeroHash }

// Hex returns the hex encoding of the hash.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// MarshalText implements encoding.TextMarshaler (hex).
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler (hex).
func (h *Hash) UnmarshalText(text []byte) error {
	return unhex32((*[32]byte)(h), text)
}

// IsNative reports whether a is the native asset.
func (a Asset) IsNative() bool { return a == NativeAsset }

// Hex returns the hex encoding of the asset identifier.
func (a Asset) Hex() string { return hex.EncodeToString(a[:]) }

// MarshalText implements encoding.TextMarshaler (hex).
func (a Asset) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(a[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler (hex).
func (a *Asset) UnmarshalText(text []byte) error {
	return unhex32((*[32]byte)(a), text)
}

// Hex returns the hex encoding of the address.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// MarshalText implements encoding.TextMarshaler (hex).
func (a Address) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(a[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler (hex).
func (a *Address) UnmarshalText(text []byte) error {
	return unhex32((*[32]byte)(a), text)
}

func unhex32(dst *[32]byte, text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return fmt.Errorf("zyncx: expected 32 bytes, got %d", len(raw))
	}
	copy(dst[:], raw)
	return nil
}
