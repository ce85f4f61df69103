// verifier.go - Proof verification interface for spend authorizations.
//
// Public inputs are carried as fixed-order 32-byte words so that every
// transition binds its proof to exactly the same statement shape:
// root, nullifier, recipient, amount (big-endian), new commitment.

package verifier

import (
	"github.com/holiman/uint256"
)

// Verifier checks a serialized proof against ordered public inputs.
type Verifier interface {
	Verify(proof []byte, publicInputs [][32]byte) error
}

// Func adapts a plain function to the Verifier interface.
type Func func(proof []byte, publicInputs [][32]byte) error

// Verify calls f.
func (f Func) Verify(proof []byte, publicInputs [][32]byte) error {
	return f(proof, publicInputs)
}

// SpendInputs assembles the public input vector of a spend statement. The
// amount occupies a full 32-byte big-endian word; a zero new commitment
// denotes a full spend with no change.
func SpendInputs(root, nullifier, recipient [32]byte, amount uint64, newCommitment [32]byte) [][32]byte {
	amountWord := uint256.NewInt(amount).Bytes32()
	return [][32]byte{root, nullifier, recipient, amountWord, newCommitment}
}
