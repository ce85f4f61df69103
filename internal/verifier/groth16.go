// groth16.go - Groth16-backed spend verifier over BLS12-377.

package verifier

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
)

// SpendCircuit declares the public statement of a spend proof. The private
// wires (note opening, Merkle path, spending key) belong to the prover; the
// verifier only reconstructs the public half of the witness.
type SpendCircuit struct {
	Root          frontend.Variable `gnark:",public"`
	Nullifier     frontend.Variable `gnark:",public"`
	Recipient     frontend.Variable `gnark:",public"`
	Amount        frontend.Variable `gnark:",public"`
	NewCommitment frontend.Variable `gnark:",public"`
}

// Define is required by gnark's frontend; constraint synthesis happens on
// the prover side, so the verifier-side circuit body is empty.
func (c *SpendCircuit) Define(api frontend.API) error {
	return nil
}

// Groth16 verifies spend proofs against a fixed verifying key.
type Groth16 struct {
	vk groth16.VerifyingKey
}

// NewGroth16 wraps a verifying key.
func NewGroth16(vk groth16.VerifyingKey) *Groth16 {
	return &Groth16{vk: vk}
}

// LoadGroth16 reads a serialized verifying key.
func LoadGroth16(vkBytes []byte) (*Groth16, error) {
	vk := groth16.NewVerifyingKey(ecc.BLS12_377)
	if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
		return nil, fmt.Errorf("read verifying key: %w", err)
	}
	return &Groth16{vk: vk}, nil
}

// Verify checks a spend proof against the five-word public input vector.
func (g *Groth16) Verify(proofBytes []byte, publicInputs [][32]byte) error {
	if len(publicInputs) != 5 {
		return errors.New("spend statement requires 5 public inputs")
	}

	publicWitness := &SpendCircuit{
		Root:          wordToFr(publicInputs[0]),
		Nullifier:     wordToFr(publicInputs[1]),
		Recipient:     wordToFr(publicInputs[2]),
		Amount:        wordToFr(publicInputs[3]),
		NewCommitment: wordToFr(publicInputs[4]),
	}
	w, err := frontend.NewWitness(publicWitness, ecc.BLS12_377.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("build public witness: %w", err)
	}

	proof := groth16.NewProof(ecc.BLS12_377)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("read proof: %w", err)
	}
	return groth16.Verify(proof, g.vk, w)
}

// wordToFr interprets a 32-byte word as a big-endian field element, reduced
// into the scalar field.
func wordToFr(word [32]byte) *big.Int {
	v := new(big.Int).SetBytes(word[:])
	return v.Mod(v, ecc.BLS12_377.ScalarField())
}
