// crypto.go - Hashing primitives for commitments and tree folding.
//
// Deposit commitments bind an amount to a caller-supplied precommitment using
// MiMC over the BLS12-377 scalar field; the off-ledger proving system uses the
// same binding. Tree node folding uses Keccak-256: the on-ledger tree only
// tracks commitments, the cryptographic inclusion argument lives in the
// zero-knowledge proof, so a cheap hash is sufficient here.

package zyncx

import (
	"math/big"

	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr/mimc"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Commit computes the deposit commitment cm = MiMC(amount, precommitment).
// Both inputs are reduced into the scalar field before hashing so the digest
// matches the field arithmetic used by the proving side.
func Commit(amount uint64, precommitment Hash) Hash {
	h := mimc.NewMiMC()
	h.Write(feBytes(new(big.Int).SetUint64(amount)))
	h.Write(feBytes(new(big.Int).SetBytes(precommitment[:])))
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// foldNodes hashes a left/right node pair into their parent.
func foldNodes(left, right Hash) Hash {
	return Hash(ethcrypto.Keccak256Hash(left[:], right[:]))
}

// feBytes reduces v into the BLS12-377 scalar field and returns its canonical
// 32-byte big-endian encoding, suitable for mimc.Write.
func feBytes(v *big.Int) []byte {
	var fe bls12377_fr.Element
	fe.SetBigInt(new(big.Int).Mod(v, bls12377_fr.Modulus()))
	b := fe.Bytes()
	return b[:]
}
