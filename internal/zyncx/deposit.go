// deposit.go - Shielded deposit transition.

package zyncx

import "github.com/sirupsen/logrus"

// DepositParams are the caller-supplied parameters of a deposit.
type DepositParams struct {
	Asset         Asset
	Depositor     Address
	Amount        uint64
	Precommitment Hash
}

// Deposit shields value into the asset's vault. The commitment binding the
// amount to the caller's precommitment is appended to the vault tree and
// the value enters custody. All checks run before the first mutation.
func (e *Engine) Deposit(p DepositParams) (Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Amount == 0 {
		return Hash{}, ErrInvalidAmount
	}
	v, err := e.vault(p.Asset)
	if err != nil {
		return Hash{}, err
	}
	if v.Kind != kindForAsset(p.Asset) {
		return Hash{}, ErrVaultKindMismatch
	}
	if !v.Tree.CanInsert() {
		return Hash{}, ErrTreeFull
	}
	if v.TotalDeposited+p.Amount < v.TotalDeposited || v.Custody+p.Amount < v.Custody {
		return Hash{}, ErrArithmeticOverflow
	}

	commitment := Commit(p.Amount, p.Precommitment)

	idx, err := e.insertLeaf(v, commitment)
	if err != nil {
		return Hash{}, err
	}
	if err := v.creditCustody(p.Amount); err != nil {
		return Hash{}, err
	}

	e.feed.deposited.Send(DepositedEvent{
		Asset:         v.Asset,
		Depositor:     p.Depositor,
		Amount:        p.Amount,
		Commitment:    commitment,
		Precommitment: p.Precommitment,
		LeafIndex:     idx,
		Root:          v.Tree.Root(),
		Timestamp:     e.now(),
	})
	e.log.WithFields(logrus.Fields{
		"asset":  v.Asset.Hex(),
		"amount": p.Amount,
		"leaf":   idx,
	}).Info("deposit accepted")
	return commitment, nil
}
