// withdraw.go - Proof-gated unshielding transition.

package zyncx

import "github.com/sirupsen/logrus"

// WithdrawParams are the caller-supplied parameters of a withdrawal. A zero
// NewCommitment means a full withdrawal; a non-zero value re-enters the
// pool as change.
type WithdrawParams struct {
	Asset         Asset
	Amount        uint64
	Nullifier     Hash
	Recipient     Address
	NewCommitment Hash
	Proof         []byte
}

// Withdraw releases value from custody to the recipient, gated on a spend
// proof anchored to the vault's current root. The nullifier is consumed
// exactly once; the change commitment, when present, is appended to the
// tree in the same transition.
func (e *Engine) Withdraw(p WithdrawParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Amount == 0 {
		return ErrInvalidAmount
	}
	v, err := e.vault(p.Asset)
	if err != nil {
		return err
	}
	if v.Custody < p.Amount {
		return ErrInsufficientFunds
	}
	partial := !p.NewCommitment.IsZero()
	if partial && !v.Tree.CanInsert() {
		return ErrTreeFull
	}
	if err := e.verifySpend(v, p.Proof, p.Nullifier, p.Recipient, p.Amount, p.NewCommitment); err != nil {
		return err
	}

	// Checks done; mutations below cannot fail.
	if _, err := e.nullifiers.CreateAndSpend(v.Asset, p.Nullifier, e.now()); err != nil {
		return err
	}
	if partial {
		if _, err := e.insertLeaf(v, p.NewCommitment); err != nil {
			return err
		}
	}
	v.debitCustody(p.Amount)

	e.feed.withdrawn.Send(WithdrawnEvent{
		Asset:     v.Asset,
		Nullifier: p.Nullifier,
		Recipient: p.Recipient,
		Amount:    p.Amount,
		Partial:   partial,
		Timestamp: e.now(),
	})
	e.log.WithFields(logrus.Fields{
		"asset":   v.Asset.Hex(),
		"amount":  p.Amount,
		"partial": partial,
	}).Info("withdrawal executed")
	return nil
}
