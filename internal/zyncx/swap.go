// swap.go - Proof-gated swap transitions, same-vault and cross-pool.

package zyncx

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/0xr10t/zyncx/internal/dex"
)

// SwapParams are the caller-supplied parameters of a swap. Venue carries
// opaque routing data for the execution service.
type SwapParams struct {
	SrcAsset      Asset
	DstAsset      Asset
	AmountIn      uint64
	MinAmountOut  uint64
	Nullifier     Hash
	Recipient     Address
	NewCommitment Hash
	Proof         []byte
	Venue         []byte
}

// Swap exchanges shielded value held in the source asset's vault for the
// destination asset. The spend is proven and nullified against the source
// vault; when source and destination assets coincide the value moves
// directly, otherwise execution is delegated to the swap venue. Change
// re-enters the source vault's tree.
func (e *Engine) Swap(ctx context.Context, p SwapParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.AmountIn == 0 {
		return ErrInvalidAmount
	}
	v, err := e.vault(p.SrcAsset)
	if err != nil {
		return err
	}
	if v.Custody < p.AmountIn {
		return ErrInsufficientFunds
	}
	partial := !p.NewCommitment.IsZero()
	if partial && !v.Tree.CanInsert() {
		return ErrTreeFull
	}
	if err := e.verifySpend(v, p.Proof, p.Nullifier, p.Recipient, p.AmountIn, p.NewCommitment); err != nil {
		return err
	}
	if err := e.executeSwap(ctx, p); err != nil {
		return err
	}

	if _, err := e.nullifiers.CreateAndSpend(v.Asset, p.Nullifier, e.now()); err != nil {
		return err
	}
	if partial {
		if _, err := e.insertLeaf(v, p.NewCommitment); err != nil {
			return err
		}
	}
	v.debitCustody(p.AmountIn)

	e.emitSwapped(p, partial)
	e.log.WithFields(logrus.Fields{
		"src":    p.SrcAsset.Hex(),
		"dst":    p.DstAsset.Hex(),
		"amount": p.AmountIn,
	}).Info("swap executed")
	return nil
}

// CrossPoolSwap exchanges shielded value between two distinct vaults. The
// nullifier is consumed against the source vault while the change
// commitment enters the destination vault's tree, which is what lets value
// cross asset pools without linking the two notes.
func (e *Engine) CrossPoolSwap(ctx context.Context, p SwapParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.AmountIn == 0 {
		return ErrInvalidAmount
	}
	if p.SrcAsset == p.DstAsset {
		return ErrSameVaultSwap
	}
	src, err := e.vault(p.SrcAsset)
	if err != nil {
		return err
	}
	dst, err := e.vault(p.DstAsset)
	if err != nil {
		return err
	}
	if src.Kind != kindForAsset(p.SrcAsset) || dst.Kind != kindForAsset(p.DstAsset) {
		return ErrAssetMismatch
	}
	if src.Custody < p.AmountIn {
		return ErrInsufficientFunds
	}
	partial := !p.NewCommitment.IsZero()
	if partial && !dst.Tree.CanInsert() {
		return ErrTreeFull
	}
	if err := e.verifySpend(src, p.Proof, p.Nullifier, p.Recipient, p.AmountIn, p.NewCommitment); err != nil {
		return err
	}
	if err := e.executeSwap(ctx, p); err != nil {
		return err
	}

	if _, err := e.nullifiers.CreateAndSpend(src.Asset, p.Nullifier, e.now()); err != nil {
		return err
	}
	if partial {
		if _, err := e.insertLeaf(dst, p.NewCommitment); err != nil {
			return err
		}
	}
	src.debitCustody(p.AmountIn)

	e.emitSwapped(p, partial)
	e.log.WithFields(logrus.Fields{
		"src":    p.SrcAsset.Hex(),
		"dst":    p.DstAsset.Hex(),
		"amount": p.AmountIn,
	}).Info("cross-pool swap executed")
	return nil
}

// executeSwap routes value movement: a no-op for same-asset transfers
// (custody accounting settles it), otherwise a call into the execution
// venue. Runs after all internal checks and before any mutation.
func (e *Engine) executeSwap(ctx context.Context, p SwapParams) error {
	if p.SrcAsset == p.DstAsset {
		return nil
	}
	if e.executor == nil {
		return ErrSwapsDisabled
	}
	_, err := e.executor.Execute(ctx, swapInstruction(p))
	return err
}

func swapInstruction(p SwapParams) dex.Instruction {
	return dex.Instruction{
		SrcAsset:     p.SrcAsset,
		DstAsset:     p.DstAsset,
		Recipient:    p.Recipient,
		AmountIn:     p.AmountIn,
		MinAmountOut: p.MinAmountOut,
		Venue:        p.Venue,
	}
}

func (e *Engine) emitSwapped(p SwapParams, partial bool) {
	e.feed.swapped.Send(SwappedEvent{
		SrcAsset:     p.SrcAsset,
		DstAsset:     p.DstAsset,
		Nullifier:    p.Nullifier,
		Recipient:    p.Recipient,
		AmountIn:     p.AmountIn,
		MinAmountOut: p.MinAmountOut,
		Partial:      partial,
		Timestamp:    e.now(),
	})
}
