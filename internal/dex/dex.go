// dex.go - Swap execution venue abstraction.
//
// The pool engine settles value movement internally when source and
// destination share a vault; everything else is handed to an Executor,
// which routes the trade through an external venue and reports the amount
// actually received.

package dex

import "context"

// Instruction describes one swap to execute. Venue carries opaque
// venue-specific routing data (serialized route, pool addresses) that the
// engine never interprets.
type Instruction struct {
	SrcAsset     [32]byte
	DstAsset     [32]byte
	Recipient    [32]byte
	AmountIn     uint64
	MinAmountOut uint64
	Venue        []byte
}

// Executor performs a swap and returns the output amount credited to the
// recipient. An error means no value moved.
type Executor interface {
	Execute(ctx context.Context, ins Instruction) (amountOut uint64, err error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, ins Instruction) (uint64, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, ins Instruction) (uint64, error) {
	return f(ctx, ins)
}
