package zyncx

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/0xr10t/zyncx/internal/dex"
	"github.com/0xr10t/zyncx/internal/store"
	"github.com/0xr10t/zyncx/internal/verifier"
)

var (
	acceptAll = verifier.Func(func([]byte, [][32]byte) error { return nil })
	rejectAll = verifier.Func(func([]byte, [][32]byte) error { return errors.New("bad proof") })
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testClock is a manually advanced engine clock.
type testClock struct{ now int64 }

func (c *testClock) Now() int64 { return c.now }

func newTestEngine(opts ...Option) (*Engine, *testClock) {
	clock := &testClock{now: 1000}
	base := []Option{
		WithLogger(quietLogger()),
		WithClock(clock.Now),
	}
	guard := NewNullifierGuard(store.NewMemory())
	return NewEngine(guard, acceptAll, append(base, opts...)...), clock
}

func asset(b byte) Asset {
	var a Asset
	a[0] = b
	return a
}

func addr(b byte) Address {
	var a Address
	a[0] = b
	return a
}

func mustDeposit(t *testing.T, e *Engine, a Asset, amount uint64, pre Hash) Hash {
	t.Helper()
	cm, err := e.Deposit(DepositParams{Asset: a, Depositor: addr(1), Amount: amount, Precommitment: pre})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return cm
}

func TestCreateVault(t *testing.T) {
	e, _ := newTestEngine()

	if err := e.CreateVault(NativeAsset, addr(9)); err != nil {
		t.Fatalf("create native vault: %v", err)
	}
	if err := e.CreateVault(NativeAsset, addr(9)); err != ErrVaultExists {
		t.Errorf("duplicate create: err = %v, want ErrVaultExists", err)
	}

	info, err := e.Info(NativeAsset)
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindNative {
		t.Errorf("zero asset vault kind = %v, want native", info.Kind)
	}

	if err := e.CreateVault(asset(1), addr(9)); err != nil {
		t.Fatal(err)
	}
	info, _ = e.Info(asset(1))
	if info.Kind != KindToken {
		t.Errorf("token vault kind = %v, want token", info.Kind)
	}
}

func TestDeposit(t *testing.T) {
	t.Run("Accounting", func(t *testing.T) {
		e, _ := newTestEngine()
		if err := e.CreateVault(NativeAsset, addr(9)); err != nil {
			t.Fatal(err)
		}

		cm := mustDeposit(t, e, NativeAsset, 1000, leaf(7))
		if cm != Commit(1000, leaf(7)) {
			t.Error("returned commitment does not match Commit")
		}

		info, _ := e.Info(NativeAsset)
		if info.TreeSize != 1 || info.Custody != 1000 || info.TotalDeposited != 1000 || info.Nonce != 1 {
			t.Errorf("vault after deposit = %+v", info)
		}
		if info.Root != foldNodes(cm, ZeroHash) {
			t.Error("single-leaf root should fold the commitment with the zero sentinel")
		}
	})

	t.Run("Zero Amount Rejected", func(t *testing.T) {
		e, _ := newTestEngine()
		e.CreateVault(NativeAsset, addr(9))
		_, err := e.Deposit(DepositParams{Asset: NativeAsset, Amount: 0})
		if err != ErrInvalidAmount {
			t.Errorf("err = %v, want ErrInvalidAmount", err)
		}
	})

	t.Run("Unknown Vault", func(t *testing.T) {
		e, _ := newTestEngine()
		_, err := e.Deposit(DepositParams{Asset: asset(5), Amount: 1})
		if err != ErrVaultNotFound {
			t.Errorf("err = %v, want ErrVaultNotFound", err)
		}
	})

	t.Run("Overflow On Cumulative Total", func(t *testing.T) {
		e, _ := newTestEngine()
		e.CreateVault(NativeAsset, addr(9))
		mustDeposit(t, e, NativeAsset, 10, leaf(1))

		_, err := e.Deposit(DepositParams{Asset: NativeAsset, Amount: math.MaxUint64, Precommitment: leaf(2)})
		if err != ErrArithmeticOverflow {
			t.Errorf("err = %v, want ErrArithmeticOverflow", err)
		}
		info, _ := e.Info(NativeAsset)
		if info.TreeSize != 1 || info.Custody != 10 {
			t.Error("failed deposit mutated state")
		}
	})

	t.Run("Tree Capacity", func(t *testing.T) {
		e, _ := newTestEngine()
		e.CreateVault(NativeAsset, addr(9))
		for i := 0; i < MaxLeaves; i++ {
			mustDeposit(t, e, NativeAsset, 1, leaf(byte(i)))
		}
		_, err := e.Deposit(DepositParams{Asset: NativeAsset, Amount: 1, Precommitment: leaf(0xfe)})
		if err != ErrTreeFull {
			t.Errorf("err = %v, want ErrTreeFull", err)
		}
	})
}

func TestWithdraw(t *testing.T) {
	t.Run("Full Withdrawal", func(t *testing.T) {
		// Scenario: one shielded note, withdrawn in full. The tree keeps its
		// single leaf, the nullifier is burned, custody drains.
		e, _ := newTestEngine()
		e.CreateVault(NativeAsset, addr(9))
		mustDeposit(t, e, NativeAsset, 1000, leaf(7))

		err := e.Withdraw(WithdrawParams{
			Asset:     NativeAsset,
			Amount:    1000,
			Nullifier: leaf(0xa1),
			Recipient: addr(2),
			Proof:     []byte{1},
		})
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}

		info, _ := e.Info(NativeAsset)
		if info.TreeSize != 1 {
			t.Errorf("tree size = %d, want 1 (full withdrawal adds no leaf)", info.TreeSize)
		}
		if info.Custody != 0 {
			t.Errorf("custody = %d, want 0", info.Custody)
		}
		spent, _ := e.NullifierSpent(NativeAsset, leaf(0xa1))
		if !spent {
			t.Error("nullifier not recorded as spent")
		}
	})

	t.Run("Partial Withdrawal And Replay", func(t *testing.T) {
		// Scenario: withdraw 400 of a 1000 note, leaving change. The change
		// commitment becomes a second leaf; reusing the nullifier fails.
		e, _ := newTestEngine()
		e.CreateVault(NativeAsset, addr(9))
		cm := mustDeposit(t, e, NativeAsset, 1000, leaf(7))

		change := leaf(0xc2)
		p := WithdrawParams{
			Asset:         NativeAsset,
			Amount:        400,
			Nullifier:     leaf(0xa2),
			Recipient:     addr(2),
			NewCommitment: change,
			Proof:         []byte{1},
		}
		if err := e.Withdraw(p); err != nil {
			t.Fatalf("partial withdraw: %v", err)
		}

		info, _ := e.Info(NativeAsset)
		if info.TreeSize != 2 {
			t.Errorf("tree size = %d, want 2", info.TreeSize)
		}
		if info.Root != foldNodes(cm, change) {
			t.Error("root does not fold both leaves")
		}
		if info.Custody != 600 {
			t.Errorf("custody = %d, want 600", info.Custody)
		}

		p.Amount = 600
		p.NewCommitment = ZeroHash
		if err := e.Withdraw(p); err != ErrNullifierSpent {
			t.Errorf("replay: err = %v, want ErrNullifierSpent", err)
		}
	})

	t.Run("Invalid Proof Mutates Nothing", func(t *testing.T) {
		guard := NewNullifierGuard(store.NewMemory())
		e := NewEngine(guard, rejectAll, WithLogger(quietLogger()))
		e.CreateVault(NativeAsset, addr(9))
		mustDeposit(t, e, NativeAsset, 1000, leaf(7))
		before, _ := e.Info(NativeAsset)

		err := e.Withdraw(WithdrawParams{
			Asset:     NativeAsset,
			Amount:    500,
			Nullifier: leaf(0xa3),
			Recipient: addr(2),
			Proof:     []byte{1},
		})
		if !errors.Is(err, ErrProofInvalid) {
			t.Errorf("err = %v, want ErrProofInvalid", err)
		}
		after, _ := e.Info(NativeAsset)
		if before != after {
			t.Error("rejected withdrawal mutated vault state")
		}
		spent, _ := e.NullifierSpent(NativeAsset, leaf(0xa3))
		if spent {
			t.Error("rejected withdrawal spent the nullifier")
		}
	})

	t.Run("Insufficient Custody", func(t *testing.T) {
		e, _ := newTestEngine()
		e.CreateVault(NativeAsset, addr(9))
		mustDeposit(t, e, NativeAsset, 100, leaf(7))

		err := e.Withdraw(WithdrawParams{
			Asset:     NativeAsset,
			Amount:    101,
			Nullifier: leaf(0xa4),
			Recipient: addr(2),
			Proof:     []byte{1},
		})
		if err != ErrInsufficientFunds {
			t.Errorf("err = %v, want ErrInsufficientFunds", err)
		}
	})
}

func TestSwap(t *testing.T) {
	ctx := context.Background()

	t.Run("Same Asset Skips Venue", func(t *testing.T) {
		called := false
		exec := dex.ExecutorFunc(func(_ context.Context, ins dex.Instruction) (uint64, error) {
			called = true
			return ins.AmountIn, nil
		})
		e, _ := newTestEngine(WithExecutor(exec))
		e.CreateVault(NativeAsset, addr(9))
		mustDeposit(t, e, NativeAsset, 1000, leaf(7))

		err := e.Swap(ctx, SwapParams{
			SrcAsset:  NativeAsset,
			DstAsset:  NativeAsset,
			AmountIn:  500,
			Nullifier: leaf(0xb1),
			Recipient: addr(2),
			Proof:     []byte{1},
		})
		if err != nil {
			t.Fatalf("swap: %v", err)
		}
		if called {
			t.Error("same-asset swap must not call the execution venue")
		}
		info, _ := e.Info(NativeAsset)
		if info.Custody != 500 {
			t.Errorf("custody = %d, want 500", info.Custody)
		}
	})

	t.Run("Cross Asset Uses Venue", func(t *testing.T) {
		var got dex.Instruction
		exec := dex.ExecutorFunc(func(_ context.Context, ins dex.Instruction) (uint64, error) {
			got = ins
			return ins.AmountIn, nil
		})
		e, _ := newTestEngine(WithExecutor(exec))
		e.CreateVault(NativeAsset, addr(9))
		mustDeposit(t, e, NativeAsset, 1000, leaf(7))

		err := e.Swap(ctx, SwapParams{
			SrcAsset:     NativeAsset,
			DstAsset:     asset(2),
			AmountIn:     300,
			MinAmountOut: 290,
			Nullifier:    leaf(0xb2),
			Recipient:    addr(2),
			Proof:        []byte{1},
			Venue:        []byte("route"),
		})
		if err != nil {
			t.Fatalf("swap: %v", err)
		}
		if got.AmountIn != 300 || got.MinAmountOut != 290 || string(got.Venue) != "route" {
			t.Errorf("venue instruction = %+v", got)
		}
	})

	t.Run("Venue Failure Mutates Nothing", func(t *testing.T) {
		exec := dex.ExecutorFunc(func(context.Context, dex.Instruction) (uint64, error) {
			return 0, errors.New("venue rejected route")
		})
		e, _ := newTestEngine(WithExecutor(exec))
		e.CreateVault(NativeAsset, addr(9))
		mustDeposit(t, e, NativeAsset, 1000, leaf(7))
		before, _ := e.Info(NativeAsset)

		err := e.Swap(ctx, SwapParams{
			SrcAsset:  NativeAsset,
			DstAsset:  asset(2),
			AmountIn:  300,
			Nullifier: leaf(0xb3),
			Recipient: addr(2),
			Proof:     []byte{1},
		})
		if err == nil {
			t.Fatal("swap should fail when the venue fails")
		}
		after, _ := e.Info(NativeAsset)
		if before != after {
			t.Error("failed swap mutated vault state")
		}
		spent, _ := e.NullifierSpent(NativeAsset, leaf(0xb3))
		if spent {
			t.Error("failed swap spent the nullifier")
		}
	})
}

func TestCrossPoolSwap(t *testing.T) {
	ctx := context.Background()
	exec := dex.ExecutorFunc(func(_ context.Context, ins dex.Instruction) (uint64, error) {
		return ins.AmountIn, nil
	})

	t.Run("Same Vault Rejected", func(t *testing.T) {
		e, _ := newTestEngine(WithExecutor(exec))
		e.CreateVault(NativeAsset, addr(9))
		mustDeposit(t, e, NativeAsset, 1000, leaf(7))
		before, _ := e.Info(NativeAsset)

		err := e.CrossPoolSwap(ctx, SwapParams{
			SrcAsset:  NativeAsset,
			DstAsset:  NativeAsset,
			AmountIn:  100,
			Nullifier: leaf(0xc1),
			Recipient: addr(2),
			Proof:     []byte{1},
		})
		if err != ErrSameVaultSwap {
			t.Fatalf("err = %v, want ErrSameVaultSwap", err)
		}
		after, _ := e.Info(NativeAsset)
		if before != after {
			t.Error("rejected cross-pool swap mutated state")
		}
	})

	t.Run("Nullifier Source Commitment Destination", func(t *testing.T) {
		// The nullifier burns against the source vault while the change
		// commitment lands in the destination vault's tree.
		e, _ := newTestEngine(WithExecutor(exec))
		e.CreateVault(NativeAsset, addr(9))
		e.CreateVault(asset(2), addr(9))
		mustDeposit(t, e, NativeAsset, 1000, leaf(7))

		change := leaf(0xd1)
		err := e.CrossPoolSwap(ctx, SwapParams{
			SrcAsset:      NativeAsset,
			DstAsset:      asset(2),
			AmountIn:      400,
			Nullifier:     leaf(0xc2),
			Recipient:     addr(2),
			NewCommitment: change,
			Proof:         []byte{1},
		})
		if err != nil {
			t.Fatalf("cross-pool swap: %v", err)
		}

		srcInfo, _ := e.Info(NativeAsset)
		dstInfo, _ := e.Info(asset(2))
		if srcInfo.TreeSize != 1 {
			t.Errorf("source tree size = %d, want 1", srcInfo.TreeSize)
		}
		if dstInfo.TreeSize != 1 {
			t.Errorf("destination tree size = %d, want 1", dstInfo.TreeSize)
		}
		if srcInfo.Custody != 600 {
			t.Errorf("source custody = %d, want 600", srcInfo.Custody)
		}
		spentSrc, _ := e.NullifierSpent(NativeAsset, leaf(0xc2))
		spentDst, _ := e.NullifierSpent(asset(2), leaf(0xc2))
		if !spentSrc || spentDst {
			t.Errorf("nullifier spent: src=%v dst=%v, want true/false", spentSrc, spentDst)
		}
	})
}

func TestEventFeed(t *testing.T) {
	e, _ := newTestEngine()
	e.CreateVault(NativeAsset, addr(9))

	deposits := make(chan DepositedEvent, 1)
	leaves := make(chan LeafAppendedEvent, 1)
	sub1 := e.Events().SubscribeDeposited(deposits)
	defer sub1.Unsubscribe()
	sub2 := e.Events().SubscribeLeafAppended(leaves)
	defer sub2.Unsubscribe()

	cm := mustDeposit(t, e, NativeAsset, 1000, leaf(7))

	got := <-deposits
	if got.Commitment != cm || got.Amount != 1000 || got.Precommitment != leaf(7) {
		t.Errorf("deposit event = %+v", got)
	}
	lf := <-leaves
	if lf.Leaf != cm || lf.LeafIndex != 0 {
		t.Errorf("leaf event = %+v", lf)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	kv := store.NewMemory()
	guard := NewNullifierGuard(kv)
	e := NewEngine(guard, acceptAll, WithLogger(quietLogger()))
	e.CreateVault(NativeAsset, addr(9))
	e.CreateVault(asset(2), addr(9))
	mustDeposit(t, e, NativeAsset, 1000, leaf(7))
	mustDeposit(t, e, asset(2), 50, leaf(8))

	if err := e.SaveToFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := NewEngine(NewNullifierGuard(kv), acceptAll, WithLogger(quietLogger()))
	if err := restored.LoadFromFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	want, _ := e.Info(NativeAsset)
	got, err := restored.Info(NativeAsset)
	if err != nil {
		t.Fatal(err)
	}
	if want != got {
		t.Errorf("restored vault = %+v, want %+v", got, want)
	}

	// Missing file loads as empty state.
	fresh := NewEngine(NewNullifierGuard(kv), acceptAll, WithLogger(quietLogger()))
	if err := fresh.LoadFromFile(filepath.Join(dir, "absent.json")); err != nil {
		t.Errorf("load of missing file: %v", err)
	}
}
