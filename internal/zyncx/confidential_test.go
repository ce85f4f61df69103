package zyncx

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"testing"

	"github.com/0xr10t/zyncx/internal/mxe"
	"github.com/0xr10t/zyncx/internal/oracle"
)

func confidentialParams() ConfidentialParams {
	return ConfidentialParams{
		SrcAsset:      NativeAsset,
		DstAsset:      NativeAsset,
		Amount:        5_000_000,
		Recipient:     addr(2),
		Nullifier:     leaf(0xe1),
		NewCommitment: leaf(0xe2),
	}
}

func newConfidentialEngine(t *testing.T, opts ...Option) (*Engine, *testClock) {
	t.Helper()
	e, clock := newTestEngine(append([]Option{WithAuthenticator(mxe.NopAuthenticator{})}, opts...)...)
	if err := e.CreateVault(NativeAsset, addr(9)); err != nil {
		t.Fatal(err)
	}
	mustDeposit(t, e, NativeAsset, 10_000_000, leaf(7))
	return e, clock
}

func TestQueueConfidentialSwap(t *testing.T) {
	t.Run("Queue Does Not Touch Funds", func(t *testing.T) {
		e, clock := newConfidentialEngine(t)
		before, _ := e.Info(NativeAsset)

		p := confidentialParams()
		id, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1})
		if err != nil {
			t.Fatalf("queue: %v", err)
		}

		after, _ := e.Info(NativeAsset)
		if before != after {
			t.Error("queueing mutated vault state")
		}
		spent, _ := e.NullifierSpent(NativeAsset, p.Nullifier)
		if spent {
			t.Error("queueing must not spend the nullifier")
		}

		req, err := e.Request(id)
		if err != nil {
			t.Fatal(err)
		}
		if req.Status != StatusPending {
			t.Errorf("status = %v, want pending", req.Status)
		}
		if req.ExpiresAt != clock.now+DefaultComputationTimeout {
			t.Errorf("expires_at = %d, want %d", req.ExpiresAt, clock.now+DefaultComputationTimeout)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		e, _ := newConfidentialEngine(t)

		p := confidentialParams()
		p.Amount = DefaultMinConfidentialAmount - 1
		if _, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1}); err != ErrAmountTooSmall {
			t.Errorf("small amount: err = %v, want ErrAmountTooSmall", err)
		}

		p = confidentialParams()
		p.Amount = DefaultMaxConfidentialAmount + 1
		if _, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1}); err != ErrAmountTooLarge {
			t.Errorf("large amount: err = %v, want ErrAmountTooLarge", err)
		}

		p = confidentialParams()
		if _, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, nil); err != ErrProofInvalid {
			t.Errorf("empty proof: err = %v, want ErrProofInvalid", err)
		}

		p = confidentialParams()
		p.DstAsset = asset(5)
		if _, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1}); err != ErrVaultNotFound {
			t.Errorf("missing dst vault: err = %v, want ErrVaultNotFound", err)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SwapsEnabled = false
		e, _ := newConfidentialEngine(t, WithConfig(cfg))
		if _, err := e.QueueConfidentialSwap(context.Background(), addr(1), confidentialParams(), []byte{1}); err != ErrSwapsDisabled {
			t.Errorf("err = %v, want ErrSwapsDisabled", err)
		}
	})

	t.Run("Spent Nullifier Rejected", func(t *testing.T) {
		e, _ := newConfidentialEngine(t)
		p := confidentialParams()
		err := e.Withdraw(WithdrawParams{
			Asset:     NativeAsset,
			Amount:    100,
			Nullifier: p.Nullifier,
			Recipient: addr(2),
			Proof:     []byte{1},
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1}); err != ErrNullifierSpent {
			t.Errorf("err = %v, want ErrNullifierSpent", err)
		}
	})

	t.Run("Stale Oracle Price", func(t *testing.T) {
		feed := oracle.NewStaticFeed()
		feed.Set(NativeAsset, oracle.PriceData{Price: 150, Exponent: -2, PublishTime: 0})
		e, clock := newConfidentialEngine(t, WithOracle(feed))
		clock.now = 10_000 // far past the observation

		if _, err := e.QueueConfidentialSwap(context.Background(), addr(1), confidentialParams(), []byte{1}); err != ErrStalePrice {
			t.Errorf("err = %v, want ErrStalePrice", err)
		}

		feed.Set(NativeAsset, oracle.PriceData{Price: 150, Exponent: -2, PublishTime: clock.now})
		id, err := e.QueueConfidentialSwap(context.Background(), addr(1), confidentialParams(), []byte{1})
		if err != nil {
			t.Fatalf("queue with fresh price: %v", err)
		}
		req, _ := e.Request(id)
		if req.CurrentPrice == 0 {
			t.Error("fresh price not captured on the request")
		}
	})

	t.Run("Wrapped Missing Price Tolerated", func(t *testing.T) {
		e, _ := newConfidentialEngine(t, WithOracle(wrappingMissFeed{}))

		id, err := e.QueueConfidentialSwap(context.Background(), addr(1), confidentialParams(), []byte{1})
		if err != nil {
			t.Fatalf("queue with missing price: %v", err)
		}
		req, _ := e.Request(id)
		if req.CurrentPrice != 0 {
			t.Errorf("price = %d, want 0 when unavailable", req.CurrentPrice)
		}
	})
}

// wrappingMissFeed reports every price as unavailable through a wrapped
// sentinel, the way a production feed annotates lookup failures.
type wrappingMissFeed struct{}

func (wrappingMissFeed) Price([32]byte) (oracle.PriceData, error) {
	return oracle.PriceData{}, fmt.Errorf("price account lookup: %w", oracle.ErrPriceUnavailable)
}

func TestConfidentialCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("Success Settles Deferred Effects", func(t *testing.T) {
		e, _ := newConfidentialEngine(t)
		p := confidentialParams()
		id, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1})
		if err != nil {
			t.Fatal(err)
		}

		err = e.ConfidentialCallback(ctx, mxe.Callback{
			RequestID: id,
			Success:   true,
			Result:    []byte("encrypted"),
		})
		if err != nil {
			t.Fatalf("callback: %v", err)
		}

		req, _ := e.Request(id)
		if req.Status != StatusCompleted {
			t.Errorf("status = %v, want completed", req.Status)
		}
		spent, _ := e.NullifierSpent(NativeAsset, p.Nullifier)
		if !spent {
			t.Error("success callback must spend the bound nullifier")
		}
		info, _ := e.Info(NativeAsset)
		if info.TreeSize != 2 {
			t.Errorf("tree size = %d, want 2 (change commitment inserted)", info.TreeSize)
		}
		if info.Custody != 10_000_000-p.Amount {
			t.Errorf("custody = %d", info.Custody)
		}
	})

	t.Run("Failure Leaves State Untouched", func(t *testing.T) {
		e, _ := newConfidentialEngine(t)
		p := confidentialParams()
		id, _ := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1})
		before, _ := e.Info(NativeAsset)

		err := e.ConfidentialCallback(ctx, mxe.Callback{RequestID: id, Success: false})
		if err != nil {
			t.Fatalf("failure callback: %v", err)
		}

		after, _ := e.Info(NativeAsset)
		if before != after {
			t.Error("failure callback mutated vault state")
		}
		spent, _ := e.NullifierSpent(NativeAsset, p.Nullifier)
		if spent {
			t.Error("failure callback spent the nullifier")
		}
		req, _ := e.Request(id)
		if req.Status != StatusFailed {
			t.Errorf("status = %v, want failed", req.Status)
		}
	})

	t.Run("Replay Rejected", func(t *testing.T) {
		e, _ := newConfidentialEngine(t)
		id, _ := e.QueueConfidentialSwap(context.Background(), addr(1), confidentialParams(), []byte{1})

		if err := e.ConfidentialCallback(ctx, mxe.Callback{RequestID: id, Success: false}); err != nil {
			t.Fatal(err)
		}
		err := e.ConfidentialCallback(ctx, mxe.Callback{RequestID: id, Success: true})
		if err != ErrInvalidComputationStatus {
			t.Errorf("replay: err = %v, want ErrInvalidComputationStatus", err)
		}
	})

	t.Run("Expired Callback Then Cancel", func(t *testing.T) {
		// Queue with a 60s deadline, deliver success at t+100: the callback
		// is rejected, the request stays pending, and only the requester's
		// cancel can end it.
		e, clock := newConfidentialEngine(t)
		p := confidentialParams()
		p.TimeoutSeconds = 60
		id, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1})
		if err != nil {
			t.Fatal(err)
		}

		clock.now += 100
		err = e.ConfidentialCallback(ctx, mxe.Callback{RequestID: id, Success: true})
		if err != ErrComputationExpired {
			t.Fatalf("late callback: err = %v, want ErrComputationExpired", err)
		}
		req, _ := e.Request(id)
		if req.Status != StatusPending {
			t.Errorf("status after expired callback = %v, want pending", req.Status)
		}
		spent, _ := e.NullifierSpent(NativeAsset, p.Nullifier)
		if spent {
			t.Error("expired callback spent the nullifier")
		}

		clock.now++
		if err := e.CancelComputation(id, addr(1)); err != nil {
			t.Fatalf("cancel after expiry: %v", err)
		}
		req, _ = e.Request(id)
		if req.Status != StatusCancelled {
			t.Errorf("status = %v, want cancelled", req.Status)
		}
	})

	t.Run("Authentication", func(t *testing.T) {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatal(err)
		}
		e, _ := newTestEngine(WithAuthenticator(mxe.NewEd25519Authenticator(pub)))
		e.CreateVault(NativeAsset, addr(9))
		mustDeposit(t, e, NativeAsset, 10_000_000, leaf(7))
		id, err := e.QueueConfidentialSwap(context.Background(), addr(1), confidentialParams(), []byte{1})
		if err != nil {
			t.Fatal(err)
		}

		cb := mxe.Callback{RequestID: id, Success: true, Result: []byte("r")}
		if err := e.ConfidentialCallback(ctx, cb); err != ErrUnauthenticatedCallback {
			t.Errorf("unsigned callback: err = %v, want ErrUnauthenticatedCallback", err)
		}

		cb.Attestation = mxe.Sign(priv, cb)
		if err := e.ConfidentialCallback(ctx, cb); err != nil {
			t.Errorf("signed callback: %v", err)
		}

		// Tampering after signing invalidates the attestation.
		id2, err := e.QueueConfidentialSwap(context.Background(), addr(1), ConfidentialParams{
			SrcAsset:  NativeAsset,
			DstAsset:  NativeAsset,
			Amount:    5_000_000,
			Recipient: addr(2),
			Nullifier: leaf(0xe9),
		}, []byte{1})
		if err != nil {
			t.Fatal(err)
		}
		cb2 := mxe.Callback{RequestID: id2, Success: false}
		cb2.Attestation = mxe.Sign(priv, cb2)
		cb2.Success = true
		if err := e.ConfidentialCallback(ctx, cb2); err != ErrUnauthenticatedCallback {
			t.Errorf("tampered callback: err = %v, want ErrUnauthenticatedCallback", err)
		}
	})

	t.Run("Mirror Update Applied", func(t *testing.T) {
		e, _ := newConfidentialEngine(t)
		id, _ := e.QueueConfidentialSwap(context.Background(), addr(1), confidentialParams(), []byte{1})

		update := &mxe.MirrorUpdate{}
		update.State[0][0] = 0x42
		update.Nonce[0] = 0x07
		err := e.ConfidentialCallback(ctx, mxe.Callback{RequestID: id, Success: true, Mirror: update})
		if err != nil {
			t.Fatal(err)
		}

		e.mu.Lock()
		mirror := e.vaults[NativeAsset].Mirror
		e.mu.Unlock()
		if mirror.State[0][0] != 0x42 || mirror.Nonce[0] != 0x07 {
			t.Errorf("mirror = %+v, update not applied", mirror)
		}
	})

	t.Run("Position Update Applied", func(t *testing.T) {
		e, _ := newConfidentialEngine(t)
		id, _ := e.QueueConfidentialSwap(context.Background(), addr(1), confidentialParams(), []byte{1})

		update := &mxe.PositionUpdate{Owner: addr(1)}
		update.State[1][0] = 0x9c
		update.Nonce[0] = 0x03
		err := e.ConfidentialCallback(ctx, mxe.Callback{RequestID: id, Success: true, Position: update})
		if err != nil {
			t.Fatal(err)
		}

		e.mu.Lock()
		pos := e.vaults[NativeAsset].Positions[addr(1)]
		e.mu.Unlock()
		if pos == nil {
			t.Fatal("position not created")
		}
		if pos.State[1][0] != 0x9c || pos.Nonce[0] != 0x03 {
			t.Errorf("position = %+v, update not applied", pos)
		}
	})
}

// recordingFabric captures submissions so tests can assert on them.
type recordingFabric struct {
	reqs []mxe.Request
	err  error
}

func (f *recordingFabric) Submit(_ context.Context, req mxe.Request) error {
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	return nil
}

func TestFabricSubmission(t *testing.T) {
	t.Run("Queued Payload Reaches Fabric", func(t *testing.T) {
		fabric := &recordingFabric{}
		e, clock := newConfidentialEngine(t, WithFabric(fabric))

		p := confidentialParams()
		p.Strategy.Ciphertext = []byte{0xaa, 0xbb}
		p.Strategy.Nonce[0] = 0x11
		id, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1})
		if err != nil {
			t.Fatal(err)
		}

		if len(fabric.reqs) != 1 {
			t.Fatalf("submissions = %d, want 1", len(fabric.reqs))
		}
		sub := fabric.reqs[0]
		if sub.ID != id {
			t.Errorf("submission id = %d, want %d", sub.ID, id)
		}
		if len(sub.Ciphertext) != 2 || sub.Ciphertext[0] != 0xaa {
			t.Errorf("ciphertext = %x, payload not forwarded", sub.Ciphertext)
		}
		if sub.Nonce[0] != 0x11 {
			t.Error("strategy nonce not forwarded")
		}
		if sub.Deadline != clock.now+DefaultComputationTimeout {
			t.Errorf("deadline = %d, want %d", sub.Deadline, clock.now+DefaultComputationTimeout)
		}
	})

	t.Run("Submit Failure Queues Nothing", func(t *testing.T) {
		fabric := &recordingFabric{err: context.DeadlineExceeded}
		e, _ := newConfidentialEngine(t, WithFabric(fabric))

		_, err := e.QueueConfidentialSwap(context.Background(), addr(1), confidentialParams(), []byte{1})
		if err != context.DeadlineExceeded {
			t.Fatalf("err = %v, want submit failure", err)
		}
		if _, err := e.Request(1); err != ErrRequestNotFound {
			t.Errorf("request created despite submit failure: %v", err)
		}
	})
}

func TestCancelComputation(t *testing.T) {
	e, clock := newConfidentialEngine(t)
	p := confidentialParams()
	p.TimeoutSeconds = 60
	id, err := e.QueueConfidentialSwap(context.Background(), addr(1), p, []byte{1})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Before Expiry Rejected", func(t *testing.T) {
		if err := e.CancelComputation(id, addr(1)); err != ErrComputationNotExpired {
			t.Errorf("err = %v, want ErrComputationNotExpired", err)
		}
		// Exactly at the deadline still counts as not expired.
		clock.now = p.TimeoutSeconds + 1000
		if err := e.CancelComputation(id, addr(1)); err != ErrComputationNotExpired {
			t.Errorf("at deadline: err = %v, want ErrComputationNotExpired", err)
		}
	})

	t.Run("Wrong Requester Rejected", func(t *testing.T) {
		clock.now += 10
		if err := e.CancelComputation(id, addr(3)); err != ErrUnauthorized {
			t.Errorf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("Unknown Request", func(t *testing.T) {
		if err := e.CancelComputation(9999, addr(1)); err != ErrRequestNotFound {
			t.Errorf("err = %v, want ErrRequestNotFound", err)
		}
	})

	t.Run("Succeeds Once Then Terminal", func(t *testing.T) {
		if err := e.CancelComputation(id, addr(1)); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if err := e.CancelComputation(id, addr(1)); err != ErrInvalidComputationStatus {
			t.Errorf("second cancel: err = %v, want ErrInvalidComputationStatus", err)
		}
	})
}
