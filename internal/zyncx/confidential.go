// confidential.go - Confidential swap queue, callback and cancellation.
//
// Queueing binds the nullifier and change commitment to a request but
// spends neither: both are irreversible, so they wait for the compute
// fabric's authenticated verdict. A failed computation leaves all custody
// and trees untouched; an expired request can only exit through Cancel.

package zyncx

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/0xr10t/zyncx/internal/mxe"
	"github.com/0xr10t/zyncx/internal/oracle"
)

// QueueConfidentialSwap admits a confidential swap request into the queue
// and hands the encrypted strategy to the compute fabric. The proof is
// checked for presence here; full spend verification happens when the
// callback settles the request.
func (e *Engine) QueueConfidentialSwap(ctx context.Context, requester Address, p ConfidentialParams, proof []byte) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.SwapsEnabled {
		return 0, ErrSwapsDisabled
	}
	if p.Amount < e.cfg.MinAmount {
		return 0, ErrAmountTooSmall
	}
	if p.Amount > e.cfg.MaxAmount {
		return 0, ErrAmountTooLarge
	}
	src, err := e.vault(p.SrcAsset)
	if err != nil {
		return 0, err
	}
	if src.Kind != kindForAsset(p.SrcAsset) {
		return 0, ErrVaultKindMismatch
	}
	if p.SrcAsset != p.DstAsset {
		if _, err := e.vault(p.DstAsset); err != nil {
			return 0, err
		}
	}
	if len(proof) == 0 {
		return 0, ErrProofInvalid
	}
	spent, err := e.nullifiers.Spent(src.Asset, p.Nullifier)
	if err != nil {
		return 0, err
	}
	if spent {
		return 0, ErrNullifierSpent
	}

	now := e.now()
	var price uint64
	if e.oracle != nil {
		obs, err := e.oracle.Price(p.SrcAsset)
		if err == nil {
			if obs.Stale(now, e.cfg.MaxPriceAge) {
				return 0, ErrStalePrice
			}
			price, err = obs.Scaled(9)
			if err != nil {
				return 0, err
			}
		} else if !errors.Is(err, oracle.ErrPriceUnavailable) {
			return 0, err
		}
	}

	timeout := p.TimeoutSeconds
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	id := e.requestCounter + 1
	if e.fabric != nil {
		sub := mxe.Request{
			ID:            id,
			Ciphertext:    p.Strategy.Ciphertext,
			Nonce:         p.Strategy.Nonce,
			EncryptionKey: p.Strategy.EncryptionKey,
			Deadline:      now + timeout,
		}
		if err := e.fabric.Submit(ctx, sub); err != nil {
			return 0, err
		}
	}
	e.requestCounter = id
	req := &ComputationRequest{
		ID:            id,
		Requester:     requester,
		SrcAsset:      p.SrcAsset,
		DstAsset:      p.DstAsset,
		Amount:        p.Amount,
		Recipient:     p.Recipient,
		Strategy:      p.Strategy,
		Nullifier:     p.Nullifier,
		NewCommitment: p.NewCommitment,
		Status:        StatusPending,
		QueuedAt:      now,
		ExpiresAt:     now + timeout,
		CurrentPrice:  price,
	}
	e.requests[req.ID] = req

	e.feed.computationQueued.Send(ComputationQueuedEvent{
		RequestID: req.ID,
		Requester: requester,
		SrcAsset:  p.SrcAsset,
		DstAsset:  p.DstAsset,
		Amount:    p.Amount,
		ExpiresAt: req.ExpiresAt,
	})
	e.log.WithFields(logrus.Fields{
		"request":    req.ID,
		"amount":     p.Amount,
		"expires_at": req.ExpiresAt,
	}).Info("confidential swap queued")
	return req.ID, nil
}

// ConfidentialCallback settles a pending request with the fabric's verdict.
// Expired requests are rejected without a status change; a second callback
// for the same request is rejected by the pending-only rule. On success the
// deferred nullifier-spend, commitment-insert and value movement all happen
// here, in one unit.
func (e *Engine) ConfidentialCallback(ctx context.Context, cb mxe.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.auth == nil {
		return ErrUnauthenticatedCallback
	}
	if err := e.auth.Authenticate(cb); err != nil {
		return ErrUnauthenticatedCallback
	}
	req, ok := e.requests[cb.RequestID]
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return ErrInvalidComputationStatus
	}
	now := e.now()
	if now > req.ExpiresAt {
		return ErrComputationExpired
	}

	if !cb.Success {
		req.Status = StatusFailed
		req.CompletedAt = now
		req.Result = cb.Result
		e.feed.computationFinished.Send(ComputationFinishedEvent{
			RequestID: req.ID,
			Success:   false,
			Timestamp: now,
		})
		e.log.WithField("request", req.ID).Info("confidential computation rejected trade")
		return nil
	}

	src, err := e.vault(req.SrcAsset)
	if err != nil {
		return err
	}
	if src.Custody < req.Amount {
		return ErrInsufficientFunds
	}
	insertChange := !req.NewCommitment.IsZero()
	if insertChange && !src.Tree.CanInsert() {
		return ErrTreeFull
	}
	spent, err := e.nullifiers.Spent(src.Asset, req.Nullifier)
	if err != nil {
		return err
	}
	if spent {
		return ErrNullifierSpent
	}
	if req.SrcAsset != req.DstAsset {
		if e.executor == nil {
			return ErrSwapsDisabled
		}
		ins := swapInstruction(SwapParams{
			SrcAsset:  req.SrcAsset,
			DstAsset:  req.DstAsset,
			Recipient: req.Recipient,
			AmountIn:  req.Amount,
		})
		if _, err := e.executor.Execute(ctx, ins); err != nil {
			return err
		}
	}

	if _, err := e.nullifiers.CreateAndSpend(src.Asset, req.Nullifier, now); err != nil {
		return err
	}
	if insertChange {
		if _, err := e.insertLeaf(src, req.NewCommitment); err != nil {
			return err
		}
	}
	src.debitCustody(req.Amount)
	if cb.Mirror != nil {
		src.Mirror = EncryptedMirror{State: cb.Mirror.State, Nonce: cb.Mirror.Nonce}
	}
	if cb.Position != nil {
		owner := Address(cb.Position.Owner)
		pos, ok := src.Positions[owner]
		if !ok {
			pos = &EncryptedPosition{Owner: owner, CreatedAt: now}
			src.Positions[owner] = pos
		}
		pos.State = cb.Position.State
		pos.Nonce = cb.Position.Nonce
	}

	req.Status = StatusCompleted
	req.CompletedAt = now
	req.Result = cb.Result
	e.feed.computationFinished.Send(ComputationFinishedEvent{
		RequestID: req.ID,
		Success:   true,
		Timestamp: now,
	})
	e.log.WithFields(logrus.Fields{
		"request": req.ID,
		"amount":  req.Amount,
	}).Info("confidential swap executed")
	return nil
}

// CancelComputation lets the original requester abandon a request that is
// still pending past its deadline. No value had moved, so none moves back.
func (e *Engine) CancelComputation(id uint64, requester Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, ok := e.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if req.Requester != requester {
		return ErrUnauthorized
	}
	if req.Status != StatusPending {
		return ErrInvalidComputationStatus
	}
	now := e.now()
	if now <= req.ExpiresAt {
		return ErrComputationNotExpired
	}

	req.Status = StatusCancelled
	req.CompletedAt = now
	e.feed.computationCancelled.Send(ComputationCancelledEvent{
		RequestID: id,
		Requester: requester,
		Timestamp: now,
	})
	e.log.WithField("request", id).Info("computation cancelled")
	return nil
}
