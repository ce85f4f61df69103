// errors.go - Error taxonomy for the shielded pool engine.
//
// Every operation is a single atomic unit: when one of these errors is
// returned, no state mutation made by that call is observable. Errors fall
// into five groups: input validation, capacity, authorization/proof,
// state conflict, and resource exhaustion. None are retried by the engine.

package zyncx

import "errors"

var (
	// Input validation.
	ErrInvalidAmount     = errors.New("zyncx: amount must be greater than zero")
	ErrVaultKindMismatch = errors.New("zyncx: vault kind does not match asset")
	ErrAssetMismatch     = errors.New("zyncx: swap asset does not match vault asset")
	ErrSameVaultSwap     = errors.New("zyncx: cross-pool swap requires distinct vaults")
	ErrVaultExists       = errors.New("zyncx: vault already registered for asset")
	ErrVaultNotFound     = errors.New("zyncx: vault not found for asset")
	ErrAmountTooSmall    = errors.New("zyncx: amount below confidential minimum")
	ErrAmountTooLarge    = errors.New("zyncx: amount above confidential maximum")
	ErrSwapsDisabled     = errors.New("zyncx: confidential swaps are disabled")

	// Capacity.
	ErrTreeFull = errors.New("zyncx: commitment tree capacity exceeded")

	// Authorization / proof.
	ErrProofInvalid            = errors.New("zyncx: proof verification failed")
	ErrUnauthenticatedCallback = errors.New("zyncx: callback attestation rejected")
	ErrUnauthorized            = errors.New("zyncx: caller is not the requester")

	// State conflict.
	ErrNullifierSpent           = errors.New("zyncx: nullifier already spent")
	ErrInvalidComputationStatus = errors.New("zyncx: computation request is not pending")
	ErrComputationExpired       = errors.New("zyncx: computation request expired")
	ErrComputationNotExpired    = errors.New("zyncx: computation request has not expired yet")
	ErrRequestNotFound          = errors.New("zyncx: computation request not found")

	// Resource.
	ErrInsufficientFunds  = errors.New("zyncx: insufficient vault custody balance")
	ErrArithmeticOverflow = errors.New("zyncx: arithmetic overflow")
	ErrStalePrice         = errors.New("zyncx: oracle price is stale")
)
