// request.go - Confidential computation requests.
//
// A request freezes the irreversible parts of a confidential swap (the
// nullifier spend, the change commitment, the value movement) until the
// external compute fabric reports an outcome. Status transitions are
// strictly one-way: a request leaves Pending exactly once and never
// returns.

package zyncx

// ComputationStatus is the lifecycle state of a computation request.
type ComputationStatus uint8

const (
	// StatusPending means the request is queued and awaiting a callback.
	StatusPending ComputationStatus = iota
	// StatusCompleted means the computation succeeded and its effects were
	// applied.
	StatusCompleted
	// StatusFailed means the computation reported failure; funds remain
	// untouched and may be re-attempted with a fresh nullifier.
	StatusFailed
	// StatusExpired is reserved for wire compatibility; expiry is observed
	// lazily and exits through cancellation.
	StatusExpired
	// StatusCancelled means the requester cancelled after expiry.
	StatusCancelled
)

// String returns the status name.
func (s ComputationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status permits no further transition.
func (s ComputationStatus) Terminal() bool { return s != StatusPending }

// EncryptedStrategy carries the user's encrypted trading bounds. Only the
// compute fabric can evaluate the ciphertext; the engine stores it verbatim.
type EncryptedStrategy struct {
	Ciphertext    []byte   `json:"ciphertext"`
	Nonce         [12]byte `json:"nonce"`
	EncryptionKey [32]byte `json:"encryption_key"`
}

// ConfidentialParams are the caller-supplied parameters of a confidential
// swap request.
type ConfidentialParams struct {
	SrcAsset      Asset
	DstAsset      Asset
	Amount        uint64
	Recipient     Address
	Strategy      EncryptedStrategy
	Nullifier     Hash
	NewCommitment Hash
	// TimeoutSeconds overrides the engine default when positive.
	TimeoutSeconds int64
}

// ComputationRequest tracks one outstanding confidential computation.
type ComputationRequest struct {
	ID        uint64            `json:"id"`
	Requester Address           `json:"requester"`
	SrcAsset  Asset             `json:"src_asset"`
	DstAsset  Asset             `json:"dst_asset"`
	Amount    uint64            `json:"amount"`
	Recipient Address           `json:"recipient"`
	Strategy  EncryptedStrategy `json:"strategy"`

	// Nullifier and NewCommitment are bound at queue time but consumed only
	// by a successful callback.
	Nullifier     Hash `json:"nullifier"`
	NewCommitment Hash `json:"new_commitment"`

	Status      ComputationStatus `json:"status"`
	QueuedAt    int64             `json:"queued_at"`
	ExpiresAt   int64             `json:"expires_at"`
	CompletedAt int64             `json:"completed_at"`

	// CurrentPrice is the oracle price captured at queue time, 0 when no
	// oracle is configured.
	CurrentPrice uint64 `json:"current_price"`

	// Result is the opaque encrypted result delivered by the fabric.
	Result []byte `json:"result,omitempty"`
}
