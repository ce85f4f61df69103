// events.go - Typed engine events and the subscription feed.

package zyncx

import (
	notify "github.com/ethereum/go-ethereum/event"
)

// DepositedEvent is emitted after a successful deposit. The precommitment
// is public; only the holder of the off-ledger secret can re-derive the
// amount/precommitment pairing.
type DepositedEvent struct {
	Asset         Asset
	Depositor     Address
	Amount        uint64
	Commitment    Hash
	Precommitment Hash
	LeafIndex     uint64
	Root          Hash
	Timestamp     int64
}

// WithdrawnEvent is emitted after a successful withdrawal.
type WithdrawnEvent struct {
	Asset     Asset
	Nullifier Hash
	Recipient Address
	Amount    uint64
	// Partial is true when a change commitment re-entered the pool.
	Partial   bool
	Timestamp int64
}

// SwappedEvent is emitted after a successful single-pool or cross-pool swap.
type SwappedEvent struct {
	SrcAsset     Asset
	DstAsset     Asset
	Nullifier    Hash
	Recipient    Address
	AmountIn     uint64
	MinAmountOut uint64
	Partial      bool
	Timestamp    int64
}

// LeafAppendedEvent is emitted for every commitment inserted into a tree.
type LeafAppendedEvent struct {
	Asset     Asset
	Leaf      Hash
	LeafIndex uint64
	Root      Hash
}

// ComputationQueuedEvent is emitted when a confidential swap request is
// accepted into the queue.
type ComputationQueuedEvent struct {
	RequestID uint64
	Requester Address
	SrcAsset  Asset
	DstAsset  Asset
	Amount    uint64
	ExpiresAt int64
}

// ComputationFinishedEvent is emitted when a callback settles a request,
// successfully or not.
type ComputationFinishedEvent struct {
	RequestID uint64
	Success   bool
	Timestamp int64
}

// ComputationCancelledEvent is emitted when a requester cancels an expired
// request.
type ComputationCancelledEvent struct {
	RequestID uint64
	Requester Address
	Timestamp int64
}

// Feed fans engine events out to subscribers. One notify.Feed per concrete
// event type keeps subscription channels strongly typed.
type Feed struct {
	scope notify.SubscriptionScope

	deposited            notify.Feed
	withdrawn            notify.Feed
	swapped              notify.Feed
	leafAppended         notify.Feed
	computationQueued    notify.Feed
	computationFinished  notify.Feed
	computationCancelled notify.Feed
}

func (f *Feed) SubscribeDeposited(ch chan<- DepositedEvent) notify.Subscription {
	return f.scope.Track(f.deposited.Subscribe(ch))
}

func (f *Feed) SubscribeWithdrawn(ch chan<- WithdrawnEvent) notify.Subscription {
	return f.scope.Track(f.withdrawn.Subscribe(ch))
}

func (f *Feed) SubscribeSwapped(ch chan<- SwappedEvent) notify.Subscription {
	return f.scope.Track(f.swapped.Subscribe(ch))
}

func (f *Feed) SubscribeLeafAppended(ch chan<- LeafAppendedEvent) notify.Subscription {
	return f.scope.Track(f.leafAppended.Subscribe(ch))
}

func (f *Feed) SubscribeComputationQueued(ch chan<- ComputationQueuedEvent) notify.Subscription {
	return f.scope.Track(f.computationQueued.Subscribe(ch))
}

func (f *Feed) SubscribeComputationFinished(ch chan<- ComputationFinishedEvent) notify.Subscription {
	return f.scope.Track(f.computationFinished.Subscribe(ch))
}

func (f *Feed) SubscribeComputationCancelled(ch chan<- ComputationCancelledEvent) notify.Subscription {
	return f.scope.Track(f.computationCancelled.Subscribe(ch))
}

// Close terminates all tracked subscriptions.
func (f *Feed) Close() {
	f.scope.Close()
}
