// engine.go - The shielded pool engine: vault registry, computation queue
// and snapshot persistence.
//
// All state transitions take the single engine mutex. Within a transition
// every fallible check runs before the first mutation, so a failed call
// leaves no partial state behind.

package zyncx

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xr10t/zyncx/internal/dex"
	"github.com/0xr10t/zyncx/internal/mxe"
	"github.com/0xr10t/zyncx/internal/oracle"
	"github.com/0xr10t/zyncx/internal/verifier"
)

// Default limits for confidential swap amounts and callback timeouts.
const (
	DefaultMinConfidentialAmount = 1_000_000
	DefaultMaxConfidentialAmount = 1_000_000_000_000
	DefaultComputationTimeout    = 300 // seconds
	DefaultMaxPriceAge           = 60  // seconds
)

// Config carries engine-level tunables.
type Config struct {
	// MinAmount and MaxAmount bound confidential swap sizes.
	MinAmount uint64 `json:"min_amount"`
	MaxAmount uint64 `json:"max_amount"`
	// DefaultTimeout is the callback deadline, in seconds, applied when a
	// request does not specify its own.
	DefaultTimeout int64 `json:"default_timeout"`
	// MaxPriceAge is the oracle staleness bound in seconds.
	MaxPriceAge int64 `json:"max_price_age"`
	// SwapsEnabled gates the confidential swap queue.
	SwapsEnabled bool `json:"swaps_enabled"`
}

// DefaultConfig returns the standard engine limits.
func DefaultConfig() Config {
	return Config{
		MinAmount:      DefaultMinConfidentialAmount,
		MaxAmount:      DefaultMaxConfidentialAmount,
		DefaultTimeout: DefaultComputationTimeout,
		MaxPriceAge:    DefaultMaxPriceAge,
		SwapsEnabled:   true,
	}
}

// Engine owns every vault and the confidential computation queue.
type Engine struct {
	mu sync.Mutex

	vaults         map[Asset]*Vault
	requests       map[uint64]*ComputationRequest
	requestCounter uint64

	nullifiers *NullifierGuard
	verifier   verifier.Verifier
	executor   dex.Executor
	oracle     oracle.Feed
	auth       mxe.Authenticator
	fabric     mxe.Fabric

	feed Feed
	cfg  Config
	log  *logrus.Logger

	// now is swappable for tests.
	now func() int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default engine limits.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithExecutor installs the swap execution venue.
func WithExecutor(x dex.Executor) Option {
	return func(e *Engine) { e.executor = x }
}

// WithOracle installs a price feed consulted at confidential queue time.
func WithOracle(f oracle.Feed) Option {
	return func(e *Engine) { e.oracle = f }
}

// WithAuthenticator installs the callback authenticator.
func WithAuthenticator(a mxe.Authenticator) Option {
	return func(e *Engine) { e.auth = a }
}

// WithFabric installs the compute fabric that receives queued payloads.
func WithFabric(f mxe.Fabric) Option {
	return func(e *Engine) { e.fabric = f }
}

// WithLogger installs a structured logger.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the engine clock, in unix seconds.
func WithClock(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an engine around a nullifier guard and proof verifier.
func NewEngine(guard *NullifierGuard, v verifier.Verifier, opts ...Option) *Engine {
	e := &Engine{
		vaults:     make(map[Asset]*Vault),
		requests:   make(map[uint64]*ComputationRequest),
		nullifiers: guard,
		verifier:   v,
		cfg:        DefaultConfig(),
		now:        func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logrus.New()
		e.log.SetOutput(os.Stderr)
	}
	return e
}

// Events returns the engine's subscription feed.
func (e *Engine) Events() *Feed { return &e.feed }

// CreateVault registers a vault for asset under the given authority. The
// zero asset denotes the native vault.
func (e *Engine) CreateVault(asset Asset, authority Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.vaults[asset]; ok {
		return ErrVaultExists
	}
	v := newVault(asset, authority)
	e.vaults[asset] = v
	e.log.WithFields(logrus.Fields{
		"asset": asset.Hex(),
		"kind":  v.Kind.String(),
	}).Info("vault created")
	return nil
}

// vault returns the registered vault for asset. Callers hold e.mu.
func (e *Engine) vault(asset Asset) (*Vault, error) {
	v, ok := e.vaults[asset]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return v, nil
}

// Root returns the current Merkle root of the asset's tree.
func (e *Engine) Root(asset Asset) (Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vault(asset)
	if err != nil {
		return Hash{}, err
	}
	return v.Tree.Root(), nil
}

// RootExists reports whether root appears in the asset's recent-root window.
func (e *Engine) RootExists(asset Asset, root Hash) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vault(asset)
	if err != nil {
		return false, err
	}
	return v.Tree.RootExists(root), nil
}

// NullifierSpent reports whether nullifier has been consumed against the
// asset's vault.
func (e *Engine) NullifierSpent(asset Asset, nullifier Hash) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vault(asset)
	if err != nil {
		return false, err
	}
	return e.nullifiers.Spent(v.Asset, nullifier)
}

// Request returns a copy of the computation request with the given id.
func (e *Engine) Request(id uint64) (ComputationRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests[id]
	if !ok {
		return ComputationRequest{}, ErrRequestNotFound
	}
	return *req, nil
}

// VaultInfo is a read-only view of a vault's public state.
type VaultInfo struct {
	Asset          Asset     `json:"asset"`
	Kind           VaultKind `json:"kind"`
	Authority      Address   `json:"authority"`
	Nonce          uint64    `json:"nonce"`
	TotalDeposited uint64    `json:"total_deposited"`
	Custody        uint64    `json:"custody"`
	TreeSize       uint64    `json:"tree_size"`
	TreeHeight     uint8     `json:"tree_height"`
	Root           Hash      `json:"root"`
}

// Info returns a snapshot of the asset's vault.
func (e *Engine) Info(asset Asset) (VaultInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.vault(asset)
	if err != nil {
		return VaultInfo{}, err
	}
	return VaultInfo{
		Asset:          v.Asset,
		Kind:           v.Kind,
		Authority:      v.Authority,
		Nonce:          v.Nonce,
		TotalDeposited: v.TotalDeposited,
		Custody:        v.Custody,
		TreeSize:       v.Tree.Size(),
		TreeHeight:     v.Tree.Height(),
		Root:           v.Tree.Root(),
	}, nil
}

// Assets lists the registered vault assets.
func (e *Engine) Assets() []Asset {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Asset, 0, len(e.vaults))
	for a := range e.vaults {
		out = append(out, a)
	}
	return out
}

// insertLeaf appends a commitment to the vault tree and emits the leaf
// event. Callers hold e.mu and have already confirmed capacity via
// CanInsert.
func (e *Engine) insertLeaf(v *Vault, leaf Hash) (uint64, error) {
	idx := v.Tree.Size()
	root, err := v.Tree.Insert(leaf)
	if err != nil {
		return 0, err
	}
	e.feed.leafAppended.Send(LeafAppendedEvent{
		Asset:     v.Asset,
		Leaf:      leaf,
		LeafIndex: idx,
		Root:      root,
	})
	return idx, nil
}

// verifySpend checks the spend proof against the vault's current root and
// the not-yet-spent nullifier. It mutates nothing.
func (e *Engine) verifySpend(v *Vault, proof []byte, nullifier Hash, recipient Address, amount uint64, newCommitment Hash) error {
	spent, err := e.nullifiers.Spent(v.Asset, nullifier)
	if err != nil {
		return err
	}
	if spent {
		return ErrNullifierSpent
	}
	inputs := verifier.SpendInputs(v.Tree.Root(), nullifier, recipient, amount, newCommitment)
	if err := e.verifier.Verify(proof, inputs); err != nil {
		return fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}
	return nil
}

// engineSnapshot is the JSON persistence shape.
type engineSnapshot struct {
	Vaults         []vaultSnapshot       `json:"vaults"`
	Requests       []*ComputationRequest `json:"requests"`
	RequestCounter uint64                `json:"request_counter"`
	Config         Config                `json:"config"`
	SavedAt        int64                 `json:"saved_at"`
}

// SaveToFile writes the engine state as JSON. Nullifier records live in the
// key-value store and are not part of the snapshot.
func (e *Engine) SaveToFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := engineSnapshot{
		RequestCounter: e.requestCounter,
		Config:         e.cfg,
		SavedAt:        e.now(),
	}
	for _, v := range e.vaults {
		snap.Vaults = append(snap.Vaults, v.snapshot())
	}
	for _, r := range e.requests {
		snap.Requests = append(snap.Requests, r)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal engine state: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadFromFile restores engine state previously written by SaveToFile. A
// missing file is not an error; the engine simply starts empty.
func (e *Engine) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read engine state: %w", err)
	}
	var snap engineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal engine state: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	vaults := make(map[Asset]*Vault, len(snap.Vaults))
	for _, vs := range snap.Vaults {
		v, err := vaultFromSnapshot(vs)
		if err != nil {
			return fmt.Errorf("restore vault %x: %w", vs.Asset[:4], err)
		}
		vaults[v.Asset] = v
	}
	requests := make(map[uint64]*ComputationRequest, len(snap.Requests))
	for _, r := range snap.Requests {
		requests[r.ID] = r
	}
	e.vaults = vaults
	e.requests = requests
	e.requestCounter = snap.RequestCounter
	e.log.WithFields(logrus.Fields{
		"vaults":   len(vaults),
		"requests": len(requests),
	}).Info("engine state restored")
	return nil
}
