// vault.go - Per-asset vault ledger and its encrypted mirror state.
//
// A vault owns one commitment tree and tracks the custody balance (value
// currently held for the shielded pool) plus a cumulative deposit total and
// a bookkeeping nonce. The mirror state is a set of opaque ciphertext tuples
// maintained by the external compute fabric: the engine stores and swaps
// them wholesale on authenticated callbacks and never inspects the contents.

package zyncx

// VaultKind distinguishes native-value vaults from fungible-token vaults.
// The kind is fixed at creation.
type VaultKind uint8

const (
	// KindNative holds native value.
	KindNative VaultKind = iota
	// KindToken holds fungible-token value.
	KindToken
)

// String returns the kind name.
func (k VaultKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindToken:
		return "token"
	default:
		return "unknown"
	}
}

// kindForAsset derives the vault kind from the asset identifier: the zero
// asset is native, everything else is a token.
func kindForAsset(asset Asset) VaultKind {
	if asset.IsNative() {
		return KindNative
	}
	return KindToken
}

// Vault is the per-asset ledger account.
type Vault struct {
	Asset     Asset
	Kind      VaultKind
	Authority Address

	// Nonce increments on every deposit; it only ever increases.
	Nonce uint64
	// TotalDeposited accumulates all deposits; withdrawals do not decrease it.
	TotalDeposited uint64
	// Custody is the value currently held by the vault.
	Custody uint64

	Tree *CommitmentTree

	Mirror    EncryptedMirror
	Positions map[Address]*EncryptedPosition
}

// EncryptedMirror is the vault-level ciphertext tuple maintained by the
// compute fabric, plus its re-encryption nonce.
type EncryptedMirror struct {
	State [3][32]byte `json:"state"`
	Nonce [16]byte    `json:"nonce"`
}

// EncryptedPosition is the per-user ciphertext pair maintained by the
// compute fabric.
type EncryptedPosition struct {
	Owner     Address     `json:"owner"`
	State     [2][32]byte `json:"state"`
	Nonce     [16]byte    `json:"nonce"`
	CreatedAt int64       `json:"created_at"`
}

func newVault(asset Asset, authority Address) *Vault {
	return &Vault{
		Asset:     asset,
		Kind:      kindForAsset(asset),
		Authority: authority,
		Tree:      NewCommitmentTree(),
		Positions: make(map[Address]*EncryptedPosition),
	}
}

// creditCustody adds amount to custody and the cumulative total with
// overflow checks. Called only after all other checks have passed.
func (v *Vault) creditCustody(amount uint64) error {
	if v.TotalDeposited+amount < v.TotalDeposited {
		return ErrArithmeticOverflow
	}
	if v.Custody+amount < v.Custody {
		return ErrArithmeticOverflow
	}
	v.TotalDeposited += amount
	v.Custody += amount
	v.Nonce++
	return nil
}

// debitCustody removes amount from custody. Callers must have verified the
// balance beforehand; this is the last step of a transition.
func (v *Vault) debitCustody(amount uint64) {
	v.Custody -= amount
}

// vaultSnapshot is the persistence form of a vault.
type vaultSnapshot struct {
	Asset          Asset                         `json:"asset"`
	Kind           VaultKind                     `json:"kind"`
	Authority      Address                       `json:"authority"`
	Nonce          uint64                        `json:"nonce"`
	TotalDeposited uint64                        `json:"total_deposited"`
	Custody        uint64                        `json:"custody"`
	Tree           treeSnapshot                  `json:"tree"`
	Mirror         EncryptedMirror               `json:"mirror"`
	Positions      map[string]*EncryptedPosition `json:"positions,omitempty"`
}

func (v *Vault) snapshot() vaultSnapshot {
	positions := make(map[string]*EncryptedPosition, len(v.Positions))
	for owner, pos := range v.Positions {
		positions[owner.Hex()] = pos
	}
	return vaultSnapshot{
		Asset:          v.Asset,
		Kind:           v.Kind,
		Authority:      v.Authority,
		Nonce:          v.Nonce,
		TotalDeposited: v.TotalDeposited,
		Custody:        v.Custody,
		Tree:           v.Tree.snapshot(),
		Mirror:         v.Mirror,
		Positions:      positions,
	}
}

func vaultFromSnapshot(s vaultSnapshot) (*Vault, error) {
	positions := make(map[Address]*EncryptedPosition, len(s.Positions))
	for ownerHex, pos := range s.Positions {
		var owner Address
		if err := owner.UnmarshalText([]byte(ownerHex)); err != nil {
			return nil, err
		}
		positions[owner] = pos
	}
	return &Vault{
		Asset:          s.Asset,
		Kind:           s.Kind,
		Authority:      s.Authority,
		Nonce:          s.Nonce,
		TotalDeposited: s.TotalDeposited,
		Custody:        s.Custody,
		Tree:           treeFromSnapshot(s.Tree),
		Mirror:         s.Mirror,
		Positions:      positions,
	}, nil
}
