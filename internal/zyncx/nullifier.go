// nullifier.go - Double-spend guard over (vault, nullifier) records.
//
// Each nullifier may be consumed at most once per vault. The guard maps a
// (vault, nullifier) pair onto one deterministic storage key and creates the
// record with the store's atomic create-if-absent primitive: if the slot is
// occupied, the spend is rejected outright. There is no read-flag-then-write
// step anywhere, which is what makes the guard race-free under any
// concurrent storage model. The spent flag and timestamp on the record exist
// for external queries only.

package zyncx

import (
	"encoding/json"
	"fmt"

	"github.com/0xr10t/zyncx/internal/store"
)

// NullifierRecord is the persistent proof that a nullifier was consumed.
// Records are created exactly once and never deleted or un-spent.
type NullifierRecord struct {
	Nullifier Hash  `json:"nullifier"`
	Vault     Asset `json:"vault"`
	Spent     bool  `json:"spent"`
	SpentAt   int64 `json:"spent_at"`
}

// NullifierGuard enforces single consumption of each (vault, nullifier) pair.
type NullifierGuard struct {
	kv store.KV
}

// NewNullifierGuard creates a guard backed by the given store.
func NewNullifierGuard(kv store.KV) *NullifierGuard {
	return &NullifierGuard{kv: kv}
}

// CreateAndSpend claims the record slot for (vault, nullifier) and marks it
// spent at the given time. Fails with ErrNullifierSpent if any record for
// the pair already exists, regardless of its contents.
func (g *NullifierGuard) CreateAndSpend(vault Asset, nullifier Hash, now int64) (*NullifierRecord, error) {
	rec := &NullifierRecord{
		Nullifier: nullifier,
		Vault:     vault,
		Spent:     true,
		SpentAt:   now,
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("zyncx: encode nullifier record: %w", err)
	}
	created, err := g.kv.PutIfAbsent(nullifierKey(vault, nullifier), value)
	if err != nil {
		return nil, fmt.Errorf("zyncx: store nullifier record: %w", err)
	}
	if !created {
		return nil, ErrNullifierSpent
	}
	return rec, nil
}

// Record returns the record for (vault, nullifier) if one exists.
func (g *NullifierGuard) Record(vault Asset, nullifier Hash) (*NullifierRecord, bool, error) {
	value, ok, err := g.kv.Get(nullifierKey(vault, nullifier))
	if err != nil || !ok {
		return nil, false, err
	}
	var rec NullifierRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, false, fmt.Errorf("zyncx: decode nullifier record: %w", err)
	}
	return &rec, true, nil
}

// Spent reports whether the nullifier was already consumed against the vault.
func (g *NullifierGuard) Spent(vault Asset, nullifier Hash) (bool, error) {
	return g.kv.Has(nullifierKey(vault, nullifier))
}

// nullifierKey derives the deterministic storage key for a pair.
func nullifierKey(vault Asset, nullifier Hash) []byte {
	key := make([]byte, 0, 2+32+32)
	key = append(key, 'n', '/')
	key = append(key, vault[:]...)
	key = append(key, nullifier[:]...)
	return key
}
