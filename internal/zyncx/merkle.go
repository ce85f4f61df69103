// merkle.go - Append-only commitment tree with bounded root history.
//
// The tree records every commitment ever inserted for a vault and keeps the
// last RootHistorySize roots in a ring buffer, so a proof anchored to a
// recent (not necessarily current) root can still be checked. Leaves are
// never updated or removed.
//
// The root is recomputed from the full leaf sequence on every insert rather
// than maintained incrementally. Leaf cap and depth cap are small fixed
// constants, so the recomputation stays within the per-call compute budget.

package zyncx

import (
	"math/bits"
)

const (
	// MaxDepth bounds the tree height.
	MaxDepth = 20
	// MaxLeaves bounds the number of commitments per vault.
	MaxLeaves = 100
	// RootHistorySize is the length of the root history ring buffer. Proofs
	// anchored to a root evicted from this window must be regenerated
	// against a current root.
	RootHistorySize = 30
)

// CommitmentTree is the append-only hash tree over a vault's commitments.
type CommitmentTree struct {
	size      uint64
	height    uint8
	root      Hash
	roots     [RootHistorySize]Hash
	rootIndex int
	leaves    []Hash
}

// NewCommitmentTree creates an empty tree. The empty tree's root is the zero
// sentinel.
func NewCommitmentTree() *CommitmentTree {
	return &CommitmentTree{}
}

// Size returns the number of leaves.
func (t *CommitmentTree) Size() uint64 { return t.size }

// Height returns the current tree height (0 for zero or one leaf).
func (t *CommitmentTree) Height() uint8 { return t.height }

// Root returns the current root.
func (t *CommitmentTree) Root() Hash { return t.root }

// Leaves returns the ordered leaf sequence. The returned slice is shared with
// the tree and must not be modified.
func (t *CommitmentTree) Leaves() []Hash { return t.leaves }

// CanInsert reports whether another leaf fits within the leaf and depth caps.
// Callers use it to reject a whole transition before any state is mutated.
func (t *CommitmentTree) CanInsert() bool {
	return len(t.leaves) < MaxLeaves && uint32(t.height) < MaxDepth
}

// Insert appends a leaf, recomputes the root, and records it in the root
// history. Returns the new root, or ErrTreeFull when either cap is reached.
func (t *CommitmentTree) Insert(leaf Hash) (Hash, error) {
	if !t.CanInsert() {
		return ZeroHash, ErrTreeFull
	}

	t.leaves = append(t.leaves, leaf)
	t.size++

	newRoot := t.computeRoot()
	t.root = newRoot

	t.rootIndex = (t.rootIndex + 1) % RootHistorySize
	t.roots[t.rootIndex] = newRoot

	t.height = treeHeight(t.size)
	return newRoot, nil
}

// Has reports whether the leaf appears in the leaf sequence.
func (t *CommitmentTree) Has(leaf Hash) bool {
	for _, l := range t.leaves {
		if l == leaf {
			return true
		}
	}
	return false
}

// RootExists scans the root history ring backward from the cursor. The zero
// sentinel is always reported absent: it is reserved and never a valid
// non-empty root.
func (t *CommitmentTree) RootExists(root Hash) bool {
	if root.IsZero() {
		return false
	}
	idx := t.rootIndex
	for i := 0; i < RootHistorySize; i++ {
		if t.roots[idx] == root {
			return true
		}
		if idx == 0 {
			idx = RootHistorySize - 1
		} else {
			idx--
		}
	}
	return false
}

// computeRoot folds the leaf sequence pairwise bottom-up. An unmatched node
// at the end of any level is paired with the zero sentinel.
func (t *CommitmentTree) computeRoot() Hash {
	if len(t.leaves) == 0 {
		return ZeroHash
	}
	if len(t.leaves) == 1 {
		return foldNodes(t.leaves[0], ZeroHash)
	}

	level := make([]Hash, len(t.leaves))
	copy(level, t.leaves)

	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := ZeroHash
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, foldNodes(level[i], right))
		}
		level = next
	}
	return level[0]
}

// treeHeight returns the height for the given leaf count: the bit length of
// size-1, i.e. ceil(log2(size)), and 0 when size <= 1.
func treeHeight(size uint64) uint8 {
	if size <= 1 {
		return 0
	}
	return uint8(bits.Len64(size - 1))
}

// treeSnapshot is the persistence form of a tree.
type treeSnapshot struct {
	Size      uint64                `json:"size"`
	Height    uint8                 `json:"height"`
	Root      Hash                  `json:"root"`
	Roots     [RootHistorySize]Hash `json:"roots"`
	RootIndex int                   `json:"root_index"`
	Leaves    []Hash                `json:"leaves"`
}

func (t *CommitmentTree) snapshot() treeSnapshot {
	return treeSnapshot{
		Size:      t.size,
		Height:    t.height,
		Root:      t.root,
		Roots:     t.roots,
		RootIndex: t.rootIndex,
		Leaves:    append([]Hash(nil), t.leaves...),
	}
}

func treeFromSnapshot(s treeSnapshot) *CommitmentTree {
	return &CommitmentTree{
		size:      s.Size,
		height:    s.Height,
		root:      s.Root,
		roots:     s.Roots,
		rootIndex: s.RootIndex,
		leaves:    append([]Hash(nil), s.Leaves...),
	}
}
