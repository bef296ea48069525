// Package merkle builds route trees over facet routes. Two pairing conventions
// are supported: sorted-pair, where each pair is ordered by value before
// hashing, and ordered, where pairs keep their position and proofs carry one
// position bit per level.
package merkle

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/VectorBits/facetsplit/src/internal/abi"
	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Leaf tags keep leaf families apart when they share a tree.
const (
	TagRoute byte = 0x01
	TagChunk byte = 0x02
)

// MaxDepth bounds ordered proofs so positions fit in one uint64.
const MaxDepth = 64

type Convention string

const (
	SortedPair Convention = "sorted-pair"
	Ordered    Convention = "ordered"
)

var (
	ErrEmpty             = errors.New("merkle: no leaves")
	ErrIndexOutOfRange   = errors.New("merkle: leaf index out of range")
	ErrUnknownConvention = errors.New("merkle: unknown convention")
)

// RouteLeaf hashes a route as tag ‖ selector ‖ facet ‖ codehash.
func RouteLeaf(sel abi.Selector, facet common.Address, codehash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{TagRoute}, sel[:], facet.Bytes(), codehash.Bytes())
}

func hashPair(conv Convention, left, right common.Hash) common.Hash {
	if conv == SortedPair && bytes.Compare(left[:], right[:]) > 0 {
		left, right = right, left
	}
	return crypto.Keccak256Hash(left[:], right[:])
}

// Tree keeps every level so proofs can be read off without rehashing.
// levels[0] are the leaves and the last level holds the root.
type Tree struct {
	conv   Convention
	levels [][]common.Hash
}

// Build hashes leaves pairwise up to a single root. A level with an odd number
// of nodes pairs its last node with itself. A single leaf is its own root.
func Build(conv Convention, leaves []common.Hash) (*Tree, error) {
	if conv != SortedPair && conv != Ordered {
		return nil, fmt.Errorf("%w %q", ErrUnknownConvention, conv)
	}
	if len(leaves) == 0 {
		return nil, ErrEmpty
	}
	level := append([]common.Hash(nil), leaves...)
	t := &Tree{conv: conv, levels: [][]common.Hash{level}}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(conv, level[i], right))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

func (t *Tree) Convention() Convention { return t.conv }

func (t *Tree) Root() common.Hash { return t.levels[len(t.levels)-1][0] }

func (t *Tree) Len() int { return len(t.levels[0]) }

func (t *Tree) Leaf(i int) common.Hash { return t.levels[0][i] }

// Proof is the sibling path of one leaf, bottom up. Positions is set only for
// the ordered convention: bit i is 1 when the sibling at level i sits on the
// left.
type Proof struct {
	Convention Convention
	Index      int
	Siblings   []common.Hash
	Positions  *bitset.BitSet
}

// PositionBits packs Positions LSB-first into a uint64.
func (p *Proof) PositionBits() uint64 {
	if p.Positions == nil {
		return 0
	}
	words := p.Positions.Words()
	if len(words) == 0 {
		return 0
	}
	return words[0]
}

// Proof returns the path from leaf i to the root.
func (t *Tree) Proof(i int) (*Proof, error) {
	if i < 0 || i >= t.Len() {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, t.Len())
	}
	p := &Proof{Convention: t.conv, Index: i, Siblings: []common.Hash{}}
	if t.conv == Ordered {
		p.Positions = bitset.New(uint(len(t.levels) - 1))
	}
	idx := i
	for depth, level := range t.levels[:len(t.levels)-1] {
		sib := idx ^ 1
		if sib >= len(level) {
			sib = idx
		}
		p.Siblings = append(p.Siblings, level[sib])
		if p.Positions != nil && idx%2 == 1 {
			p.Positions.Set(uint(depth))
		}
		idx /= 2
	}
	return p, nil
}

// VerifySorted folds leaf through siblings with sorted pairing and compares
// against root.
func VerifySorted(leaf common.Hash, siblings []common.Hash, root common.Hash) bool {
	h := leaf
	for _, s := range siblings {
		h = hashPair(SortedPair, h, s)
	}
	return h == root
}

// VerifyOrdered folds leaf upward, placing the sibling at level i on the left
// when bit i of positions is set. Bits at or above len(siblings) must be clear.
// A node paired with itself is the odd last node of its level, which always
// sits on the left, so its bit must be clear too.
func VerifyOrdered(leaf common.Hash, siblings []common.Hash, positions uint64, root common.Hash) bool {
	if len(siblings) > MaxDepth {
		return false
	}
	if len(siblings) < MaxDepth && positions>>uint(len(siblings)) != 0 {
		return false
	}
	h := leaf
	for i, s := range siblings {
		if positions&(1<<uint(i)) != 0 {
			if s == h {
				return false
			}
			h = hashPair(Ordered, s, h)
		} else {
			h = hashPair(Ordered, h, s)
		}
	}
	return h == root
}

// Verify checks p for leaf against root under the proof's own convention.
func Verify(leaf common.Hash, p *Proof, root common.Hash) bool {
	switch p.Convention {
	case SortedPair:
		return VerifySorted(leaf, p.Siblings, root)
	case Ordered:
		return VerifyOrdered(leaf, p.Siblings, p.PositionBits(), root)
	}
	return false
}
