package merkle

import (
	"strconv"
	"testing"

	"github.com/VectorBits/facetsplit/src/internal/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaves(n int) []common.Hash {
	out := make([]common.Hash, n)
	for i := range out {
		out[i] = crypto.Keccak256Hash([]byte("leaf-" + strconv.Itoa(i)))
	}
	return out
}

func TestRouteLeaf(t *testing.T) {
	sel := abi.SelectorFromSignature("transfer(address,uint256)")
	facet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	codehash := common.HexToHash("0x01")

	want := crypto.Keccak256Hash(append(append(append([]byte{0x01}, sel[:]...), facet.Bytes()...), codehash.Bytes()...))
	assert.Equal(t, want, RouteLeaf(sel, facet, codehash))
	assert.NotEqual(t, want, RouteLeaf(sel, facet, common.HexToHash("0x02")))
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(SortedPair, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Build("zigzag", leaves(2))
	assert.ErrorIs(t, err, ErrUnknownConvention)

	tree, err := Build(Ordered, leaves(3))
	require.NoError(t, err)
	_, err = tree.Proof(3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = tree.Proof(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSingleLeaf(t *testing.T) {
	l := leaves(1)
	for _, conv := range []Convention{SortedPair, Ordered} {
		tree, err := Build(conv, l)
		require.NoError(t, err)
		assert.Equal(t, l[0], tree.Root())

		p, err := tree.Proof(0)
		require.NoError(t, err)
		assert.Empty(t, p.Siblings)
		assert.Zero(t, p.PositionBits())
		assert.True(t, Verify(l[0], p, tree.Root()))
	}
}

func TestSortedPairIgnoresPairOrder(t *testing.T) {
	l := leaves(2)
	a, err := Build(SortedPair, []common.Hash{l[0], l[1]})
	require.NoError(t, err)
	b, err := Build(SortedPair, []common.Hash{l[1], l[0]})
	require.NoError(t, err)
	assert.Equal(t, a.Root(), b.Root())

	c, err := Build(Ordered, []common.Hash{l[0], l[1]})
	require.NoError(t, err)
	d, err := Build(Ordered, []common.Hash{l[1], l[0]})
	require.NoError(t, err)
	assert.NotEqual(t, c.Root(), d.Root())
	assert.Equal(t, crypto.Keccak256Hash(l[0][:], l[1][:]), c.Root())
}

func TestOddLevelDuplicatesLast(t *testing.T) {
	l := leaves(3)
	tree, err := Build(Ordered, l)
	require.NoError(t, err)

	left := crypto.Keccak256Hash(l[0][:], l[1][:])
	right := crypto.Keccak256Hash(l[2][:], l[2][:])
	assert.Equal(t, crypto.Keccak256Hash(left[:], right[:]), tree.Root())
}

func TestRoundTrip(t *testing.T) {
	for _, conv := range []Convention{SortedPair, Ordered} {
		for _, n := range []int{1, 2, 3, 5, 8, 13, 64} {
			t.Run(string(conv)+"/"+strconv.Itoa(n), func(t *testing.T) {
				l := leaves(n)
				tree, err := Build(conv, l)
				require.NoError(t, err)
				for i := range l {
					p, err := tree.Proof(i)
					require.NoError(t, err)
					assert.True(t, Verify(l[i], p, tree.Root()), "leaf %d", i)
				}
			})
		}
	}
}

func TestConventionsDiffer(t *testing.T) {
	l := leaves(5)
	sorted, err := Build(SortedPair, l)
	require.NoError(t, err)
	ordered, err := Build(Ordered, l)
	require.NoError(t, err)
	assert.NotEqual(t, sorted.Root(), ordered.Root())

	p, err := ordered.Proof(1)
	require.NoError(t, err)
	assert.False(t, Verify(l[1], p, sorted.Root()))
}

func TestOrderedPositions(t *testing.T) {
	tree, err := Build(Ordered, leaves(8))
	require.NoError(t, err)

	p, err := tree.Proof(5) // 0b101
	require.NoError(t, err)
	assert.Len(t, p.Siblings, 3)
	assert.Equal(t, uint64(0b101), p.PositionBits())
}

func TestTamperedProofsFail(t *testing.T) {
	for _, n := range []int{8, 5, 13} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			assertTamperedProofsFail(t, leaves(n))
		})
	}
}

func TestOrderedRejectsFlippedDuplicateBit(t *testing.T) {
	l := leaves(5)
	tree, err := Build(Ordered, l)
	require.NoError(t, err)

	p, err := tree.Proof(4)
	require.NoError(t, err)
	require.Equal(t, uint64(0b100), p.PositionBits())
	assert.True(t, VerifyOrdered(l[4], p.Siblings, 0b100, tree.Root()))
	assert.False(t, VerifyOrdered(l[4], p.Siblings, 0b101, tree.Root()), "leaf 4 pairs with itself at level 0")
	assert.False(t, VerifyOrdered(l[4], p.Siblings, 0b110, tree.Root()), "level 1 duplicates its odd last node too")
}

func assertTamperedProofsFail(t *testing.T, l []common.Hash) {
	t.Helper()
	for _, conv := range []Convention{SortedPair, Ordered} {
		tree, err := Build(conv, l)
		require.NoError(t, err)
		root := tree.Root()

		for i := range l {
			p, err := tree.Proof(i)
			require.NoError(t, err)

			for b := 0; b < common.HashLength; b++ {
				leaf := l[i]
				leaf[b] ^= 0x01
				assert.False(t, Verify(leaf, p, root), "%s leaf %d byte %d", conv, i, b)
			}

			for s := range p.Siblings {
				for b := 0; b < common.HashLength; b++ {
					siblings := append([]common.Hash(nil), p.Siblings...)
					siblings[s][b] ^= 0x80
					tampered := &Proof{Convention: conv, Index: i, Siblings: siblings, Positions: p.Positions}
					assert.False(t, Verify(l[i], tampered, root), "%s leaf %d sibling %d byte %d", conv, i, s, b)
				}
			}

			if conv != Ordered {
				continue
			}
			for bit := 0; bit < MaxDepth; bit++ {
				positions := p.PositionBits() ^ (1 << uint(bit))
				assert.False(t, VerifyOrdered(l[i], p.Siblings, positions, root), "leaf %d position bit %d", i, bit)
			}
		}
	}
}

func TestVerifyOrderedDepthLimit(t *testing.T) {
	siblings := make([]common.Hash, MaxDepth+1)
	assert.False(t, VerifyOrdered(common.Hash{}, siblings, 0, common.Hash{}))
}
