package merkle

import (
	"errors"
	"math/big"
	"math/bits"
)

var (
	ErrEmptyTree  = errors.New("merkle: no leaves")
	ErrDepth      = errors.New("merkle: depth too small for leaf count")
	ErrIndexRange = errors.New("merkle: leaf index out of range")
)

// Fixed-depth binary Merkle tree stored level-by-level. Levels are not padded:
// a missing right sibling is the precomputed zero value of its level.
type Tree struct {
	Depth  int
	Zeros  []*big.Int   // Zeros[0]=empty leaf, Zeros[i]=H(Zeros[i-1], Zeros[i-1])
	Levels [][]*big.Int // Levels[0]=leaves, Levels[Depth]=root
	hasher Hasher
}

// Proof is a membership proof for one leaf.
// PathIndices[i]=0 ⇒ current node is the left child at level i.
type Proof struct {
	Root         *big.Int
	Leaf         *big.Int
	PathElements []*big.Int
	PathIndices  []uint8
}

// DepthFor returns the smallest depth D >= 1 with 2^D >= n.
func DepthFor(n int) int {
	if n <= 2 {
		return 1
	}
	return bits.Len(uint(n - 1))
}

// ZeroValues returns the per-level zero values for depth levels.
func ZeroValues(h Hasher, depth int) []*big.Int {
	zeros := make([]*big.Int, depth+1)
	zeros[0] = new(big.Int)
	for i := 1; i <= depth; i++ {
		zeros[i] = h.Combine(zeros[i-1], zeros[i-1])
	}
	return zeros
}

func Build(leaves []*big.Int, depth int, h Hasher) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	if depth < 1 || depth < DepthFor(len(leaves)) {
		return nil, ErrDepth
	}
	zeros := ZeroValues(h, depth)

	levels := make([][]*big.Int, 0, depth+1)
	L0 := make([]*big.Int, len(leaves))
	for i, l := range leaves {
		L0[i] = new(big.Int).Set(l)
	}
	levels = append(levels, L0)

	// Build up
	for level := 0; level < depth; level++ {
		prev := levels[level]
		up := make([]*big.Int, (len(prev)+1)/2)
		for i := range up {
			right := zeros[level]
			if 2*i+1 < len(prev) {
				right = prev[2*i+1]
			}
			up[i] = h.Combine(prev[2*i], right)
		}
		levels = append(levels, up)
	}

	return &Tree{Depth: depth, Zeros: zeros, Levels: levels, hasher: h}, nil
}

func (t *Tree) Hasher() Hasher { return t.hasher }

func (t *Tree) Root() *big.Int { return new(big.Int).Set(t.Levels[t.Depth][0]) }

func (t *Tree) NumLeaves() int { return len(t.Levels[0]) }

// Path returns the membership proof of leaf idx.
func (t *Tree) Path(idx int) (Proof, error) {
	if idx < 0 || idx >= len(t.Levels[0]) {
		return Proof{}, ErrIndexRange
	}
	p := Proof{
		Root:         t.Root(),
		Leaf:         new(big.Int).Set(t.Levels[0][idx]),
		PathElements: make([]*big.Int, 0, t.Depth),
		PathIndices:  make([]uint8, 0, t.Depth),
	}
	cur := idx
	for level := 0; level < t.Depth; level++ {
		sib := cur ^ 1
		nodes := t.Levels[level]
		if sib < len(nodes) {
			p.PathElements = append(p.PathElements, new(big.Int).Set(nodes[sib]))
		} else {
			p.PathElements = append(p.PathElements, new(big.Int).Set(t.Zeros[level]))
		}
		p.PathIndices = append(p.PathIndices, uint8(cur&1))
		cur >>= 1
	}
	return p, nil
}

// ComputeRoot replays the sibling combine from the leaf.
func ComputeRoot(h Hasher, leaf *big.Int, pathElements []*big.Int, pathIndices []uint8) (*big.Int, bool) {
	if leaf == nil || len(pathElements) != len(pathIndices) {
		return nil, false
	}
	cur := new(big.Int).Set(leaf)
	for i, sib := range pathElements {
		if sib == nil {
			return nil, false
		}
		switch pathIndices[i] {
		case 0:
			cur = h.Combine(cur, sib)
		case 1:
			cur = h.Combine(sib, cur)
		default:
			return nil, false
		}
	}
	return cur, true
}

func Verify(h Hasher, p Proof, expectedRoot *big.Int) bool {
	if expectedRoot == nil {
		return false
	}
	root, ok := ComputeRoot(h, p.Leaf, p.PathElements, p.PathIndices)
	return ok && root.Cmp(expectedRoot) == 0
}
