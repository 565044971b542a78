package decompression

import (
	"github.com/pkg/errors"
	"math"
	"math/rand"
	"testing"
)

func TestNewAdaptiveHuffmanTreeLimits(t *testing.T) {
	for _, count := range []uint16{0, 21846, 0x8000, 0xFFFF} {
		if _, err := NewAdaptiveHuffmanTree(count); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%d: expected ErrInvalidArgument, got %v", count, err)
		}
	}
	if _, err := NewAdaptiveHuffmanTree(21845); err != nil {
		t.Fatal(err)
	}
}

func TestSimpleTree(t *testing.T) {
	tree, err := NewAdaptiveHuffmanTree(2)
	if err != nil {
		t.Fatal(err)
	}

	if tree.TerminalNodeCount() != 2 {
		t.Fatalf("expected(2) != actual(%d)", tree.TerminalNodeCount())
	}

	root := tree.RootNodeIndex()
	if root != 2 {
		t.Fatalf("expected root(2) != actual(%d)", root)
	}
	if leaf, _ := tree.IsLeaf(root); leaf {
		t.Fatal("expected the root to be an internal node")
	}

	for code, right := range []bool{false, true} {
		child, err := tree.ChildNode(root, right)
		if err != nil {
			t.Fatal(err)
		}
		if leaf, _ := tree.IsLeaf(child); !leaf {
			t.Fatalf("%d: expected a terminal node", code)
		}
		if data, _ := tree.NodeData(child); data != uint16(code) {
			t.Fatalf("expected(%d) != actual(%d)", code, data)
		}

		bits, n, err := tree.EncodedBitString(uint16(code))
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 || bits != uint64(code) {
			t.Fatalf("%d: expected 1 bit of %d, got %d bits of %b", code, code, n, bits)
		}
	}
}

func TestEncodeDecodeAllCodes(t *testing.T) {
	tree := newAdaptiveHuffmanTree(terminalCount)
	verifyRoundTrip(t, tree)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		if err := tree.UpdateCodeCount(skewedCode(rng)); err != nil {
			t.Fatal(err)
		}
	}
	verifyRoundTrip(t, tree)
}

func TestSiblingPropertyAfterUpdates(t *testing.T) {
	tree := newAdaptiveHuffmanTree(terminalCount)
	verifySiblingProperty(t, tree)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		if err := tree.UpdateCodeCount(skewedCode(rng)); err != nil {
			t.Fatal(err)
		}
		if i%250 == 0 {
			verifySiblingProperty(t, tree)
		}
	}
	verifySiblingProperty(t, tree)
}

func TestFrequentCodesAreShorter(t *testing.T) {
	tree := newAdaptiveHuffmanTree(terminalCount)
	counts := make([]int, terminalCount)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 3000; i++ {
		code := skewedCode(rng)
		counts[code]++
		if err := tree.UpdateCodeCount(code); err != nil {
			t.Fatal(err)
		}
	}

	depths := make([]uint, terminalCount)
	for code := range depths {
		_, n, err := tree.EncodedBitString(uint16(code))
		if err != nil {
			t.Fatal(err)
		}
		depths[code] = n
	}

	for a := range counts {
		for b := range counts {
			if counts[a] > counts[b] && depths[a] > depths[b] {
				t.Fatalf("code %d seen %d times is deeper (%d) than code %d seen %d times (%d)",
					a, counts[a], depths[a], b, counts[b], depths[b])
			}
		}
	}
}

func TestOutOfRange(t *testing.T) {
	tree := newAdaptiveHuffmanTree(terminalCount)
	nodeCount := uint16(terminalCount*2 - 1)

	if _, err := tree.ChildNode(nodeCount, false); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("ChildNode: expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := tree.IsLeaf(nodeCount); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("IsLeaf: expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := tree.NodeData(0xFFFF); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("NodeData: expected ErrIndexOutOfRange, got %v", err)
	}
	if err := tree.UpdateCodeCount(terminalCount); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("UpdateCodeCount: expected ErrIndexOutOfRange, got %v", err)
	}
	if _, _, err := tree.EncodedBitString(terminalCount); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("EncodedBitString: expected ErrIndexOutOfRange, got %v", err)
	}
}

// skewedCode favours low codes so that the tree keeps restructuring.
func skewedCode(rng *rand.Rand) uint16 {
	if rng.Intn(4) == 0 {
		return uint16(rng.Intn(terminalCount))
	}
	return uint16(int(rng.ExpFloat64()*12) % terminalCount)
}

func verifyRoundTrip(t *testing.T, tree *AdaptiveHuffmanTree) {
	t.Helper()

	for code := uint16(0); code < tree.TerminalNodeCount(); code++ {
		bits, n, err := tree.EncodedBitString(code)
		if err != nil {
			t.Fatal(err)
		}

		node := tree.RootNodeIndex()
		for i := uint(0); i < n; i++ {
			node, err = tree.ChildNode(node, bits>>i&1 == 1)
			if err != nil {
				t.Fatal(err)
			}
		}

		if leaf, _ := tree.IsLeaf(node); !leaf {
			t.Fatalf("code %d: path of %d bits ends at internal node %d", code, n, node)
		}
		if data, _ := tree.NodeData(node); data != code {
			t.Fatalf("expected(%d) != actual(%d)", code, data)
		}
	}
}

func verifySiblingProperty(t *testing.T, tree *AdaptiveHuffmanTree) {
	t.Helper()

	for i := uint16(1); i < tree.nodeCount; i++ {
		if tree.subtreeCount[i-1] > tree.subtreeCount[i] {
			t.Fatalf("count of node %d (%d) exceeds count of node %d (%d)",
				i-1, tree.subtreeCount[i-1], i, tree.subtreeCount[i])
		}
	}

	seen := make([]bool, tree.terminalCount)
	for i := uint16(0); i < tree.nodeCount; i++ {
		leaf, _ := tree.IsLeaf(i)
		if leaf {
			code, _ := tree.NodeData(i)
			if seen[code] {
				t.Fatalf("code %d held by more than one terminal node", code)
			}
			seen[code] = true
			if tree.parentIndex[code+tree.nodeCount] != i {
				t.Fatalf("code %d maps to node %d, expected %d", code, tree.parentIndex[code+tree.nodeCount], i)
			}
			continue
		}

		left := tree.linkOrData[i]
		if left&1 != 0 {
			t.Fatalf("node %d has left child at odd index %d", i, left)
		}
		if left >= i || left+1 >= i {
			t.Fatalf("node %d is not above its children %d and %d", i, left, left+1)
		}
		if tree.parentIndex[left] != i || tree.parentIndex[left+1] != i {
			t.Fatalf("children of node %d point at parents %d and %d",
				i, tree.parentIndex[left], tree.parentIndex[left+1])
		}
		if sum := tree.subtreeCount[left] + tree.subtreeCount[left+1]; sum != tree.subtreeCount[i] {
			t.Fatalf("node %d count %d != children sum %d", i, tree.subtreeCount[i], sum)
		}
	}
}

// Counts are 16-bit. Once the root count wraps, the next update finds no
// block leader below the root.
func TestUpdateCodeCountOverflow(t *testing.T) {
	tree := newAdaptiveHuffmanTree(3)
	for n := 1; n <= math.MaxUint16; n++ {
		err := tree.UpdateCodeCount(2)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
		}
		if n != math.MaxUint16-1 {
			t.Fatalf("expected(%d) != actual(%d) updates before overflow", math.MaxUint16-1, n)
		}
		return
	}
	t.Fatal("expected the counts to overflow")
}
