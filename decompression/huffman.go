package decompression

import (
	"github.com/pkg/errors"
	"math"
)

// AdaptiveHuffmanTree is a Huffman tree whose shape follows the observed
// code frequencies. Codes live in the terminal (leaf) nodes. From the root,
// a 0 bit follows the left branch and a 1 bit the right branch.
//
// Nodes are kept in three parallel arrays indexed by node number. Scanning
// upward through the indices, subtree counts never decrease, siblings are
// adjacent (left child at an even index, right child directly after it) and
// parents sit above their children. The root is the last node.
type AdaptiveHuffmanTree struct {
	terminalCount uint16
	nodeCount     uint16
	root          uint16

	// linkOrData holds the left child index of an internal node, or
	// code+nodeCount for a terminal node.
	linkOrData []uint16

	// subtreeCount holds the number of occurrences of all codes below a node.
	subtreeCount []uint16

	// parentIndex has nodeCount+terminalCount entries. Below nodeCount it
	// maps a node to its parent; from nodeCount up it maps code+nodeCount to
	// the terminal node holding that code.
	parentIndex []uint16
}

// NewAdaptiveHuffmanTree builds a balanced tree with codes 0 through
// terminalCount-1 in the terminal nodes, left to right, each with a count
// of 1. Terminal nodes store code+nodeCount in 16 bits, which caps
// terminalCount at 21845.
func NewAdaptiveHuffmanTree(terminalCount uint16) (*AdaptiveHuffmanTree, error) {
	if terminalCount == 0 || uint32(terminalCount)*3-2 > math.MaxUint16 {
		return nil, errors.Wrapf(ErrInvalidArgument, "adaptive huffman tree cannot hold %d terminal nodes", terminalCount)
	}
	return newAdaptiveHuffmanTree(terminalCount), nil
}

func newAdaptiveHuffmanTree(terminalCount uint16) *AdaptiveHuffmanTree {
	nodeCount := terminalCount*2 - 1
	tree := &AdaptiveHuffmanTree{
		terminalCount: terminalCount,
		nodeCount:     nodeCount,
		root:          nodeCount - 1,
		linkOrData:    make([]uint16, nodeCount),
		subtreeCount:  make([]uint16, nodeCount),
		parentIndex:   make([]uint16, int(nodeCount)+int(terminalCount)),
	}

	for i := uint16(0); i < terminalCount; i++ {
		tree.linkOrData[i] = i + nodeCount
		tree.subtreeCount[i] = 1
		tree.parentIndex[i] = (i >> 1) + terminalCount
		tree.parentIndex[i+nodeCount] = i
	}

	left := uint16(0)
	for i := terminalCount; i < nodeCount; i++ {
		tree.linkOrData[i] = left
		tree.subtreeCount[i] = tree.subtreeCount[left] + tree.subtreeCount[left+1]
		tree.parentIndex[i] = (i >> 1) + terminalCount
		left += 2
	}

	return tree
}

func (t *AdaptiveHuffmanTree) TerminalNodeCount() uint16 { return t.terminalCount }

// RootNodeIndex is where every tree search starts.
func (t *AdaptiveHuffmanTree) RootNodeIndex() uint16 { return t.root }

func (t *AdaptiveHuffmanTree) ChildNode(nodeIndex uint16, right bool) (uint16, error) {
	if err := t.verifyNodeIndex(nodeIndex); err != nil {
		return 0, err
	}

	child := t.linkOrData[nodeIndex]
	if right {
		child++
	}
	return child, nil
}

func (t *AdaptiveHuffmanTree) IsLeaf(nodeIndex uint16) (bool, error) {
	if err := t.verifyNodeIndex(nodeIndex); err != nil {
		return false, err
	}
	return t.linkOrData[nodeIndex] >= t.nodeCount, nil
}

// NodeData returns the code held by a terminal node. The result is
// meaningless for internal nodes.
func (t *AdaptiveHuffmanTree) NodeData(nodeIndex uint16) (uint16, error) {
	if err := t.verifyNodeIndex(nodeIndex); err != nil {
		return 0, err
	}
	return t.linkOrData[nodeIndex] - t.nodeCount, nil
}

// UpdateCodeCount records one more occurrence of code and restructures the
// tree so that frequent codes move toward the root.
func (t *AdaptiveHuffmanTree) UpdateCodeCount(code uint16) error {
	if err := t.verifyCode(code); err != nil {
		return err
	}

	cur := t.parentIndex[code+t.nodeCount]
	t.subtreeCount[cur]++

	for cur != t.root {
		// The block leader is the rightmost node whose count equals the
		// count cur had before its increment. It can never be cur's parent.
		leader := cur
		for t.subtreeCount[cur] > t.subtreeCount[leader+1] {
			leader++
			if leader+1 >= t.nodeCount {
				return errors.Wrapf(ErrIndexOutOfRange, "block leader search for node %d ran past the root", cur)
			}
		}

		t.swapNodes(cur, leader)
		cur = leader

		cur = t.parentIndex[cur]
		t.subtreeCount[cur]++
	}

	return nil
}

// EncodedBitString returns the path from the root to the terminal node
// holding code. The branch taken at the root is in the least significant
// bit, deeper branches in successively higher bits.
func (t *AdaptiveHuffmanTree) EncodedBitString(code uint16) (uint64, uint, error) {
	if err := t.verifyCode(code); err != nil {
		return 0, 0, err
	}

	var (
		bitString uint64
		bitCount  uint
	)
	for cur := t.parentIndex[code+t.nodeCount]; cur != t.root; cur = t.parentIndex[cur] {
		if bitCount == 64 {
			return 0, 0, errors.Wrapf(ErrInvalidArgument, "code %d is deeper than 64 branches", code)
		}
		bitString = bitString<<1 | uint64(cur&1)
		bitCount++
	}

	return bitString, bitCount, nil
}

func (t *AdaptiveHuffmanTree) swapNodes(a, b uint16) {
	t.subtreeCount[a], t.subtreeCount[b] = t.subtreeCount[b], t.subtreeCount[a]

	// Terminal nodes have no right child to re-parent.
	link := t.linkOrData[a]
	t.parentIndex[link] = b
	if link < t.nodeCount {
		t.parentIndex[link+1] = b
	}

	link = t.linkOrData[b]
	t.parentIndex[link] = a
	if link < t.nodeCount {
		t.parentIndex[link+1] = a
	}

	t.linkOrData[a], t.linkOrData[b] = t.linkOrData[b], t.linkOrData[a]
}

func (t *AdaptiveHuffmanTree) verifyNodeIndex(nodeIndex uint16) error {
	if nodeIndex >= t.nodeCount {
		return errors.Wrapf(ErrIndexOutOfRange, "node index %d is out of range %d", nodeIndex, t.nodeCount)
	}
	return nil
}

func (t *AdaptiveHuffmanTree) verifyCode(code uint16) error {
	if code >= t.terminalCount {
		return errors.Wrapf(ErrIndexOutOfRange, "code %d is out of range %d", code, t.terminalCount)
	}
	return nil
}
