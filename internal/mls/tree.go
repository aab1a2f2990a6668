package mls

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
)

// LeafNode is one occupied position in the group's ratchet tree. A nil
// entry at an even index marks a blank leaf slot left behind by a Remove.
type LeafNode struct {
	Identity [32]byte
	SigPub   ed25519.PublicKey
	InitPub  []byte
}

// Tree is the group's ratchet tree: a flat vector addressed by the
// standard MLS left-balanced binary tree convention — leaf i lives at
// array position 2*i, so that parent/sibling/child relationships are
// index arithmetic rather than pointers. Odd positions (intermediate
// nodes) are left unused by this implementation: path-secret tree math
// is the underlying MLS primitive's job, out of scope here, and the key
// schedule instead chains directly off an HKDF ratchet (see state.go).
type Tree struct {
	nodes []*LeafNode
}

// NewTree builds a tree holding a single leaf.
func NewTree(first *LeafNode) *Tree {
	return &Tree{nodes: []*LeafNode{first}}
}

// LeafNodeIndex converts a leaf number to its array position.
func LeafNodeIndex(leaf int) int { return 2 * leaf }

// NodeIndexToLeaf converts an array position back to a leaf number. It
// panics if given an odd (intermediate-node) position, since this
// implementation never populates those.
func NodeIndexToLeaf(nodeIndex int) int {
	if nodeIndex%2 != 0 {
		panic("mls: odd node index has no corresponding leaf")
	}
	return nodeIndex / 2
}

// LeafCount returns the number of leaf slots, including blanks.
func (t *Tree) LeafCount() int {
	return (len(t.nodes) + 1) / 2
}

// Leaf returns the leaf at the given leaf index, or nil if blank or out
// of range.
func (t *Tree) Leaf(leaf int) *LeafNode {
	idx := LeafNodeIndex(leaf)
	if idx >= len(t.nodes) {
		return nil
	}
	return t.nodes[idx]
}

// ActiveLeaves returns the leaf indices currently occupied, in order.
func (t *Tree) ActiveLeaves() []int {
	var out []int
	for leaf := 0; leaf < t.LeafCount(); leaf++ {
		if t.Leaf(leaf) != nil {
			out = append(out, leaf)
		}
	}
	return out
}

// Add installs a new member, reusing the first blank leaf slot if one
// exists, otherwise extending the tree. Returns the assigned leaf index.
func (t *Tree) Add(n *LeafNode) int {
	for leaf := 0; leaf < t.LeafCount(); leaf++ {
		idx := LeafNodeIndex(leaf)
		if t.nodes[idx] == nil {
			t.nodes[idx] = n
			return leaf
		}
	}
	leaf := t.LeafCount()
	idx := LeafNodeIndex(leaf)
	for len(t.nodes) <= idx {
		t.nodes = append(t.nodes, nil)
	}
	t.nodes[idx] = n
	return leaf
}

// Remove blanks a leaf slot without shrinking the tree, matching MLS's
// "tombstone, don't renumber" semantics so remaining leaf indices stay
// stable.
func (t *Tree) Remove(leaf int) bool {
	idx := LeafNodeIndex(leaf)
	if idx >= len(t.nodes) || t.nodes[idx] == nil {
		return false
	}
	t.nodes[idx] = nil
	return true
}

// Hash deterministically hashes the occupied leaves, in index order,
// binding the tree's membership shape into the key schedule (see
// (*ClientState).advanceEpoch). Blanks contribute a fixed marker so that
// removal is distinguishable from a shorter tree.
func (t *Tree) Hash() []byte {
	h := sha256.New()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(t.LeafCount()))
	h.Write(lenBuf[:])
	for leaf := 0; leaf < t.LeafCount(); leaf++ {
		n := t.Leaf(leaf)
		if n == nil {
			h.Write([]byte{0x00})
			continue
		}
		h.Write([]byte{0x01})
		h.Write(n.Identity[:])
		h.Write(n.SigPub)
		h.Write(n.InitPub)
	}
	sum := h.Sum(nil)
	return sum
}

// RawNodes exposes the tree's underlying flat node vector (including nil
// blanks), for the state serializer to snapshot.
func (t *Tree) RawNodes() []*LeafNode {
	return t.nodes
}

// TreeFromRawNodes reconstructs a tree from a previously-snapshotted flat
// node vector, preserving blank slots and leaf indices exactly.
func TreeFromRawNodes(nodes []*LeafNode) *Tree {
	return &Tree{nodes: nodes}
}

// FindLeafByIdentity returns the leaf index whose occupant's Identity
// matches identity, used by the Add transaction to recover the leaf a
// just-applied Add proposal assigned its new member.
func (t *Tree) FindLeafByIdentity(identity [32]byte) (int, bool) {
	for _, leaf := range t.ActiveLeaves() {
		if n := t.Leaf(leaf); n != nil && n.Identity == identity {
			return leaf, true
		}
	}
	return 0, false
}

// clone deep-copies the tree.
func (t *Tree) clone() *Tree {
	out := &Tree{nodes: make([]*LeafNode, len(t.nodes))}
	for i, n := range t.nodes {
		if n == nil {
			continue
		}
		cp := *n
		cp.SigPub = append(ed25519.PublicKey(nil), n.SigPub...)
		cp.InitPub = append([]byte(nil), n.InitPub...)
		out.nodes[i] = &cp
	}
	return out
}
