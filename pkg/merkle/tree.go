// Copyright 2025 Certen Protocol
//
// Content-Addressed Merkle Tree for Anchor Batching
//
// Builds a Merkle tree whose internal nodes are themselves blocks in the
// content-addressed store: each node references its children by CID
// rather than embedding raw hashes. Leaf order is fixed by the caller
// (earliest createdAt ascending, then streamId ascending) so the same
// candidate set always produces the same tree.

package merkle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/certen/cas/pkg/castypes"
)

// Common errors
var (
	ErrEmptyTree      = errors.New("cannot build tree from empty leaves")
	ErrDepthExceeded  = errors.New("leaf count exceeds merkle depth limit")
)

// Leaf is a single stream's accepted tip entering the tree.
type Leaf struct {
	StreamID string
	CID      string
}

// Putter stores a content-addressed block and returns its CID. It is
// implemented by the block store adapter.
type Putter interface {
	PutNode(node castypes.MerkleNode) (cid string, err error)
}

// Result is the output of building a tree: the root CID, each leaf's
// path to that root, and every internal node created along the way.
type Result struct {
	RootCID string
	Paths   map[string]castypes.MerklePath // streamId -> path
	Nodes   []castypes.MerkleNodeCID
}

// group tracks a subtree during construction: its CID and the leaves it
// covers, so path bits can be appended to every covered leaf as levels fold.
type group struct {
	cid    string
	leaves []string // stream IDs covered by this subtree
}

// BuildTree folds leaves pairwise into a content-addressed Merkle tree,
// bounded by depthLimit levels. Leaves must already be in deterministic
// order (earliest createdAt, then streamId) by the time they reach here.
func BuildTree(leaves []Leaf, depthLimit int, put Putter) (*Result, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	if depthLimit > 0 && len(leaves) > (1<<uint(depthLimit)) {
		return nil, fmt.Errorf("%w: %d leaves, limit 2^%d", ErrDepthExceeded, len(leaves), depthLimit)
	}

	bits := make(map[string][]byte, len(leaves))
	current := make([]group, len(leaves))
	for i, leaf := range leaves {
		current[i] = group{cid: leaf.CID, leaves: []string{leaf.StreamID}}
		bits[leaf.StreamID] = nil
	}

	var nodes []castypes.MerkleNodeCID
	levels := 0

	for len(current) > 1 {
		if depthLimit > 0 && levels >= depthLimit {
			return nil, fmt.Errorf("%w: tree requires more than %d levels", ErrDepthExceeded, depthLimit)
		}

		var next []group
		for i := 0; i < len(current); i += 2 {
			if i+1 >= len(current) {
				// Odd one out carries forward unchanged; no new node, no new bit.
				next = append(next, current[i])
				continue
			}

			left, right := current[i], current[i+1]
			node := castypes.MerkleNode{Left: left.cid, Right: right.cid}
			cid, err := put.PutNode(node)
			if err != nil {
				return nil, fmt.Errorf("failed to store merkle node: %w", err)
			}
			nodes = append(nodes, castypes.MerkleNodeCID{CID: cid, Node: node})

			for _, sid := range left.leaves {
				bits[sid] = append(bits[sid], '0')
			}
			for _, sid := range right.leaves {
				bits[sid] = append(bits[sid], '1')
			}

			merged := make([]string, 0, len(left.leaves)+len(right.leaves))
			merged = append(merged, left.leaves...)
			merged = append(merged, right.leaves...)
			next = append(next, group{cid: cid, leaves: merged})
		}

		current = next
		levels++
	}

	root := current[0].cid

	paths := make(map[string]castypes.MerklePath, len(leaves))
	for sid, b := range bits {
		paths[sid] = encodePath(b)
	}

	return &Result{RootCID: root, Paths: paths, Nodes: nodes}, nil
}

// encodePath turns bottom-up-collected bits into a root-to-leaf path string
// like "0/1/0".
func encodePath(bottomUpBits []byte) castypes.MerklePath {
	if len(bottomUpBits) == 0 {
		return ""
	}
	parts := make([]string, len(bottomUpBits))
	for i := range bottomUpBits {
		// Reverse order: bits were appended bottom-up, path reads root-to-leaf.
		bit := bottomUpBits[len(bottomUpBits)-1-i]
		parts[i] = string(bit)
	}
	return castypes.MerklePath(strings.Join(parts, "/"))
}

// WalkPath resolves a leaf CID by following path from the root through a
// node lookup function. Node CIDs are not recomputed: each node returned by
// get is taken as the content stored under the CID it was looked up by.
func WalkPath(rootCID string, path castypes.MerklePath, get func(cid string) (castypes.MerkleNode, error)) (leafCID string, err error) {
	current := rootCID
	if path == "" {
		return current, nil
	}

	for _, step := range strings.Split(string(path), "/") {
		if len(step) != 1 {
			return "", fmt.Errorf("invalid path segment %q", step)
		}

		node, err := get(current)
		if err != nil {
			return "", fmt.Errorf("failed to resolve node %s: %w", current, err)
		}

		switch step[0] {
		case '0':
			current = node.Left
		case '1':
			current = node.Right
		default:
			return "", fmt.Errorf("invalid path segment %q", step)
		}
	}

	return current, nil
}
