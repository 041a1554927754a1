// Copyright 2025 Certen Protocol
//
// Merkle Tree Tests

package merkle

import (
	"fmt"
	"testing"

	"github.com/certen/cas/pkg/castypes"
)

// fakePutter stores nodes in memory, assigning each a sequential CID, so
// tests can build trees without a real block store.
type fakePutter struct {
	next  int
	nodes map[string]castypes.MerkleNode
}

func newFakePutter() *fakePutter {
	return &fakePutter{nodes: make(map[string]castypes.MerkleNode)}
}

func (p *fakePutter) PutNode(node castypes.MerkleNode) (string, error) {
	p.next++
	cid := fmt.Sprintf("node-%d", p.next)
	p.nodes[cid] = node
	return cid, nil
}

func (p *fakePutter) get(cid string) (castypes.MerkleNode, error) {
	node, ok := p.nodes[cid]
	if !ok {
		return castypes.MerkleNode{}, fmt.Errorf("no such node: %s", cid)
	}
	return node, nil
}

func TestBuildTree_EmptyLeaves(t *testing.T) {
	_, err := BuildTree(nil, 32, newFakePutter())
	if err != ErrEmptyTree {
		t.Fatalf("expected ErrEmptyTree, got %v", err)
	}
}

func TestBuildTree_SingleLeaf(t *testing.T) {
	leaves := []Leaf{{StreamID: "s1", CID: "tip-1"}}
	put := newFakePutter()

	result, err := BuildTree(leaves, 32, put)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	if result.RootCID != "tip-1" {
		t.Errorf("single leaf root mismatch: got %s, want tip-1", result.RootCID)
	}
	if result.Paths["s1"] != "" {
		t.Errorf("single leaf path should be empty, got %q", result.Paths["s1"])
	}
	if len(result.Nodes) != 0 {
		t.Errorf("single leaf should create no internal nodes, got %d", len(result.Nodes))
	}
}

func TestBuildTree_TwoLeaves(t *testing.T) {
	leaves := []Leaf{
		{StreamID: "s1", CID: "tip-1"},
		{StreamID: "s2", CID: "tip-2"},
	}
	put := newFakePutter()

	result, err := BuildTree(leaves, 32, put)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	if len(result.Nodes) != 1 {
		t.Fatalf("two leaves should create exactly one node, got %d", len(result.Nodes))
	}
	if result.Paths["s1"] != "0" {
		t.Errorf("left leaf path mismatch: got %q, want 0", result.Paths["s1"])
	}
	if result.Paths["s2"] != "1" {
		t.Errorf("right leaf path mismatch: got %q, want 1", result.Paths["s2"])
	}

	for sid, path := range result.Paths {
		leafCID, err := WalkPath(result.RootCID, path, put.get)
		if err != nil {
			t.Fatalf("failed to walk path for %s: %v", sid, err)
		}
		var want string
		for _, l := range leaves {
			if l.StreamID == sid {
				want = l.CID
			}
		}
		if leafCID != want {
			t.Errorf("walk for %s: got %s, want %s", sid, leafCID, want)
		}
	}
}

func TestBuildTree_OddLeaves(t *testing.T) {
	leaves := []Leaf{
		{StreamID: "s1", CID: "tip-1"},
		{StreamID: "s2", CID: "tip-2"},
		{StreamID: "s3", CID: "tip-3"},
	}
	put := newFakePutter()

	result, err := BuildTree(leaves, 32, put)
	if err != nil {
		t.Fatalf("failed to build tree with odd leaves: %v", err)
	}

	for _, l := range leaves {
		leafCID, err := WalkPath(result.RootCID, result.Paths[l.StreamID], put.get)
		if err != nil {
			t.Fatalf("failed to walk path for %s: %v", l.StreamID, err)
		}
		if leafCID != l.CID {
			t.Errorf("walk for %s: got %s, want %s", l.StreamID, leafCID, l.CID)
		}
	}
}

func TestBuildTree_DepthExceeded(t *testing.T) {
	leaves := []Leaf{
		{StreamID: "s1", CID: "tip-1"},
		{StreamID: "s2", CID: "tip-2"},
		{StreamID: "s3", CID: "tip-3"},
	}

	_, err := BuildTree(leaves, 1, newFakePutter())
	if err == nil {
		t.Fatal("expected depth exceeded error, got nil")
	}
}
