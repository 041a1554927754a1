// Copyright 2025 Certen Protocol
//
// Witness Archive Tests

package witness

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/certen/cas/pkg/castypes"
	"github.com/certen/cas/pkg/merkle"
)

// fakeBlockStore is an in-memory BlockReader plus the raw Put a test needs
// to seed anchor commit and proof blocks the way pkg/blockstore.Adapter
// would, without pulling in a real CID codec.
type fakeBlockStore struct {
	next  int
	nodes map[string]castypes.MerkleNode
	raw   map[string][]byte
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{nodes: make(map[string]castypes.MerkleNode), raw: make(map[string][]byte)}
}

func (s *fakeBlockStore) PutNode(node castypes.MerkleNode) (string, error) {
	s.next++
	cid := fmt.Sprintf("node-%d", s.next)
	s.nodes[cid] = node
	return cid, nil
}

func (s *fakeBlockStore) GetNode(_ context.Context, cidStr string) (castypes.MerkleNode, error) {
	node, ok := s.nodes[cidStr]
	if !ok {
		return castypes.MerkleNode{}, fmt.Errorf("no such node: %s", cidStr)
	}
	return node, nil
}

func (s *fakeBlockStore) put(v interface{}) string {
	s.next++
	cid := fmt.Sprintf("blk-%d", s.next)
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	s.raw[cid] = data
	return cid
}

func (s *fakeBlockStore) Get(_ context.Context, cidStr string) ([]byte, error) {
	data, ok := s.raw[cidStr]
	if !ok {
		return nil, fmt.Errorf("no such block: %s", cidStr)
	}
	return data, nil
}

func buildTestTree(t *testing.T) (*merkle.Result, *fakeBlockStore) {
	t.Helper()
	leaves := []merkle.Leaf{
		{StreamID: "s1", CID: "tip-1"},
		{StreamID: "s2", CID: "tip-2"},
		{StreamID: "s3", CID: "tip-3"},
		{StreamID: "s4", CID: "tip-4"},
	}
	store := newFakeBlockStore()
	result, err := merkle.BuildTree(leaves, 32, store)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}
	return result, store
}

func seedCommitAndProof(store *fakeBlockStore, commit castypes.AnchorCommit, proof castypes.ProofBlock) (string, string) {
	return store.put(commit), store.put(proof)
}

func TestBuild_RoundTripsThroughVerify(t *testing.T) {
	result, store := buildTestTree(t)

	commit := castypes.AnchorCommit{
		StreamID: "s1",
		TipCID:   "tip-1",
		Path:     result.Paths["s1"],
		Root:     result.RootCID,
	}
	proof := castypes.ProofBlock{
		Root:           result.RootCID,
		TxHash:         "0xabc123",
		BlockNumber:    7,
		BlockTimestamp: time.Unix(1700000000, 0),
		ChainID:        "chain-1",
	}
	commitCID, proofCID := seedCommitAndProof(store, commit, proof)

	archive, err := Build(context.Background(), store, commitCID, proofCID)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if archive.RootCID != result.RootCID {
		t.Errorf("archive root mismatch: got %s, want %s", archive.RootCID, result.RootCID)
	}

	verdict := Verify(archive)
	if !verdict.Valid() {
		t.Fatalf("expected valid witness, got errors: %v", verdict.Errors)
	}
}

func TestBuild_TipMismatch(t *testing.T) {
	result, store := buildTestTree(t)

	commit := castypes.AnchorCommit{
		StreamID: "s1",
		TipCID:   "wrong-tip",
		Path:     result.Paths["s1"],
		Root:     result.RootCID,
	}
	proof := castypes.ProofBlock{Root: result.RootCID}
	commitCID, proofCID := seedCommitAndProof(store, commit, proof)

	if _, err := Build(context.Background(), store, commitCID, proofCID); err == nil {
		t.Fatal("expected error for mismatched tip cid, got nil")
	}
}

func TestBuild_MissingAnchorCommit(t *testing.T) {
	store := newFakeBlockStore()

	if _, err := Build(context.Background(), store, "no-such-commit", "no-such-proof"); err == nil {
		t.Fatal("expected error for missing anchor commit block, got nil")
	}
}

func TestVerify_DetectsTamperedPathNode(t *testing.T) {
	result, store := buildTestTree(t)

	commit := castypes.AnchorCommit{
		StreamID: "s1",
		TipCID:   "tip-1",
		Path:     result.Paths["s1"],
		Root:     result.RootCID,
	}
	proof := castypes.ProofBlock{Root: result.RootCID}
	commitCID, proofCID := seedCommitAndProof(store, commit, proof)

	archive, err := Build(context.Background(), store, commitCID, proofCID)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// Corrupt the first bundled path node so it no longer points to the
	// real leaf.
	if len(archive.PathNodes) == 0 {
		t.Fatal("expected at least one path node for a four-leaf tree")
	}
	archive.PathNodes[0].Node.Left = "tampered"

	verdict := Verify(archive)
	if verdict.Valid() {
		t.Fatal("expected tampered archive to fail verification")
	}
}

func TestVerify_DetectsRootMismatch(t *testing.T) {
	result, store := buildTestTree(t)

	commit := castypes.AnchorCommit{
		StreamID: "s1",
		TipCID:   "tip-1",
		Path:     result.Paths["s1"],
		Root:     result.RootCID,
	}
	proof := castypes.ProofBlock{Root: result.RootCID}
	commitCID, proofCID := seedCommitAndProof(store, commit, proof)
	archive, err := Build(context.Background(), store, commitCID, proofCID)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	archive.RootCID = "spoofed-root"

	verdict := Verify(archive)
	if verdict.RootMatches {
		t.Error("expected root mismatch to be detected")
	}
	if verdict.Valid() {
		t.Fatal("expected spoofed root to fail verification")
	}
}
