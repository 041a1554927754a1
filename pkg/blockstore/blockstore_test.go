// Copyright 2025 Certen Protocol
//
// Block Store Adapter Tests

package blockstore

import (
	"context"
	"os"
	"testing"

	"github.com/certen/cas/pkg/castypes"
)

func TestAdapter_PutGet(t *testing.T) {
	adapter := NewAdapter(NewMemStore())
	ctx := context.Background()

	cidStr, err := adapter.Put(ctx, []byte("hello anchor"))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if cidStr == "" {
		t.Fatal("expected non-empty cid")
	}

	got, err := adapter.Get(ctx, cidStr)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != "hello anchor" {
		t.Errorf("got %q, want %q", got, "hello anchor")
	}
}

func TestAdapter_PutIsContentAddressed(t *testing.T) {
	adapter := NewAdapter(NewMemStore())
	ctx := context.Background()

	cid1, err := adapter.Put(ctx, []byte("same data"))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	cid2, err := adapter.Put(ctx, []byte("same data"))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if cid1 != cid2 {
		t.Errorf("identical content produced different cids: %s != %s", cid1, cid2)
	}
}

func TestAdapter_GetUnknownCID(t *testing.T) {
	adapter := NewAdapter(NewMemStore())
	ctx := context.Background()

	cidStr, err := adapter.Put(ctx, []byte("transient"))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}

	otherAdapter := NewAdapter(NewMemStore())
	if _, err := otherAdapter.Get(ctx, cidStr); err != ErrBlockNotFound {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestAdapter_PutGetNode(t *testing.T) {
	adapter := NewAdapter(NewMemStore())
	ctx := context.Background()

	node := castypes.MerkleNode{Left: "cid-left", Right: "cid-right"}
	cidStr, err := adapter.PutNode(node)
	if err != nil {
		t.Fatalf("put node failed: %v", err)
	}

	got, err := adapter.GetNode(ctx, cidStr)
	if err != nil {
		t.Fatalf("get node failed: %v", err)
	}
	if got != node {
		t.Errorf("got %+v, want %+v", got, node)
	}
}

func TestAdapter_PublishWitnessPins(t *testing.T) {
	store := NewMemStore()
	adapter := NewAdapter(store)
	ctx := context.Background()

	archive := castypes.WitnessArchive{
		RootCID: "root-1",
		AnchorCommit: castypes.AnchorCommit{
			StreamID: "stream-1",
			TipCID:   "tip-1",
			Root:     "root-1",
		},
		Proof: castypes.ProofBlock{Root: "root-1", TxHash: "0xabc"},
	}

	cidStr, err := adapter.PublishWitness(ctx, archive)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	data, err := adapter.Get(ctx, cidStr)
	if err != nil {
		t.Fatalf("get published witness failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty witness archive bytes")
	}
	if len(store.pins) != 1 {
		t.Errorf("expected the published witness to be pinned, got %d pins", len(store.pins))
	}
}

func TestPGStore_PutGetPersistsAcrossConnections(t *testing.T) {
	dsn := os.Getenv("CERTEN_TEST_BLOCKSTORE_DSN")
	if dsn == "" {
		t.Skip("CERTEN_TEST_BLOCKSTORE_DSN not configured, skipping blockstore integration test")
	}
	ctx := context.Background()

	store, err := NewPGStore(ctx, dsn)
	if err != nil {
		t.Fatalf("open pgstore: %v", err)
	}
	defer store.Close()

	adapter := NewAdapter(store)
	cidStr, err := adapter.Put(ctx, []byte("persisted across runs"))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}

	reopened, err := NewPGStore(ctx, dsn)
	if err != nil {
		t.Fatalf("reopen pgstore: %v", err)
	}
	defer reopened.Close()

	got, err := NewAdapter(reopened).Get(ctx, cidStr)
	if err != nil {
		t.Fatalf("get after reopen failed: %v", err)
	}
	if string(got) != "persisted across runs" {
		t.Errorf("got %q, want %q", got, "persisted across runs")
	}
}
