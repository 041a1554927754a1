// Copyright 2025 Certen Protocol

package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestSimulatedSubmitter_IncrementsBlocks(t *testing.T) {
	s := NewSimulatedSubmitter()
	root := crypto.Keccak256Hash([]byte("root-1"))

	tx1, block1, _, err := s.Submit(context.Background(), root)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	tx2, block2, _, err := s.Submit(context.Background(), root)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if block2 <= block1 {
		t.Fatalf("expected increasing block numbers, got %d then %d", block1, block2)
	}
	if tx1 == tx2 {
		t.Fatal("expected distinct tx hashes for successive submissions of the same root")
	}
}
