// Copyright 2025 Certen Protocol
//
// Ledger Adapter Tests

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type fakeSubmitter struct {
	txHash      common.Hash
	blockNumber uint64
	blockTime   time.Time
	err         error
	calls       int
}

func (f *fakeSubmitter) Submit(_ context.Context, _ common.Hash) (common.Hash, uint64, time.Time, error) {
	f.calls++
	return f.txHash, f.blockNumber, f.blockTime, f.err
}

func TestAdapter_SendTransaction(t *testing.T) {
	submitter := &fakeSubmitter{
		txHash:      common.HexToHash("0x1234"),
		blockNumber: 42,
		blockTime:   time.Unix(1700000000, 0),
	}
	adapter := NewAdapter(submitter, "chain-1", "f(bytes32)")

	receipt, err := adapter.SendTransaction(context.Background(), "bafy-root")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if receipt.TxHash != submitter.txHash.Hex() {
		t.Errorf("tx hash mismatch: got %s, want %s", receipt.TxHash, submitter.txHash.Hex())
	}
	if receipt.BlockNumber != 42 {
		t.Errorf("block number mismatch: got %d, want 42", receipt.BlockNumber)
	}
	if receipt.ChainID != "chain-1" {
		t.Errorf("chain id mismatch: got %s, want chain-1", receipt.ChainID)
	}

	state := adapter.LastState()
	if state.LastRoot != "bafy-root" {
		t.Errorf("last root mismatch: got %s, want bafy-root", state.LastRoot)
	}
}

func TestAdapter_SendTransaction_EmptyRoot(t *testing.T) {
	adapter := NewAdapter(&fakeSubmitter{}, "chain-1", "f(bytes32)")

	if _, err := adapter.SendTransaction(context.Background(), ""); err != ErrEmptyRoot {
		t.Fatalf("expected ErrEmptyRoot, got %v", err)
	}
}

func TestAdapter_SendTransaction_SubmitFailure(t *testing.T) {
	submitter := &fakeSubmitter{err: errors.New("rpc unreachable")}
	adapter := NewAdapter(submitter, "chain-1", "f(bytes32)")

	_, err := adapter.SendTransaction(context.Background(), "bafy-root")
	if !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
}
