// Copyright 2025 Certen Protocol
//
// Ledger Adapter
//
// Wraps a single ledger account and serializes every root submission
// through sendTransaction so two concurrent batch runs can never race
// each other onto the chain.

package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Submitter is the chain-specific transaction sender. Production code
// wires this to an RPC client; tests wire it to a fake.
type Submitter interface {
	// Submit sends a transaction carrying rootHash and returns the
	// confirmed transaction hash and block number once mined.
	Submit(ctx context.Context, rootHash common.Hash) (txHash common.Hash, blockNumber uint64, blockTime time.Time, err error)
}

// Adapter serializes root submissions for one ledger account.
type Adapter struct {
	mu        sync.Mutex
	submitter Submitter
	chainID   string
	txType    string
	state     AccountState
	logger    *log.Logger
}

// AdapterOption is a functional option for configuring the adapter.
type AdapterOption func(*Adapter)

// WithLogger sets a custom logger for the adapter.
func WithLogger(logger *log.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// NewAdapter creates a ledger adapter bound to a single chain account.
func NewAdapter(submitter Submitter, chainID, txType string, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		submitter: submitter,
		chainID:   chainID,
		txType:    txType,
		logger:    log.New(log.Writer(), "[Ledger] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// SendTransaction commits rootCID to the ledger and returns the resulting
// receipt. Only one submission is in flight at a time for this adapter,
// so concurrent batch runs serialize here rather than racing the chain.
func (a *Adapter) SendTransaction(ctx context.Context, rootCID string) (*TxReceipt, error) {
	if rootCID == "" {
		return nil, ErrEmptyRoot
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rootHash := crypto.Keccak256Hash([]byte(rootCID))

	txHash, blockNumber, blockTime, err := a.submitter.Submit(ctx, rootHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	a.state = AccountState{
		ChainID:         a.chainID,
		LastRoot:        rootCID,
		LastTxHash:      txHash.Hex(),
		LastBlockNumber: blockNumber,
		LastSubmittedAt: blockTime,
	}

	a.logger.Printf("committed root=%s tx=%s block=%d", rootCID, txHash.Hex(), blockNumber)

	return &TxReceipt{
		TxHash:         txHash.Hex(),
		BlockNumber:    blockNumber,
		BlockTimestamp: blockTime,
		ChainID:        a.chainID,
		TxType:         a.txType,
	}, nil
}

// LastState returns the most recently submitted root for this account.
func (a *Adapter) LastState() AccountState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}
