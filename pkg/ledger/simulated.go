// Copyright 2025 Certen Protocol
//
// Simulated chain client — the Submitter every cmd/ entry point wires,
// whatever LEDGER_RPC_URL is set to; no RPC-backed Submitter exists in
// this module. Useful for local runs and for environments where the
// target chain's RPC wiring is handled upstream of this service; derives a
// deterministic transaction hash from the root and an incrementing block
// number, so two submissions of the same root in the same process never
// collide.

package ledger

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SimulatedSubmitter fakes chain confirmation locally: every Submit call
// "mines" the next block immediately.
type SimulatedSubmitter struct {
	mu          sync.Mutex
	blockNumber uint64
}

// NewSimulatedSubmitter builds a Submitter with no external dependency.
func NewSimulatedSubmitter() *SimulatedSubmitter {
	return &SimulatedSubmitter{}
}

func (s *SimulatedSubmitter) Submit(_ context.Context, rootHash common.Hash) (common.Hash, uint64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blockNumber++

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], s.blockNumber)
	txHash := crypto.Keccak256Hash(rootHash.Bytes(), nonce[:])

	return txHash, s.blockNumber, time.Now(), nil
}
