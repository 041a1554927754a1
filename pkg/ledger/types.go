// Copyright 2025 Certen Protocol
//
// Types shared by the ledger adapter.

package ledger

import "time"

// AccountState tracks what the adapter has most recently submitted for a
// single ledger account. SendTransaction records it but does not consult it.
type AccountState struct {
	ChainID          string
	LastRoot         string
	LastTxHash       string
	LastBlockNumber  uint64
	LastSubmittedAt  time.Time
}

// TxReceipt is the confirmation returned once a root has been committed.
type TxReceipt struct {
	TxHash         string
	BlockNumber    uint64
	BlockTimestamp time.Time
	ChainID        string
	TxType         string
}
