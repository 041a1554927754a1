// Copyright 2025 Certen Protocol
//
// Package ledger provides sentinel errors for ledger operations.
// F.4 remediation: Explicit errors instead of nil, nil returns

package ledger

import "errors"

// Sentinel errors for ledger operations
var (
	// ErrEmptyRoot is returned when sendTransaction is called with an empty root.
	ErrEmptyRoot = errors.New("ledger: root cid must not be empty")

	// ErrSubmitFailed wraps a failed on-chain submission.
	ErrSubmitFailed = errors.New("ledger: transaction submission failed")

	// ErrNoReceipt is returned when a submitted transaction never confirms.
	ErrNoReceipt = errors.New("ledger: no receipt for submitted transaction")
)
