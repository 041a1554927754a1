// Copyright 2025 Certen Protocol
//
// Package orchestrator provides sentinel and typed errors for the anchor
// batch pipeline, one entry per error class in the taxonomy below.
// F.4 remediation: Explicit errors instead of nil, nil returns

package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNoReadyStreams names the case where fewer than minStreamLimit
	// requests are READY. RunBatch treats that case as a no-op and returns
	// nil, not this error.
	ErrNoReadyStreams = errors.New("orchestrator: fewer than minStreamLimit requests ready")

	// ErrNoAcceptedCandidates names the case where every claimed candidate
	// was rejected, already anchored, or overflowed the batch cap. RunBatch
	// treats that case as a no-op and returns nil, not this error.
	ErrNoAcceptedCandidates = errors.New("orchestrator: no anchor-eligible candidates in batch")

	// ErrMerkleBuildFailed wraps a fatal failure building the Merkle tree.
	ErrMerkleBuildFailed = errors.New("orchestrator: merkle build failed")

	// ErrLedgerFailed wraps a fatal failure submitting the root to the ledger.
	ErrLedgerFailed = errors.New("orchestrator: ledger submission failed")

	// ErrProofPublishFailed wraps a fatal failure publishing the proof block.
	ErrProofPublishFailed = errors.New("orchestrator: proof publish failed")

	// ErrPersistFailed wraps a fatal failure committing the persist
	// transaction after external side effects already occurred.
	ErrPersistFailed = errors.New("orchestrator: persist transaction failed")

	// ErrOracleMisconfigured is returned at startup when a conflict
	// resolution mode is selected that has no in-process implementation.
	ErrOracleMisconfigured = errors.New("orchestrator: conflict resolution mode not wired")
)

// RequestLoadError wraps a metadata or stream-load failure for one
// candidate; the candidate's requests are classified FAILED, not fatal.
type RequestLoadError struct {
	StreamID string
	Err      error
}

func (e *RequestLoadError) Error() string {
	return fmt.Sprintf("orchestrator: failed to load stream %s: %v", e.StreamID, e.Err)
}

func (e *RequestLoadError) Unwrap() error {
	return e.Err
}

// ConflictRejection wraps an oracle's rejection of a candidate's tip; the
// rejected requests are classified FAILED with the oracle's message.
type ConflictRejection struct {
	StreamID string
	Reason   string
}

func (e *ConflictRejection) Error() string {
	return fmt.Sprintf("orchestrator: stream %s rejected: %s", e.StreamID, e.Reason)
}

// AnchorCommitPublishError wraps a per-candidate block-store publish
// failure; that candidate's accepted requests are classified FAILED, and
// the batch continues with the remaining candidates.
type AnchorCommitPublishError struct {
	StreamID string
	Err      error
}

func (e *AnchorCommitPublishError) Error() string {
	return fmt.Sprintf("orchestrator: failed to publish anchor commit for stream %s: %v", e.StreamID, e.Err)
}

func (e *AnchorCommitPublishError) Unwrap() error {
	return e.Err
}
