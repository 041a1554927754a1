// Copyright 2025 Certen Protocol
//
// PersistFailure Reconciliation
//
// A batch can commit its root to the ledger and publish its proof and
// anchor commit blocks (steps 7-9 of runBatch) and then fail to persist
// the database outcome (step 10), leaving its requests stuck PROCESSING
// after runBatch has already reverted what it could. ReconcilePersistFailure
// replays just the database side of that batch from the receipt an operator
// already confirmed on-chain: it recomputes the same content-addressed
// blocks runBatch would have published, checks they are really sitting in
// the block store, and writes the anchor records and request transitions
// runBatch never got to commit. It never resubmits to the ledger. The proof
// and anchor commit blocks are only read; rebuilding the Merkle tree puts
// its internal nodes again, which yields the same CIDs the original run
// stored.

package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/certen/cas/pkg/blockstore"
	"github.com/certen/cas/pkg/castypes"
	"github.com/certen/cas/pkg/database"
	"github.com/certen/cas/pkg/ledger"
	"github.com/certen/cas/pkg/merkle"
)

// ReconcilePersistFailure replays the persist step for a batch whose
// ledger commit and block publication already succeeded but whose database
// transaction did not. receipt is the confirmation the operator has
// independently verified on-chain for this batch's root.
func (o *Orchestrator) ReconcilePersistFailure(ctx context.Context, batchID uuid.UUID, root string, receipt *ledger.TxReceipt) error {
	stuck, err := o.requests.GetRequestsByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("reconcile: load batch requests: %w", err)
	}

	var processing []*database.Request
	for _, r := range stuck {
		if r.Status == castypes.RequestStatusProcessing {
			processing = append(processing, r)
		}
	}
	if len(processing) == 0 {
		o.logger.Printf("batch %s: nothing left in PROCESSING, nothing to reconcile", batchID)
		return nil
	}

	candidates := groupCandidates(processing)

	leaves := make([]merkle.Leaf, 0, len(candidates))
	for _, c := range candidates {
		winner, _, err := o.oracle.ResolveTip(ctx, c.StreamID, c.Accepted)
		if err != nil {
			return fmt.Errorf("reconcile: resolve tip for stream %s: %w", c.StreamID, err)
		}
		c.TipCID = winner
		leaves = append(leaves, merkle.Leaf{StreamID: c.StreamID, CID: c.TipCID})
	}

	tree, err := merkle.BuildTree(leaves, o.cfg.MerkleDepthLimit, o.blocks)
	if err != nil {
		return fmt.Errorf("reconcile: rebuild merkle tree: %w", err)
	}
	if tree.RootCID != root {
		return fmt.Errorf("reconcile: recomputed root %s does not match reported root %s", tree.RootCID, root)
	}

	proofBlock := castypes.ProofBlock{
		Root:           root,
		TxHash:         receipt.TxHash,
		BlockNumber:    receipt.BlockNumber,
		BlockTimestamp: receipt.BlockTimestamp,
		ChainID:        receipt.ChainID,
		TxType:         receipt.TxType,
	}
	proofData, err := json.Marshal(proofBlock)
	if err != nil {
		return fmt.Errorf("reconcile: marshal proof block: %w", err)
	}
	proofCID, err := blockstore.ComputeCID(proofData)
	if err != nil {
		return fmt.Errorf("reconcile: derive proof cid: %w", err)
	}
	if _, err := o.blocks.Get(ctx, proofCID); err != nil {
		return fmt.Errorf("reconcile: proof block %s not found in store: %w", proofCID, err)
	}

	var okCandidates []published
	for _, c := range candidates {
		meta, err := o.metadata.GetStreamMetadata(ctx, c.StreamID)
		prev := ""
		if err == nil {
			prev = meta.LastAnchoredCID.String
		}

		commit := castypes.AnchorCommit{
			StreamID: c.StreamID,
			TipCID:   c.TipCID,
			Prev:     prev,
			Path:     tree.Paths[c.StreamID],
			Root:     root,
		}
		commitData, err := json.Marshal(commit)
		if err != nil {
			return fmt.Errorf("reconcile: marshal anchor commit for stream %s: %w", c.StreamID, err)
		}
		anchorCID, err := blockstore.ComputeCID(commitData)
		if err != nil {
			return fmt.Errorf("reconcile: derive anchor commit cid for stream %s: %w", c.StreamID, err)
		}
		if _, err := o.blocks.Get(ctx, anchorCID); err != nil {
			return fmt.Errorf("reconcile: anchor commit block %s for stream %s not found in store: %w", anchorCID, c.StreamID, err)
		}

		winner := newestAccepted(c)
		okCandidates = append(okCandidates, published{
			candidate: c,
			record: castypes.AnchorRecord{
				RequestID: winner.ID,
				StreamID:  c.StreamID,
				ProofCID:  proofCID,
				Path:      commit.Path,
				CID:       anchorCID,
				BatchID:   batchID,
			},
		})
	}

	tx, err := o.db.BeginTxLevel(ctx, sql.LevelRepeatableRead)
	if err != nil {
		return fmt.Errorf("reconcile: begin persist tx: %w", err)
	}
	defer tx.Rollback()

	for _, p := range okCandidates {
		record := &database.AnchorRecord{
			RequestID: p.record.RequestID,
			StreamID:  p.record.StreamID,
			ProofCID:  p.record.ProofCID,
			Path:      string(p.record.Path),
			CID:       p.record.CID,
			BatchID:   batchID,
		}
		if err := o.anchors.CreateAnchorRecord(ctx, tx, record); err != nil {
			return fmt.Errorf("reconcile: create anchor record for stream %s: %w", p.candidate.StreamID, err)
		}
		if err := o.metadata.UpsertStreamMetadata(ctx, tx, p.candidate.StreamID, p.candidate.TipCID); err != nil {
			return fmt.Errorf("reconcile: upsert metadata for stream %s: %w", p.candidate.StreamID, err)
		}
	}

	completed := make([]*database.Request, 0)
	for _, p := range okCandidates {
		completed = append(completed, classify(p.candidate.Accepted, castypes.RequestStatusCompleted, true, "")...)
	}
	if err := o.requests.UpdateRequests(ctx, tx, completed); err != nil {
		return fmt.Errorf("reconcile: persist request transitions: %w", err)
	}

	if err := o.batches.FinalizeBatch(ctx, tx, batchID, root, receipt.TxHash, receipt.ChainID); err != nil {
		return fmt.Errorf("reconcile: finalize batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reconcile: commit persist tx: %w", err)
	}

	o.logger.Printf("batch %s reconciled: %d streams recovered", batchID, len(okCandidates))
	return nil
}
