// Copyright 2025 Certen Protocol
//
// Anchor Batch Orchestrator
//
// Runs one anchor batch end to end: claims ready requests, groups them by
// stream, builds a Merkle tree over the accepted tips, commits the root to
// the ledger, publishes a proof and one anchor commit per stream, and
// persists the outcome in a single transaction. Any failure before the
// persist step reverts claimed requests back to PENDING so the next batch
// retries them; a failure publishing one stream's anchor commit fails only
// that stream and lets the batch continue.

package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/certen/cas/pkg/blockstore"
	"github.com/certen/cas/pkg/castypes"
	"github.com/certen/cas/pkg/database"
	"github.com/certen/cas/pkg/ledger"
	"github.com/certen/cas/pkg/merkle"
)

// Config bounds a single batch run.
type Config struct {
	// MinStreamLimit is the fewest claimed requests required to run a
	// batch at all; fewer than this and runBatch is a no-op.
	MinStreamLimit int
	// MerkleDepthLimit caps tree depth; 0 disables the cap. When set,
	// at most 2^MerkleDepthLimit candidates are accepted per batch.
	MerkleDepthLimit int
	// UseSmartContractAnchors tags published proofs with txType.
	UseSmartContractAnchors bool
}

// Orchestrator wires the repositories and adapters needed to run a batch.
type Orchestrator struct {
	db       *database.Client
	requests *database.RequestRepository
	anchors  *database.AnchorRepository
	metadata *database.MetadataRepository
	batches  *database.BatchRepository
	blocks   *blockstore.Adapter
	ledger   *ledger.Adapter
	oracle   StreamOracle
	cfg      Config
	logger   *log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithOracle overrides the default PassthroughOracle.
func WithOracle(oracle StreamOracle) Option {
	return func(o *Orchestrator) { o.oracle = oracle }
}

// New builds an Orchestrator over its dependencies.
func New(
	db *database.Client,
	requests *database.RequestRepository,
	anchors *database.AnchorRepository,
	metadata *database.MetadataRepository,
	batches *database.BatchRepository,
	blocks *blockstore.Adapter,
	ledgerAdapter *ledger.Adapter,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		db:       db,
		requests: requests,
		anchors:  anchors,
		metadata: metadata,
		batches:  batches,
		blocks:   blocks,
		ledger:   ledgerAdapter,
		oracle:   NewPassthroughOracle(),
		cfg:      cfg,
		logger:   log.New(log.Writer(), "[Orchestrator] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// published is the outcome of successfully publishing one candidate's
// anchor commit, carried from step 9 into the step 10 persist transaction.
type published struct {
	candidate *castypes.Candidate
	record    castypes.AnchorRecord
}

// RunBatch executes one anchor batch, or returns nil without side effects
// if fewer than MinStreamLimit requests are ready to claim.
func (o *Orchestrator) RunBatch(ctx context.Context) error {
	// Step 1: claim.
	batchID := uuid.New()
	claimTx, err := o.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("runBatch: begin claim tx: %w", err)
	}
	if err := o.batches.CreateBatch(ctx, claimTx, batchID); err != nil {
		claimTx.Rollback()
		return fmt.Errorf("runBatch: create batch: %w", err)
	}
	claimed, err := o.requests.BatchProcessing(ctx, claimTx, batchID)
	if errors.Is(err, database.ErrNoReadyRequests) {
		claimTx.Rollback()
		return nil
	}
	if err != nil {
		claimTx.Rollback()
		return fmt.Errorf("runBatch: claim requests: %w", err)
	}
	if len(claimed) < o.cfg.MinStreamLimit {
		claimTx.Rollback()
		o.logger.Printf("only %d ready requests, below minStreamLimit %d, skipping", len(claimed), o.cfg.MinStreamLimit)
		return nil
	}
	if err := claimTx.Commit(); err != nil {
		return fmt.Errorf("runBatch: commit claim tx: %w", err)
	}
	o.logger.Printf("batch %s claimed %d requests", batchID, len(claimed))

	// Step 2: candidate build.
	candidates := groupCandidates(claimed)

	// Step 3: candidate selection (oracle + cap + already-anchored check).
	streamCountLimit := 0
	if o.cfg.MerkleDepthLimit > 0 {
		streamCountLimit = 1 << uint(o.cfg.MerkleDepthLimit)
	}

	var accepted []*castypes.Candidate
	var failedLoad, alreadyAnchoredReqs, unprocessed, conflictRejected []*castypes.Request
	prevCID := make(map[string]string, len(candidates))

	for i, c := range candidates {
		if streamCountLimit > 0 && i >= streamCountLimit {
			unprocessed = append(unprocessed, c.Accepted...)
			continue
		}

		cid, rejected, err := o.oracle.ResolveTip(ctx, c.StreamID, c.Accepted)
		if err != nil {
			o.logger.Printf("stream %s: %v", c.StreamID, &RequestLoadError{StreamID: c.StreamID, Err: err})
			failedLoad = append(failedLoad, c.Accepted...)
			continue
		}
		if len(rejected) > 0 {
			o.logger.Printf("%v", &ConflictRejection{StreamID: c.StreamID, Reason: fmt.Sprintf("%d of %d requests superseded", len(rejected), len(c.Accepted))})
			conflictRejected = append(conflictRejected, rejected...)
		}
		c.Rejected = rejected
		c.Accepted = acceptedMinus(c.Accepted, rejected)
		c.TipCID = cid

		meta, err := o.metadata.GetStreamMetadata(ctx, c.StreamID)
		if err == nil {
			prevCID[c.StreamID] = meta.LastAnchoredCID.String
		} else if !errors.Is(err, database.ErrStreamNotFound) {
			o.logger.Printf("stream %s: failed to load metadata: %v", c.StreamID, err)
		}

		winner := newestAccepted(c)
		if winner == nil {
			continue
		}
		if _, err := o.anchors.GetAnchorRecordByRequest(ctx, winner.ID); err == nil {
			c.AlreadyAnchored = true
			alreadyAnchoredReqs = append(alreadyAnchoredReqs, c.Accepted...)
			continue
		} else if !errors.Is(err, database.ErrAnchorNotFound) {
			o.logger.Printf("stream %s: failed to check prior anchor: %v", c.StreamID, err)
			failedLoad = append(failedLoad, c.Accepted...)
			continue
		}

		accepted = append(accepted, c)
	}

	// Step 4: non-selected bookkeeping.
	var bookkeeping []*database.Request
	bookkeeping = append(bookkeeping, classify(failedLoad, castypes.RequestStatusFailed, false, "commit could not be loaded")...)
	bookkeeping = append(bookkeeping, classify(conflictRejected, castypes.RequestStatusFailed, false, "superseded by a newer request for this stream")...)
	bookkeeping = append(bookkeeping, classify(alreadyAnchoredReqs, castypes.RequestStatusCompleted, true, "already anchored")...)
	bookkeeping = append(bookkeeping, classify(unprocessed, castypes.RequestStatusPending, false, "")...)
	if err := o.writeRequests(ctx, bookkeeping); err != nil {
		return fmt.Errorf("runBatch: bookkeeping: %w", err)
	}

	// Step 5: empty check.
	if len(accepted) == 0 {
		o.logger.Printf("batch %s: no anchor-eligible candidates", batchID)
		return nil
	}

	// Step 6: merkle build.
	leaves := make([]merkle.Leaf, len(accepted))
	for i, c := range accepted {
		leaves[i] = merkle.Leaf{StreamID: c.StreamID, CID: c.TipCID}
	}
	tree, err := merkle.BuildTree(leaves, o.cfg.MerkleDepthLimit, o.blocks)
	if err != nil {
		o.revert(ctx, acceptedRequests(accepted))
		return fmt.Errorf("%w: %v", ErrMerkleBuildFailed, err)
	}

	// Step 7: ledger commit.
	receipt, err := o.ledger.SendTransaction(ctx, tree.RootCID)
	if err != nil {
		o.revert(ctx, acceptedRequests(accepted))
		return fmt.Errorf("%w: %v", ErrLedgerFailed, err)
	}

	// Step 8: proof publication.
	proofBlock := castypes.ProofBlock{
		Root:           tree.RootCID,
		TxHash:         receipt.TxHash,
		BlockNumber:    receipt.BlockNumber,
		BlockTimestamp: receipt.BlockTimestamp,
		ChainID:        receipt.ChainID,
	}
	if o.cfg.UseSmartContractAnchors {
		proofBlock.TxType = receipt.TxType
	}
	proofData, err := json.Marshal(proofBlock)
	if err != nil {
		o.revert(ctx, acceptedRequests(accepted))
		return fmt.Errorf("%w: %v", ErrProofPublishFailed, err)
	}
	proofCID, err := o.blocks.Put(ctx, proofData)
	if err != nil {
		o.revert(ctx, acceptedRequests(accepted))
		return fmt.Errorf("%w: %v", ErrProofPublishFailed, err)
	}

	// Step 9: anchor commit publication, per candidate.
	var publishedCandidates []published
	var publishFailed []*castypes.Request
	for _, c := range accepted {
		commit := castypes.AnchorCommit{
			StreamID: c.StreamID,
			TipCID:   c.TipCID,
			Prev:     prevCID[c.StreamID],
			Path:     tree.Paths[c.StreamID],
			Root:     tree.RootCID,
		}
		commitData, err := json.Marshal(commit)
		if err != nil {
			o.logger.Printf("%v", &AnchorCommitPublishError{StreamID: c.StreamID, Err: err})
			publishFailed = append(publishFailed, c.Accepted...)
			continue
		}
		anchorCID, err := o.blocks.Put(ctx, commitData)
		if err != nil {
			o.logger.Printf("%v", &AnchorCommitPublishError{StreamID: c.StreamID, Err: err})
			publishFailed = append(publishFailed, c.Accepted...)
			continue
		}

		winner := newestAccepted(c)
		publishedCandidates = append(publishedCandidates, published{
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

	// Step 10: persist.
	if err := o.persist(ctx, batchID, tree.RootCID, receipt, publishedCandidates, publishFailed); err != nil {
		// Step 11: fatal path — revert everything still PROCESSING.
		o.revert(ctx, acceptedRequests(accepted))
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	o.logger.Printf("batch %s committed root=%s streams=%d", batchID, tree.RootCID, len(publishedCandidates))
	return nil
}

// persist commits anchor records, request transitions, and batch
// finalization in one repeatable-read transaction.
func (o *Orchestrator) persist(ctx context.Context, batchID uuid.UUID, root string, receipt *ledger.TxReceipt, okCandidates []published, failedRequests []*castypes.Request) error {
	tx, err := o.db.BeginTxLevel(ctx, sql.LevelRepeatableRead)
	if err != nil {
		return fmt.Errorf("begin persist tx: %w", err)
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
			return fmt.Errorf("create anchor record for stream %s: %w", p.candidate.StreamID, err)
		}
		if err := o.metadata.UpsertStreamMetadata(ctx, tx, p.candidate.StreamID, p.candidate.TipCID); err != nil {
			return fmt.Errorf("upsert metadata for stream %s: %w", p.candidate.StreamID, err)
		}
	}

	completed := make([]*database.Request, 0)
	for _, p := range okCandidates {
		completed = append(completed, classify(p.candidate.Accepted, castypes.RequestStatusCompleted, true, "")...)
	}
	failed := classify(failedRequests, castypes.RequestStatusFailed, false, "anchor commit publish failed")

	if err := o.requests.UpdateRequests(ctx, tx, append(completed, failed...)); err != nil {
		return fmt.Errorf("persist request transitions: %w", err)
	}

	if err := o.batches.FinalizeBatch(ctx, tx, batchID, root, receipt.TxHash, receipt.ChainID); err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}

	return tx.Commit()
}

// revert rolls claimed requests that never reached the persist step back
// to PENDING so the next batch retries them.
func (o *Orchestrator) revert(ctx context.Context, requests []*castypes.Request) {
	if len(requests) == 0 {
		return
	}
	rows := classify(requests, castypes.RequestStatusPending, false, "")
	if err := o.writeRequests(ctx, rows); err != nil {
		o.logger.Printf("failed to revert %d requests to pending: %v", len(rows), err)
	}
}

// writeRequests wraps UpdateRequests in its own short transaction, for the
// bookkeeping and revert paths that run outside the main persist step.
func (o *Orchestrator) writeRequests(ctx context.Context, rows []*database.Request) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := o.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := o.requests.UpdateRequests(ctx, tx, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func classify(requests []*castypes.Request, status castypes.RequestStatus, pinned bool, message string) []*database.Request {
	rows := make([]*database.Request, 0, len(requests))
	for _, r := range requests {
		row := &database.Request{ID: r.ID, Status: status, Pinned: pinned}
		if message != "" {
			row.Message = sql.NullString{String: message, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

func acceptedRequests(candidates []*castypes.Candidate) []*castypes.Request {
	var out []*castypes.Request
	for _, c := range candidates {
		out = append(out, c.Accepted...)
	}
	return out
}

func acceptedMinus(accepted, rejected []*castypes.Request) []*castypes.Request {
	if len(rejected) == 0 {
		return accepted
	}
	reject := make(map[uuid.UUID]bool, len(rejected))
	for _, r := range rejected {
		reject[r.ID] = true
	}
	out := make([]*castypes.Request, 0, len(accepted))
	for _, r := range accepted {
		if !reject[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

