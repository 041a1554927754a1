// Copyright 2025 Certen Protocol
//
// Batch Repository - records the root/tx/chain that a claimed batch
// ultimately published, for reconciliation and auditing.

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// BatchRepository handles batch lifecycle bookkeeping.
type BatchRepository struct {
	client *Client
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(client *Client) *BatchRepository {
	return &BatchRepository{client: client}
}

// CreateBatch inserts a new batch row within the claiming transaction.
func (b *BatchRepository) CreateBatch(ctx context.Context, tx *Tx, id uuid.UUID) error {
	query := `INSERT INTO anchor_batches (id, created_at) VALUES ($1, now())`
	if _, err := tx.Tx().ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// FinalizeBatch records the published root, transaction hash, and chain for
// a batch within the persist transaction (serializable/repeatable-read
// isolation at the caller's discretion).
func (b *BatchRepository) FinalizeBatch(ctx context.Context, tx *Tx, id uuid.UUID, root, txHash, chainID string) error {
	query := `
		UPDATE anchor_batches
		SET root = $1, tx_hash = $2, chain_id = $3
		WHERE id = $4`

	if _, err := tx.Tx().ExecContext(ctx, query, root, txHash, chainID, id); err != nil {
		return fmt.Errorf("failed to finalize batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch's published state.
func (b *BatchRepository) GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error) {
	query := `SELECT id, created_at, root, tx_hash, chain_id FROM anchor_batches WHERE id = $1`

	batch := &Batch{}
	err := b.client.QueryRowContext(ctx, query, id).Scan(
		&batch.ID, &batch.CreatedAt, &batch.Root, &batch.TxHash, &batch.ChainID,
	)

	if err == sql.ErrNoRows {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return batch, nil
}

// GetUnfinalizedBatches returns batches whose root was never recorded,
// i.e. a prior run crashed between claim and persist. These are the input
// to reconciliation.
func (b *BatchRepository) GetUnfinalizedBatches(ctx context.Context, limit int) ([]*Batch, error) {
	query := `
		SELECT id, created_at, root, tx_hash, chain_id
		FROM anchor_batches
		WHERE root IS NULL
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := b.client.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinalized batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch := &Batch{}
		if err := rows.Scan(&batch.ID, &batch.CreatedAt, &batch.Root, &batch.TxHash, &batch.ChainID); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, batch)
	}

	return batches, rows.Err()
}
