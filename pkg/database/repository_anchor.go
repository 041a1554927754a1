// Copyright 2025 Certen Protocol
//
// Anchor Repository - CRUD operations for published anchor records

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AnchorRepository handles anchor record operations
type AnchorRepository struct {
	client *Client
}

// NewAnchorRepository creates a new anchor repository
func NewAnchorRepository(client *Client) *AnchorRepository {
	return &AnchorRepository{client: client}
}

// CreateAnchorRecord persists the published anchor record for one request
// within the given transaction. Called once per request in a completed batch.
func (a *AnchorRepository) CreateAnchorRecord(ctx context.Context, tx *Tx, record *AnchorRecord) error {
	record.ID = uuid.New()
	record.CreatedAt = time.Now()

	query := `
		INSERT INTO anchor_records (
			id, request_id, stream_id, proof_cid, path, cid, batch_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Tx().ExecContext(ctx, query,
		record.ID, record.RequestID, record.StreamID, record.ProofCID,
		record.Path, record.CID, record.BatchID, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create anchor record: %w", err)
	}

	return nil
}

// GetAnchorRecord retrieves an anchor record by ID.
func (a *AnchorRepository) GetAnchorRecord(ctx context.Context, id uuid.UUID) (*AnchorRecord, error) {
	query := `
		SELECT id, request_id, stream_id, proof_cid, path, cid, batch_id, confirmations, is_final, created_at
		FROM anchor_records
		WHERE id = $1`

	record := &AnchorRecord{}
	err := a.client.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.RequestID, &record.StreamID, &record.ProofCID,
		&record.Path, &record.CID, &record.BatchID, &record.Confirmations, &record.IsFinal, &record.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrAnchorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anchor record: %w", err)
	}

	return record, nil
}

// GetAnchorRecordByRequest retrieves the anchor record produced for a
// specific request, if any.
func (a *AnchorRepository) GetAnchorRecordByRequest(ctx context.Context, requestID uuid.UUID) (*AnchorRecord, error) {
	query := `
		SELECT id, request_id, stream_id, proof_cid, path, cid, batch_id, confirmations, is_final, created_at
		FROM anchor_records
		WHERE request_id = $1`

	record := &AnchorRecord{}
	err := a.client.QueryRowContext(ctx, query, requestID).Scan(
		&record.ID, &record.RequestID, &record.StreamID, &record.ProofCID,
		&record.Path, &record.CID, &record.BatchID, &record.Confirmations, &record.IsFinal, &record.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrAnchorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anchor record by request: %w", err)
	}

	return record, nil
}

// GetAnchorRecordsByBatch retrieves every anchor record produced by a batch.
func (a *AnchorRepository) GetAnchorRecordsByBatch(ctx context.Context, batchID uuid.UUID) ([]*AnchorRecord, error) {
	query := `
		SELECT id, request_id, stream_id, proof_cid, path, cid, batch_id, confirmations, is_final, created_at
		FROM anchor_records
		WHERE batch_id = $1
		ORDER BY created_at ASC`

	rows, err := a.client.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchor records by batch: %w", err)
	}
	defer rows.Close()

	var records []*AnchorRecord
	for rows.Next() {
		record := &AnchorRecord{}
		if err := rows.Scan(
			&record.ID, &record.RequestID, &record.StreamID, &record.ProofCID,
			&record.Path, &record.CID, &record.BatchID, &record.Confirmations, &record.IsFinal, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan anchor record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// GetLatestAnchorRecordForStream returns the most recently published anchor
// record for a stream, used by the orchestrator to detect already-anchored
// tips.
func (a *AnchorRepository) GetLatestAnchorRecordForStream(ctx context.Context, streamID string) (*AnchorRecord, error) {
	query := `
		SELECT id, request_id, stream_id, proof_cid, path, cid, batch_id, confirmations, is_final, created_at
		FROM anchor_records
		WHERE stream_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	record := &AnchorRecord{}
	err := a.client.QueryRowContext(ctx, query, streamID).Scan(
		&record.ID, &record.RequestID, &record.StreamID, &record.ProofCID,
		&record.Path, &record.CID, &record.BatchID, &record.Confirmations, &record.IsFinal, &record.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrAnchorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest anchor record for stream: %w", err)
	}

	return record, nil
}

// CountAnchorRecords returns the total number of published anchor records.
func (a *AnchorRepository) CountAnchorRecords(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM anchor_records`

	var count int64
	if err := a.client.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count anchor records: %w", err)
	}

	return count, nil
}

// UpdateConfirmations sets the observed confirmation depth for an anchor
// record, i.e. how deep a committed root has settled on-chain. Neither the
// core batch algorithm nor any cmd/ entry point calls it.
func (a *AnchorRepository) UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations int64) error {
	query := `UPDATE anchor_records SET confirmations = $1 WHERE id = $2`
	result, err := a.client.ExecContext(ctx, query, confirmations, id)
	if err != nil {
		return fmt.Errorf("failed to update confirmations: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAnchorNotFound
	}
	return nil
}

// MarkAnchorFinal flags an anchor record as final once its confirmation
// depth has crossed the caller's finality threshold.
func (a *AnchorRepository) MarkAnchorFinal(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE anchor_records SET is_final = true WHERE id = $1`
	result, err := a.client.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark anchor final: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAnchorNotFound
	}
	return nil
}

// FindUnfinalizedAnchorRecords returns anchor records not yet marked final,
// the input set for a confirmation-tracking reconciliation pass.
func (a *AnchorRepository) FindUnfinalizedAnchorRecords(ctx context.Context, limit int) ([]*AnchorRecord, error) {
	query := `
		SELECT id, request_id, stream_id, proof_cid, path, cid, batch_id, confirmations, is_final, created_at
		FROM anchor_records
		WHERE is_final = false
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := a.client.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unfinalized anchor records: %w", err)
	}
	defer rows.Close()

	var records []*AnchorRecord
	for rows.Next() {
		record := &AnchorRecord{}
		if err := rows.Scan(
			&record.ID, &record.RequestID, &record.StreamID, &record.ProofCID,
			&record.Path, &record.CID, &record.BatchID, &record.Confirmations, &record.IsFinal, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan anchor record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
