// Copyright 2025 Certen Protocol
//
// Request Repository - CRUD and batch-claim operations for anchor requests.
// Requests move PENDING -> READY -> PROCESSING -> {COMPLETED, FAILED}, with
// FAILED -> PENDING retries and READY -> PENDING expiry.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certen/cas/pkg/castypes"
)

// RequestRepository handles anchor request operations
type RequestRepository struct {
	client *Client
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(client *Client) *RequestRepository {
	return &RequestRepository{client: client}
}

// CreateRequest creates a new anchor request in PENDING state.
func (r *RequestRepository) CreateRequest(ctx context.Context, input *castypes.NewRequest) (*Request, error) {
	request := &Request{
		ID:        uuid.New(),
		StreamID:  input.StreamID,
		CID:       input.CID,
		CreatedAt: time.Now(),
		Status:    castypes.RequestStatusPending,
		Pinned:    input.Pinned,
		UpdatedAt: time.Now(),
	}

	query := `
		INSERT INTO anchor_requests (
			id, stream_id, cid, created_at, status, pinned, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.client.QueryRowContext(ctx, query,
		request.ID, request.StreamID, request.CID, request.CreatedAt,
		request.Status, request.Pinned, request.UpdatedAt,
	).Scan(&request.ID, &request.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return request, nil
}

// GetRequest retrieves a request by ID
func (r *RequestRepository) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	query := `
		SELECT id, stream_id, cid, created_at, status, message, pinned, batch_id, updated_at
		FROM anchor_requests
		WHERE id = $1`

	request := &Request{}
	err := r.client.QueryRowContext(ctx, query, id).Scan(
		&request.ID, &request.StreamID, &request.CID, &request.CreatedAt,
		&request.Status, &request.Message, &request.Pinned, &request.BatchID, &request.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		// F.4 remediation: Return explicit error instead of nil, nil
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return request, nil
}

// CountByStatus returns the count of requests in a given status.
func (r *RequestRepository) CountByStatus(ctx context.Context, status castypes.RequestStatus) (int64, error) {
	query := `SELECT COUNT(*) FROM anchor_requests WHERE status = $1`

	var count int64
	if err := r.client.QueryRowContext(ctx, query, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count requests by status: %w", err)
	}

	return count, nil
}

// FindAndMarkReady promotes PENDING requests that are eligible for the next
// batch to READY, returning the promoted rows. This is the boundary between
// requests that continue to accumulate and the set a batch will contend for.
func (r *RequestRepository) FindAndMarkReady(ctx context.Context, limit int) ([]*Request, error) {
	query := `
		UPDATE anchor_requests
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM anchor_requests
			WHERE status = $3
			ORDER BY created_at ASC
			LIMIT $4
		)
		RETURNING id, stream_id, cid, created_at, status, message, pinned, batch_id, updated_at`

	rows, err := r.client.QueryContext(ctx, query,
		castypes.RequestStatusReady, time.Now(), castypes.RequestStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to mark requests ready: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// BatchProcessing atomically claims all READY requests into a single batch,
// transitioning them to PROCESSING under the given transaction. Callers must
// run this inside a database transaction so the claim is exclusive.
func (r *RequestRepository) BatchProcessing(ctx context.Context, tx *Tx, batchID uuid.UUID) ([]*Request, error) {
	query := `
		UPDATE anchor_requests
		SET status = $1, batch_id = $2, updated_at = $3
		WHERE status = $4
		RETURNING id, stream_id, cid, created_at, status, message, pinned, batch_id, updated_at`

	rows, err := tx.Tx().QueryContext(ctx, query,
		castypes.RequestStatusProcessing, batchID, time.Now(), castypes.RequestStatusReady)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	defer rows.Close()

	claimed, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, ErrNoReadyRequests
	}
	return claimed, nil
}

// UpdateExpiringReadyRequests demotes READY requests that have sat unclaimed
// longer than expiry back to PENDING, so a stalled batch does not strand them.
func (r *RequestRepository) UpdateExpiringReadyRequests(ctx context.Context, expiry time.Duration) (int64, error) {
	query := `
		UPDATE anchor_requests
		SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4`

	cutoff := time.Now().Add(-expiry)
	result, err := r.client.ExecContext(ctx, query,
		castypes.RequestStatusPending, time.Now(), castypes.RequestStatusReady, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire ready requests: %w", err)
	}

	return result.RowsAffected()
}

// UpdateRequests persists the final status/message of each request in a
// batch within the given transaction. Used at the end of a batch run to
// record COMPLETED, FAILED, or PENDING (retry) outcomes atomically.
func (r *RequestRepository) UpdateRequests(ctx context.Context, tx *Tx, requests []*Request) error {
	query := `
		UPDATE anchor_requests
		SET status = $1, message = $2, pinned = $3, updated_at = $4
		WHERE id = $5`

	for _, req := range requests {
		if _, err := tx.Tx().ExecContext(ctx, query, req.Status, req.Message, req.Pinned, time.Now(), req.ID); err != nil {
			return fmt.Errorf("failed to update request %s: %w", req.ID, err)
		}
	}

	return nil
}

// MarkFailed marks a single request as failed for retry on the next cycle.
func (r *RequestRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE anchor_requests
		SET status = $1, message = $2, batch_id = NULL, updated_at = $3
		WHERE id = $4`

	_, err := r.client.ExecContext(ctx, query, castypes.RequestStatusFailed, message, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark request failed: %w", err)
	}

	return nil
}

// ResetToPending resets a FAILED request back to PENDING so it re-enters
// the READY selection pool on the next batch cycle.
func (r *RequestRepository) ResetToPending(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE anchor_requests
		SET status = $1, message = NULL, updated_at = $2
		WHERE id = $3 AND status = $4`

	result, err := r.client.ExecContext(ctx, query, castypes.RequestStatusPending, time.Now(), id, castypes.RequestStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to reset request: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("request not found or not in failed status")
	}

	return nil
}

// UnpinRequest clears the pinned flag on a COMPLETED request once its
// retention window has elapsed, letting the block store reclaim the
// content it pinned on anchor commit.
func (r *RequestRepository) UnpinRequest(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE anchor_requests
		SET pinned = false, updated_at = $1
		WHERE id = $2 AND status = $3`

	result, err := r.client.ExecContext(ctx, query, time.Now(), id, castypes.RequestStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to unpin request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("request not found or not completed")
	}

	return nil
}

// FindRequestsToGarbageCollect returns COMPLETED, still-pinned requests
// whose last update (normally their completion) is older than the
// retention window and so are safe to unpin.
func (r *RequestRepository) FindRequestsToGarbageCollect(ctx context.Context, olderThan time.Duration, limit int) ([]*Request, error) {
	query := `
		SELECT id, stream_id, cid, created_at, status, message, pinned, batch_id, updated_at
		FROM anchor_requests
		WHERE status = $1 AND pinned = true AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`

	cutoff := time.Now().Add(-olderThan)
	rows, err := r.client.QueryContext(ctx, query, castypes.RequestStatusCompleted, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query garbage collection candidates: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// GetRequestsByBatch retrieves all requests claimed by a batch.
func (r *RequestRepository) GetRequestsByBatch(ctx context.Context, batchID uuid.UUID) ([]*Request, error) {
	query := `
		SELECT id, stream_id, cid, created_at, status, message, pinned, batch_id, updated_at
		FROM anchor_requests
		WHERE batch_id = $1
		ORDER BY created_at ASC`

	rows, err := r.client.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests by batch: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

func scanRequests(rows *sql.Rows) ([]*Request, error) {
	var requests []*Request
	for rows.Next() {
		request := &Request{}
		err := rows.Scan(
			&request.ID, &request.StreamID, &request.CID, &request.CreatedAt,
			&request.Status, &request.Message, &request.Pinned, &request.BatchID, &request.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, rows.Err()
}
