// Copyright 2025 Certen Protocol
//
// Metadata Repository - tracks each stream's latest anchored tip and its
// pinned-request count.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MetadataRepository handles stream metadata operations
type MetadataRepository struct {
	client *Client
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(client *Client) *MetadataRepository {
	return &MetadataRepository{client: client}
}

// UpsertStreamMetadata records the latest anchored tip for a stream,
// creating the row on first anchor.
func (m *MetadataRepository) UpsertStreamMetadata(ctx context.Context, tx *Tx, streamID, anchoredCID string) error {
	query := `
		INSERT INTO stream_metadata (stream_id, last_anchored_cid, last_anchored_at, pinned_count, updated_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (stream_id) DO UPDATE SET
			last_anchored_cid = EXCLUDED.last_anchored_cid,
			last_anchored_at = EXCLUDED.last_anchored_at,
			updated_at = EXCLUDED.updated_at`

	now := time.Now()
	_, err := tx.Tx().ExecContext(ctx, query, streamID, anchoredCID, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert stream metadata: %w", err)
	}

	return nil
}

// GetStreamMetadata retrieves metadata for a stream.
func (m *MetadataRepository) GetStreamMetadata(ctx context.Context, streamID string) (*StreamMetadata, error) {
	query := `
		SELECT stream_id, last_anchored_cid, last_anchored_at, pinned_count, updated_at
		FROM stream_metadata
		WHERE stream_id = $1`

	meta := &StreamMetadata{}
	err := m.client.QueryRowContext(ctx, query, streamID).Scan(
		&meta.StreamID, &meta.LastAnchoredCID, &meta.LastAnchoredAt, &meta.PinnedCount, &meta.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream metadata: %w", err)
	}

	return meta, nil
}

// IncrementPinnedCount adds delta to the count of pinned requests held for
// a stream. Garbage collection calls it with -1 for each request it unpins.
func (m *MetadataRepository) IncrementPinnedCount(ctx context.Context, streamID string, delta int64) error {
	query := `
		UPDATE stream_metadata
		SET pinned_count = pinned_count + $1, updated_at = $2
		WHERE stream_id = $3`

	_, err := m.client.ExecContext(ctx, query, delta, time.Now(), streamID)
	if err != nil {
		return fmt.Errorf("failed to update pinned count: %w", err)
	}

	return nil
}
