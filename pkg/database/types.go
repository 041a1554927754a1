// Copyright 2025 Certen Protocol
//
// Postgres row types for the anchor request, anchor record, stream
// metadata, and batch tables. Mirrors castypes.Request/AnchorRecord but keeps
// the sql.Null* plumbing local to the persistence layer.

package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/certen/cas/pkg/castypes"
)

// Request is the database row shape for an anchor request.
type Request struct {
	ID        uuid.UUID
	StreamID  string
	CID       string
	CreatedAt time.Time
	Status    castypes.RequestStatus
	Message   sql.NullString
	Pinned    bool
	BatchID   uuid.NullUUID
	UpdatedAt time.Time
}

// ToDomain converts a database row into the shared domain type.
func (r *Request) ToDomain() *castypes.Request {
	return &castypes.Request{
		ID:        r.ID,
		StreamID:  r.StreamID,
		CID:       r.CID,
		CreatedAt: r.CreatedAt,
		Status:    r.Status,
		Message:   r.Message,
		Pinned:    r.Pinned,
		BatchID:   r.BatchID,
		UpdatedAt: r.UpdatedAt,
	}
}

// AnchorRecord is the database row shape for a published anchor record.
type AnchorRecord struct {
	ID            uuid.UUID
	RequestID     uuid.UUID
	StreamID      string
	ProofCID      string
	Path          string
	CID           string
	BatchID       uuid.UUID
	Confirmations int64
	IsFinal       bool
	CreatedAt     time.Time
}

func (a *AnchorRecord) ToDomain() *castypes.AnchorRecord {
	return &castypes.AnchorRecord{
		ID:            a.ID,
		RequestID:     a.RequestID,
		StreamID:      a.StreamID,
		ProofCID:      a.ProofCID,
		Path:          castypes.MerklePath(a.Path),
		CID:           a.CID,
		BatchID:       a.BatchID,
		Confirmations: a.Confirmations,
		IsFinal:       a.IsFinal,
		CreatedAt:     a.CreatedAt,
	}
}

// StreamMetadata is the database row shape tracked for a stream that has
// ever been anchored: its most recently anchored tip and its pinned-request
// count.
type StreamMetadata struct {
	StreamID        string
	LastAnchoredCID sql.NullString
	LastAnchoredAt  sql.NullTime
	PinnedCount     int64
	UpdatedAt       time.Time
}

// NewAnchorBatch carries the fields needed to persist a claimed batch.
type NewAnchorBatch struct {
	ID uuid.UUID
}

// Batch is the database row shape for a claimed batch run.
type Batch struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Root      sql.NullString
	TxHash    sql.NullString
	ChainID   sql.NullString
}
