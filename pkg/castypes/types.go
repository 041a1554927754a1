// Copyright 2025 Certen Protocol
//
// Package castypes defines the domain model shared across the anchor
// pipeline: anchor requests, aggregated candidates, the Merkle tree's
// content-addressed node shape, and the records published once a batch
// lands on the ledger.
package castypes

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of an anchor request.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "PENDING"
	RequestStatusReady      RequestStatus = "READY"
	RequestStatusProcessing RequestStatus = "PROCESSING"
	RequestStatusCompleted  RequestStatus = "COMPLETED"
	RequestStatusFailed     RequestStatus = "FAILED"
)

// Request is a single stream's ask to be included in the next anchor batch.
type Request struct {
	ID        uuid.UUID
	StreamID  string
	CID       string
	CreatedAt time.Time
	Status    RequestStatus
	Message   sql.NullString
	Pinned    bool
	BatchID   uuid.NullUUID
	UpdatedAt time.Time
}

// NewRequest carries the fields needed to create a Request row.
type NewRequest struct {
	StreamID string
	CID      string
	Pinned   bool
}

// Candidate groups the requests contending for a single stream's anchor
// slot within a batch, after the stream oracle has resolved a winner.
type Candidate struct {
	StreamID        string
	TipCID          string
	Accepted        []*Request
	Rejected        []*Request
	Failed          []*Request
	AlreadyAnchored bool
}

// MerkleNode is a content-addressed internal node of the anchor tree.
// Leaf nodes are Candidate tip CIDs; internal nodes reference their
// children (and an optional metadata block) by CID.
type MerkleNode struct {
	Left  string `json:"left"`
	Right string `json:"right"`
	Meta  string `json:"meta,omitempty"`
}

// MerklePath locates a leaf within the tree as a slash-delimited string
// of binary digits, e.g. "0/1/0", read root-to-leaf.
type MerklePath string

// AnchorCommit is the per-stream record published alongside the batch's
// Merkle root, binding a stream's accepted tip to its position in the tree.
type AnchorCommit struct {
	StreamID string     `json:"streamId"`
	TipCID   string     `json:"tipCid"`
	Prev     string     `json:"prev,omitempty"`
	Path     MerklePath `json:"path"`
	Root     string     `json:"root"`
}

// ProofBlock is the on-chain transaction receipt for a committed root.
type ProofBlock struct {
	Root            string    `json:"root"`
	TxHash          string    `json:"txHash"`
	BlockNumber     uint64    `json:"blockNumber"`
	BlockTimestamp  time.Time `json:"blockTimestamp"`
	ChainID         string    `json:"chainId"`
	TxType          string    `json:"txType,omitempty"`
}

// AnchorRecord is the durable, per-request outcome of a successful batch:
// the CID of the published proof object and the path used to reach it.
type AnchorRecord struct {
	ID            uuid.UUID
	RequestID     uuid.UUID
	StreamID      string
	ProofCID      string
	Path          MerklePath
	CID           string
	BatchID       uuid.UUID
	Confirmations int64
	IsFinal       bool
	CreatedAt     time.Time
}

// WitnessArchive is the self-contained, CID-addressed closure published
// for a stream: its anchor commit, the chain proof, the root, and every
// internal Merkle node on the path between them.
type WitnessArchive struct {
	RootCID      string         `json:"rootCid"`
	AnchorCommit AnchorCommit   `json:"anchorCommit"`
	Proof        ProofBlock     `json:"proof"`
	PathNodes    []MerkleNodeCID `json:"pathNodes"`
}

// MerkleNodeCID pairs a tree node with the CID it is stored under, so a
// witness archive can be replayed without a second lookup round-trip.
type MerkleNodeCID struct {
	CID  string     `json:"cid"`
	Node MerkleNode `json:"node"`
}

// Batch groups the requests claimed for one run of the orchestrator.
type Batch struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Root      sql.NullString
	TxHash    sql.NullString
	ChainID   sql.NullString
}
