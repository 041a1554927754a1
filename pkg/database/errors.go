// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for repository operations.
// F.4 remediation: Explicit errors instead of nil, nil returns

package database

import "errors"

// Sentinel errors for database operations
var (
	// ErrNotFound is returned when a requested entity is not found in the database
	ErrNotFound = errors.New("entity not found")

	// ErrRequestNotFound is returned when an anchor request is not found
	ErrRequestNotFound = errors.New("request not found")

	// ErrAnchorNotFound is returned when an anchor record is not found
	ErrAnchorNotFound = errors.New("anchor record not found")

	// ErrBatchNotFound is returned when a batch is not found
	ErrBatchNotFound = errors.New("batch not found")

	// ErrStreamNotFound is returned when stream metadata is not found
	ErrStreamNotFound = errors.New("stream metadata not found")

	// ErrNoReadyRequests is returned when a batch claim finds nothing to process
	ErrNoReadyRequests = errors.New("no ready requests to claim")
)
