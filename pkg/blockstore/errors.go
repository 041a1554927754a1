// Copyright 2025 Certen Protocol
//
// Package blockstore provides sentinel errors for block store operations.

package blockstore

import "errors"

var (
	// ErrBlockNotFound is returned when a CID has no corresponding block.
	ErrBlockNotFound = errors.New("blockstore: block not found")
)
