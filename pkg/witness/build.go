// Copyright 2025 Certen Protocol
//
// Witness Archive Construction
//
// A witness archive is the self-contained bundle a stream owner needs to
// convince themselves (or anyone else) that their tip is anchored, without
// trusting the service: the anchor commit, the chain proof, and every
// Merkle node on the path from the batch root down to their leaf.

package witness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/certen/cas/pkg/castypes"
	"github.com/certen/cas/pkg/merkle"
)

// BlockReader is the read side of the block store Build depends on: enough
// to fetch the anchor commit and proof blocks by CID and walk the Merkle
// path node by node. pkg/blockstore.Adapter satisfies it.
type BlockReader interface {
	Get(ctx context.Context, cidStr string) ([]byte, error)
	GetNode(ctx context.Context, cidStr string) (castypes.MerkleNode, error)
}

// Build assembles a witness archive for a single anchor commit, reading the
// commit, its chain proof, and every Merkle node on its path from the block
// store by CID. This is the only way to retrieve a witness for a stream
// anchored by a prior, now-finished batch run: none of that batch's
// in-memory state survives past RunBatch, so every input here is fetched
// fresh from C1.
func Build(ctx context.Context, blocks BlockReader, anchorCommitCID, proofCID string) (castypes.WitnessArchive, error) {
	commitData, err := blocks.Get(ctx, anchorCommitCID)
	if err != nil {
		return castypes.WitnessArchive{}, InvalidWitness("anchorCommit", fmt.Errorf("load %s: %w", anchorCommitCID, err))
	}
	var commit castypes.AnchorCommit
	if err := json.Unmarshal(commitData, &commit); err != nil {
		return castypes.WitnessArchive{}, InvalidWitness("anchorCommit", fmt.Errorf("decode %s: %w", anchorCommitCID, err))
	}
	if commit.Root == "" {
		return castypes.WitnessArchive{}, InvalidWitness("anchorCommit.root", fmt.Errorf("empty root"))
	}

	proofData, err := blocks.Get(ctx, proofCID)
	if err != nil {
		return castypes.WitnessArchive{}, InvalidWitness("proof", fmt.Errorf("load %s: %w", proofCID, err))
	}
	var proof castypes.ProofBlock
	if err := json.Unmarshal(proofData, &proof); err != nil {
		return castypes.WitnessArchive{}, InvalidWitness("proof", fmt.Errorf("decode %s: %w", proofCID, err))
	}
	if proof.Root != commit.Root {
		return castypes.WitnessArchive{}, InvalidWitness("proof.root", ErrProofRootMismatch)
	}

	pathNodes, leafCID, err := collectPath(ctx, commit.Root, commit.Path, blocks)
	if err != nil {
		return castypes.WitnessArchive{}, err
	}
	if leafCID != commit.TipCID {
		return castypes.WitnessArchive{}, InvalidWitness("anchorCommit.tipCid", ErrLeafMismatch)
	}

	return castypes.WitnessArchive{
		RootCID:      commit.Root,
		AnchorCommit: commit,
		Proof:        proof,
		PathNodes:    pathNodes,
	}, nil
}

// collectPath walks path from root through the block store, recording every
// node it visits by CID, and returns the CID the path terminates at.
func collectPath(ctx context.Context, rootCID string, path castypes.MerklePath, blocks BlockReader) ([]castypes.MerkleNodeCID, string, error) {
	var collected []castypes.MerkleNodeCID

	get := func(cid string) (castypes.MerkleNode, error) {
		node, err := blocks.GetNode(ctx, cid)
		if err != nil {
			return castypes.MerkleNode{}, fmt.Errorf("%w: %s: %v", ErrMissingNode, cid, err)
		}
		collected = append(collected, castypes.MerkleNodeCID{CID: cid, Node: node})
		return node, nil
	}

	leafCID, err := merkle.WalkPath(rootCID, path, get)
	if err != nil {
		return nil, "", InvalidWitness("path", err)
	}

	return collected, leafCID, nil
}
