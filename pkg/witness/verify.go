// Copyright 2025 Certen Protocol
//
// Witness Archive Verification
//
// Verification is self-contained: everything needed to recompute the path
// from root to leaf ships inside the archive, so a verifier never has to
// trust the service's block store. Each step is checked independently and
// recorded, then the overall result fails closed if any step failed.

package witness

import (
	"fmt"

	"github.com/certen/cas/pkg/castypes"
	"github.com/certen/cas/pkg/merkle"
)

// Result reports the outcome of verifying a witness archive, with one
// boolean per independently-checked component.
type Result struct {
	RootMatches  bool
	ProofMatches bool
	PathValid    bool
	Errors       []string
}

// Valid reports whether every checked component passed.
func (r *Result) Valid() bool {
	return r.RootMatches && r.ProofMatches && r.PathValid && len(r.Errors) == 0
}

func (r *Result) fail(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Verify checks a witness archive against its own bundled path nodes and
// returns a Result describing which components held.
func Verify(archive castypes.WitnessArchive) *Result {
	r := &Result{}

	r.RootMatches = archive.RootCID == archive.AnchorCommit.Root
	if !r.RootMatches {
		r.fail("%v: archive=%s commit=%s", ErrRootMismatch, archive.RootCID, archive.AnchorCommit.Root)
	}

	r.ProofMatches = archive.Proof.Root == archive.RootCID
	if !r.ProofMatches {
		r.fail("%v: proof=%s archive=%s", ErrProofRootMismatch, archive.Proof.Root, archive.RootCID)
	}

	byCID := make(map[string]castypes.MerkleNode, len(archive.PathNodes))
	for _, n := range archive.PathNodes {
		byCID[n.CID] = n.Node
	}

	leafCID, err := merkle.WalkPath(archive.RootCID, archive.AnchorCommit.Path, func(cid string) (castypes.MerkleNode, error) {
		node, ok := byCID[cid]
		if !ok {
			return castypes.MerkleNode{}, fmt.Errorf("%w: %s", ErrMissingNode, cid)
		}
		return node, nil
	})
	if err != nil {
		r.fail("%v", err)
	} else if leafCID != archive.AnchorCommit.TipCID {
		r.fail("%v: resolved=%s expected=%s", ErrLeafMismatch, leafCID, archive.AnchorCommit.TipCID)
	} else {
		r.PathValid = true
	}

	return r
}
