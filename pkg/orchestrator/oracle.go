// Copyright 2025 Certen Protocol
//
// Stream Oracle
//
// The orchestrator treats the stream network's own conflict-resolution
// logic as an opaque collaborator: given a stream's candidate requests, the
// oracle picks the tip to anchor and reports which requests it rejected.
// The dead commented-out conflict-resolution path in the source this was
// distilled from indicates the bypassed mode was the one actually running
// in production; that mode is kept as the default here.

package orchestrator

import (
	"context"
	"fmt"

	"github.com/certen/cas/pkg/castypes"
)

// StreamOracle resolves which request's CID should be anchored for a
// stream, given every request contending for that stream's slot in this
// batch.
type StreamOracle interface {
	// ResolveTip picks the winning CID and reports any rejected requests.
	// Requests not named in rejected are accepted.
	ResolveTip(ctx context.Context, streamID string, requests []*castypes.Request) (cid string, rejected []*castypes.Request, err error)
}

// PassthroughOracle accepts the newest request's CID unconditionally and
// rejects nothing. This is the default: conflict resolution against the
// stream network is out of scope for the core (§1), and the source this
// was built from ran with that step bypassed.
type PassthroughOracle struct{}

// NewPassthroughOracle constructs the default, no-rejection oracle.
func NewPassthroughOracle() *PassthroughOracle {
	return &PassthroughOracle{}
}

func (o *PassthroughOracle) ResolveTip(_ context.Context, _ string, requests []*castypes.Request) (string, []*castypes.Request, error) {
	if len(requests) == 0 {
		return "", nil, fmt.Errorf("resolveTip: no requests for stream")
	}
	newest := requests[0]
	for _, r := range requests[1:] {
		if r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	return newest.CID, nil, nil
}

// StrictOracle is the interface seam for a real stream-network conflict
// resolver. It is not implemented in-process: the stream network's
// conflict-resolution logic is an out-of-scope external collaborator
// (§1). Constructing one without wiring a real resolver is a
// configuration error, surfaced at startup rather than at batch time.
type StrictOracle struct {
	Resolver StreamOracle
}

// NewStrictOracle wraps a caller-supplied resolver. Resolver must not be
// nil; selecting strict mode without one is the configuration error this
// type exists to catch.
func NewStrictOracle(resolver StreamOracle) (*StrictOracle, error) {
	if resolver == nil {
		return nil, ErrOracleMisconfigured
	}
	return &StrictOracle{Resolver: resolver}, nil
}

func (o *StrictOracle) ResolveTip(ctx context.Context, streamID string, requests []*castypes.Request) (string, []*castypes.Request, error) {
	return o.Resolver.ResolveTip(ctx, streamID, requests)
}
