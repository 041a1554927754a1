// Copyright 2025 Certen Protocol
//
// Candidate Grouping
//
// Turns the flat set of claimed requests into one Candidate per stream,
// in the deterministic order the Merkle tree is built over: earliest
// request first, stream id as the tie-break.

package orchestrator

import (
	"sort"
	"time"

	"github.com/certen/cas/pkg/castypes"
	"github.com/certen/cas/pkg/database"
)

// groupCandidates buckets claimed requests by stream id and sorts the
// resulting candidates by the earliest request in each group, then by
// stream id, so re-running the same claim always yields the same order.
func groupCandidates(claimed []*database.Request) []*castypes.Candidate {
	byStream := make(map[string][]*castypes.Request)
	order := make([]string, 0)

	for _, r := range claimed {
		domain := r.ToDomain()
		if _, ok := byStream[r.StreamID]; !ok {
			order = append(order, r.StreamID)
		}
		byStream[r.StreamID] = append(byStream[r.StreamID], domain)
	}

	candidates := make([]*castypes.Candidate, 0, len(order))
	for _, streamID := range order {
		reqs := byStream[streamID]
		sort.Slice(reqs, func(i, j int) bool {
			return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
		})
		candidates = append(candidates, &castypes.Candidate{
			StreamID: streamID,
			Accepted: reqs,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		ei, ej := earliest(candidates[i]), earliest(candidates[j])
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return candidates[i].StreamID < candidates[j].StreamID
	})

	return candidates
}

func earliest(c *castypes.Candidate) time.Time {
	all := append(append(append([]*castypes.Request{}, c.Accepted...), c.Rejected...), c.Failed...)
	if len(all) == 0 {
		return time.Time{}
	}
	min := all[0].CreatedAt
	for _, r := range all[1:] {
		if r.CreatedAt.Before(min) {
			min = r.CreatedAt
		}
	}
	return min
}

// newestAccepted returns the accepted request with the greatest createdAt,
// used both to pick the tip CID under the passthrough oracle and to check
// whether this exact request was already anchored by a prior run.
func newestAccepted(c *castypes.Candidate) *castypes.Request {
	if len(c.Accepted) == 0 {
		return nil
	}
	newest := c.Accepted[0]
	for _, r := range c.Accepted[1:] {
		if r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	return newest
}
