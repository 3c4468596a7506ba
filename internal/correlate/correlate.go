// Package correlate matches a workflow dispatch to the remote run it started.
//
// Trigger endpoints such as GitHub workflow_dispatch acknowledge without
// returning a run identifier, so the run has to be recovered from the
// backend's run listing: the newest run created at or after the dispatch time
// (minus a clock-skew allowance) is taken to be ours.
package correlate

import (
	"strconv"
	"time"

	"github.com/baton-ci/baton/pkg/types"
)

// Pick selects the candidate most likely created by a dispatch that happened
// at dispatchedAt. Candidates created before dispatchedAt-skew are ignored;
// among the rest the latest creation time wins, with ties broken by the
// highest run ID. The second return is false when no candidate qualifies.
func Pick(candidates []types.CandidateRun, dispatchedAt time.Time, skew time.Duration) (types.CandidateRun, bool) {
	cutoff := dispatchedAt.Add(-skew)

	var best types.CandidateRun
	found := false
	for _, c := range candidates {
		if c.CreatedAt.Before(cutoff) {
			continue
		}
		if !found || newer(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}

// newer reports whether a should be preferred over b: later creation time,
// or on a creation-time tie the higher run ID.
func newer(a, b types.CandidateRun) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return higherID(a.ID, b.ID)
}

// higherID orders run identifiers numerically when both parse as integers,
// falling back to lexicographic comparison otherwise.
func higherID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na > nb
	}
	return a > b
}
