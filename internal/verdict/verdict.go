// Package verdict reduces a completed run's normalized outcome to the
// terminal orchestration verdict.
package verdict

import (
	"fmt"
	"time"

	"github.com/baton-ci/baton/pkg/types"
)

// Resolve maps a completed run's outcome onto the terminal verdict. The
// mapping is a pure function of its inputs: Success becomes Succeeded;
// Failure, Neutral, and Unknown become Failed carrying the outcome as the
// reason; Cancelled is folded into Failed when cancelledIsFailure is set and
// reported as its own verdict otherwise.
func Resolve(outcome types.Outcome, cancelledIsFailure bool) types.Verdict {
	switch outcome {
	case types.OutcomeSuccess:
		return types.Verdict{Code: types.VerdictSucceeded}
	case types.OutcomeCancelled:
		if cancelledIsFailure {
			return types.Verdict{Code: types.VerdictFailed, Reason: string(types.OutcomeCancelled)}
		}
		return types.Verdict{Code: types.VerdictCancelled}
	default:
		return types.Verdict{Code: types.VerdictFailed, Reason: string(outcome)}
	}
}

// TimedOut builds the verdict for an orchestration that exhausted its shared
// wall-clock budget in either phase.
func TimedOut(maxWait time.Duration) types.Verdict {
	return types.Verdict{
		Code:   types.VerdictTimedOut,
		Reason: fmt.Sprintf("exceeded max wait %s", maxWait),
	}
}
