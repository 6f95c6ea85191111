// Package reporting renders the result tree of a completed run.
package reporting

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Run is a completed run as seen by the formatters
type Run struct {
	ID       string
	Plan     string
	Gate     string
	Started  time.Time
	Duration time.Duration
	Root     *result.Result
}

// Status returns the status of the root result
func (r Run) Status() types.TestStatus {
	if r.Root == nil {
		return types.TestStatusInconclusive
	}
	return r.Root.Status()
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

func statusText(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "PASS"
	case types.TestStatusFail:
		return "FAIL"
	case types.TestStatusError:
		return "ERROR"
	case types.TestStatusSkip:
		return "SKIP"
	case types.TestStatusIgnored:
		return "IGNORED"
	case types.TestStatusCancelled:
		return "CANCELLED"
	default:
		return "INCONCLUSIVE"
	}
}

// statusChar returns a character representing the test status
func statusChar(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓"
	case types.TestStatusFail:
		return "✗"
	case types.TestStatusError:
		return "⚠"
	case types.TestStatusSkip, types.TestStatusIgnored:
		return "⊝"
	case types.TestStatusCancelled:
		return "⊘"
	default:
		return "?"
	}
}

// nodeType names a result for display. Results directly under the root are gates.
func nodeType(res *result.Result, depth int) string {
	switch {
	case depth == 1:
		return "Gate"
	case res.IsSuite():
		return "Suite"
	default:
		return "Test"
	}
}

// isFailureOrigin reports whether res is where a failure started rather than a
// composite that only failed because a child did.
func isFailureOrigin(res *result.Result) bool {
	if !res.Status().IsFailure() {
		return false
	}
	return res.Site() != types.FailureSiteChild || res.Message() != result.ChildFailureMessage
}

// isNotRun reports whether res finished without a verdict of its own: skipped, ignored,
// cancelled or inconclusive, and with no children that could explain it.
func isNotRun(res *result.Result) bool {
	switch res.Status() {
	case types.TestStatusSkip, types.TestStatusIgnored, types.TestStatusInconclusive, types.TestStatusCancelled:
		return len(res.Children()) == 0
	default:
		return false
	}
}
