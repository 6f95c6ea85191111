package result

import "github.com/ethereum-optimism/infra/op-suite/types"

// Counts are per-subtree statistics over test results. Suites are containers and are
// not counted themselves.
type Counts struct {
	Total        int
	Passed       int
	Failed       int
	Errored      int
	Skipped      int
	Ignored      int
	Inconclusive int
	Cancelled    int
}

// PassRate returns the percentage of counted tests that passed
func (c Counts) PassRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Passed) / float64(c.Total) * 100
}

func (c *Counts) add(status types.TestStatus) {
	c.Total++
	switch status {
	case types.TestStatusPass:
		c.Passed++
	case types.TestStatusFail:
		c.Failed++
	case types.TestStatusError:
		c.Errored++
	case types.TestStatusSkip:
		c.Skipped++
	case types.TestStatusIgnored:
		c.Ignored++
	case types.TestStatusInconclusive:
		c.Inconclusive++
	case types.TestStatusCancelled:
		c.Cancelled++
	}
}

// Counts aggregates statistics over every test in the subtree rooted at r
func (r *Result) Counts() Counts {
	var c Counts
	r.Walk(func(res *Result, _ int) bool {
		if !res.IsSuite() {
			c.add(res.Status())
		}
		return true
	})
	return c
}

func (r *Result) PassCount() int {
	return r.Counts().Passed
}

// FailCount counts failed and errored tests
func (r *Result) FailCount() int {
	c := r.Counts()
	return c.Failed + c.Errored
}

func (r *Result) TestCount() int {
	return r.Counts().Total
}
