// Package result holds the outcome tree produced by a run. A Result is written by the
// work item that owns it and by its children merging into it; once the work item has
// completed, a Result is read-only.
package result

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-suite/failure"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// ChildFailureMessage is the message a composite carries when a child failed
const ChildFailureMessage = "component test failure"

// Result is the outcome of one node of the test tree
type Result struct {
	id       string
	name     string
	fullName string
	index    int
	isSuite  bool

	mu          sync.Mutex
	status      types.TestStatus
	site        types.FailureSite
	message     string
	trace       string
	assertCount int
	startTime   time.Time
	endTime     time.Time
	duration    time.Duration
	children    []*Result
}

// New creates an inconclusive result. index is the node's declaration position among
// its siblings and is used to restore declaration order after a concurrent run.
func New(id, name, fullName string, index int, isSuite bool) *Result {
	return &Result{
		id:       id,
		name:     name,
		fullName: fullName,
		index:    index,
		isSuite:  isSuite,
		status:   types.TestStatusInconclusive,
	}
}

// SetResult overwrites status, message and trace unconditionally
func (r *Result) SetResult(status types.TestStatus, message, trace string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.message = message
	r.trace = trace
}

// SetSite records which phase produced the current status
func (r *Result) SetSite(site types.FailureSite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.site = site
}

// Merge appends a completed child. A failing child forces this result to Failure,
// overwriting whatever status was there before. Non-failing children never change the
// status, so merging is order independent.
func (r *Result) Merge(child *Result) {
	childStatus := child.Status()
	childAsserts := child.AssertCount()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.children = append(r.children, child)
	r.assertCount += childAsserts
	if childStatus.IsFailure() {
		r.status = types.TestStatusFail
		r.message = ChildFailureMessage
		r.trace = ""
		r.site = types.FailureSiteChild
	}
}

// RecordException classifies err and records the resulting status at the given site
func (r *Result) RecordException(err error, site types.FailureSite) {
	c := failure.Classify(err)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = c.Status()
	r.message = c.Message
	r.trace = c.Trace
	r.site = site
}

// RecordTearDownException records a teardown failure. The first failure wins: when the
// result is already failing, status and site are kept and the teardown message and trace
// are appended. Otherwise the teardown classification replaces the status.
func (r *Result) RecordTearDownException(err error) {
	c := failure.Classify(err)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.status.IsFailing() {
		r.status = c.Status()
		r.message = c.Message
		r.trace = c.Trace
		r.site = types.FailureSiteTearDown
		return
	}

	r.message = joinNonEmpty("\n", r.message, "TearDown : "+c.Message)
	if c.Trace != "" {
		r.trace = joinNonEmpty("\n", r.trace, "--TearDown\n"+c.Trace)
	}
}

// Start records the start time
func (r *Result) Start(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = now
}

// Finish records the end time and elapsed duration
func (r *Result) Finish(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endTime = now
	if !r.startTime.IsZero() {
		r.duration = now.Sub(r.startTime)
	}
}

// AddAsserts adds to the informational assert counter
func (r *Result) AddAsserts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertCount += n
}

func (r *Result) ID() string       { return r.id }
func (r *Result) Name() string     { return r.name }
func (r *Result) FullName() string { return r.fullName }
func (r *Result) Index() int       { return r.index }
func (r *Result) IsSuite() bool    { return r.isSuite }

func (r *Result) Status() types.TestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Result) Site() types.FailureSite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.site
}

func (r *Result) Message() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message
}

func (r *Result) Trace() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trace
}

func (r *Result) AssertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assertCount
}

func (r *Result) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.duration
}

func (r *Result) StartTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startTime
}

func (r *Result) EndTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endTime
}

// Children returns the merged children in completion order
func (r *Result) Children() []*Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Result, len(r.children))
	copy(out, r.children)
	return out
}

// SortedChildren returns the merged children in declaration order
func (r *Result) SortedChildren() []*Result {
	children := r.Children()
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].index < children[j].index
	})
	return children
}

// Walk visits r and its descendants depth first in declaration order. Returning false
// from fn skips the node's children.
func (r *Result) Walk(fn func(res *Result, depth int) bool) {
	r.walk(fn, 0)
}

func (r *Result) walk(fn func(res *Result, depth int) bool, depth int) {
	if !fn(r, depth) {
		return
	}
	for _, child := range r.SortedChildren() {
		child.walk(fn, depth+1)
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
