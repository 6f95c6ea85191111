package workitem

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/op-suite/failure"
	"github.com/ethereum-optimism/infra/op-suite/metrics"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

var _ WorkItem = (*Composite)(nil)

// Composite runs the children of a suite node between its one-time setup and teardown
type Composite struct {
	workItem
	children   []WorkItem
	dispatcher Dispatcher
}

func newComposite(node *Node, children []WorkItem, opts *options) *Composite {
	c := &Composite{
		children:   children,
		dispatcher: opts.dispatcher,
	}
	c.init(c, node, true, opts)
	return c
}

// Children returns the child work items in declaration order
func (c *Composite) Children() []WorkItem {
	out := make([]WorkItem, len(c.children))
	copy(out, c.children)
	return out
}

// Execute runs setup, every child, and teardown. It blocks until all children have
// completed.
func (c *Composite) Execute(ctx context.Context, ec *ExecutionContext) {
	c.start()
	defer c.complete()

	ctx, span := c.startSpan(ctx, "suite")
	defer c.endSpan(span)

	if c.skipped() {
		return
	}

	c.result.SetResult(types.TestStatusPass, "", "")

	ec = c.setUp(ctx, ec)

	if c.result.Status() == types.TestStatusPass && len(c.children) > 0 {
		c.runChildren(ctx, ec)
	}

	c.tearDown(ctx, ec)
}

// setUp runs the one-time setup and returns the context children run with
func (c *Composite) setUp(ctx context.Context, ec *ExecutionContext) *ExecutionContext {
	if err := ctx.Err(); err != nil {
		c.result.RecordException(failure.Cancelled(err), types.FailureSiteSetUp)
		return ec
	}
	if c.node.Fixture == nil {
		return ec
	}

	c.log.Debug("Running one-time setup")
	var refreshed *ExecutionContext
	err := invoke(func() error {
		var err error
		refreshed, err = c.node.Fixture.SetUp(ctx, ec)
		return err
	})
	if err != nil {
		c.log.Warn("One-time setup failed", "err", err)
		c.result.RecordException(err, types.FailureSiteSetUp)
		metrics.RecordFailureSite(types.FailureSiteSetUp)
		return ec
	}
	if refreshed != nil {
		return refreshed
	}
	return ec
}

// runChildren dispatches every child without waiting between them, then blocks until
// each one has reported completion and been merged.
func (c *Composite) runChildren(ctx context.Context, ec *ExecutionContext) {
	var barrier sync.WaitGroup
	barrier.Add(len(c.children))

	onComplete := func(child WorkItem) {
		c.result.Merge(child.Result())
		barrier.Done()
	}

	for _, child := range c.children {
		if err := child.AddListener(onComplete); err != nil {
			panic(fmt.Sprintf("dispatching %q: %v", child.Node().FullName(), err))
		}
		c.dispatcher.Dispatch(func() {
			child.Execute(ctx, ec)
		})
	}

	barrier.Wait()
}

// tearDown runs the one-time teardown. It runs even when ctx is cancelled.
func (c *Composite) tearDown(ctx context.Context, ec *ExecutionContext) {
	if c.node.Fixture == nil {
		return
	}

	c.log.Debug("Running one-time teardown")
	ctx = context.WithoutCancel(ctx)
	if err := invoke(func() error { return c.node.Fixture.TearDown(ctx, ec) }); err != nil {
		c.log.Warn("One-time teardown failed", "err", err)
		c.result.RecordTearDownException(err)
		metrics.RecordFailureSite(types.FailureSiteTearDown)
	}
}
