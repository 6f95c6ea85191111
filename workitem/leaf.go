package workitem

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/ethereum-optimism/infra/op-suite/failure"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

var _ WorkItem = (*Leaf)(nil)

// Leaf runs the test body of a single leaf node
type Leaf struct {
	workItem
	limiter *semaphore.Weighted
}

func newLeaf(node *Node, opts *options) *Leaf {
	l := &Leaf{limiter: opts.limiter}
	l.init(l, node, false, opts)
	return l
}

// Execute runs the test body synchronously on the calling goroutine
func (l *Leaf) Execute(ctx context.Context, ec *ExecutionContext) {
	l.start()
	defer l.complete()

	ctx, span := l.startSpan(ctx, "test")
	defer l.endSpan(span)

	if l.skipped() {
		return
	}

	if err := ctx.Err(); err != nil {
		l.result.RecordException(failure.Cancelled(err), types.FailureSiteTest)
		return
	}
	if l.limiter != nil {
		if err := l.limiter.Acquire(ctx, 1); err != nil {
			l.result.RecordException(failure.Cancelled(err), types.FailureSiteTest)
			return
		}
		defer l.limiter.Release(1)
	}

	ec = ec.WithLogger(l.log)
	if l.node.Timeout > 0 {
		ec = ec.WithTimeout(l.node.Timeout)
	}

	l.log.Debug("Running test")
	if err := invoke(func() error { return l.node.Test.Run(ctx, ec) }); err != nil {
		l.result.RecordException(err, types.FailureSiteTest)
		return
	}
	l.result.SetResult(types.TestStatusPass, "", "")
}

// invoke calls fn and converts a panic into an InvocationError. Errors returned
// without a stack get the stack of the failure boundary.
func invoke(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = failure.FromPanic(rec)
		}
	}()
	return failure.WithStack(fn())
}
