// Package workitem executes a tree of test nodes. Every node is wrapped in a WorkItem
// that runs exactly once and notifies its listeners exactly once. Composite items run a
// one-time setup, dispatch their children concurrently, wait for all of them, merge
// their results and finally run a one-time teardown.
package workitem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-suite/metrics"
	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// ErrAlreadyComplete is returned when a listener is registered on a completed item
var ErrAlreadyComplete = errors.New("work item already complete")

// State is the lifecycle state of a work item
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Listener is called once when the work item it was registered on completes
type Listener func(WorkItem)

// Observer sees every work item of a tree start and complete. Calls arrive on the
// goroutine executing the item, so sibling items report concurrently.
type Observer interface {
	Started(wi WorkItem)
	Completed(wi WorkItem)
}

// WorkItem is the executable wrapper around one node of the test tree
type WorkItem interface {
	// Node returns the wrapped test node
	Node() *Node
	// Result returns the item's result. It is read-only once Done is closed.
	Result() *result.Result
	State() State
	// Execute runs the item. It may be called from any goroutine, but only once:
	// executing an item that is not in StateCreated panics.
	Execute(ctx context.Context, ec *ExecutionContext)
	// AddListener registers fn to be called once on completion
	AddListener(fn Listener) error
	// Done is closed after the item completed and its listeners returned
	Done() <-chan struct{}
}

// workItem carries the state machine shared by leaves and composites
type workItem struct {
	node   *Node
	result *result.Result
	log      log.Logger
	tracer   trace.Tracer
	observer Observer
	self     WorkItem

	state     atomic.Int32
	mu        sync.Mutex
	listeners []Listener
	done      chan struct{}
}

func (w *workItem) init(self WorkItem, node *Node, isSuite bool, opts *options) {
	w.self = self
	w.node = node
	w.result = result.New(node.ID, node.Name, node.FullName(), node.Index(), isSuite)
	w.log = opts.log.New("node", node.FullName())
	w.tracer = opts.tracer
	w.observer = opts.observer
	w.done = make(chan struct{})
}

func (w *workItem) Node() *Node            { return w.node }
func (w *workItem) Result() *result.Result { return w.result }
func (w *workItem) State() State           { return State(w.state.Load()) }
func (w *workItem) Done() <-chan struct{}  { return w.done }

func (w *workItem) AddListener(fn Listener) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.State() == StateComplete {
		return ErrAlreadyComplete
	}
	w.listeners = append(w.listeners, fn)
	return nil
}

// start moves the item from Created to Running
func (w *workItem) start() {
	if !w.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		panic(fmt.Sprintf("work item %q executed in state %s", w.node.FullName(), w.State()))
	}
	w.result.Start(time.Now())
	if w.observer != nil {
		w.observer.Started(w.self)
	}
}

// complete moves the item to Complete, fires every listener once and closes Done
func (w *workItem) complete() {
	w.result.Finish(time.Now())
	status := w.result.Status()
	metrics.RecordWorkItem(string(w.node.Kind), status, w.result.Duration())
	w.log.Debug("Work item complete", "status", status, "duration", w.result.Duration())
	if w.observer != nil {
		w.observer.Completed(w.self)
	}

	w.mu.Lock()
	w.state.Store(int32(StateComplete))
	listeners := w.listeners
	w.listeners = nil
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(w.self)
	}
	close(w.done)
}

// skipped completes the bookkeeping of a node that does not run. It returns false for
// runnable nodes.
func (w *workItem) skipped() bool {
	switch w.node.RunState {
	case RunStateSkipped:
		w.result.SetResult(types.TestStatusSkip, w.node.Reason, "")
	case RunStateIgnored:
		w.result.SetResult(types.TestStatusIgnored, w.node.Reason, "")
	default:
		return false
	}
	return true
}

func (w *workItem) startSpan(ctx context.Context, prefix string) (context.Context, trace.Span) {
	return w.tracer.Start(ctx, fmt.Sprintf("%s %s", prefix, w.node.Name),
		trace.WithAttributes(
			attribute.String("node.id", w.node.ID),
			attribute.String("node.kind", string(w.node.Kind)),
		))
}

func (w *workItem) endSpan(span trace.Span) {
	status := w.result.Status()
	span.SetAttributes(attribute.String("result.status", status.String()))
	if status.IsFailure() {
		span.SetStatus(codes.Error, w.result.Message())
	}
	span.End()
}

// Run executes wi and blocks until it completed
func Run(ctx context.Context, wi WorkItem, ec *ExecutionContext) *result.Result {
	wi.Execute(ctx, ec)
	<-wi.Done()
	return wi.Result()
}
