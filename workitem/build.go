package workitem

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const tracerName = "op-suite"

type options struct {
	log        log.Logger
	tracer     trace.Tracer
	limiter    *semaphore.Weighted
	dispatcher Dispatcher
	observer   Observer
}

// Option configures the work items created by BuildTree
type Option func(*options)

// WithLogger sets the base logger of every work item
func WithLogger(lgr log.Logger) Option {
	return func(o *options) {
		o.log = lgr
	}
}

// WithTracer sets the tracer used for suite and test spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithConcurrency bounds the number of leaves running at the same time. Values below 1
// leave leaves unbounded.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n < 1 {
			o.limiter = nil
			return
		}
		o.limiter = semaphore.NewWeighted(int64(n))
	}
}

// WithDispatcher sets how composites start their children
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithObserver reports every work item start and completion to obs
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithSerial runs children one after the other
func WithSerial() Option {
	return WithDispatcher(InlineDispatcher{})
}

func newOptions(opts []Option) *options {
	o := &options{
		log:        log.Root(),
		tracer:     otel.Tracer(tracerName),
		dispatcher: GoDispatcher{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BuildTree wraps every node of the tree rooted at root in a work item. Nodes the filter
// rejects are left out unless an ancestor or a descendant passes. The root is a
// container: it is always built but never offered to the filter, so a pattern matching
// only the root's name selects nothing.
func BuildTree(root *Node, filter Filter, opts ...Option) (WorkItem, error) {
	if root == nil {
		return nil, fmt.Errorf("nil root node")
	}
	if filter == nil {
		filter = AllFilter
	}
	o := newOptions(opts)

	link(root)
	if err := validate(root); err != nil {
		return nil, err
	}

	if root.IsLeaf() {
		return newLeaf(root, o), nil
	}
	var children []WorkItem
	for _, child := range root.Children {
		if wi, ok := build(child, filter, false, o); ok {
			children = append(children, wi)
		}
	}
	return newComposite(root, children, o), nil
}

// link sets parent and index on nodes whose Children were assigned directly
func link(n *Node) {
	for i, child := range n.Children {
		child.parent = n
		child.index = i
		link(child)
	}
}

func validate(n *Node) error {
	if n.Test != nil && len(n.Children) > 0 {
		return fmt.Errorf("node %q has both a test body and children", n.FullName())
	}
	if n.Test == nil && n.Kind == KindTest {
		return fmt.Errorf("test node %q has no test body", n.FullName())
	}
	for _, child := range n.Children {
		if err := validate(child); err != nil {
			return err
		}
	}
	return nil
}

// build returns the work item for n, or nil when neither n nor any node below it is
// selected. included is true when an ancestor already passed the filter.
func build(n *Node, filter Filter, included bool, o *options) (WorkItem, bool) {
	selected := included || filter.Pass(n)

	if n.IsLeaf() {
		if !selected {
			return nil, false
		}
		return newLeaf(n, o), true
	}

	var children []WorkItem
	for _, child := range n.Children {
		if wi, ok := build(child, filter, selected, o); ok {
			children = append(children, wi)
		}
	}
	if !selected && len(children) == 0 {
		return nil, false
	}
	return newComposite(n, children, o), true
}
