package workitem

import (
	"context"
	"strings"
	"time"
)

// Kind describes what a node of the test tree represents
type Kind string

const (
	KindRoot    Kind = "root"
	KindGate    Kind = "gate"
	KindSuite   Kind = "suite"
	KindPackage Kind = "package"
	KindTest    Kind = "test"
)

// RunState decides whether a node runs at all
type RunState int

const (
	RunStateRunnable RunState = iota
	RunStateSkipped
	RunStateIgnored
)

// Test is the body of a leaf node. Returning nil passes the test; any error is
// classified through the failure package.
type Test interface {
	Run(ctx context.Context, ec *ExecutionContext) error
}

// TestFunc adapts a function to Test
type TestFunc func(ctx context.Context, ec *ExecutionContext) error

func (f TestFunc) Run(ctx context.Context, ec *ExecutionContext) error {
	return f(ctx, ec)
}

// Fixture provides the one-time setup and teardown of a composite node.
// SetUp returns the context its children run with; returning nil keeps ec.
type Fixture interface {
	SetUp(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error)
	TearDown(ctx context.Context, ec *ExecutionContext) error
}

// FixtureFuncs adapts a pair of functions to Fixture. Either may be nil.
type FixtureFuncs struct {
	SetUpFunc    func(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error)
	TearDownFunc func(ctx context.Context, ec *ExecutionContext) error
}

func (f FixtureFuncs) SetUp(ctx context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
	if f.SetUpFunc == nil {
		return ec, nil
	}
	return f.SetUpFunc(ctx, ec)
}

func (f FixtureFuncs) TearDown(ctx context.Context, ec *ExecutionContext) error {
	if f.TearDownFunc == nil {
		return nil
	}
	return f.TearDownFunc(ctx, ec)
}

// Node is one node of the test tree. A node with a Test and no children is a leaf,
// every other node is a composite.
type Node struct {
	ID       string
	Name     string
	Kind     Kind
	Children []*Node
	Fixture  Fixture
	Test     Test
	RunState RunState
	Reason   string        // why the node is skipped or ignored
	Timeout  time.Duration // per-test timeout, 0 inherits the context default

	parent *Node
	index  int
}

// NewSuite creates a composite node
func NewSuite(id, name string, kind Kind, children ...*Node) *Node {
	n := &Node{ID: id, Name: name, Kind: kind}
	return n.Add(children...)
}

// NewTest creates a leaf node
func NewTest(id, name string, test Test) *Node {
	return &Node{ID: id, Name: name, Kind: KindTest, Test: test}
}

// Add appends children in declaration order and returns n
func (n *Node) Add(children ...*Node) *Node {
	for _, child := range children {
		child.parent = n
		child.index = len(n.Children)
		n.Children = append(n.Children, child)
	}
	return n
}

// IsLeaf reports whether the node runs a test body rather than children
func (n *Node) IsLeaf() bool {
	return n.Test != nil && len(n.Children) == 0
}

// Parent returns the enclosing node, nil for the root
func (n *Node) Parent() *Node {
	return n.parent
}

// Index is the declaration position of the node among its siblings
func (n *Node) Index() int {
	return n.index
}

// FullName joins the names from the first node below the root down to n
func (n *Node) FullName() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.parent {
		if cur.Kind == KindRoot && cur.parent == nil && cur != n {
			break
		}
		parts = append(parts, cur.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}
