package plan

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/ethereum-optimism/infra/op-suite/testlist"
	"github.com/ethereum-optimism/infra/op-suite/types"
	"github.com/ethereum-optimism/infra/op-suite/workitem"
)

const (
	RootID = "plan"

	DefaultDiscoveryConcurrency = 8
)

// Factory creates the executable parts of the tree
type Factory interface {
	// GoTest returns the body of a single Go test function in pkg
	GoTest(pkg, name string) workitem.Test
	// Command returns the body of a shell command test
	Command(name, run string) workitem.Test
	// Fixture returns the one-time setup and teardown of a gate or suite, or nil when
	// both are nil
	Fixture(setUp, tearDown *types.FixtureConfig) workitem.Fixture
}

// BuildOptions configures Build
type BuildOptions struct {
	Log     log.Logger
	Factory Factory
	// WorkDir is the directory packages are resolved against
	WorkDir string
	// Gate restricts the tree to one gate. Empty builds every gate.
	Gate           string
	DefaultTimeout time.Duration
	// DiscoveryConcurrency bounds the number of packages scanned at the same time
	DiscoveryConcurrency int
}

// Build turns cfg into a test tree: root, then gates in declaration order, then each
// gate's tests followed by its suites in sorted ID order.
func Build(ctx context.Context, cfg *types.PlanConfig, opts BuildOptions) (*workitem.Node, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("no test factory")
	}
	if opts.Log == nil {
		opts.Log = log.Root()
	}

	gates := cfg.Gates
	if opts.Gate != "" {
		gate, ok := cfg.Gate(opts.Gate)
		if !ok {
			return nil, fmt.Errorf("gate %q not found in plan", opts.Gate)
		}
		gates = []types.GateConfig{gate}
	}

	b := &builder{
		opts:     opts,
		timeouts: cfg.Metadata.Timeouts,
	}
	if err := b.discover(ctx, gates); err != nil {
		return nil, err
	}

	root := workitem.NewSuite(RootID, RootID, workitem.KindRoot)
	for _, gate := range gates {
		gateNode := workitem.NewSuite(gate.ID, gate.ID, workitem.KindGate)
		gateNode.Fixture = opts.Factory.Fixture(gate.SetUp, gate.TearDown)
		b.addEntries(gateNode, gate.Tests, gate.Suites)
		root.Add(gateNode)
	}

	opts.Log.Debug("Plan built", "gates", len(gates), "packages", len(b.packages))
	return root, nil
}

// discoveredPackage is a package with the test functions found in it
type discoveredPackage struct {
	path  string
	tests []string
}

type builder struct {
	opts     BuildOptions
	timeouts map[string]time.Duration

	mu       sync.Mutex
	packages map[string][]discoveredPackage
}

// discover scans every run-all package of the selected gates concurrently
func (b *builder) discover(ctx context.Context, gates []types.GateConfig) error {
	seen := make(map[string]bool)
	var patterns []string
	var collect func(tests []types.TestConfig, suites map[string]types.SuiteConfig)
	collect = func(tests []types.TestConfig, suites map[string]types.SuiteConfig) {
		for _, test := range tests {
			if test.IsRunAll() && test.Skip == "" && test.Ignore == "" && !seen[test.Package] {
				seen[test.Package] = true
				patterns = append(patterns, test.Package)
			}
		}
		for _, suite := range suites {
			collect(suite.Tests, suite.Suites)
		}
	}
	for _, gate := range gates {
		collect(gate.Tests, gate.Suites)
	}

	b.packages = make(map[string][]discoveredPackage, len(patterns))
	maxGoroutines := b.opts.DiscoveryConcurrency
	if maxGoroutines < 1 {
		maxGoroutines = DefaultDiscoveryConcurrency
	}
	p := pool.New().WithContext(ctx).WithMaxGoroutines(maxGoroutines).WithCancelOnError()
	for _, pattern := range patterns {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := b.discoverPattern(pattern)
			if err != nil {
				return fmt.Errorf("discovering tests in %s: %w", pattern, err)
			}
			b.mu.Lock()
			b.packages[pattern] = found
			b.mu.Unlock()
			return nil
		})
	}
	return p.Wait()
}

func (b *builder) discoverPattern(pattern string) ([]discoveredPackage, error) {
	paths := []string{pattern}
	if strings.HasSuffix(pattern, "/...") {
		var err error
		paths, err = testlist.FindTestPackages(pattern, b.opts.WorkDir)
		if err != nil {
			return nil, err
		}
	}

	found := make([]discoveredPackage, 0, len(paths))
	for _, path := range paths {
		tests, err := testlist.FindTestFunctions(path, b.opts.WorkDir)
		if err != nil {
			return nil, err
		}
		b.opts.Log.Debug("Discovered tests", "package", path, "tests", len(tests))
		found = append(found, discoveredPackage{path: path, tests: tests})
	}
	return found, nil
}

// addEntries adds the tests, then the suites in sorted ID order, to parent
func (b *builder) addEntries(parent *workitem.Node, tests []types.TestConfig, suites map[string]types.SuiteConfig) {
	for _, test := range tests {
		parent.Add(b.testNodes(test)...)
	}

	ids := make([]string, 0, len(suites))
	for id := range suites {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		suite := suites[id]
		suiteNode := workitem.NewSuite(id, id, workitem.KindSuite)
		suiteNode.Fixture = b.opts.Factory.Fixture(suite.SetUp, suite.TearDown)
		applyRunState(suiteNode, suite.Skip, suite.Ignore)
		b.addEntries(suiteNode, suite.Tests, suite.Suites)
		parent.Add(suiteNode)
	}
}

// testNodes returns the nodes for one plan entry. A run-all entry yields one package
// composite per matched package.
func (b *builder) testNodes(test types.TestConfig) []*workitem.Node {
	switch {
	case test.Run != "":
		n := workitem.NewTest(test.Key(), test.Name, b.opts.Factory.Command(test.Name, test.Run))
		n.Timeout = b.timeout(test, test.Name)
		applyRunState(n, test.Skip, test.Ignore)
		return []*workitem.Node{n}

	case test.IsRunAll():
		if test.Skip != "" || test.Ignore != "" {
			// skipped and ignored entries are never scanned
			n := workitem.NewSuite(test.Package, test.DisplayName(), workitem.KindPackage)
			applyRunState(n, test.Skip, test.Ignore)
			return []*workitem.Node{n}
		}
		found := b.packages[test.Package]
		nodes := make([]*workitem.Node, 0, len(found))
		for _, pkg := range found {
			entry := types.TestConfig{Package: pkg.path}
			pkgNode := workitem.NewSuite(pkg.path, entry.DisplayName(), workitem.KindPackage)
			for _, name := range pkg.tests {
				leaf := workitem.NewTest(pkg.path+":"+name, name, b.opts.Factory.GoTest(pkg.path, name))
				leaf.Timeout = b.timeout(test, name)
				pkgNode.Add(leaf)
			}
			nodes = append(nodes, pkgNode)
		}
		return nodes

	default:
		n := workitem.NewTest(test.Key(), test.Name, b.opts.Factory.GoTest(test.Package, test.Name))
		n.Timeout = b.timeout(test, test.Name)
		applyRunState(n, test.Skip, test.Ignore)
		return []*workitem.Node{n}
	}
}

// timeout resolves a test timeout: the entry's own, then the plan metadata for the test
// name, then the default
func (b *builder) timeout(test types.TestConfig, name string) time.Duration {
	if test.Timeout != nil {
		return *test.Timeout
	}
	if d, ok := b.timeouts[name]; ok {
		return d
	}
	return b.opts.DefaultTimeout
}

// applyRunState marks n skipped or ignored. Skip takes precedence.
func applyRunState(n *workitem.Node, skip, ignore string) {
	switch {
	case skip != "":
		n.RunState = workitem.RunStateSkipped
		n.Reason = skip
	case ignore != "":
		n.RunState = workitem.RunStateIgnored
		n.Reason = ignore
	}
}
