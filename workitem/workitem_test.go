package workitem

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-suite/failure"
	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func testEC(t *testing.T) *ExecutionContext {
	return NewExecutionContext(t.TempDir(), testLogger())
}

func pass() Test {
	return TestFunc(func(context.Context, *ExecutionContext) error { return nil })
}

func fail(msg string) Test {
	return TestFunc(func(context.Context, *ExecutionContext) error { return failure.Assertion("%s", msg) })
}

func mustBuild(t *testing.T, root *Node, opts ...Option) WorkItem {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	wi, err := BuildTree(root, AllFilter, opts...)
	require.NoError(t, err)
	return wi
}

func runTree(t *testing.T, root *Node, opts ...Option) *result.Result {
	t.Helper()
	wi := mustBuild(t, root, opts...)
	return Run(context.Background(), wi, testEC(t))
}

func TestScenarios(t *testing.T) {
	t.Run("all children pass", func(t *testing.T) {
		root := NewSuite("s", "s", KindSuite,
			NewTest("a", "a", pass()),
			NewTest("b", "b", pass()),
			NewTest("c", "c", pass()),
		)
		res := runTree(t, root)

		assert.Equal(t, types.TestStatusPass, res.Status())
		assert.Len(t, res.Children(), 3)
		assert.Equal(t, 3, res.PassCount())
	})

	t.Run("setup raises unclassified error", func(t *testing.T) {
		var tornDown, childRan atomic.Bool
		root := NewSuite("s", "s", KindSuite,
			NewTest("a", "a", TestFunc(func(context.Context, *ExecutionContext) error {
				childRan.Store(true)
				return nil
			})),
		)
		root.Fixture = FixtureFuncs{
			SetUpFunc: func(context.Context, *ExecutionContext) (*ExecutionContext, error) {
				return nil, errors.New("database unreachable")
			},
			TearDownFunc: func(context.Context, *ExecutionContext) error {
				tornDown.Store(true)
				return nil
			},
		}
		res := runTree(t, root)

		assert.Equal(t, types.TestStatusError, res.Status())
		assert.Equal(t, types.FailureSiteSetUp, res.Site())
		assert.Equal(t, "database unreachable", res.Message())
		assert.Contains(t, res.Trace(), "workitem.invoke")
		assert.Empty(t, res.Children())
		assert.False(t, childRan.Load())
		assert.True(t, tornDown.Load())
	})

	t.Run("one child fails", func(t *testing.T) {
		root := NewSuite("s", "s", KindSuite,
			NewTest("a", "a", pass()),
			NewTest("b", "b", fail("expected 1, got 2")),
		)
		res := runTree(t, root)

		assert.Equal(t, types.TestStatusFail, res.Status())
		assert.Equal(t, types.FailureSiteChild, res.Site())
		assert.Equal(t, result.ChildFailureMessage, res.Message())

		children := res.SortedChildren()
		require.Len(t, children, 2)
		assert.Equal(t, types.TestStatusPass, children[0].Status())
		assert.Equal(t, types.TestStatusFail, children[1].Status())
		assert.Equal(t, "expected 1, got 2", children[1].Message())
	})

	t.Run("empty suite completes immediately", func(t *testing.T) {
		wi := mustBuild(t, NewSuite("s", "s", KindSuite))

		finished := make(chan struct{})
		go func() {
			wi.Execute(context.Background(), testEC(t))
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("empty suite blocked")
		}
		assert.Equal(t, types.TestStatusPass, wi.Result().Status())
		assert.Equal(t, StateComplete, wi.State())
	})

	t.Run("failure propagates through nested suites", func(t *testing.T) {
		root := NewSuite("outer", "outer", KindSuite,
			NewSuite("inner", "inner", KindSuite,
				NewTest("leaf", "leaf", fail("boom")),
			),
		)
		res := runTree(t, root)

		assert.Equal(t, types.TestStatusFail, res.Status())
		inner := res.Children()[0]
		assert.Equal(t, types.TestStatusFail, inner.Status())
		assert.Equal(t, types.FailureSiteChild, inner.Site())
		leaf := inner.Children()[0]
		assert.Equal(t, "boom", leaf.Message())
		assert.Equal(t, types.FailureSiteTest, leaf.Site())
	})
}

func TestLeafClassification(t *testing.T) {
	tests := []struct {
		name   string
		test   Test
		status types.TestStatus
	}{
		{"nil error passes", pass(), types.TestStatusPass},
		{"assertion fails", fail("x"), types.TestStatusFail},
		{"ignore signal", TestFunc(func(context.Context, *ExecutionContext) error { return failure.Ignore("later") }), types.TestStatusIgnored},
		{"inconclusive signal", TestFunc(func(context.Context, *ExecutionContext) error { return failure.Inconclusive("flaky") }), types.TestStatusInconclusive},
		{"explicit pass signal", TestFunc(func(context.Context, *ExecutionContext) error { return failure.Pass("early") }), types.TestStatusPass},
		{"plain error", TestFunc(func(context.Context, *ExecutionContext) error { return errors.New("io") }), types.TestStatusError},
		{"panic", TestFunc(func(context.Context, *ExecutionContext) error { panic("nil map") }), types.TestStatusError},
		{"context cancelled", TestFunc(func(context.Context, *ExecutionContext) error { return context.Canceled }), types.TestStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runTree(t, NewTest("t", "t", tt.test))
			assert.Equal(t, tt.status, res.Status())
		})
	}
}

func TestSetUpPanicIsUnwrapped(t *testing.T) {
	root := NewSuite("s", "s", KindSuite, NewTest("a", "a", pass()))
	root.Fixture = FixtureFuncs{
		SetUpFunc: func(context.Context, *ExecutionContext) (*ExecutionContext, error) {
			panic(failure.Assertion("precondition not met"))
		},
	}
	res := runTree(t, root)

	assert.Equal(t, types.TestStatusFail, res.Status())
	assert.Equal(t, "precondition not met", res.Message())
	assert.Equal(t, types.FailureSiteSetUp, res.Site())
}

func TestSetUpRefreshesContext(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	read := func(id string) Test {
		return TestFunc(func(_ context.Context, ec *ExecutionContext) error {
			v, _ := ec.Getenv("DB_URL")
			mu.Lock()
			seen[id] = v
			mu.Unlock()
			return nil
		})
	}
	root := NewSuite("s", "s", KindSuite, NewTest("a", "a", read("a")), NewTest("b", "b", read("b")))
	root.Fixture = FixtureFuncs{
		SetUpFunc: func(_ context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
			return ec.WithEnv(map[string]string{"DB_URL": "postgres://localhost"}), nil
		},
	}
	res := runTree(t, root)

	require.Equal(t, types.TestStatusPass, res.Status())
	assert.Equal(t, map[string]string{"a": "postgres://localhost", "b": "postgres://localhost"}, seen)
}

func TestTearDownPrecedence(t *testing.T) {
	tearDownErr := func(context.Context, *ExecutionContext) error { return errors.New("cleanup failed") }

	t.Run("child failure is kept", func(t *testing.T) {
		root := NewSuite("s", "s", KindSuite, NewTest("a", "a", fail("boom")))
		root.Fixture = FixtureFuncs{TearDownFunc: tearDownErr}
		res := runTree(t, root)

		assert.Equal(t, types.TestStatusFail, res.Status())
		assert.Equal(t, types.FailureSiteChild, res.Site())
		assert.Contains(t, res.Message(), "TearDown : cleanup failed")
	})

	t.Run("passing suite takes teardown failure", func(t *testing.T) {
		root := NewSuite("s", "s", KindSuite, NewTest("a", "a", pass()))
		root.Fixture = FixtureFuncs{TearDownFunc: tearDownErr}
		res := runTree(t, root)

		assert.Equal(t, types.TestStatusError, res.Status())
		assert.Equal(t, types.FailureSiteTearDown, res.Site())
		assert.Equal(t, "cleanup failed", res.Message())
	})
}

func TestCompletionNotifiesOnce(t *testing.T) {
	wi := mustBuild(t, NewTest("t", "t", pass()))

	var calls atomic.Int32
	for range 3 {
		require.NoError(t, wi.AddListener(func(WorkItem) { calls.Add(1) }))
	}
	Run(context.Background(), wi, testEC(t))

	assert.Equal(t, int32(3), calls.Load())
	assert.ErrorIs(t, wi.AddListener(func(WorkItem) { calls.Add(1) }), ErrAlreadyComplete)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteTwicePanics(t *testing.T) {
	wi := mustBuild(t, NewTest("t", "t", pass()))
	Run(context.Background(), wi, testEC(t))

	assert.Panics(t, func() {
		wi.Execute(context.Background(), testEC(t))
	})
}

func TestConcurrentChildren(t *testing.T) {
	const n = 50
	var running, peak atomic.Int32
	release := make(chan struct{})

	root := NewSuite("s", "s", KindSuite)
	for i := range n {
		id := fmt.Sprintf("t%d", i)
		root.Add(NewTest(id, id, TestFunc(func(context.Context, *ExecutionContext) error {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			<-release
			running.Add(-1)
			if i%5 == 0 {
				return failure.Assertion("t%d failed", i)
			}
			return nil
		})))
	}

	wi := mustBuild(t, root)
	go wi.Execute(context.Background(), testEC(t))

	require.Eventually(t, func() bool { return running.Load() == n }, 5*time.Second, time.Millisecond)
	close(release)
	<-wi.Done()

	res := wi.Result()
	assert.Equal(t, int32(n), peak.Load())
	assert.Len(t, res.Children(), n)
	assert.Equal(t, n/5, res.FailCount())
	assert.Equal(t, n-n/5, res.PassCount())
	assert.Equal(t, types.TestStatusFail, res.Status())
}

func TestConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	body := TestFunc(func(context.Context, *ExecutionContext) error {
		cur := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	root := NewSuite("root", "root", KindRoot)
	for i := range 3 {
		suite := NewSuite(fmt.Sprintf("s%d", i), fmt.Sprintf("s%d", i), KindSuite)
		for j := range 4 {
			suite.Add(NewTest(fmt.Sprintf("t%d", j), fmt.Sprintf("t%d", j), body))
		}
		root.Add(suite)
	}
	res := runTree(t, root, WithConcurrency(2))

	assert.Equal(t, types.TestStatusPass, res.Status())
	assert.Equal(t, 12, res.PassCount())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSerialDispatchKeepsOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(id string) Test {
		return TestFunc(func(context.Context, *ExecutionContext) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		})
	}
	root := NewSuite("s", "s", KindSuite,
		NewTest("a", "a", record("a")),
		NewSuite("n", "n", KindSuite, NewTest("b", "b", record("b"))),
		NewTest("c", "c", record("c")),
	)
	runTree(t, root, WithSerial())

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var tornDown atomic.Bool

	root := NewSuite("s", "s", KindSuite,
		NewTest("a", "a", TestFunc(func(context.Context, *ExecutionContext) error {
			cancel()
			return nil
		})),
		NewTest("b", "b", pass()),
	)
	root.Fixture = FixtureFuncs{
		TearDownFunc: func(ctx context.Context, _ *ExecutionContext) error {
			tornDown.Store(ctx.Err() == nil)
			return nil
		},
	}
	wi := mustBuild(t, root, WithSerial())
	res := Run(ctx, wi, testEC(t))

	children := res.SortedChildren()
	require.Len(t, children, 2)
	assert.Equal(t, types.TestStatusPass, children[0].Status())
	assert.Equal(t, types.TestStatusCancelled, children[1].Status())
	assert.True(t, tornDown.Load(), "teardown must run with a live context")
}

func TestCancelledBeforeSetUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var setUp atomic.Bool
	root := NewSuite("s", "s", KindSuite, NewTest("a", "a", pass()))
	root.Fixture = FixtureFuncs{
		SetUpFunc: func(_ context.Context, ec *ExecutionContext) (*ExecutionContext, error) {
			setUp.Store(true)
			return ec, nil
		},
	}
	res := Run(ctx, mustBuild(t, root), testEC(t))

	assert.Equal(t, types.TestStatusCancelled, res.Status())
	assert.Equal(t, types.FailureSiteSetUp, res.Site())
	assert.False(t, setUp.Load())
	assert.Empty(t, res.Children())
}

func TestSkippedAndIgnored(t *testing.T) {
	var ran atomic.Bool
	body := TestFunc(func(context.Context, *ExecutionContext) error {
		ran.Store(true)
		return nil
	})

	skippedSuite := NewSuite("skipped", "skipped", KindSuite, NewTest("x", "x", body))
	skippedSuite.RunState = RunStateSkipped
	skippedSuite.Reason = "not on this network"
	skippedSuite.Fixture = FixtureFuncs{
		SetUpFunc: func(context.Context, *ExecutionContext) (*ExecutionContext, error) {
			return nil, errors.New("must not run")
		},
	}
	ignoredLeaf := NewTest("ignored", "ignored", body)
	ignoredLeaf.RunState = RunStateIgnored
	ignoredLeaf.Reason = "known issue"

	root := NewSuite("root", "root", KindRoot, skippedSuite, ignoredLeaf, NewTest("ok", "ok", pass()))
	res := runTree(t, root)

	assert.False(t, ran.Load())
	assert.Equal(t, types.TestStatusPass, res.Status())

	children := res.SortedChildren()
	require.Len(t, children, 3)
	assert.Equal(t, types.TestStatusSkip, children[0].Status())
	assert.Equal(t, "not on this network", children[0].Message())
	assert.Equal(t, types.TestStatusIgnored, children[1].Status())
	assert.Equal(t, "known issue", children[1].Message())
}

func TestLeafTimeout(t *testing.T) {
	var got time.Duration
	leaf := NewTest("t", "t", TestFunc(func(_ context.Context, ec *ExecutionContext) error {
		got = ec.Timeout()
		return nil
	}))
	leaf.Timeout = 3 * time.Minute
	runTree(t, leaf)

	assert.Equal(t, 3*time.Minute, got)
}

func filterTree() *Node {
	return NewSuite("plan", "plan", KindRoot,
		NewSuite("g", "g", KindGate,
			NewTest("g:TestDeposit", "TestDeposit", pass()),
			NewTest("g:TestWithdraw", "TestWithdraw", pass()),
		),
		NewSuite("h", "h", KindGate,
			NewTest("h:TestOther", "TestOther", pass()),
		),
	)
}

func TestBuildTreeFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", AllFilter, 3},
		{"nil filter", nil, 3},
		{"gate", GateFilter("h"), 1},
		{"unknown gate", GateFilter("missing"), 0},
		{"single test", PathFilter(regexp.MustCompile("Withdraw")), 1},
		{"gate by path includes subtree", PathFilter(regexp.MustCompile("^g$")), 2},
		{"pattern matching only the root name", PathFilter(regexp.MustCompile("an")), 0},
		{"anchored root prefix", PathFilter(regexp.MustCompile("^p")), 0},
		{"and", AndFilter(GateFilter("g"), PathFilter(regexp.MustCompile("Deposit"))), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wi, err := BuildTree(filterTree(), tt.filter, WithLogger(testLogger()))
			require.NoError(t, err)
			res := Run(context.Background(), wi, testEC(t))

			assert.Equal(t, tt.want, res.TestCount())
			assert.Equal(t, types.TestStatusPass, res.Status())
			assert.Equal(t, "plan", res.Name())
		})
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) Started(wi WorkItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start "+wi.Node().FullName())
}

func (r *recordingObserver) Completed(wi WorkItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "done "+wi.Node().FullName()+" "+wi.Result().Status().String())
}

func TestObserverSeesEveryItem(t *testing.T) {
	root := NewSuite("plan", "plan", KindRoot,
		NewSuite("g", "g", KindGate,
			NewTest("a", "a", pass()),
			NewTest("b", "b", fail("nope")),
		),
	)
	obs := &recordingObserver{}
	res := runTree(t, root, WithObserver(obs), WithSerial())

	assert.Equal(t, types.TestStatusFail, res.Status())
	assert.Equal(t, []string{
		"start plan",
		"start g",
		"start g/a",
		"done g/a pass",
		"start g/b",
		"done g/b fail",
		"done g fail",
		"done plan fail",
	}, obs.events)
}
