package opsuite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-suite/exitcodes"
	"github.com/ethereum-optimism/infra/op-suite/metrics"
	"github.com/ethereum-optimism/infra/op-suite/plan"
	"github.com/ethereum-optimism/infra/op-suite/reporting"
	"github.com/ethereum-optimism/infra/op-suite/result"
	"github.com/ethereum-optimism/infra/op-suite/runner"
	"github.com/ethereum-optimism/infra/op-suite/service"
	"github.com/ethereum-optimism/infra/op-suite/types"
	"github.com/ethereum-optimism/infra/op-suite/workitem"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// suite implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &suite{}

// suite loads the plan, builds a fresh work item tree and runs it, either once or on
// an interval. Work items are single-use, so every run rebuilds the tree.
type suite struct {
	config   *Config
	version  string
	factory  *runner.Factory
	reporter *reporting.Reporter
	service  *service.Service
	out      io.Writer

	lastRun atomic.Pointer[reporting.Run]

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	cancelMu  sync.Mutex
	cancelRun context.CancelFunc

	shutdownCallback func(error) // Callback to signal application shutdown
}

// Option customizes a suite
type Option func(*suite)

// WithOutput redirects the console report
func WithOutput(w io.Writer) Option {
	return func(s *suite) {
		s.reporter = newReporter(s.config, w)
		s.out = w
	}
}

func New(config *Config, version string, shutdownCallback func(error), opts ...Option) (*suite, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("config has no logger")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating op-suite with config",
		"plan", config.PlanFile,
		"workDir", config.WorkDir,
		"gate", config.Gate,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	s := &suite{
		config:           config,
		version:          version,
		factory:          runner.NewFactory(config.GoBinary, config.Shell),
		reporter:         newReporter(config, os.Stdout),
		service:          service.New(config.Log, config.Service),
		out:              os.Stdout,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newReporter(config *Config, out io.Writer) *reporting.Reporter {
	return reporting.NewReporter(config.Log, reporting.Config{
		Out:        out,
		Title:      "op-suite results",
		ResultsDir: config.ResultsDir,
		ShowTrace:  config.ShowTrace,
		ShowTests:  config.ShowTests,
	})
}

// Start runs the plan immediately and then, unless in run-once mode, at the configured
// interval.
// Start implements the cliapp.Lifecycle interface.
func (s *suite) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	s.done = make(chan struct{})
	s.running.Store(true)

	if err := s.service.Start(ctx); err != nil {
		return NewRuntimeError(err)
	}

	if s.config.RunOnce {
		s.config.Log.Info("Starting op-suite in run-once mode")
	} else {
		s.config.Log.Info("Starting op-suite in continuous mode", "interval", s.config.RunInterval)
	}

	if s.config.RunOnce && s.config.FlakeShakeIterations > 0 {
		if err := s.runFlakeShake(ctx); err != nil {
			return s.stopWith(ctx, err)
		}
		return nil
	}

	run, err := s.runTests(ctx)
	if err != nil {
		s.config.Log.Error("Runtime error running tests", "error", err)
		return s.stopWith(ctx, err)
	}

	if s.config.RunOnce {
		s.config.Log.Info("Tests completed, exiting (run-once mode)")
		if failed(run) {
			s.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return s.stopWith(ctx, NewTestFailureError(summary(run)))
		}
		go func() {
			s.shutdownCallback(nil)
		}()
		return nil
	}

	if !s.running.Load() {
		return nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.config.Log.Debug("Starting periodic test runner goroutine", "interval", s.config.RunInterval)

		for {
			select {
			case <-time.After(s.config.RunInterval):
				if !s.running.Load() {
					s.config.Log.Debug("Service stopped, exiting periodic test runner")
					return
				}
				s.config.Log.Info("Running periodic tests")
				if _, err := s.runTests(ctx); err != nil {
					s.config.Log.Error("Error running periodic tests", "error", err)
				}

			case <-s.done:
				s.config.Log.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				s.config.Log.Debug("Context canceled, stopping periodic test runner")
				s.running.Store(false)
				return
			}
		}
	}()
	s.config.Log.Debug("op-suite started successfully")
	return nil
}

// runTests performs one complete run: load, build, execute, report
func (s *suite) runTests(ctx context.Context) (reporting.Run, error) {
	runID := uuid.New().String()
	lgr := s.config.Log.New("run", runID)

	ctx, cancel := s.cancelable(ctx)
	defer cancel()

	run, err := s.execute(ctx, runID, lgr)
	if err != nil {
		return run, err
	}
	if _, err := s.reporter.Report(run); err != nil {
		metrics.RecordErrorDetails("failed to report results", err)
		return run, NewRuntimeError(err)
	}
	lgr.Info("Test run completed", "status", run.Status(), "summary", summary(run))
	return run, nil
}

// runFlakeShake runs the selected tests repeatedly and reports how stable each one is.
// Any unstable test fails the run.
func (s *suite) runFlakeShake(ctx context.Context) error {
	iterations := s.config.FlakeShakeIterations
	runID := uuid.New().String()
	lgr := s.config.Log.New("run", runID)
	lgr.Info("Starting flake-shake", "iterations", iterations)

	ctx, cancel := s.cancelable(ctx)
	defer cancel()

	shake := reporting.NewFlakeShake(iterations)
	for i := 1; i <= iterations; i++ {
		if ctx.Err() != nil {
			return NewRuntimeError(fmt.Errorf("flake-shake interrupted after %d of %d iterations: %w", i-1, iterations, ctx.Err()))
		}
		iterID := fmt.Sprintf("%s-%d", runID, i)
		run, err := s.execute(ctx, iterID, lgr.New("iteration", i))
		if err != nil {
			return err
		}
		shake.Add(run.Root)
		lgr.Info("Flake-shake iteration completed", "iteration", i, "status", run.Status(), "summary", summary(run))
	}

	report := shake.Report(runID, s.config.Gate)
	if _, err := fmt.Fprintln(s.out, reporting.FormatFlakeShake(report)); err != nil {
		return NewRuntimeError(err)
	}
	if s.config.ResultsDir != "" {
		paths, err := reporting.SaveFlakeShakeReport(report, filepath.Join(s.config.ResultsDir, runID))
		if err != nil {
			metrics.RecordErrorDetails("failed to save flake-shake report", err)
			return NewRuntimeError(err)
		}
		lgr.Info("Saved flake-shake report", "files", paths)
	}

	if unstable := report.Unstable(); len(unstable) > 0 {
		lgr.Warn("Flake-shake found unstable tests", "unstable", len(unstable), "tests", len(report.Tests))
		return NewTestFailureError(fmt.Sprintf("%d of %d tests unstable over %d iterations", len(unstable), len(report.Tests), iterations))
	}
	lgr.Info("Flake-shake completed, all tests stable", "tests", len(report.Tests))
	go func() {
		s.shutdownCallback(nil)
	}()
	return nil
}

// cancelable derives a context that Stop cancels
func (s *suite) cancelable(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancelRun = cancel
	s.cancelMu.Unlock()
	return ctx, cancel
}

// execute loads the plan, builds a fresh tree and runs it without reporting
func (s *suite) execute(ctx context.Context, runID string, lgr log.Logger) (reporting.Run, error) {
	cfg, err := plan.Load(s.config.PlanFile)
	if err != nil {
		return reporting.Run{}, NewRuntimeError(err)
	}

	root, err := plan.Build(ctx, cfg, plan.BuildOptions{
		Log:            lgr,
		Factory:        s.factory,
		WorkDir:        s.config.WorkDir,
		Gate:           s.config.Gate,
		DefaultTimeout: s.config.DefaultTimeout,
	})
	if err != nil {
		return reporting.Run{}, NewRuntimeError(fmt.Errorf("failed to build test tree: %w", err))
	}

	progress := runner.NewProgress(lgr, s.config.ProgressInterval)
	concurrency := runner.DetermineConcurrency(s.config.Concurrency, countTests(root))
	opts := []workitem.Option{
		workitem.WithLogger(lgr),
		workitem.WithConcurrency(concurrency),
		workitem.WithObserver(progress),
	}
	if s.config.Serial {
		opts = append(opts, workitem.WithSerial())
	}
	wi, err := workitem.BuildTree(root, s.filter(), opts...)
	if err != nil {
		return reporting.Run{}, NewRuntimeError(fmt.Errorf("failed to build work items: %w", err))
	}

	lgr.Info("Running tests", "concurrency", concurrency, "serial", s.config.Serial)
	progress.Start()
	started := time.Now()
	res := workitem.Run(ctx, wi, workitem.NewExecutionContext(s.config.WorkDir, lgr))
	progress.Stop()
	run := reporting.Run{
		ID:       runID,
		Plan:     s.config.PlanFile,
		Gate:     s.config.Gate,
		Started:  started,
		Duration: time.Since(started),
		Root:     res,
	}
	s.lastRun.Store(&run)

	metrics.RecordRun(runID, res.Status(), statusCounts(res.Counts()), run.Duration)
	return run, nil
}

func (s *suite) filter() workitem.Filter {
	switch {
	case s.config.RunPattern != nil:
		return workitem.PathFilter(s.config.RunPattern)
	case s.config.Gate != "":
		return workitem.GateFilter(s.config.Gate)
	default:
		return workitem.AllFilter
	}
}

// Stop stops the periodic runner and cancels a run in progress. Teardowns of the
// cancelled run still complete.
// Stop implements the cliapp.Lifecycle interface.
func (s *suite) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping op-suite")

	if !s.running.CompareAndSwap(true, false) {
		s.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	s.cancelMu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.cancelMu.Unlock()

	close(s.done)
	s.wg.Wait()

	err := s.service.Shutdown(ctx)
	s.config.Log.Info("op-suite stopped")
	return err
}

// stopWith stops the suite and returns err. A failed start leaves nothing running.
func (s *suite) stopWith(ctx context.Context, err error) error {
	if stopErr := s.Stop(context.WithoutCancel(ctx)); stopErr != nil {
		s.config.Log.Error("Failed to stop op-suite", "error", stopErr)
	}
	return err
}

// Stopped implements the cliapp.Lifecycle interface.
func (s *suite) Stopped() bool {
	return !s.running.Load()
}

// LastRun returns the most recently completed run
func (s *suite) LastRun() (reporting.Run, bool) {
	run := s.lastRun.Load()
	if run == nil {
		return reporting.Run{}, false
	}
	return *run, true
}

func countTests(n *workitem.Node) int {
	if n.IsLeaf() {
		return 1
	}
	total := 0
	for _, child := range n.Children {
		total += countTests(child)
	}
	return total
}

func statusCounts(c result.Counts) map[types.TestStatus]int {
	return map[types.TestStatus]int{
		types.TestStatusPass:         c.Passed,
		types.TestStatusFail:         c.Failed,
		types.TestStatusError:        c.Errored,
		types.TestStatusSkip:         c.Skipped,
		types.TestStatusIgnored:      c.Ignored,
		types.TestStatusInconclusive: c.Inconclusive,
		types.TestStatusCancelled:    c.Cancelled,
	}
}

func failed(run reporting.Run) bool {
	if run.Status().IsFailing() {
		return true
	}
	c := run.Root.Counts()
	return c.Failed+c.Errored+c.Cancelled > 0
}

func summary(run reporting.Run) string {
	c := run.Root.Counts()
	return fmt.Sprintf("%d tests: %d passed, %d failed, %d errored, %d skipped, %d ignored, %d inconclusive, %d cancelled",
		c.Total, c.Passed, c.Failed, c.Errored, c.Skipped, c.Ignored, c.Inconclusive, c.Cancelled)
}
