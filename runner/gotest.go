package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-suite/failure"
	"github.com/ethereum-optimism/infra/op-suite/types"
	"github.com/ethereum-optimism/infra/op-suite/workitem"
)

var _ workitem.Test = (*GoTest)(nil)

// GoTest runs a single Go test function with go test -json
type GoTest struct {
	Package  string
	Name     string
	GoBinary string
	Parser   OutputParser
}

// Run executes the test in the work dir of ec. The per-test timeout of ec is passed to
// go test; the process is killed shortly after it if go test does not stop by itself.
func (g *GoTest) Run(ctx context.Context, ec *workitem.ExecutionContext) error {
	timeout := ec.Timeout()
	var deadline time.Duration
	if timeout > 0 {
		deadline = timeout + timeoutGrace
	}
	runCtx, cancel := withTimeout(ctx, deadline)
	defer cancel()

	stdoutFile, err := os.CreateTemp("", "op-suite-gotest-*.json")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create stdout temp file")
	}
	stdoutPath := stdoutFile.Name()
	defer func() {
		_ = stdoutFile.Close()
		_ = os.Remove(stdoutPath)
	}()

	stderr := newTailBuffer(defaultSnippetBytes)

	cmd := exec.CommandContext(runCtx, g.goBinary(), g.buildTestArgs(timeout)...)
	cmd.Dir = ec.WorkDir()
	cmd.Env = environ(ctx, ec)
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	ec.Log().Info("Running test", "test", g.Name, "package", g.Package)
	startTime := time.Now()
	runErr := cmd.Run()
	ec.Log().Debug("go test finished", "duration", time.Since(startTime), "err", runErr)

	if err := ctx.Err(); err != nil {
		return failure.Cancelled(err)
	}

	if _, err := stdoutFile.Seek(0, io.SeekStart); err != nil {
		return pkgerrors.Wrap(err, "failed to read test output")
	}
	outcome := g.parser().Parse(stdoutFile, g.Name)
	timedOut := outcome.TimedOut || errors.Is(runCtx.Err(), context.DeadlineExceeded)

	return g.classify(outcome, runErr, timedOut, timeout, stderr)
}

// classify maps a finished go test run to the error returned from Run
func (g *GoTest) classify(outcome *Outcome, runErr error, timedOut bool, timeout time.Duration, stderr *tailBuffer) error {
	output := snippet(outcome.Output, defaultSnippetBytes, false)

	switch code := exitCode(runErr); {
	case timedOut:
		return failure.Assertion("test exceeded timeout of %v\n%s", timeout, output)
	case code == -1:
		return pkgerrors.Wrap(runErr, "failed to run go test")
	case code > 1:
		return pkgerrors.Errorf("go test failed with exit code %d: %s", code, stderr.Snippet(defaultSnippetBytes))
	}

	switch outcome.Status {
	case types.TestStatusPass:
		return nil
	case types.TestStatusSkip:
		return failure.Ignore(skipReason(outcome.Output))
	case types.TestStatusFail:
		if len(outcome.FailedSubTests) > 0 {
			output = fmt.Sprintf("failed subtests: %s\n%s", strings.Join(outcome.FailedSubTests, ", "), output)
		}
		return failure.Assertion("%s", output)
	}

	if runErr != nil {
		// the test never ran, usually a build failure
		return pkgerrors.Errorf("go test failed before %s ran: %s", g.Name,
			firstNonEmpty(stderr.Snippet(defaultSnippetBytes), output))
	}
	return failure.Inconclusive(fmt.Sprintf("no result reported for %s in %s", g.Name, g.Package))
}

func (g *GoTest) buildTestArgs(timeout time.Duration) []string {
	args := []string{TestCommand, JSONFlag, VerboseFlag, CountFlag, DisableCacheCount}
	if timeout > 0 {
		args = append(args, TimeoutFlag, timeout.String())
	}
	args = append(args, RunFlag, fmt.Sprintf("^%s$", g.Name), g.Package)
	return args
}

func (g *GoTest) goBinary() string {
	if g.GoBinary == "" {
		return DefaultGoBinary
	}
	return g.GoBinary
}

func (g *GoTest) parser() OutputParser {
	if g.Parser == nil {
		return NewOutputParser()
	}
	return g.Parser
}

// skipReason drops the "--- SKIP" marker from the output of a skipped test
func skipReason(output string) string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--- SKIP:") {
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	reason := strings.TrimSpace(strings.Join(lines, "\n"))
	if reason == "" {
		return "skipped"
	}
	return reason
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
