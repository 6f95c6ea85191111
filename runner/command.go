package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-suite/failure"
	"github.com/ethereum-optimism/infra/op-suite/types"
	"github.com/ethereum-optimism/infra/op-suite/workitem"
)

var (
	_ workitem.Test    = (*Command)(nil)
	_ workitem.Fixture = (*CommandFixture)(nil)
)

// Command runs a shell command as a test. Exit code 0 passes, any other exit code fails.
type Command struct {
	Name   string
	Script string
	Shell  string
}

func (c *Command) Run(ctx context.Context, ec *workitem.ExecutionContext) error {
	timeout := ec.Timeout()
	runCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	ec.Log().Info("Running command", "test", c.Name)
	output, runErr := runShell(runCtx, ec, c.Shell, c.Script, nil)
	if err := ctx.Err(); err != nil {
		return failure.Cancelled(err)
	}

	switch code := exitCode(runErr); {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return failure.Assertion("command exceeded timeout of %v\n%s", timeout, output.Snippet(defaultSnippetBytes))
	case code == -1:
		return pkgerrors.Wrapf(runErr, "failed to start command %q", c.Name)
	case code != 0:
		return failure.Assertion("command exited with code %d\n%s", code, output.Snippet(defaultSnippetBytes))
	}
	return nil
}

// CommandFixture runs the one-time setup and teardown commands of a gate or suite.
//
// The setup command may write KEY=VALUE lines to the file named by $OP_SUITE_OUTPUT.
// Those variables, on top of the fixture's static env, are visible to every child and
// to the teardown command.
type CommandFixture struct {
	SetUpConfig    *types.FixtureConfig
	TearDownConfig *types.FixtureConfig
	Shell          string
}

func (f *CommandFixture) SetUp(ctx context.Context, ec *workitem.ExecutionContext) (*workitem.ExecutionContext, error) {
	if f.SetUpConfig == nil {
		return ec, nil
	}
	ec = ec.WithEnv(f.SetUpConfig.Env)
	if f.SetUpConfig.Run == "" {
		return ec, nil
	}

	outFile, err := os.CreateTemp("", "op-suite-setup-*.env")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create setup output file")
	}
	outPath := outFile.Name()
	_ = outFile.Close()
	defer func() { _ = os.Remove(outPath) }()

	ec.Log().Info("Running setup command")
	output, runErr := runShell(ctx, ec, f.Shell, f.SetUpConfig.Run, []string{OutputEnvVar + "=" + outPath})
	if err := commandError(ctx, "setup", runErr, output); err != nil {
		return nil, err
	}

	exported, err := readOutputFile(outPath)
	if err != nil {
		return nil, err
	}
	if len(exported) > 0 {
		ec.Log().Debug("Setup exported variables", "keys", strings.Join(slices.Sorted(maps.Keys(exported)), ","))
	}
	return ec.WithEnv(exported), nil
}

func (f *CommandFixture) TearDown(ctx context.Context, ec *workitem.ExecutionContext) error {
	if f.TearDownConfig == nil || f.TearDownConfig.Run == "" {
		return nil
	}
	ec = ec.WithEnv(f.TearDownConfig.Env)

	ec.Log().Info("Running teardown command")
	output, runErr := runShell(ctx, ec, f.Shell, f.TearDownConfig.Run, nil)
	return commandError(ctx, "teardown", runErr, output)
}

// commandError turns a failed fixture command into an unclassified error
func commandError(ctx context.Context, stage string, runErr error, output *tailBuffer) error {
	if runErr == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return failure.Cancelled(err)
	}
	if code := exitCode(runErr); code > 0 {
		return pkgerrors.Errorf("%s command exited with code %d: %s", stage, code, output.Snippet(defaultSnippetBytes))
	}
	return pkgerrors.Wrapf(runErr, "failed to start %s command", stage)
}

// runShell runs script with the shell in the work dir of ec and returns the combined
// output tail
func runShell(ctx context.Context, ec *workitem.ExecutionContext, shell, script string, extraEnv []string) (*tailBuffer, error) {
	if shell == "" {
		shell = DefaultShell
	}
	output := newTailBuffer(0)

	cmd := exec.CommandContext(ctx, shell, "-c", script)
	cmd.Dir = ec.WorkDir()
	cmd.Env = environ(ctx, ec, extraEnv...)
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = waitDelay

	startTime := time.Now()
	err := cmd.Run()
	ec.Log().Debug("Command finished", "duration", time.Since(startTime), "err", err)
	return output, err
}

// readOutputFile parses KEY=VALUE lines. Blank lines and lines starting with # are
// skipped.
func readOutputFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening setup output: %w", err)
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		if !ok || key == "" {
			return nil, fmt.Errorf("setup output line %d: expected KEY=VALUE, got %q", lineNo, line)
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading setup output: %w", err)
	}
	return vars, nil
}
