package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"

	"github.com/ethereum-optimism/infra/op-suite/workitem"
)

// waitDelay bounds how long a killed process may keep its output pipes open
const waitDelay = 5 * time.Second

// environ returns the process environment with the fixture environment of ec and extra
// on top. The trace context of ctx is propagated to the child process.
func environ(ctx context.Context, ec *workitem.ExecutionContext, extra ...string) []string {
	env := append(os.Environ(), ec.Environ()...)
	env = append(env, extra...)
	return telemetry.InstrumentEnvironment(ctx, env)
}

// withTimeout bounds ctx by d when d is positive
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// exitCode returns the exit code of a finished command, or -1 when it did not run.
// A command killed by a signal reports 128.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return 128
	}
	return -1
}
