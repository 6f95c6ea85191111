package flags

import (
	"fmt"
	"regexp"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_SUITE"

var (
	Plan = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:    "Path to the test plan (eg. 'plan.yaml' or 'plan.toml')",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Directory tests and commands run in, and from which packages are discovered",
	}
	Gate = &cli.StringFlag{
		Name:    "gate",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GATE"),
		Usage:   "Only run this gate (eg. 'base'). Runs every gate when empty.",
	}
	Run = &cli.StringFlag{
		Name:    "run",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN"),
		Usage:   "Regular expression over full test names (eg. 'base/db/.*'). A matching suite runs entirely.",
		Action: func(_ *cli.Context, v string) error {
			if _, err := regexp.Compile(v); err != nil {
				return fmt.Errorf("invalid run pattern: %w", err)
			}
			return nil
		},
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Maximum number of tests running at once (0 = auto-determine from CPUs)",
		Action: func(_ *cli.Context, v int) error {
			if v < 0 {
				return fmt.Errorf("concurrency must be >= 0, got %d", v)
			}
			return nil
		},
	}
	Serial = &cli.BoolFlag{
		Name:    "serial",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERIAL"),
		Usage:   "Run tests one at a time in declaration order",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	Shell = &cli.StringFlag{
		Name:    "shell",
		Value:   "sh",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHELL"),
		Usage:   "Shell used for command tests, setup and teardown",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   10 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout for tests that don't set one in the plan (0 = no timeout)",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ShowTrace = &cli.BoolFlag{
		Name:    "show-trace",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_TRACE"),
		Usage:   "Print stack traces of failures",
	}
	ShowTests = &cli.BoolFlag{
		Name:    "show-tests",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_TESTS"),
		Usage:   "Include individual tests in the results table",
	}
	ResultsDir = &cli.StringFlag{
		Name:    "results-dir",
		Value:   "results",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RESULTS_DIR"),
		Usage:   "Directory where <run-id>/results.json is written. Empty disables result files.",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates while tests run (0 = only log gate and suite starts)",
	}
	FlakeShakeIterations = &cli.IntFlag{
		Name:    "flake-shake-iterations",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FLAKE_SHAKE_ITERATIONS"),
		Usage:   "Run the selected tests this many times and report how stable each one is (0 = disabled). Requires run-once mode.",
		Action: func(_ *cli.Context, v int) error {
			if v < 0 {
				return fmt.Errorf("flake-shake iterations must be >= 0, got %d", v)
			}
			return nil
		},
	}
	HealthzEnabled = &cli.BoolFlag{
		Name:    "healthz.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ENABLED"),
		Usage:   "Serve /healthz",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Healthz listening address",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Healthz listening port",
	}
)

var requiredFlags = []cli.Flag{
	Plan,
}

var optionalFlags = []cli.Flag{
	WorkDir,
	Gate,
	Run,
	Concurrency,
	Serial,
	GoBinary,
	Shell,
	DefaultTimeout,
	RunInterval,
	ShowTrace,
	ShowTests,
	ResultsDir,
	ProgressInterval,
	FlakeShakeIterations,
	HealthzEnabled,
	HealthzAddr,
	HealthzPort,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
