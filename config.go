package opsuite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-suite/flags"
	"github.com/ethereum-optimism/infra/op-suite/service"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

// Config holds the application configuration
type Config struct {
	PlanFile       string
	WorkDir        string
	Gate           string         // Only run this gate when set
	RunPattern     *regexp.Regexp // Only run tests whose full name matches
	Concurrency    int            // Maximum concurrently running tests (0 = auto-determine)
	Serial         bool
	GoBinary       string
	Shell          string
	DefaultTimeout time.Duration
	RunInterval    time.Duration // Interval between test runs
	RunOnce        bool          // Indicates if the service should exit after one test run
	ShowTrace      bool
	ShowTests      bool
	ResultsDir     string // Empty disables result files

	ProgressInterval     time.Duration // 0 disables periodic progress updates
	FlakeShakeIterations int           // Run the tests this many times and report stability (0 = disabled)

	Service        service.Config
	Log            log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, lgr log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	var runPattern *regexp.Regexp
	if p := ctx.String(flags.Run.Name); p != "" {
		var err error
		if runPattern, err = regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("invalid run pattern %q: %w", p, err)
		}
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	cfg := &Config{
		PlanFile:       ctx.String(flags.Plan.Name),
		WorkDir:        ctx.String(flags.WorkDir.Name),
		Gate:           ctx.String(flags.Gate.Name),
		RunPattern:     runPattern,
		Concurrency:    ctx.Int(flags.Concurrency.Name),
		Serial:         ctx.Bool(flags.Serial.Name),
		GoBinary:       ctx.String(flags.GoBinary.Name),
		Shell:          ctx.String(flags.Shell.Name),
		DefaultTimeout: ctx.Duration(flags.DefaultTimeout.Name),
		RunInterval:    runInterval,
		RunOnce:        runInterval == 0,
		ShowTrace:      ctx.Bool(flags.ShowTrace.Name),
		ShowTests:      ctx.Bool(flags.ShowTests.Name),
		ResultsDir:     ctx.String(flags.ResultsDir.Name),

		ProgressInterval:     ctx.Duration(flags.ProgressInterval.Name),
		FlakeShakeIterations: ctx.Int(flags.FlakeShakeIterations.Name),

		Service: service.Config{
			HealthzEnabled: ctx.Bool(flags.HealthzEnabled.Name),
			HealthzAddr:    ctx.String(flags.HealthzAddr.Name),
			HealthzPort:    ctx.Int(flags.HealthzPort.Name),
			Metrics:        metricsCfg,
		},
		Log: lgr,
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates the config and resolves every path to an absolute one
func (c *Config) Check() error {
	if c.PlanFile == "" {
		return errors.New("plan file is required")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency)
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("default timeout must be >= 0, got %s", c.DefaultTimeout)
	}
	if c.RunInterval < 0 {
		return fmt.Errorf("run interval must be >= 0, got %s", c.RunInterval)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval must be >= 0, got %s", c.ProgressInterval)
	}
	if c.FlakeShakeIterations < 0 {
		return fmt.Errorf("flake-shake iterations must be >= 0, got %d", c.FlakeShakeIterations)
	}
	if c.FlakeShakeIterations > 0 && c.RunInterval > 0 {
		return errors.New("flake-shake requires run-once mode, unset the run interval")
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.Log == nil {
		c.Log = log.Root()
	}

	var err error
	if c.PlanFile, err = filepath.Abs(c.PlanFile); err != nil {
		return fmt.Errorf("failed to resolve absolute path for plan '%s': %w", c.PlanFile, err)
	}
	if _, err := os.Stat(c.PlanFile); err != nil {
		return fmt.Errorf("plan file: %w", err)
	}

	if c.WorkDir, err = filepath.Abs(c.WorkDir); err != nil {
		return fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", c.WorkDir, err)
	}
	info, err := os.Stat(c.WorkDir)
	if err != nil {
		return fmt.Errorf("work directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("work directory %s is not a directory", c.WorkDir)
	}

	if c.ResultsDir != "" {
		if c.ResultsDir, err = filepath.Abs(c.ResultsDir); err != nil {
			return fmt.Errorf("failed to resolve absolute path for results directory '%s': %w", c.ResultsDir, err)
		}
	}
	return nil
}
