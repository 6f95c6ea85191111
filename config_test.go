package opsuite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-suite/flags"
)

func configFromArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg *Config
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			var err error
			cfg, err = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
			return err
		},
	}
	err := app.Run(append([]string{"op-suite"}, args...))
	return cfg, err
}

func TestNewConfig(t *testing.T) {
	dir := t.TempDir()
	planFile := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planFile, []byte("gates: []\n"), 0644))

	t.Run("defaults", func(t *testing.T) {
		cfg, err := configFromArgs(t, "--plan", planFile, "--workdir", dir)
		require.NoError(t, err)

		assert.Equal(t, planFile, cfg.PlanFile)
		assert.Equal(t, dir, cfg.WorkDir)
		assert.True(t, cfg.RunOnce)
		assert.Nil(t, cfg.RunPattern)
		assert.Equal(t, 10*time.Minute, cfg.DefaultTimeout)
		assert.Equal(t, "go", cfg.GoBinary)
		assert.Equal(t, "sh", cfg.Shell)
		assert.True(t, filepath.IsAbs(cfg.ResultsDir))
		assert.True(t, cfg.ShowTests)
		assert.Equal(t, 30*time.Second, cfg.ProgressInterval)
		assert.Zero(t, cfg.FlakeShakeIterations)
		assert.False(t, cfg.Service.HealthzEnabled)
		assert.False(t, cfg.Service.Metrics.Enabled)
	})

	t.Run("everything set", func(t *testing.T) {
		cfg, err := configFromArgs(t,
			"--plan", planFile, "--workdir", dir,
			"--gate", "base", "--run", "base/db/.*",
			"--concurrency", "3", "--serial",
			"--default-timeout", "30s", "--run-interval", "5m",
			"--results-dir", "", "--show-trace",
			"--healthz.enabled", "--healthz.port", "9090",
			"--progress-interval", "0",
		)
		require.NoError(t, err)

		assert.Equal(t, "base", cfg.Gate)
		require.NotNil(t, cfg.RunPattern)
		assert.True(t, cfg.RunPattern.MatchString("base/db/TestQuery"))
		assert.Equal(t, 3, cfg.Concurrency)
		assert.True(t, cfg.Serial)
		assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
		assert.Equal(t, 5*time.Minute, cfg.RunInterval)
		assert.False(t, cfg.RunOnce)
		assert.Empty(t, cfg.ResultsDir)
		assert.True(t, cfg.ShowTrace)
		assert.True(t, cfg.Service.HealthzEnabled)
		assert.Equal(t, 9090, cfg.Service.HealthzPort)
		assert.Zero(t, cfg.ProgressInterval)
	})

	t.Run("flake-shake", func(t *testing.T) {
		cfg, err := configFromArgs(t, "--plan", planFile, "--workdir", dir, "--flake-shake-iterations", "5")
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.FlakeShakeIterations)
		assert.True(t, cfg.RunOnce)
	})

	t.Run("flake-shake with run interval", func(t *testing.T) {
		_, err := configFromArgs(t, "--plan", planFile, "--workdir", dir,
			"--flake-shake-iterations", "5", "--run-interval", "1m")
		assert.ErrorContains(t, err, "flake-shake requires run-once mode")
	})

	t.Run("relative plan is made absolute", func(t *testing.T) {
		t.Chdir(dir)
		cfg, err := configFromArgs(t, "--plan", "plan.yaml")
		require.NoError(t, err)
		// macOS temp dirs are symlinked, compare resolved paths
		want, _ := filepath.EvalSymlinks(planFile)
		got, _ := filepath.EvalSymlinks(cfg.PlanFile)
		assert.Equal(t, want, got)
	})

	t.Run("missing plan flag", func(t *testing.T) {
		_, err := configFromArgs(t)
		assert.Error(t, err)
	})
}

func TestConfigCheck(t *testing.T) {
	dir := t.TempDir()
	planFile := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planFile, []byte("gates: []\n"), 0644))

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg:  Config{PlanFile: planFile, WorkDir: dir},
		},
		{
			name:    "no plan",
			cfg:     Config{WorkDir: dir},
			wantErr: "plan file is required",
		},
		{
			name:    "plan does not exist",
			cfg:     Config{PlanFile: filepath.Join(dir, "nope.yaml"), WorkDir: dir},
			wantErr: "plan file",
		},
		{
			name:    "work dir is a file",
			cfg:     Config{PlanFile: planFile, WorkDir: planFile},
			wantErr: "is not a directory",
		},
		{
			name:    "work dir does not exist",
			cfg:     Config{PlanFile: planFile, WorkDir: filepath.Join(dir, "missing")},
			wantErr: "work directory",
		},
		{
			name:    "negative concurrency",
			cfg:     Config{PlanFile: planFile, WorkDir: dir, Concurrency: -2},
			wantErr: "concurrency must be >= 0",
		},
		{
			name:    "negative interval",
			cfg:     Config{PlanFile: planFile, WorkDir: dir, RunInterval: -time.Second},
			wantErr: "run interval must be >= 0",
		},
		{
			name:    "negative progress interval",
			cfg:     Config{PlanFile: planFile, WorkDir: dir, ProgressInterval: -time.Second},
			wantErr: "progress interval must be >= 0",
		},
		{
			name:    "negative flake-shake iterations",
			cfg:     Config{PlanFile: planFile, WorkDir: dir, FlakeShakeIterations: -1},
			wantErr: "flake-shake iterations must be >= 0",
		},
		{
			name:    "flake-shake in periodic mode",
			cfg:     Config{PlanFile: planFile, WorkDir: dir, FlakeShakeIterations: 3, RunInterval: time.Minute},
			wantErr: "flake-shake requires run-once mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Check()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfg.Log)
			assert.True(t, filepath.IsAbs(cfg.PlanFile))
		})
	}
}
