package opsuite

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-suite/exitcodes"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitcodes.Success},
		{"runtime", NewRuntimeError(errors.New("no plan")), exitcodes.RuntimeErr},
		{"wrapped runtime", fmt.Errorf("starting: %w", NewRuntimeError(errors.New("no plan"))), exitcodes.RuntimeErr},
		{"test failure", NewTestFailureError("1 failed"), exitcodes.TestFailure},
		{"wrapped test failure", fmt.Errorf("run: %w", NewTestFailureError("1 failed")), exitcodes.TestFailure},
		{"unknown", errors.New("boom"), exitcodes.RuntimeErr},
		{"exit coder", cli.Exit("custom", 7), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("plan not found")
	rt := NewRuntimeError(cause)
	assert.Equal(t, "runtime error: plan not found", rt.Error())
	assert.ErrorIs(t, rt, cause)
	assert.False(t, IsTestFailureError(rt))

	var coder cli.ExitCoder
	assert.ErrorAs(t, fmt.Errorf("start: %w", rt), &coder)
	assert.Equal(t, exitcodes.RuntimeErr, coder.ExitCode())

	tf := NewTestFailureError("2 failed")
	assert.Equal(t, exitcodes.TestFailure, tf.ExitCode())
	assert.Equal(t, "test failure: 2 failed", tf.Error())
	assert.False(t, IsRuntimeError(tf))
	assert.False(t, IsRuntimeError(nil))
}
