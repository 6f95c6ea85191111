package opsuite

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-suite/exitcodes"
)

var (
	_ cli.ExitCoder = (*RuntimeError)(nil)
	_ cli.ExitCoder = (*TestFailureError)(nil)
)

// RuntimeError means op-suite could not produce a trustworthy run: the plan did not
// load, a gate was unknown, a server failed to bind or the report could not be written.
type RuntimeError struct {
	Err error
}

func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func (e *RuntimeError) ExitCode() int {
	return exitcodes.RuntimeErr
}

// TestFailureError carries the count summary of a run-once run in which at least one
// test failed, errored or was cancelled.
type TestFailureError struct {
	Message string
}

func NewTestFailureError(summary string) *TestFailureError {
	return &TestFailureError{Message: summary}
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

func (e *TestFailureError) ExitCode() int {
	return exitcodes.TestFailure
}

func IsRuntimeError(err error) bool {
	var target *RuntimeError
	return errors.As(err, &target)
}

func IsTestFailureError(err error) bool {
	var target *TestFailureError
	return errors.As(err, &target)
}

// ExitCode maps an error returned by the app to the process exit code. Both error types
// above are cli.ExitCoders; anything else, such as a rejected flag, exits as a runtime
// error.
func ExitCode(err error) int {
	if err == nil {
		return exitcodes.Success
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitcodes.RuntimeErr
}
