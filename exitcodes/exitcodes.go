// Package exitcodes defines the exit codes op-suite terminates with.
package exitcodes

// Success when every test passed or produced no failing verdict, TestFailure when at
// least one test failed or errored, RuntimeErr when the run itself could not be
// performed (bad flags, unreadable plan, panics).
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
