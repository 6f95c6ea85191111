// Package runner provides the executable parts of a test tree.
//
// The main components are:
//   - GoTest: runs one Go test function with go test -json and classifies its outcome
//   - OutputParser: turns go test -json output into an Outcome
//   - Command: runs a shell command as a test
//   - CommandFixture: runs one-time setup and teardown commands of a gate or suite
//   - Factory: creates all of the above from plan entries
//   - Progress: observes a running tree and logs periodic progress updates
package runner
